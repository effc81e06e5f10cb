package workflow

import "errors"

var (
	// ErrInvalidTransition means from→to is not an edge of the status graph.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrUnauthorized means the transition is legal but the role holds no grant for it.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPersistence wraps status store write failures.
	ErrPersistence = errors.New("persistence error")
	// ErrContention means a concurrent offer acceptance already won.
	ErrContention = errors.New("contention")

	// ErrNotFound is returned by stores when the entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is the storage-level signal that an atomic conditional
	// update matched nothing or lost a lock race.
	ErrConflict = errors.New("conflict")
	// ErrOfferClosed means the order no longer accepts new offers.
	ErrOfferClosed  = errors.New("order is not open for offers")
	ErrInvalidInput = errors.New("invalid input")
)

type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindUnauthorized      ErrorKind = "unauthorized"
	KindPersistence       ErrorKind = "persistence_error"
	KindContention        ErrorKind = "contention"
	KindNotFound          ErrorKind = "not_found"
	KindInvalidInput      ErrorKind = "invalid_input"
	KindOfferClosed       ErrorKind = "offer_closed"
	KindInternal          ErrorKind = "internal"
)

// KindOf classifies an error returned by this package.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrContention):
		return KindContention
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrOfferClosed):
		return KindOfferClosed
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}
