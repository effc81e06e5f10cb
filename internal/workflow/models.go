package workflow

import (
	"context"
	"time"
)

type EntityRef struct {
	Type EntityType `json:"entity_type"`
	ID   string     `json:"entity_id"`
}

type OfferStatus string

const (
	OfferSubmitted OfferStatus = "submitted"
	OfferAccepted  OfferStatus = "accepted"
	OfferRejected  OfferStatus = "rejected"
)

type Offer struct {
	ID         string      `json:"offer_id"`
	OrderID    string      `json:"order_id"`
	DriverID   string      `json:"driver_id"`
	PriceCents int64       `json:"price_cents"`
	Status     OfferStatus `json:"status"`
	AcceptedBy string      `json:"accepted_by,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	AcceptedAt *time.Time  `json:"accepted_at,omitempty"`
}

// offerOpenStatuses are the order statuses in which offers may be submitted or accepted.
var offerOpenStatuses = []Status{OrderCreated, OrderOfferPending}

// OfferOpen reports whether an order in status s still takes offers.
func OfferOpen(s Status) bool {
	for _, v := range offerOpenStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// StatusStore persists the status field of orders, deals and disputes.
// It performs no legality or authorization checks.
type StatusStore interface {
	// GetCurrentStatus returns ErrNotFound when the entity does not exist.
	GetCurrentStatus(ctx context.Context, t EntityType, id string) (Status, error)
	SetStatus(ctx context.Context, t EntityType, id string, s Status) error
}

// Acceptance is the outcome of a successful atomic offer acceptance.
type Acceptance struct {
	Offer       Offer  `json:"offer"`
	OrderStatus Status `json:"order_status"`
	// AlreadyAccepted is set when the same actor had already won this offer.
	AlreadyAccepted bool `json:"already_accepted"`
}

// OfferStore owns the atomic offer primitives. AcceptOffer must decide and
// write in a single transaction/lock scope and return ErrConflict when the
// order is no longer acceptable or another offer has won.
type OfferStore interface {
	SubmitOffer(ctx context.Context, o Offer) (Offer, error)
	AcceptOffer(ctx context.Context, offerID, orderID, actorID string) (Acceptance, error)
}
