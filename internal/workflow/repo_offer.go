package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLSTATEs that mean another transaction got there first.
var conflictCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available (lock_timeout)
	"23505": true, // unique_violation on offers_one_accepted_per_order
}

// OfferRepo is the Postgres OfferStore. Both operations lock the order row
// FOR UPDATE, so submissions and acceptances on one order are serialized.
type OfferRepo struct {
	DB *pgxpool.Pool
	// LockTimeout bounds the wait on the order row lock; expiry surfaces as ErrConflict.
	LockTimeout time.Duration
}

func (r *OfferRepo) begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	if r.LockTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`SET LOCAL lock_timeout = '%dms'`, r.LockTimeout.Milliseconds())); err != nil {
			_ = tx.Rollback(ctx)
			return nil, err
		}
	}
	return tx, nil
}

func (r *OfferRepo) lockOrder(ctx context.Context, tx pgx.Tx, orderID string) (Status, error) {
	var s string
	err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE order_id=$1 FOR UPDATE`, orderID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	if err != nil {
		return "", mapPgError(err)
	}
	return Status(s), nil
}

// SubmitOffer inserts a submitted offer and moves a created order to offer_pending.
func (r *OfferRepo) SubmitOffer(ctx context.Context, o Offer) (Offer, error) {
	tx, err := r.begin(ctx)
	if err != nil {
		return Offer{}, mapPgError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	status, err := r.lockOrder(ctx, tx, o.OrderID)
	if err != nil {
		return Offer{}, err
	}
	if !OfferOpen(status) {
		return Offer{}, fmt.Errorf("%w: order %s is %s", ErrOfferClosed, o.OrderID, status)
	}

	o.ID = uuid.NewString()
	o.Status = OfferSubmitted
	if err := tx.QueryRow(ctx, `
		INSERT INTO offers(offer_id, order_id, driver_id, price_cents, status)
		VALUES ($1, $2, $3, $4, 'submitted')
		RETURNING created_at`,
		o.ID, o.OrderID, o.DriverID, o.PriceCents,
	).Scan(&o.CreatedAt); err != nil {
		return Offer{}, mapPgError(err)
	}

	if status == OrderCreated {
		if _, err := tx.Exec(ctx, `UPDATE orders SET status='offer_pending', updated_at=NOW() WHERE order_id=$1`, o.OrderID); err != nil {
			return Offer{}, mapPgError(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Offer{}, mapPgError(err)
	}
	return o, nil
}

// AcceptOffer is the atomic accept primitive: with the order row locked it
// checks that the order still takes offers, that no sibling is accepted, and
// that the offer is submitted, then accepts the offer and moves the order to
// deal_accepted. Any failed predicate rolls back and returns ErrConflict.
func (r *OfferRepo) AcceptOffer(ctx context.Context, offerID, orderID, actorID string) (Acceptance, error) {
	tx, err := r.begin(ctx)
	if err != nil {
		return Acceptance{}, mapPgError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	orderStatus, err := r.lockOrder(ctx, tx, orderID)
	if err != nil {
		return Acceptance{}, err
	}

	var (
		o          Offer
		status     string
		acceptedBy *string
	)
	err = tx.QueryRow(ctx, `
		SELECT offer_id, order_id, driver_id, price_cents, status, accepted_by, created_at, accepted_at
		FROM offers WHERE offer_id=$1 AND order_id=$2 FOR UPDATE`, offerID, orderID,
	).Scan(&o.ID, &o.OrderID, &o.DriverID, &o.PriceCents, &status, &acceptedBy, &o.CreatedAt, &o.AcceptedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Acceptance{}, fmt.Errorf("%w: offer %s on order %s", ErrNotFound, offerID, orderID)
	}
	if err != nil {
		return Acceptance{}, mapPgError(err)
	}
	o.Status = OfferStatus(status)
	if acceptedBy != nil {
		o.AcceptedBy = *acceptedBy
	}

	switch o.Status {
	case OfferAccepted:
		if o.AcceptedBy == actorID {
			return Acceptance{Offer: o, OrderStatus: orderStatus, AlreadyAccepted: true}, nil
		}
		return Acceptance{}, fmt.Errorf("%w: offer %s already accepted", ErrConflict, offerID)
	case OfferRejected:
		return Acceptance{}, fmt.Errorf("%w: offer %s was rejected", ErrOfferClosed, offerID)
	}

	if !OfferOpen(orderStatus) {
		return Acceptance{}, fmt.Errorf("%w: order %s is %s", ErrConflict, orderID, orderStatus)
	}

	var accepted int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM offers WHERE order_id=$1 AND status='accepted'`, orderID).Scan(&accepted); err != nil {
		return Acceptance{}, mapPgError(err)
	}
	if accepted > 0 {
		return Acceptance{}, fmt.Errorf("%w: order %s already has an accepted offer", ErrConflict, orderID)
	}

	var acceptedAt time.Time
	if err := tx.QueryRow(ctx, `
		UPDATE offers SET status='accepted', accepted_by=$2, accepted_at=NOW()
		WHERE offer_id=$1 AND status='submitted'
		RETURNING accepted_at`, offerID, actorID,
	).Scan(&acceptedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Acceptance{}, fmt.Errorf("%w: offer %s changed concurrently", ErrConflict, offerID)
		}
		return Acceptance{}, mapPgError(err)
	}

	ct, err := tx.Exec(ctx, `UPDATE orders SET status='deal_accepted', updated_at=NOW() WHERE order_id=$1`, orderID)
	if err != nil {
		return Acceptance{}, mapPgError(err)
	}
	if ct.RowsAffected() != 1 {
		return Acceptance{}, fmt.Errorf("%w: order %s changed concurrently", ErrConflict, orderID)
	}

	if err := tx.Commit(ctx); err != nil {
		return Acceptance{}, mapPgError(err)
	}

	o.Status = OfferAccepted
	o.AcceptedBy = actorID
	o.AcceptedAt = &acceptedAt
	return Acceptance{Offer: o, OrderStatus: OrderDealAccepted}, nil
}

// mapPgError turns lock and serialization failures into ErrConflict using the
// SQLSTATE, keeping the driver error in the chain.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && conflictCodes[pgErr.Code] {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}
