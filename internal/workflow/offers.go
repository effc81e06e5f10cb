package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-lifecycle/internal/audit"
	"github.com/ariefcatur/go-order-lifecycle/internal/metrics"
)

// ContentionMessage is returned to losers of an offer acceptance race.
const ContentionMessage = "another user has already accepted or is processing this order"

// OfferCoordinator accepts offers through the store's atomic primitive so that
// at most one offer per order is ever accepted, across processes.
type OfferCoordinator struct {
	offers OfferStore
	audit  audit.Sink
	logger *zap.Logger
}

func NewOfferCoordinator(offers OfferStore, sink audit.Sink, logger *zap.Logger) (*OfferCoordinator, error) {
	if offers == nil {
		return nil, errors.New("offer coordinator: offer store is required")
	}
	if sink == nil {
		return nil, errors.New("offer coordinator: audit sink is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OfferCoordinator{offers: offers, audit: sink, logger: logger}, nil
}

// AcceptOffer accepts offerID on orderID for actorID. Losing a race returns
// ErrContention. Both outcomes are audited. Re-accepting an offer the same
// actor already won succeeds with AlreadyAccepted set and writes no audit event.
func (c *OfferCoordinator) AcceptOffer(ctx context.Context, offerID, orderID, actorID string) (Acceptance, error) {
	offerID, orderID, actorID = strings.TrimSpace(offerID), strings.TrimSpace(orderID), strings.TrimSpace(actorID)
	if offerID == "" || orderID == "" || actorID == "" {
		err := fmt.Errorf("%w: offer id, order id and actor id are required", ErrInvalidInput)
		c.recordFailure(ctx, offerID, orderID, actorID, err, false)
		metrics.OfferAcceptTotal.WithLabelValues(string(KindInvalidInput)).Inc()
		return Acceptance{}, err
	}

	res, err := c.offers.AcceptOffer(ctx, offerID, orderID, actorID)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			c.recordFailure(ctx, offerID, orderID, actorID, err, true)
			metrics.OfferAcceptTotal.WithLabelValues(string(KindContention)).Inc()
			return Acceptance{}, fmt.Errorf("%w: %s", ErrContention, ContentionMessage)
		}
		c.recordFailure(ctx, offerID, orderID, actorID, err, false)
		metrics.OfferAcceptTotal.WithLabelValues(string(KindOf(err))).Inc()
		return Acceptance{}, err
	}

	if res.AlreadyAccepted {
		metrics.OfferAcceptTotal.WithLabelValues("already_accepted").Inc()
		return res, nil
	}

	c.record(ctx, audit.Event{
		EventType:  audit.EventDealAccepted,
		Severity:   audit.SeverityCritical,
		EntityType: "offer",
		EntityID:   offerID,
		ActorID:    actorID,
		TargetID:   orderID,
		Metadata: map[string]any{
			"driver_id":    res.Offer.DriverID,
			"price_cents":  res.Offer.PriceCents,
			"order_status": string(res.OrderStatus),
		},
		VisibleTo: []string{string(RoleCM), string(RoleDriver), string(RoleSenderBusiness), string(RoleSenderPrivate)},
	})
	metrics.OfferAcceptTotal.WithLabelValues("success").Inc()
	return res, nil
}

// SubmitOffer records a driver's price proposal on an order that is still
// created or offer_pending.
func (c *OfferCoordinator) SubmitOffer(ctx context.Context, orderID, driverID string, priceCents int64) (Offer, error) {
	orderID, driverID = strings.TrimSpace(orderID), strings.TrimSpace(driverID)
	if orderID == "" || driverID == "" {
		return Offer{}, fmt.Errorf("%w: order id and driver id are required", ErrInvalidInput)
	}
	if priceCents <= 0 {
		return Offer{}, fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}

	offer, err := c.offers.SubmitOffer(ctx, Offer{OrderID: orderID, DriverID: driverID, PriceCents: priceCents, Status: OfferSubmitted})
	if err != nil {
		return Offer{}, err
	}

	c.record(ctx, audit.Event{
		EventType:  audit.EventOfferSubmitted,
		EntityType: "offer",
		EntityID:   offer.ID,
		ActorID:    driverID,
		TargetID:   orderID,
		Metadata:   map[string]any{"price_cents": priceCents},
		VisibleTo:  []string{string(RoleCM), string(RoleSenderBusiness), string(RoleSenderPrivate)},
	})
	return offer, nil
}

func (c *OfferCoordinator) recordFailure(ctx context.Context, offerID, orderID, actorID string, cause error, contention bool) {
	c.record(ctx, audit.Event{
		EventType:  audit.EventDealAcceptFailed,
		Severity:   audit.SeverityWarn,
		EntityType: "offer",
		EntityID:   offerID,
		ActorID:    actorID,
		TargetID:   orderID,
		Metadata: map[string]any{
			"error":      cause.Error(),
			"contention": contention,
		},
		VisibleTo: []string{string(RoleCM)},
	})
}

func (c *OfferCoordinator) record(ctx context.Context, ev audit.Event) {
	if err := c.audit.Record(ctx, ev); err != nil {
		metrics.AuditWriteFailures.Inc()
		c.logger.Warn("audit write failed",
			zap.String("event_type", ev.EventType),
			zap.String("entity_id", ev.EntityID),
			zap.Error(err),
		)
	}
}
