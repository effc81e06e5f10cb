package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-lifecycle/internal/workflow"
)

// StatusCache is a read-through Redis cache in front of a StatusStore. The
// backing store stays the source of truth; cache failures only cost a round trip.
type StatusCache struct {
	next   workflow.StatusStore
	rdb    Cmdable
	logger *zap.Logger
}

func NewStatusCache(next workflow.StatusStore, rdb Cmdable, logger *zap.Logger) *StatusCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusCache{next: next, rdb: rdb, logger: logger}
}

func statusKey(t workflow.EntityType, id string) string {
	return fmt.Sprintf(KeyEntityStatus, t, id)
}

func (c *StatusCache) GetCurrentStatus(ctx context.Context, t workflow.EntityType, id string) (workflow.Status, error) {
	key := statusKey(t, id)
	s, err := c.rdb.Get(ctx, key).Result()
	if err == nil && s != "" {
		return workflow.Status(s), nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Debug("status cache read failed", zap.String("key", key), zap.Error(err))
	}

	status, err := c.next.GetCurrentStatus(ctx, t, id)
	if err != nil {
		return "", err
	}
	// Fill only an empty key: a writer that committed after our read has
	// already stored the newer status and must not be overwritten.
	if err := c.rdb.SetNX(ctx, key, string(status), TTLStatusCache).Err(); err != nil {
		c.logger.Debug("status cache fill failed", zap.String("key", key), zap.Error(err))
	}
	return status, nil
}

// SetStatus writes through and then stores the new status, so a following
// read in this process sees it and a concurrent read-through fill cannot
// put the old one back.
func (c *StatusCache) SetStatus(ctx context.Context, t workflow.EntityType, id string, s workflow.Status) error {
	if err := c.next.SetStatus(ctx, t, id, s); err != nil {
		return err
	}
	c.refresh(ctx, t, id, s)
	return nil
}

// refresh overwrites the cached status after a committed write. If that
// fails the key is dropped instead.
func (c *StatusCache) refresh(ctx context.Context, t workflow.EntityType, id string, s workflow.Status) {
	key := statusKey(t, id)
	if err := c.rdb.Set(ctx, key, string(s), TTLStatusCache).Err(); err != nil {
		c.logger.Warn("status cache refresh failed", zap.String("key", key), zap.Error(err))
		c.Invalidate(ctx, t, id)
	}
}

// Invalidate drops the cached status.
func (c *StatusCache) Invalidate(ctx context.Context, t workflow.EntityType, id string) {
	if err := c.rdb.Del(ctx, statusKey(t, id)).Err(); err != nil {
		c.logger.Warn("status cache invalidate failed", zap.Error(err))
	}
}

// WrapOffers returns an OfferStore whose successful submissions and
// acceptances store the resulting order status in the cache.
func (c *StatusCache) WrapOffers(next workflow.OfferStore) workflow.OfferStore {
	return cachedOffers{next: next, cache: c}
}

type cachedOffers struct {
	next  workflow.OfferStore
	cache *StatusCache
}

func (o cachedOffers) SubmitOffer(ctx context.Context, offer workflow.Offer) (workflow.Offer, error) {
	out, err := o.next.SubmitOffer(ctx, offer)
	if err == nil {
		// A submission leaves the order in offer_pending whether it was created or not.
		o.cache.refresh(ctx, workflow.EntityOrder, offer.OrderID, workflow.OrderOfferPending)
	}
	return out, err
}

func (o cachedOffers) AcceptOffer(ctx context.Context, offerID, orderID, actorID string) (workflow.Acceptance, error) {
	out, err := o.next.AcceptOffer(ctx, offerID, orderID, actorID)
	if err == nil && !out.AlreadyAccepted {
		o.cache.refresh(ctx, workflow.EntityOrder, orderID, out.OrderStatus)
	}
	return out, err
}
