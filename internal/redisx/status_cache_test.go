package redisx

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-order-lifecycle/internal/workflow"
)

// fakeRedis implements Cmdable over a map.
type fakeRedis struct {
	mu     sync.Mutex
	data   map[string]string
	setErr error
}

func newFakeRedis() *fakeRedis { return &fakeRedis{data: map[string]string{}} }

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.data[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestStatusCacheReadThrough(t *testing.T) {
	store := workflow.NewMemoryStore()
	store.Put(workflow.EntityOrder, "ord-1", workflow.OrderCreated)
	rdb := newFakeRedis()
	cache := NewStatusCache(store, rdb, nil)
	ctx := context.Background()

	s, err := cache.GetCurrentStatus(ctx, workflow.EntityOrder, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.OrderCreated, s)
	assert.Equal(t, "created", rdb.data["entity_status:order:ord-1"])

	// Served from cache even when the store changes behind its back.
	store.Put(workflow.EntityOrder, "ord-1", workflow.OrderCancelled)
	s, err = cache.GetCurrentStatus(ctx, workflow.EntityOrder, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.OrderCreated, s)
}

func TestStatusCacheReadYourWrites(t *testing.T) {
	store := workflow.NewMemoryStore()
	store.Put(workflow.EntityDeal, "deal-1", workflow.DealProposed)
	rdb := newFakeRedis()
	cache := NewStatusCache(store, rdb, nil)
	ctx := context.Background()

	_, err := cache.GetCurrentStatus(ctx, workflow.EntityDeal, "deal-1")
	require.NoError(t, err)
	require.NoError(t, cache.SetStatus(ctx, workflow.EntityDeal, "deal-1", workflow.DealCounter))

	s, err := cache.GetCurrentStatus(ctx, workflow.EntityDeal, "deal-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.DealCounter, s)
}

func TestStatusCacheDropsKeyWhenRefreshFails(t *testing.T) {
	store := workflow.NewMemoryStore()
	store.Put(workflow.EntityDispute, "dsp-1", workflow.DisputeOpen)
	rdb := newFakeRedis()
	rdb.data["entity_status:dispute:dsp-1"] = "open"
	rdb.setErr = errors.New("READONLY")
	cache := NewStatusCache(store, rdb, nil)
	ctx := context.Background()

	require.NoError(t, cache.SetStatus(ctx, workflow.EntityDispute, "dsp-1", workflow.DisputeEscalated))
	_, cached := rdb.data["entity_status:dispute:dsp-1"]
	assert.False(t, cached)

	s, err := cache.GetCurrentStatus(ctx, workflow.EntityDispute, "dsp-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.DisputeEscalated, s)
}

func TestStatusCacheNotFoundIsNotCached(t *testing.T) {
	rdb := newFakeRedis()
	cache := NewStatusCache(workflow.NewMemoryStore(), rdb, nil)

	_, err := cache.GetCurrentStatus(context.Background(), workflow.EntityOrder, "ghost")
	require.ErrorIs(t, err, workflow.ErrNotFound)
	assert.Empty(t, rdb.data)
}

func TestStatusCacheFailedWriteLeavesCache(t *testing.T) {
	rdb := newFakeRedis()
	cache := NewStatusCache(workflow.NewMemoryStore(), rdb, nil)

	err := cache.SetStatus(context.Background(), workflow.EntityOrder, "ghost", workflow.OrderCancelled)
	require.ErrorIs(t, err, workflow.ErrNotFound)
	assert.Empty(t, rdb.data)
}

func TestWrapOffersInvalidatesOrderStatus(t *testing.T) {
	store := workflow.NewMemoryStore()
	store.Put(workflow.EntityOrder, "ord-1", workflow.OrderCreated)
	rdb := newFakeRedis()
	cache := NewStatusCache(store, rdb, nil)
	offers := cache.WrapOffers(store)
	ctx := context.Background()

	_, err := cache.GetCurrentStatus(ctx, workflow.EntityOrder, "ord-1")
	require.NoError(t, err)

	offer, err := offers.SubmitOffer(ctx, workflow.Offer{OrderID: "ord-1", DriverID: "drv-1", PriceCents: 100})
	require.NoError(t, err)
	s, err := cache.GetCurrentStatus(ctx, workflow.EntityOrder, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.OrderOfferPending, s)

	_, err = offers.AcceptOffer(ctx, offer.ID, "ord-1", "snd-1")
	require.NoError(t, err)
	s, err = cache.GetCurrentStatus(ctx, workflow.EntityOrder, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.OrderDealAccepted, s)
}

func TestClaim(t *testing.T) {
	rdb := newFakeRedis()
	ctx := context.Background()

	fresh, err := Claim(ctx, rdb, "dedup:x:1", TTLDedup)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = Claim(ctx, rdb, "dedup:x:1", TTLDedup)
	require.NoError(t, err)
	assert.False(t, fresh)

	require.NoError(t, Release(ctx, rdb, "dedup:x:1"))
	fresh, err = Claim(ctx, rdb, "dedup:x:1", TTLDedup)
	require.NoError(t, err)
	assert.True(t, fresh)
}

// racingStore runs hook once, after the backing read and before the caller
// can fill the cache, standing in for a writer that commits in between.
type racingStore struct {
	*workflow.MemoryStore
	hook func()
}

func (s *racingStore) GetCurrentStatus(ctx context.Context, t workflow.EntityType, id string) (workflow.Status, error) {
	status, err := s.MemoryStore.GetCurrentStatus(ctx, t, id)
	if h := s.hook; h != nil {
		s.hook = nil
		h()
	}
	return status, err
}

func TestStatusCacheFillDoesNotOverwriteConcurrentWrite(t *testing.T) {
	mem := workflow.NewMemoryStore()
	mem.Put(workflow.EntityOrder, "ord-1", workflow.OrderCreated)
	store := &racingStore{MemoryStore: mem}
	rdb := newFakeRedis()
	cache := NewStatusCache(store, rdb, nil)
	ctx := context.Background()

	store.hook = func() {
		require.NoError(t, cache.SetStatus(ctx, workflow.EntityOrder, "ord-1", workflow.OrderOfferPending))
	}
	stale, err := cache.GetCurrentStatus(ctx, workflow.EntityOrder, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.OrderCreated, stale)

	s, err := cache.GetCurrentStatus(ctx, workflow.EntityOrder, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.OrderOfferPending, s)
}

func TestStatusCacheFillDoesNotOverwriteConcurrentAcceptance(t *testing.T) {
	mem := workflow.NewMemoryStore()
	mem.Put(workflow.EntityOrder, "ord-1", workflow.OrderCreated)
	store := &racingStore{MemoryStore: mem}
	rdb := newFakeRedis()
	cache := NewStatusCache(store, rdb, nil)
	offers := cache.WrapOffers(mem)
	ctx := context.Background()

	offer, err := offers.SubmitOffer(ctx, workflow.Offer{OrderID: "ord-1", DriverID: "drv-1", PriceCents: 100})
	require.NoError(t, err)
	require.NoError(t, rdb.Del(ctx, "entity_status:order:ord-1").Err())

	store.hook = func() {
		_, err := offers.AcceptOffer(ctx, offer.ID, "ord-1", "snd-1")
		require.NoError(t, err)
	}
	_, err = cache.GetCurrentStatus(ctx, workflow.EntityOrder, "ord-1")
	require.NoError(t, err)

	s, err := cache.GetCurrentStatus(ctx, workflow.EntityOrder, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.OrderDealAccepted, s)
	assert.Equal(t, "deal_accepted", rdb.data["entity_status:order:ord-1"])
}
