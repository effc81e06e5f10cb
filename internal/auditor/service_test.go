package auditor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-order-lifecycle/internal/audit"
)

type fakeRedis struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func newFakeRedis() *fakeRedis { return &fakeRedis{keys: map[string]bool{}} }

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if f.keys[key] {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = true
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.keys, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func message(t *testing.T, ev audit.Event) kafkago.Message {
	t.Helper()
	env, err := audit.Wrap("lifecycle-api", ev)
	require.NoError(t, err)
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return kafkago.Message{Key: audit.PartitionKey(ev), Value: b}
}

func sampleEvent() audit.Event {
	return audit.Event{
		ID:         "evt-1",
		EventType:  audit.EventStatusChanged,
		EntityType: "order",
		EntityID:   "ord-1",
		ActorID:    "adm-1",
		Severity:   audit.SeverityInfo,
		VisibleTo:  []string{"super_admin", "admin"},
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestHandleAuditEventStores(t *testing.T) {
	sink := &audit.MemorySink{}
	svc := &Service{Store: sink, Redis: newFakeRedis(), ServiceName: "auditor"}

	require.NoError(t, svc.HandleAuditEvent(context.Background(), message(t, sampleEvent())))

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "evt-1", events[0].ID)
	assert.Equal(t, "ord-1", events[0].EntityID)
}

func TestHandleAuditEventDeduplicates(t *testing.T) {
	sink := &audit.MemorySink{}
	svc := &Service{Store: sink, Redis: newFakeRedis(), ServiceName: "auditor"}
	m := message(t, sampleEvent())

	require.NoError(t, svc.HandleAuditEvent(context.Background(), m))
	require.NoError(t, svc.HandleAuditEvent(context.Background(), m))
	assert.Len(t, sink.Events(), 1)
}

func TestHandleAuditEventDropsMalformed(t *testing.T) {
	sink := &audit.MemorySink{}
	svc := &Service{Store: sink, ServiceName: "auditor"}

	require.NoError(t, svc.HandleAuditEvent(context.Background(), kafkago.Message{Value: []byte("not json")}))

	other, err := json.Marshal(audit.Envelope{EventType: "OrderCreated", Payload: []byte(`{}`)})
	require.NoError(t, err)
	require.NoError(t, svc.HandleAuditEvent(context.Background(), kafkago.Message{Value: other}))

	bad, err := json.Marshal(audit.Envelope{EventType: audit.EnvelopeAuditRecorded, Payload: []byte(`"oops"`)})
	require.NoError(t, err)
	require.NoError(t, svc.HandleAuditEvent(context.Background(), kafkago.Message{Value: bad}))

	assert.Empty(t, sink.Events())
}

func TestHandleAuditEventStoreFailureReleasesClaim(t *testing.T) {
	sink := &audit.MemorySink{Err: errors.New("db down")}
	rdb := newFakeRedis()
	svc := &Service{Store: sink, Redis: rdb, ServiceName: "auditor"}
	m := message(t, sampleEvent())

	err := svc.HandleAuditEvent(context.Background(), m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evt-1")
	assert.Empty(t, rdb.keys)

	// The redelivered message is stored once the database is back.
	sink.Err = nil
	require.NoError(t, svc.HandleAuditEvent(context.Background(), m))
	assert.Len(t, sink.Events(), 1)
}

func TestHandleAuditEventRedisDown(t *testing.T) {
	sink := &audit.MemorySink{}
	rdb := newFakeRedis()
	rdb.err = errors.New("connection refused")
	svc := &Service{Store: sink, Redis: rdb, ServiceName: "auditor"}

	require.NoError(t, svc.HandleAuditEvent(context.Background(), message(t, sampleEvent())))
	assert.Len(t, sink.Events(), 1)
}
