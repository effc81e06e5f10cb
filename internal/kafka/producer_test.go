package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-lifecycle/internal/audit"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed int
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed++
	return nil
}

func TestProducerFlushesOnClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 8, zap.NewNop())
	p.Start(context.Background())

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, p.Publish(context.Background(), []byte(k), []byte("v")))
	}
	p.Close()
	p.Close()
	p.WaitClosed()

	require.Len(t, w.msgs, 3)
	assert.Equal(t, []byte("a"), w.msgs[0].Key)
	assert.Equal(t, 1, w.closed)
	assert.ErrorIs(t, p.Publish(context.Background(), []byte("d"), nil), ErrProducerClosed)
}

func TestProducerFlushesOnContextCancel(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 8, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	// Buffered before the loop starts, so both are in the inbox at cancel time.
	require.NoError(t, p.Publish(context.Background(), []byte("x"), nil))
	require.NoError(t, p.Publish(context.Background(), []byte("y"), nil))
	cancel()
	p.Start(ctx)
	p.WaitClosed()

	assert.Len(t, w.msgs, 2)
	assert.Equal(t, 1, w.closed)
}

func TestPublishHonoursContextWhenFull(t *testing.T) {
	p := newProducer(&fakeWriter{}, 1, zap.NewNop())
	require.NoError(t, p.Publish(context.Background(), []byte("k"), nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Publish(ctx, []byte("k"), nil)
	assert.True(t, errors.Is(err, context.Canceled))
}

type fakePublisher struct {
	key     []byte
	value   []byte
	headers []kafka.Header
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, key, value []byte, headers ...kafka.Header) error {
	f.key, f.value, f.headers = key, value, headers
	return f.err
}

func TestAuditPublisherRecord(t *testing.T) {
	fp := &fakePublisher{}
	pub := &AuditPublisher{producer: fp, service: "lifecycle-api"}

	ev := audit.Event{
		ID:         "evt-9",
		EventType:  audit.EventDealAccepted,
		EntityType: "offer",
		EntityID:   "off-1",
		TargetID:   "ord-1",
		Severity:   audit.SeverityCritical,
	}
	require.NoError(t, pub.Record(context.Background(), ev))

	assert.Equal(t, []byte("offer:off-1"), fp.key)
	headers := map[string]string{}
	for _, h := range fp.headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, audit.EnvelopeAuditRecorded, headers["x-event-type"])
	assert.Equal(t, "1", headers["x-event-version"])
	assert.Equal(t, "CRITICAL", headers["x-audit-severity"])

	env, err := DecodeEnvelope(kafka.Message{Value: fp.value})
	require.NoError(t, err)
	assert.Equal(t, "lifecycle-api", env.Producer)
	got, err := audit.Unwrap(env)
	require.NoError(t, err)
	assert.Equal(t, "evt-9", got.ID)
	assert.Equal(t, "ord-1", got.TargetID)
}

func TestAuditPublisherPropagatesPublishError(t *testing.T) {
	fp := &fakePublisher{err: ErrProducerClosed}
	pub := &AuditPublisher{producer: fp, service: "lifecycle-api"}

	err := pub.Record(context.Background(), audit.Event{ID: "e", EventType: audit.EventStatusChanged})
	assert.ErrorIs(t, err, ErrProducerClosed)
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := DecodeEnvelope(kafka.Message{Value: []byte("{")})
	assert.Error(t, err)
}

func TestCloseReleasesBlockedPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 1, zap.NewNop())
	require.NoError(t, p.Publish(context.Background(), []byte("first"), nil))

	blocked := make(chan error, 1)
	go func() { blocked <- p.Publish(context.Background(), []byte("second"), nil) }()

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	// The loop may drain "first" and let "second" in; either way the
	// publisher returns and shutdown completes.
	cancel()

	select {
	case <-waitClosed(p):
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not shut down while a publisher was blocked")
	}
	select {
	case err := <-blocked:
		if err != nil {
			assert.ErrorIs(t, err, ErrProducerClosed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked publisher was not released")
	}
}

func TestCloseWithBlockedPublisherBeforeStart(t *testing.T) {
	p := newProducer(&fakeWriter{}, 1, zap.NewNop())
	require.NoError(t, p.Publish(context.Background(), []byte("first"), nil))

	blocked := make(chan error, 1)
	go func() { blocked <- p.Publish(context.Background(), []byte("second"), nil) }()

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close stalled behind a blocked publisher")
	}
	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, ErrProducerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked publisher was not released")
	}
}

func waitClosed(p *Producer) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		p.WaitClosed()
		close(ch)
	}()
	return ch
}
