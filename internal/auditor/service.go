package auditor

import (
	"context"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-lifecycle/internal/audit"
	kafkax "github.com/ariefcatur/go-order-lifecycle/internal/kafka"
	"github.com/ariefcatur/go-order-lifecycle/internal/metrics"
	"github.com/ariefcatur/go-order-lifecycle/internal/redisx"
)

// Service persists audit events consumed from Kafka into the append-only store.
type Service struct {
	Store       audit.Sink
	Redis       redisx.Cmdable
	ServiceName string
	Logger      *zap.Logger
}

// HandleAuditEvent is installed as the consumer handler. Returning an error
// makes the consumer retry the message; its offset stays uncommitted until then.
func (s *Service) HandleAuditEvent(ctx context.Context, m kafkago.Message) error {
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}

	env, err := kafkax.DecodeEnvelope(m)
	if err != nil {
		metrics.AuditEventsConsumed.WithLabelValues("malformed").Inc()
		log.Warn("dropping malformed audit message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != audit.EnvelopeAuditRecorded {
		metrics.AuditEventsConsumed.WithLabelValues("ignored").Inc()
		return nil
	}
	ev, err := audit.Unwrap(env)
	if err != nil {
		metrics.AuditEventsConsumed.WithLabelValues("malformed").Inc()
		log.Warn("dropping undecodable audit payload", zap.String("envelope_id", env.EventID), zap.Error(err))
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, ev.ID)
	if s.Redis != nil {
		fresh, err := redisx.Claim(ctx, s.Redis, dkey, redisx.TTLDedup)
		if err == nil && !fresh {
			metrics.AuditEventsConsumed.WithLabelValues("duplicate").Inc()
			return nil
		}
		if err != nil {
			log.Debug("dedup claim failed, relying on store idempotency", zap.Error(err))
		}
	}

	if err := s.Store.Record(ctx, ev); err != nil {
		if s.Redis != nil {
			_ = redisx.Release(ctx, s.Redis, dkey)
		}
		metrics.AuditEventsConsumed.WithLabelValues("error").Inc()
		return fmt.Errorf("persist audit event %s: %w", ev.ID, err)
	}
	metrics.AuditEventsConsumed.WithLabelValues("stored").Inc()
	return nil
}
