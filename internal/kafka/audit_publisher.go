package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-order-lifecycle/internal/audit"
)

// DecodeEnvelope reads a v1 envelope from a message value.
func DecodeEnvelope(m kafka.Message) (audit.Envelope, error) {
	var env audit.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

type publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error
}

// AuditPublisher is an audit.Sink that fans events out to Kafka. The auditor
// service persists them.
type AuditPublisher struct {
	producer publisher
	service  string
}

func NewAuditPublisher(p *Producer, service string) *AuditPublisher {
	return &AuditPublisher{producer: p, service: service}
}

func (a *AuditPublisher) Record(ctx context.Context, ev audit.Event) error {
	env, err := audit.Wrap(a.service, ev)
	if err != nil {
		return err
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return a.producer.Publish(ctx, audit.PartitionKey(ev), b,
		kafka.Header{Key: "x-event-type", Value: []byte(env.EventType)},
		kafka.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(env.EventVersion))},
		kafka.Header{Key: "x-audit-severity", Value: []byte(ev.Severity)},
	)
}
