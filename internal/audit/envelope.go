package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// TopicAuditEvents is the default Kafka topic audit events are fanned out on.
	TopicAuditEvents = "workflow.audit"

	EnvelopeAuditRecorded = "AuditRecorded"
	envelopeVersion       = 1
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // entity id
	Payload       json.RawMessage `json:"payload"`
}

// Wrap packs an audit event into a v1 envelope.
func Wrap(producer string, ev Event) (Envelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal audit event: %w", err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     EnvelopeAuditRecorded,
		EventVersion:  envelopeVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: ev.EntityID,
		Payload:       payload,
	}, nil
}

// Unwrap extracts the audit event from an envelope.
func Unwrap(env Envelope) (Event, error) {
	if env.EventType != EnvelopeAuditRecorded {
		return Event{}, fmt.Errorf("unexpected envelope type %q", env.EventType)
	}
	var ev Event
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode audit payload: %w", err)
	}
	return ev, nil
}

// PartitionKey keeps all events of one entity on one partition, in order.
func PartitionKey(ev Event) []byte { return []byte(ev.EntityType + ":" + ev.EntityID) }
