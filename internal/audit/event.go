package audit

import (
	"context"
	"time"
)

type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarn     Severity = "WARN"
	SeverityCritical Severity = "CRITICAL"
)

const (
	EventStatusChanged         = "STATUS_CHANGED"
	EventOfferSubmitted        = "OFFER_SUBMITTED"
	EventDealCountered         = "DEAL_COUNTERED"
	EventDealRejected          = "DEAL_REJECTED"
	EventOrderCancelled        = "ORDER_CANCELLED"
	EventDisputeOpened         = "DISPUTE_OPENED"
	EventDealAccepted          = "DEAL_ACCEPTED"
	EventDealAcceptFailed      = "DEAL_ACCEPT_FAILED"
	EventDisputeEscalated      = "DISPUTE_ESCALATED"
	EventDisputeResolved       = "DISPUTE_RESOLVED"
	EventForceMajeureCancelled = "FORCE_MAJEURE_CANCELLED"
)

var defaultSeverity = map[string]Severity{
	EventStatusChanged:         SeverityInfo,
	EventOfferSubmitted:        SeverityInfo,
	EventDealCountered:         SeverityInfo,
	EventDealRejected:          SeverityInfo,
	EventOrderCancelled:        SeverityWarn,
	EventDisputeOpened:         SeverityWarn,
	EventDealAcceptFailed:      SeverityWarn,
	EventDealAccepted:          SeverityCritical,
	EventDisputeEscalated:      SeverityCritical,
	EventDisputeResolved:       SeverityCritical,
	EventForceMajeureCancelled: SeverityCritical,
}

// retentionDays is enforced by the log store, not here; events only carry it.
var retentionDays = map[Severity]int{
	SeverityInfo:     90,
	SeverityWarn:     180,
	SeverityCritical: 3652,
}

// DefaultSeverity returns the severity an event type is tagged with when the
// caller does not choose one. Unknown event types are INFO.
func DefaultSeverity(eventType string) Severity {
	if s, ok := defaultSeverity[eventType]; ok {
		return s
	}
	return SeverityInfo
}

// Retention returns how long events of the given severity must be kept.
func Retention(s Severity) time.Duration {
	days, ok := retentionDays[s]
	if !ok {
		days = retentionDays[SeverityInfo]
	}
	return time.Duration(days) * 24 * time.Hour
}

// Event is an immutable audit record. Once handed to a Sink it must not be mutated.
type Event struct {
	ID         string         `json:"id"`
	EventType  string         `json:"event_type"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	TargetID   string         `json:"target_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Severity   Severity       `json:"severity"`
	VisibleTo  []string       `json:"visible_to"`
	CreatedAt  time.Time      `json:"created_at"`
}

// RetainUntil is the earliest moment the event may be purged.
func (e Event) RetainUntil() time.Time {
	return e.CreatedAt.Add(Retention(e.Severity))
}

// Sink appends audit events to an append-only store.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}
