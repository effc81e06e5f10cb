package audit

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultVisibility is always included in an event's audience.
var defaultVisibility = []string{"super_admin", "admin"}

// Recorder fills defaults (id, severity, timestamp, visibility) before
// forwarding an event to the backing sink.
type Recorder struct {
	sink  Sink
	clock func() time.Time
	newID func() string
}

func NewRecorder(sink Sink, clock func() time.Time) *Recorder {
	if clock == nil {
		clock = time.Now
	}
	return &Recorder{
		sink:  sink,
		clock: func() time.Time { return clock().UTC() },
		newID: uuid.NewString,
	}
}

func (r *Recorder) Record(ctx context.Context, ev Event) error {
	if r.sink == nil {
		return errors.New("audit: sink is not configured")
	}
	return r.sink.Record(ctx, r.complete(ev))
}

func (r *Recorder) complete(ev Event) Event {
	if ev.ID == "" {
		ev.ID = r.newID()
	}
	if ev.Severity == "" {
		ev.Severity = DefaultSeverity(ev.EventType)
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.clock()
	} else {
		ev.CreatedAt = ev.CreatedAt.UTC()
	}
	ev.VisibleTo = mergeVisibility(ev.VisibleTo)
	if ev.Metadata != nil {
		ev.Metadata = maps.Clone(ev.Metadata)
	}
	return ev
}

func mergeVisibility(extra []string) []string {
	out := slices.Clone(defaultVisibility)
	for _, role := range extra {
		if role != "" && !slices.Contains(out, role) {
			out = append(out, role)
		}
	}
	return out
}

// MemorySink keeps events in process. Used by the memory store driver and tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (m *MemorySink) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.events = append(m.events, ev)
	return nil
}

// Events returns a snapshot of recorded events, oldest first.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

// ListByEntity returns events for one entity, oldest first.
func (m *MemorySink) ListByEntity(_ context.Context, entityType, entityID string) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, ev := range m.events {
		if ev.EntityType == entityType && ev.EntityID == entityID {
			out = append(out, ev)
		}
	}
	return out, nil
}
