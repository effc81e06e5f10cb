package workflow

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-lifecycle/internal/audit"
	"github.com/ariefcatur/go-order-lifecycle/internal/metrics"
)

type TransitionRequest struct {
	EntityType EntityType
	EntityID   string
	From       Status
	To         Status
	ActorID    string
	ActorRole  Role
	// EventType overrides the default STATUS_CHANGED audit event type.
	EventType string
	Metadata  map[string]any
}

type TransitionResult struct {
	Success bool
	Kind    ErrorKind
}

// Orchestrator runs validate → authorize → persist → audit for a single
// transition attempt. It holds no state between calls.
type Orchestrator struct {
	store  StatusStore
	audit  audit.Sink
	logger *zap.Logger
}

func NewOrchestrator(store StatusStore, sink audit.Sink, logger *zap.Logger) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("orchestrator: status store is required")
	}
	if sink == nil {
		return nil, errors.New("orchestrator: audit sink is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{store: store, audit: sink, logger: logger}, nil
}

// PerformTransition applies req.From→req.To. Validation and authorization
// failures return before any write. A failed audit write is logged only: the
// status change has already been committed.
func (o *Orchestrator) PerformTransition(ctx context.Context, req TransitionRequest) (TransitionResult, error) {
	entity := string(req.EntityType)

	if !IsValidTransition(req.EntityType, req.From, req.To) {
		metrics.TransitionsTotal.WithLabelValues(entity, string(KindInvalidTransition)).Inc()
		return TransitionResult{Kind: KindInvalidTransition},
			fmt.Errorf("%w: %s %s → %s", ErrInvalidTransition, entity, req.From, req.To)
	}
	if !HasPermission(req.EntityType, req.From, req.To, req.ActorRole) {
		metrics.TransitionsTotal.WithLabelValues(entity, string(KindUnauthorized)).Inc()
		return TransitionResult{Kind: KindUnauthorized},
			fmt.Errorf("%w: role %q may not move %s %s → %s", ErrUnauthorized, req.ActorRole, entity, req.From, req.To)
	}

	if err := o.store.SetStatus(ctx, req.EntityType, req.EntityID, req.To); err != nil {
		metrics.TransitionsTotal.WithLabelValues(entity, string(KindPersistence)).Inc()
		o.logger.Error("status write failed",
			zap.String("entity_type", entity),
			zap.String("entity_id", req.EntityID),
			zap.String("to_status", string(req.To)),
			zap.Error(err),
		)
		return TransitionResult{Kind: KindPersistence}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	ev := audit.Event{
		EventType:  req.EventType,
		EntityType: entity,
		EntityID:   req.EntityID,
		ActorID:    req.ActorID,
		Metadata:   transitionMetadata(req),
	}
	if ev.EventType == "" {
		ev.EventType = audit.EventStatusChanged
	}
	if err := o.audit.Record(ctx, ev); err != nil {
		metrics.AuditWriteFailures.Inc()
		o.logger.Warn("audit write failed after status change",
			zap.String("event_type", ev.EventType),
			zap.String("entity_type", entity),
			zap.String("entity_id", req.EntityID),
			zap.Error(err),
		)
	}

	metrics.TransitionsTotal.WithLabelValues(entity, "success").Inc()
	return TransitionResult{Success: true}, nil
}

// GetCurrentStatus reads through to the status store.
func (o *Orchestrator) GetCurrentStatus(ctx context.Context, t EntityType, id string) (Status, error) {
	return o.store.GetCurrentStatus(ctx, t, id)
}

func transitionMetadata(req TransitionRequest) map[string]any {
	meta := make(map[string]any, len(req.Metadata)+3)
	maps.Copy(meta, req.Metadata)
	meta["from_status"] = string(req.From)
	meta["to_status"] = string(req.To)
	meta["role"] = string(req.ActorRole)
	return meta
}
