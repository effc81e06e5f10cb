package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the Postgres-backed append-only audit log. audit_events has no
// UPDATE/DELETE path in this service.
type Repo struct{ DB *pgxpool.Pool }

// Record appends one event. Replays of the same event id are ignored so the
// Kafka-fed auditor can deliver at-least-once.
func (r *Repo) Record(ctx context.Context, ev Event) error {
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	_, err = r.DB.Exec(ctx, `
		INSERT INTO audit_events
		    (id, event_type, entity_type, entity_id, actor_id, target_id,
		     metadata, severity, visible_to, created_at, retain_until)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''),
		        $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`,
		ev.ID, ev.EventType, ev.EntityType, ev.EntityID, ev.ActorID, ev.TargetID,
		meta, string(ev.Severity), ev.VisibleTo, ev.CreatedAt, ev.RetainUntil(),
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ListByEntity returns the audit trail for one entity, oldest first.
func (r *Repo) ListByEntity(ctx context.Context, entityType, entityID string) ([]Event, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, event_type, entity_type, entity_id, actor_id, COALESCE(target_id, ''),
		       metadata, severity, visible_to, created_at
		FROM audit_events
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at ASC`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev       Event
			meta     []byte
			severity string
		)
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.EntityType, &ev.EntityID, &ev.ActorID, &ev.TargetID,
			&meta, &severity, &ev.VisibleTo, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Severity = Severity(severity)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &ev.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
