package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type tableRef struct {
	table   string
	idField string
}

// entityTables maps each entity type to its backing table and identifier column.
var entityTables = map[EntityType]tableRef{
	EntityOrder:   {table: "orders", idField: "order_id"},
	EntityDeal:    {table: "deals", idField: "deal_id"},
	EntityDispute: {table: "disputes", idField: "id"},
}

func tableFor(t EntityType) (tableRef, error) {
	ref, ok := entityTables[t]
	if !ok {
		return tableRef{}, fmt.Errorf("%w: unknown entity type %q", ErrInvalidInput, t)
	}
	return ref, nil
}

// StatusRepo is the Postgres StatusStore.
type StatusRepo struct{ DB *pgxpool.Pool }

func (r *StatusRepo) GetCurrentStatus(ctx context.Context, t EntityType, id string) (Status, error) {
	ref, err := tableFor(t)
	if err != nil {
		return "", err
	}
	var s string
	q := fmt.Sprintf(`SELECT status FROM %s WHERE %s=$1`, ref.table, ref.idField)
	if err := r.DB.QueryRow(ctx, q, id).Scan(&s); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: %s %s", ErrNotFound, t, id)
		}
		return "", err
	}
	return Status(s), nil
}

func (r *StatusRepo) SetStatus(ctx context.Context, t EntityType, id string, s Status) error {
	ref, err := tableFor(t)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE %s SET status=$2, updated_at=NOW() WHERE %s=$1`, ref.table, ref.idField)
	ct, err := r.DB.Exec(ctx, q, id, string(s))
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, t, id)
	}
	return nil
}
