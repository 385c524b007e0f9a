package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"student-offer-automation/internal/domain/model"
	"student-offer-automation/internal/domain/ports/repository"
)

var _ repository.OperationLogRepository = (*OperationLogRepo)(nil)

// OperationLogRepo implements the append-only audit trail on Postgres.
//
// Table:
//
//	CREATE TABLE operation_logs (
//	  id         BIGSERIAL PRIMARY KEY,
//	  op_type    TEXT NOT NULL,
//	  target     TEXT NOT NULL DEFAULT '',
//	  detail     TEXT NOT NULL DEFAULT '',
//	  status     TEXT NOT NULL DEFAULT 'success',
//	  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type OperationLogRepo struct {
	pool *pgxpool.Pool
}

func NewOperationLogRepo(pool *pgxpool.Pool) *OperationLogRepo {
	return &OperationLogRepo{pool: pool}
}

func (r *OperationLogRepo) Append(ctx context.Context, tx repository.Tx, e *model.OperationLog) error {
	const q = `
INSERT INTO operation_logs (op_type, target, detail, status)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at;`
	row, err := pickRow(ctx, r.pool, tx, q, e.Type, e.Target, e.Detail, e.Status)
	if err != nil {
		return err
	}
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("postgres append oplog: %w", err)
	}
	return nil
}

func (r *OperationLogRepo) Recent(ctx context.Context, limit int) ([]*model.OperationLog, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT id, op_type, target, detail, status, created_at
FROM operation_logs
ORDER BY created_at DESC
LIMIT $1;`
	rows, err := pickRows(ctx, r.pool, nil, q, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres recent oplog: %w", err)
	}
	defer rows.Close()
	var out []*model.OperationLog
	for rows.Next() {
		var e model.OperationLog
		if err := rows.Scan(&e.ID, &e.Type, &e.Target, &e.Detail, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
