package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"student-offer-automation/internal/domain"
	"student-offer-automation/internal/domain/ports/repository"
)

var _ repository.SettingsRepository = (*SettingsRepo)(nil)

// SettingsRepo implements repository.SettingsRepository on Postgres.
//
// Table:
//
//	CREATE TABLE settings (
//	  key         TEXT PRIMARY KEY,
//	  value       TEXT NOT NULL DEFAULT '',
//	  description TEXT NOT NULL DEFAULT '',
//	  updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type SettingsRepo struct {
	pool *pgxpool.Pool
}

func NewSettingsRepo(pool *pgxpool.Pool) *SettingsRepo {
	return &SettingsRepo{pool: pool}
}

func (r *SettingsRepo) Get(ctx context.Context, key string) (string, error) {
	row, err := pickRow(ctx, r.pool, nil, `SELECT value FROM settings WHERE key = $1;`, key)
	if err != nil {
		return "", err
	}
	var v string
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("postgres get setting: %w", err)
	}
	return v, nil
}

func (r *SettingsRepo) Set(ctx context.Context, key, value, description string) error {
	const q = `
INSERT INTO settings (key, value, description)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET
  value = EXCLUDED.value,
  description = EXCLUDED.description,
  updated_at = now();`
	_, err := execSQL(ctx, r.pool, nil, q, key, value, description)
	if err != nil {
		return fmt.Errorf("postgres set setting: %w", err)
	}
	return nil
}

func (r *SettingsRepo) All(ctx context.Context) (map[string]string, error) {
	rows, err := pickRows(ctx, r.pool, nil, `SELECT key, value FROM settings;`)
	if err != nil {
		return nil, fmt.Errorf("postgres all settings: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
