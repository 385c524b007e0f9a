package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"student-offer-automation/internal/domain"
	"student-offer-automation/internal/domain/model"
	"student-offer-automation/internal/domain/ports/repository"
)

var _ repository.ProxyRepository = (*ProxyRepo)(nil)

// ProxyRepo implements repository.ProxyRepository on Postgres.
//
// Table:
//
//	CREATE TABLE proxies (
//	  id         BIGSERIAL PRIMARY KEY,
//	  proxy_type TEXT NOT NULL DEFAULT 'socks5',
//	  host       TEXT NOT NULL,
//	  port       TEXT NOT NULL,
//	  username   TEXT NOT NULL DEFAULT '',
//	  password   TEXT NOT NULL DEFAULT '',
//	  remark     TEXT NOT NULL DEFAULT '',
//	  is_used    BOOL NOT NULL DEFAULT false,
//	  used_by    TEXT NOT NULL DEFAULT '',
//	  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type ProxyRepo struct {
	pool *pgxpool.Pool
}

func NewProxyRepo(pool *pgxpool.Pool) *ProxyRepo {
	return &ProxyRepo{pool: pool}
}

func (r *ProxyRepo) Save(ctx context.Context, tx repository.Tx, p *model.Proxy) error {
	if p.Type == "" {
		p.Type = "socks5"
	}
	if p.ID == 0 {
		const q = `
INSERT INTO proxies (proxy_type, host, port, username, password, remark, is_used, used_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id;`
		row, err := pickRow(ctx, r.pool, tx, q,
			p.Type, p.Host, p.Port, p.Username, p.Password, p.Remark, p.Used, p.UsedBy)
		if err != nil {
			return err
		}
		if err := row.Scan(&p.ID); err != nil {
			return fmt.Errorf("postgres insert proxy: %w", err)
		}
		return nil
	}
	const q = `
UPDATE proxies SET proxy_type=$2, host=$3, port=$4, username=$5, password=$6,
  remark=$7, is_used=$8, used_by=$9, updated_at=now()
WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.Type, p.Host, p.Port, p.Username, p.Password, p.Remark, p.Used, p.UsedBy)
	if err != nil {
		return fmt.Errorf("postgres update proxy: %w", err)
	}
	return nil
}

const proxyColumns = `id, proxy_type, host, port, username, password, remark, is_used, used_by, created_at, updated_at`

func scanProxies(rows pgx.Rows) ([]*model.Proxy, error) {
	var out []*model.Proxy
	for rows.Next() {
		var p model.Proxy
		err := rows.Scan(&p.ID, &p.Type, &p.Host, &p.Port, &p.Username, &p.Password,
			&p.Remark, &p.Used, &p.UsedBy, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *ProxyRepo) FindAll(ctx context.Context) ([]*model.Proxy, error) {
	rows, err := pickRows(ctx, r.pool, nil, `SELECT `+proxyColumns+` FROM proxies ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("postgres find all proxies: %w", err)
	}
	defer rows.Close()
	return scanProxies(rows)
}

// ListAvailable returns unused proxies in insertion order.
func (r *ProxyRepo) ListAvailable(ctx context.Context, limit int) ([]*model.Proxy, error) {
	q := `SELECT ` + proxyColumns + ` FROM proxies WHERE NOT is_used ORDER BY id`
	args := []interface{}{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := pickRows(ctx, r.pool, nil, q+`;`, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres list available proxies: %w", err)
	}
	defer rows.Close()
	return scanProxies(rows)
}

func (r *ProxyRepo) MarkConsumed(ctx context.Context, tx repository.Tx, id int64, who string) error {
	const q = `
UPDATE proxies SET is_used = true, used_by = $2, updated_at = now()
WHERE id = $1 AND NOT is_used;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, who)
	if err != nil {
		return fmt.Errorf("postgres mark proxy consumed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrResourceExhausted
	}
	return nil
}

func (r *ProxyRepo) Delete(ctx context.Context, id int64) error {
	_, err := execSQL(ctx, r.pool, nil, `DELETE FROM proxies WHERE id = $1;`, id)
	return err
}
