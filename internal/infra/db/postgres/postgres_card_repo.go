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

var _ repository.CardRepository = (*CardRepo)(nil)

// CardRepo implements repository.CardRepository on Postgres.
//
// Table:
//
//	CREATE TABLE cards (
//	  id              BIGSERIAL PRIMARY KEY,
//	  card_number     TEXT NOT NULL UNIQUE,
//	  exp_month       TEXT NOT NULL,
//	  exp_year        TEXT NOT NULL,
//	  cvv             TEXT NOT NULL,
//	  holder_name     TEXT NOT NULL DEFAULT '',
//	  billing_address TEXT NOT NULL DEFAULT '',
//	  remark          TEXT NOT NULL DEFAULT '',
//	  usage_count     INT  NOT NULL DEFAULT 0,
//	  max_usage       INT  NOT NULL DEFAULT 1,
//	  is_active       BOOL NOT NULL DEFAULT true,
//	  last_used_by    TEXT NOT NULL DEFAULT '',
//	  created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
//	  updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type CardRepo struct {
	pool *pgxpool.Pool
}

func NewCardRepo(pool *pgxpool.Pool) *CardRepo {
	return &CardRepo{pool: pool}
}

func (r *CardRepo) Save(ctx context.Context, tx repository.Tx, c *model.Card) error {
	if c.MaxUsage <= 0 {
		c.MaxUsage = 1
	}
	if c.ID == 0 {
		const q = `
INSERT INTO cards (card_number, exp_month, exp_year, cvv, holder_name, billing_address, remark, usage_count, max_usage, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id;`
		row, err := pickRow(ctx, r.pool, tx, q,
			c.Number, c.ExpMonth, c.ExpYear, c.CVV, c.HolderName,
			c.BillingAddress, c.Remark, c.UsageCount, c.MaxUsage, c.Active)
		if err != nil {
			return err
		}
		if err := row.Scan(&c.ID); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrAlreadyExists
			}
			return fmt.Errorf("postgres insert card: %w", err)
		}
		return nil
	}
	const q = `
UPDATE cards SET exp_month=$2, exp_year=$3, cvv=$4, holder_name=$5, billing_address=$6,
  remark=$7, usage_count=$8, max_usage=$9, is_active=$10, updated_at=now()
WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q,
		c.ID, c.ExpMonth, c.ExpYear, c.CVV, c.HolderName,
		c.BillingAddress, c.Remark, c.UsageCount, c.MaxUsage, c.Active)
	if err != nil {
		return fmt.Errorf("postgres update card: %w", err)
	}
	return nil
}

const cardColumns = `id, card_number, exp_month, exp_year, cvv, holder_name, billing_address, remark, usage_count, max_usage, is_active, created_at, updated_at`

func scanCards(rows pgx.Rows) ([]*model.Card, error) {
	var out []*model.Card
	for rows.Next() {
		var c model.Card
		err := rows.Scan(&c.ID, &c.Number, &c.ExpMonth, &c.ExpYear, &c.CVV,
			&c.HolderName, &c.BillingAddress, &c.Remark,
			&c.UsageCount, &c.MaxUsage, &c.Active, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *CardRepo) FindAll(ctx context.Context) ([]*model.Card, error) {
	rows, err := pickRows(ctx, r.pool, nil, `SELECT `+cardColumns+` FROM cards ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("postgres find all cards: %w", err)
	}
	defer rows.Close()
	return scanCards(rows)
}

// ListAvailable returns cards passing the eligibility predicate, least used
// first so load spreads across the pool.
func (r *CardRepo) ListAvailable(ctx context.Context) ([]*model.Card, error) {
	const q = `
SELECT ` + cardColumns + ` FROM cards
WHERE is_active AND usage_count < max_usage
ORDER BY usage_count ASC, id ASC;`
	rows, err := pickRows(ctx, r.pool, nil, q)
	if err != nil {
		return nil, fmt.Errorf("postgres list available cards: %w", err)
	}
	defer rows.Close()
	return scanCards(rows)
}

// MarkConsumed increments usage_count. The WHERE clause re-checks capacity
// so a lost race with a concurrent consumer surfaces as ErrResourceExhausted
// instead of over-spending the card.
func (r *CardRepo) MarkConsumed(ctx context.Context, tx repository.Tx, id int64, who string) error {
	const q = `
UPDATE cards
SET usage_count = usage_count + 1, last_used_by = $2, updated_at = now()
WHERE id = $1 AND is_active AND usage_count < max_usage;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, who)
	if err != nil {
		return fmt.Errorf("postgres mark card consumed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrResourceExhausted
	}
	return nil
}

func (r *CardRepo) SetActive(ctx context.Context, tx repository.Tx, id int64, active bool) error {
	_, err := execSQL(ctx, r.pool, tx,
		`UPDATE cards SET is_active = $2, updated_at = now() WHERE id = $1;`, id, active)
	return err
}

func (r *CardRepo) Delete(ctx context.Context, id int64) error {
	_, err := execSQL(ctx, r.pool, nil, `DELETE FROM cards WHERE id = $1;`, id)
	return err
}
