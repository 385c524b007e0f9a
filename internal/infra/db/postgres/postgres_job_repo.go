package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"student-offer-automation/internal/domain"
	"student-offer-automation/internal/domain/model"
	"student-offer-automation/internal/domain/ports/repository"
	"student-offer-automation/internal/infra/security"
)

var _ repository.JobRepository = (*JobRepo)(nil)

// JobRepo implements repository.JobRepository on Postgres.
//
// Table:
//
//	CREATE TABLE jobs (
//	  email             TEXT PRIMARY KEY,
//	  password          TEXT NOT NULL DEFAULT '',
//	  recovery_email    TEXT NOT NULL DEFAULT '',
//	  secret_key        TEXT NOT NULL DEFAULT '',
//	  verification_link TEXT NOT NULL DEFAULT '',
//	  status            TEXT NOT NULL DEFAULT 'pending_check',
//	  message           TEXT NOT NULL DEFAULT '',
//	  created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
//	  updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type JobRepo struct {
	pool   *pgxpool.Pool
	cipher *security.Cipher
}

// NewJobRepo wraps the pool. A non-nil cipher encrypts password and
// secret_key at rest; nil stores them as given.
func NewJobRepo(pool *pgxpool.Pool, cipher *security.Cipher) *JobRepo {
	return &JobRepo{pool: pool, cipher: cipher}
}

// Upsert merges only the non-nil fields of the patch into the stored row,
// creating it if absent. NULL arguments fall through the COALESCE so the
// stored value survives, which keeps repeated calls from different pipeline
// stages idempotent.
func (r *JobRepo) Upsert(ctx context.Context, tx repository.Tx, email string, patch model.JobPatch) error {
	if email == "" {
		return domain.ErrInvalidArgument
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return fmt.Errorf("%w: status %q", domain.ErrInvalidArgument, *patch.Status)
	}

	const q = `
INSERT INTO jobs (email, password, recovery_email, secret_key, verification_link, status, message)
VALUES ($1,
        COALESCE($2, ''),
        COALESCE($3, ''),
        COALESCE($4, ''),
        COALESCE($5, ''),
        COALESCE($6, 'pending_check'),
        COALESCE($7, ''))
ON CONFLICT (email) DO UPDATE SET
  password          = COALESCE($2, jobs.password),
  recovery_email    = COALESCE($3, jobs.recovery_email),
  secret_key        = COALESCE($4, jobs.secret_key),
  verification_link = COALESCE($5, jobs.verification_link),
  status            = COALESCE($6, jobs.status),
  message           = COALESCE($7, jobs.message),
  updated_at        = now();`

	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}
	password, err := r.seal(patch.Password)
	if err != nil {
		return fmt.Errorf("postgres upsert job: %w", err)
	}
	secret, err := r.seal(patch.SecretKey)
	if err != nil {
		return fmt.Errorf("postgres upsert job: %w", err)
	}
	_, err = execSQL(ctx, r.pool, tx, q,
		email, password, patch.RecoveryEmail, secret,
		patch.VerificationLink, status, patch.Message)
	if err != nil {
		return fmt.Errorf("postgres upsert job: %w", err)
	}
	return nil
}

// seal encrypts an optional credential field before storage.
func (r *JobRepo) seal(v *string) (*string, error) {
	if v == nil || r.cipher == nil || *v == "" {
		return v, nil
	}
	enc, err := r.cipher.Encrypt(*v)
	if err != nil {
		return nil, err
	}
	return &enc, nil
}

// open decrypts a stored credential. Rows written before encryption was
// enabled fail to decode; those come back verbatim so old data stays usable.
func (r *JobRepo) open(v string) string {
	if r.cipher == nil || v == "" {
		return v
	}
	plain, err := r.cipher.Decrypt(v)
	if err != nil {
		return v
	}
	return plain
}

const jobColumns = `email, password, recovery_email, secret_key, verification_link, status, message, created_at, updated_at`

func (r *JobRepo) scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var status string
	err := row.Scan(&j.Email, &j.Password, &j.RecoveryEmail, &j.SecretKey,
		&j.VerificationLink, &status, &j.Message, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	j.Status = model.JobStatus(status)
	j.Password = r.open(j.Password)
	j.SecretKey = r.open(j.SecretKey)
	return &j, nil
}

func (r *JobRepo) FindByEmail(ctx context.Context, email string) (*model.Job, error) {
	row, err := pickRow(ctx, r.pool, nil, `SELECT `+jobColumns+` FROM jobs WHERE email = $1;`, email)
	if err != nil {
		return nil, err
	}
	return r.scanJob(row)
}

func (r *JobRepo) FindByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error) {
	rows, err := pickRows(ctx, r.pool, nil,
		`SELECT `+jobColumns+` FROM jobs WHERE status = $1 ORDER BY updated_at;`, string(status))
	if err != nil {
		return nil, fmt.Errorf("postgres find jobs by status: %w", err)
	}
	defer rows.Close()
	return r.collectJobs(rows)
}

func (r *JobRepo) FindAll(ctx context.Context) ([]*model.Job, error) {
	rows, err := pickRows(ctx, r.pool, nil,
		`SELECT `+jobColumns+` FROM jobs ORDER BY updated_at DESC;`)
	if err != nil {
		return nil, fmt.Errorf("postgres find all jobs: %w", err)
	}
	defer rows.Close()
	return r.collectJobs(rows)
}

func (r *JobRepo) collectJobs(rows pgx.Rows) ([]*model.Job, error) {
	var out []*model.Job
	for rows.Next() {
		j, err := r.scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *JobRepo) CountByStatus(ctx context.Context) (map[model.JobStatus]int, error) {
	rows, err := pickRows(ctx, r.pool, nil,
		`SELECT status, COUNT(*) FROM jobs GROUP BY status;`)
	if err != nil {
		return nil, fmt.Errorf("postgres count jobs: %w", err)
	}
	defer rows.Close()
	out := make(map[model.JobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[model.JobStatus(status)] = n
	}
	return out, rows.Err()
}

func (r *JobRepo) Delete(ctx context.Context, email string) error {
	_, err := execSQL(ctx, r.pool, nil, `DELETE FROM jobs WHERE email = $1;`, email)
	return err
}
