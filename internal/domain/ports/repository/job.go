package repository

import (
	"context"

	"student-offer-automation/internal/domain/model"
)

// JobRepository is the durable record of each account's pipeline state.
//
// Upsert merges only the non-nil fields of the patch into the stored row,
// creating the row if absent; it is idempotent and safe to call from any
// pipeline stage. Reads are snapshots, not point-in-time consistent across
// calls.
type JobRepository interface {
	Upsert(ctx context.Context, tx Tx, email string, patch model.JobPatch) error
	FindByEmail(ctx context.Context, email string) (*model.Job, error)
	FindByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error)
	FindAll(ctx context.Context) ([]*model.Job, error)
	CountByStatus(ctx context.Context) (map[model.JobStatus]int, error)
	Delete(ctx context.Context, email string) error
}
