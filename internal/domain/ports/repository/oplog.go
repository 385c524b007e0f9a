package repository

import (
	"context"

	"student-offer-automation/internal/domain/model"
)

// OperationLogRepository is the append-only audit trail.
type OperationLogRepository interface {
	Append(ctx context.Context, tx Tx, entry *model.OperationLog) error
	Recent(ctx context.Context, limit int) ([]*model.OperationLog, error)
}
