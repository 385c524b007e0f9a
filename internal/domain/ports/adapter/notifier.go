package adapter

import (
	"context"

	"student-offer-automation/internal/domain/model"
)

// Notifier pushes a batch summary to the operator when a run finishes.
type Notifier interface {
	NotifyBatchFinished(ctx context.Context, summary model.BatchSummary) error
}
