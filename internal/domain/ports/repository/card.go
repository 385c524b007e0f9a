package repository

import (
	"context"

	"student-offer-automation/internal/domain/model"
)

// CardRepository tracks limited-use payment cards.
// ListAvailable returns active cards with remaining capacity, ordered by
// ascending usage so load spreads across the pool. MarkConsumed increments
// usage_count; it is called only after a bind stage reports success.
// Allocation and consumption are separate critical sections, not one
// transaction; callers must re-check availability defensively.
type CardRepository interface {
	Save(ctx context.Context, tx Tx, card *model.Card) error
	FindAll(ctx context.Context) ([]*model.Card, error)
	ListAvailable(ctx context.Context) ([]*model.Card, error)
	MarkConsumed(ctx context.Context, tx Tx, id int64, who string) error
	SetActive(ctx context.Context, tx Tx, id int64, active bool) error
	Delete(ctx context.Context, id int64) error
}
