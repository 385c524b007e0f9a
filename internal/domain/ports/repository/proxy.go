package repository

import (
	"context"

	"student-offer-automation/internal/domain/model"
)

// ProxyRepository tracks single-use egress proxies. ListAvailable returns
// unused proxies in insertion order.
type ProxyRepository interface {
	Save(ctx context.Context, tx Tx, proxy *model.Proxy) error
	FindAll(ctx context.Context) ([]*model.Proxy, error)
	ListAvailable(ctx context.Context, limit int) ([]*model.Proxy, error)
	MarkConsumed(ctx context.Context, tx Tx, id int64, who string) error
	Delete(ctx context.Context, id int64) error
}
