// File: internal/usecase/pool_uc.go
package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"student-offer-automation/internal/domain/model"
	"student-offer-automation/internal/domain/ports/repository"
	"student-offer-automation/internal/infra/metrics"
)

// Compile-time check
var _ PoolUseCase = (*poolUC)(nil)

// PoolUseCase fronts the instrument pools. Listing and consuming are two
// separate critical sections, not one transaction: concurrent jobs can read
// the same availability snapshot before either commits a consumption, so
// consumers must treat ConsumeCard/ConsumeProxy failure as the authoritative
// capacity check.
type PoolUseCase interface {
	AvailableCards(ctx context.Context) ([]*model.Card, error)
	AvailableProxies(ctx context.Context, limit int) ([]*model.Proxy, error)
	ConsumeCard(ctx context.Context, id int64, who string) error
	ConsumeProxy(ctx context.Context, id int64, who string) error
	AddCard(ctx context.Context, card *model.Card) error
	AddProxy(ctx context.Context, proxy *model.Proxy) error
	AllCards(ctx context.Context) ([]*model.Card, error)
	AllProxies(ctx context.Context) ([]*model.Proxy, error)
}

type poolUC struct {
	cards   repository.CardRepository
	proxies repository.ProxyRepository
	oplog   repository.OperationLogRepository
	log     *zerolog.Logger
}

func NewPoolUseCase(cards repository.CardRepository, proxies repository.ProxyRepository, oplog repository.OperationLogRepository, logger *zerolog.Logger) *poolUC {
	return &poolUC{cards: cards, proxies: proxies, oplog: oplog, log: logger}
}

func (u *poolUC) AvailableCards(ctx context.Context) ([]*model.Card, error) {
	return u.cards.ListAvailable(ctx)
}

func (u *poolUC) AvailableProxies(ctx context.Context, limit int) ([]*model.Proxy, error) {
	return u.proxies.ListAvailable(ctx, limit)
}

func (u *poolUC) ConsumeCard(ctx context.Context, id int64, who string) error {
	if err := u.cards.MarkConsumed(ctx, nil, id, who); err != nil {
		u.audit(ctx, "card_consume", who, "failure")
		return err
	}
	metrics.IncInstrumentConsumed("card")
	u.audit(ctx, "card_consume", who, "success")
	return nil
}

func (u *poolUC) ConsumeProxy(ctx context.Context, id int64, who string) error {
	if err := u.proxies.MarkConsumed(ctx, nil, id, who); err != nil {
		u.audit(ctx, "proxy_consume", who, "failure")
		return err
	}
	metrics.IncInstrumentConsumed("proxy")
	u.audit(ctx, "proxy_consume", who, "success")
	return nil
}

func (u *poolUC) AddCard(ctx context.Context, card *model.Card) error {
	return u.cards.Save(ctx, nil, card)
}

func (u *poolUC) AddProxy(ctx context.Context, proxy *model.Proxy) error {
	return u.proxies.Save(ctx, nil, proxy)
}

func (u *poolUC) AllCards(ctx context.Context) ([]*model.Card, error) {
	return u.cards.FindAll(ctx)
}

func (u *poolUC) AllProxies(ctx context.Context) ([]*model.Proxy, error) {
	return u.proxies.FindAll(ctx)
}

// audit writes the operation log best-effort; pool state is the source of
// truth, the trail is advisory.
func (u *poolUC) audit(ctx context.Context, opType, target, status string) {
	entry := &model.OperationLog{Type: opType, Target: target, Status: status}
	if err := u.oplog.Append(ctx, nil, entry); err != nil {
		u.log.Warn().Err(err).Str("op", opType).Msg("oplog append failed")
	}
}
