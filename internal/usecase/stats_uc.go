// File: internal/usecase/stats_uc.go
package usecase

import (
	"context"

	"student-offer-automation/internal/domain/model"
	"student-offer-automation/internal/domain/ports/repository"
)

var _ StatsUseCase = (*statsUC)(nil)

// StatsUseCase aggregates pipeline state for the admin surface.
type StatsUseCase interface {
	JobCounts(ctx context.Context) (map[model.JobStatus]int, error)
	JobsByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error)
	PoolCounts(ctx context.Context) (cardsAvailable, proxiesAvailable int, err error)
}

type statsUC struct {
	jobs    repository.JobRepository
	cards   repository.CardRepository
	proxies repository.ProxyRepository
}

func NewStatsUseCase(jobs repository.JobRepository, cards repository.CardRepository, proxies repository.ProxyRepository) *statsUC {
	return &statsUC{jobs: jobs, cards: cards, proxies: proxies}
}

func (u *statsUC) JobCounts(ctx context.Context) (map[model.JobStatus]int, error) {
	return u.jobs.CountByStatus(ctx)
}

func (u *statsUC) JobsByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error) {
	return u.jobs.FindByStatus(ctx, status)
}

func (u *statsUC) PoolCounts(ctx context.Context) (int, int, error) {
	cards, err := u.cards.ListAvailable(ctx)
	if err != nil {
		return 0, 0, err
	}
	proxies, err := u.proxies.ListAvailable(ctx, 0)
	if err != nil {
		return 0, 0, err
	}
	return len(cards), len(proxies), nil
}
