// File: internal/infra/web/mock_test.go
package web

import (
	"context"
	"sync"
	"time"

	"student-offer-automation/internal/domain"
	"student-offer-automation/internal/domain/model"
	"student-offer-automation/internal/domain/ports/adapter"
	"student-offer-automation/internal/domain/ports/repository"
	"student-offer-automation/internal/usecase"
)

type stubStats struct {
	counts  map[model.JobStatus]int
	byState map[model.JobStatus][]*model.Job
	cards   int
	proxies int
}

var _ usecase.StatsUseCase = (*stubStats)(nil)

func (s *stubStats) JobCounts(ctx context.Context) (map[model.JobStatus]int, error) {
	return s.counts, nil
}

func (s *stubStats) JobsByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error) {
	return s.byState[status], nil
}

func (s *stubStats) PoolCounts(ctx context.Context) (int, int, error) {
	return s.cards, s.proxies, nil
}

type stubPool struct {
	cards   []*model.Card
	proxies []*model.Proxy
}

var _ usecase.PoolUseCase = (*stubPool)(nil)

func (s *stubPool) AvailableCards(ctx context.Context) ([]*model.Card, error) { return s.cards, nil }

func (s *stubPool) AvailableProxies(ctx context.Context, limit int) ([]*model.Proxy, error) {
	return s.proxies, nil
}

func (s *stubPool) ConsumeCard(ctx context.Context, id int64, who string) error  { return nil }
func (s *stubPool) ConsumeProxy(ctx context.Context, id int64, who string) error { return nil }
func (s *stubPool) AddCard(ctx context.Context, card *model.Card) error          { return nil }
func (s *stubPool) AddProxy(ctx context.Context, proxy *model.Proxy) error       { return nil }
func (s *stubPool) AllCards(ctx context.Context) ([]*model.Card, error)          { return s.cards, nil }
func (s *stubPool) AllProxies(ctx context.Context) ([]*model.Proxy, error)       { return s.proxies, nil }

type stubImport struct {
	lastText string
	report   usecase.ImportReport
}

var _ usecase.ImportUseCase = (*stubImport)(nil)

func (s *stubImport) ImportJobs(ctx context.Context, text, separator string, defaultStatus model.JobStatus) (usecase.ImportReport, error) {
	s.lastText = text
	return s.report, nil
}

func (s *stubImport) ImportCards(ctx context.Context, text string, maxUsage int) (usecase.ImportReport, error) {
	s.lastText = text
	return s.report, nil
}

func (s *stubImport) ImportProxies(ctx context.Context, text, proxyType string) (usecase.ImportReport, error) {
	s.lastText = text
	return s.report, nil
}

type stubBatch struct {
	mu      sync.Mutex
	running bool
	stopped bool
	started chan struct{} // closed when RunBatch is entered
	lastLen int
	lastOpt model.BatchOptions
}

var _ usecase.BatchUseCase = (*stubBatch)(nil)

func newStubBatch() *stubBatch { return &stubBatch{started: make(chan struct{})} }

func (s *stubBatch) RunBatch(ctx context.Context, jobs []*model.Job, opts model.BatchOptions, obs adapter.BatchObserver) (*model.BatchSummary, error) {
	s.mu.Lock()
	s.lastLen = len(jobs)
	s.lastOpt = opts
	s.mu.Unlock()
	if obs != nil {
		for _, job := range jobs {
			obs.OnProgress(model.ProgressEvent{
				RunID:  "run-stub",
				Email:  job.Email,
				Status: model.JobStatusSubscribed,
				At:     time.Now(),
			})
		}
	}
	close(s.started)
	return &model.BatchSummary{Total: len(jobs)}, nil
}

func (s *stubBatch) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *stubBatch) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

type stubJobRepo struct {
	jobs map[string]*model.Job
}

var _ repository.JobRepository = (*stubJobRepo)(nil)

func (r *stubJobRepo) Upsert(ctx context.Context, tx repository.Tx, email string, patch model.JobPatch) error {
	return nil
}

func (r *stubJobRepo) FindByEmail(ctx context.Context, email string) (*model.Job, error) {
	if j, ok := r.jobs[email]; ok {
		return j, nil
	}
	return nil, domain.ErrNotFound
}

func (r *stubJobRepo) FindByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error) {
	var out []*model.Job
	for _, j := range r.jobs {
		if j.Status == status {
			out = append(out, j)
		}
	}
	return out, nil
}

func (r *stubJobRepo) FindAll(ctx context.Context) ([]*model.Job, error) {
	var out []*model.Job
	for _, j := range r.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (r *stubJobRepo) CountByStatus(ctx context.Context) (map[model.JobStatus]int, error) {
	return nil, nil
}

func (r *stubJobRepo) Delete(ctx context.Context, email string) error { return nil }

type stubOplog struct {
	entries []*model.OperationLog
}

var _ repository.OperationLogRepository = (*stubOplog)(nil)

func (r *stubOplog) Append(ctx context.Context, tx repository.Tx, entry *model.OperationLog) error {
	r.entries = append(r.entries, entry)
	return nil
}

func (r *stubOplog) Recent(ctx context.Context, limit int) ([]*model.OperationLog, error) {
	if limit > 0 && len(r.entries) > limit {
		return r.entries[:limit], nil
	}
	return r.entries, nil
}

type stubSettings struct {
	values map[string]string
}

var _ repository.SettingsRepository = (*stubSettings)(nil)

func (r *stubSettings) Get(ctx context.Context, key string) (string, error) {
	if v, ok := r.values[key]; ok {
		return v, nil
	}
	return "", domain.ErrNotFound
}

func (r *stubSettings) Set(ctx context.Context, key, value, description string) error {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	r.values[key] = value
	return nil
}

func (r *stubSettings) All(ctx context.Context) (map[string]string, error) {
	return r.values, nil
}
