// Package memory holds the in-process store backend. It backs dev mode,
// where the service runs without Postgres or Redis, and mirrors the
// repository contracts of the postgres package under one coarse mutex per
// store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"student-offer-automation/internal/domain"
	"student-offer-automation/internal/domain/model"
	"student-offer-automation/internal/domain/ports/repository"
)

var (
	_ repository.JobRepository          = (*JobStore)(nil)
	_ repository.CardRepository         = (*CardStore)(nil)
	_ repository.ProxyRepository        = (*ProxyStore)(nil)
	_ repository.OperationLogRepository = (*OplogStore)(nil)
	_ repository.SettingsRepository     = (*SettingsStore)(nil)
)

// JobStore keeps jobs in a map keyed by email. All methods copy on the way
// in and out so callers never share the stored structs.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*model.Job)}
}

func (s *JobStore) Upsert(ctx context.Context, tx repository.Tx, email string, patch model.JobPatch) error {
	if email == "" {
		return domain.ErrInvalidArgument
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return domain.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[email]
	if !ok {
		job = &model.Job{Email: email, Status: model.JobStatusPendingCheck, CreatedAt: time.Now()}
		s.jobs[email] = job
	}
	patch.Apply(job)
	job.UpdatedAt = time.Now()
	return nil
}

func (s *JobStore) FindByEmail(ctx context.Context, email string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *JobStore) FindByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Job
	for _, job := range s.jobs {
		if job.Status == status {
			cp := *job
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (s *JobStore) FindAll(ctx context.Context) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Job
	for _, job := range s.jobs {
		cp := *job
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *JobStore) CountByStatus(ctx context.Context) (map[model.JobStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[model.JobStatus]int)
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (s *JobStore) Delete(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[email]; !ok {
		return domain.ErrNotFound
	}
	delete(s.jobs, email)
	return nil
}

// CardStore keeps the card pool in insertion order.
type CardStore struct {
	mu     sync.Mutex
	nextID int64
	cards  map[int64]*model.Card
}

func NewCardStore() *CardStore {
	return &CardStore{cards: make(map[int64]*model.Card)}
}

func (s *CardStore) Save(ctx context.Context, tx repository.Tx, card *model.Card) error {
	if card.MaxUsage <= 0 {
		card.MaxUsage = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if card.ID == 0 {
		for _, c := range s.cards {
			if c.Number == card.Number {
				return domain.ErrAlreadyExists
			}
		}
		s.nextID++
		card.ID = s.nextID
		card.CreatedAt = time.Now()
	}
	card.UpdatedAt = time.Now()
	cp := *card
	s.cards[card.ID] = &cp
	return nil
}

func (s *CardStore) FindAll(ctx context.Context) ([]*model.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Card
	for _, c := range s.cards {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *CardStore) ListAvailable(ctx context.Context) ([]*model.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Card
	for _, c := range s.cards {
		if c.Available() {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount < out[j].UsageCount
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *CardStore) MarkConsumed(ctx context.Context, tx repository.Tx, id int64, who string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok || !c.Available() {
		return domain.ErrResourceExhausted
	}
	c.UsageCount++
	c.UpdatedAt = time.Now()
	return nil
}

func (s *CardStore) SetActive(ctx context.Context, tx repository.Tx, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.Active = active
	c.UpdatedAt = time.Now()
	return nil
}

func (s *CardStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.cards, id)
	return nil
}

// ProxyStore keeps the proxy pool.
type ProxyStore struct {
	mu      sync.Mutex
	nextID  int64
	proxies map[int64]*model.Proxy
}

func NewProxyStore() *ProxyStore {
	return &ProxyStore{proxies: make(map[int64]*model.Proxy)}
}

func (s *ProxyStore) Save(ctx context.Context, tx repository.Tx, proxy *model.Proxy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if proxy.ID == 0 {
		s.nextID++
		proxy.ID = s.nextID
		proxy.CreatedAt = time.Now()
	}
	proxy.UpdatedAt = time.Now()
	cp := *proxy
	s.proxies[proxy.ID] = &cp
	return nil
}

func (s *ProxyStore) FindAll(ctx context.Context) ([]*model.Proxy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Proxy
	for _, p := range s.proxies {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *ProxyStore) ListAvailable(ctx context.Context, limit int) ([]*model.Proxy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Proxy
	for _, p := range s.proxies {
		if p.Available() {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ProxyStore) MarkConsumed(ctx context.Context, tx repository.Tx, id int64, who string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proxies[id]
	if !ok || p.Used {
		return domain.ErrResourceExhausted
	}
	p.Used = true
	p.UsedBy = who
	p.UpdatedAt = time.Now()
	return nil
}

func (s *ProxyStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.proxies[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.proxies, id)
	return nil
}

// OplogStore is the append-only audit trail.
type OplogStore struct {
	mu      sync.Mutex
	entries []*model.OperationLog
}

func NewOplogStore() *OplogStore { return &OplogStore{} }

func (s *OplogStore) Append(ctx context.Context, tx repository.Tx, entry *model.OperationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	cp.ID = int64(len(s.entries) + 1)
	cp.CreatedAt = time.Now()
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *OplogStore) Recent(ctx context.Context, limit int) ([]*model.OperationLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]*model.OperationLog, 0, n)
	for i := len(s.entries) - 1; i >= 0 && len(out) < n; i-- {
		cp := *s.entries[i]
		out = append(out, &cp)
	}
	return out, nil
}

// SettingsStore is the key/value settings table.
type SettingsStore struct {
	mu     sync.Mutex
	values map[string]string
}

func NewSettingsStore() *SettingsStore {
	return &SettingsStore{values: make(map[string]string)}
}

func (s *SettingsStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (s *SettingsStore) Set(ctx context.Context, key, value, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *SettingsStore) All(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}
