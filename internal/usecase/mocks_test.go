// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"student-offer-automation/internal/domain"
	"student-offer-automation/internal/domain/model"
	"student-offer-automation/internal/domain/ports/adapter"
	"student-offer-automation/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// --- job repository -------------------------------------------------------

type memJobRepo struct {
	mu        sync.Mutex
	jobs      map[string]*model.Job
	upsertErr error // forced Upsert failure when set
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[string]*model.Job)}
}

func (r *memJobRepo) Upsert(ctx context.Context, tx repository.Tx, email string, patch model.JobPatch) error {
	if r.upsertErr != nil {
		return r.upsertErr
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[email]
	if !ok {
		job = &model.Job{Email: email, Status: model.JobStatusPendingCheck, CreatedAt: time.Now()}
		r.jobs[email] = job
	}
	patch.Apply(job)
	job.UpdatedAt = time.Now()
	return nil
}

func (r *memJobRepo) FindByEmail(ctx context.Context, email string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (r *memJobRepo) FindByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Job
	for _, job := range r.jobs {
		if job.Status == status {
			cp := *job
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (r *memJobRepo) FindAll(ctx context.Context) ([]*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Job
	for _, job := range r.jobs {
		cp := *job
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (r *memJobRepo) CountByStatus(ctx context.Context) (map[model.JobStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[model.JobStatus]int)
	for _, job := range r.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (r *memJobRepo) Delete(ctx context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[email]; !ok {
		return domain.ErrNotFound
	}
	delete(r.jobs, email)
	return nil
}

// --- card repository -------------------------------------------------------

type memCardRepo struct {
	mu     sync.Mutex
	nextID int64
	cards  map[int64]*model.Card
}

func newMemCardRepo() *memCardRepo {
	return &memCardRepo{cards: make(map[int64]*model.Card)}
}

func (r *memCardRepo) Save(ctx context.Context, tx repository.Tx, card *model.Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if card.ID == 0 {
		r.nextID++
		card.ID = r.nextID
	}
	cp := *card
	r.cards[card.ID] = &cp
	return nil
}

func (r *memCardRepo) FindAll(ctx context.Context) ([]*model.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Card
	for _, c := range r.cards {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memCardRepo) ListAvailable(ctx context.Context) ([]*model.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Card
	for _, c := range r.cards {
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

func (r *memCardRepo) MarkConsumed(ctx context.Context, tx repository.Tx, id int64, who string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cards[id]
	if !ok || !c.Available() {
		return domain.ErrResourceExhausted
	}
	c.UsageCount++
	return nil
}

func (r *memCardRepo) SetActive(ctx context.Context, tx repository.Tx, id int64, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cards[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.Active = active
	return nil
}

func (r *memCardRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cards[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.cards, id)
	return nil
}

// --- proxy repository ------------------------------------------------------

type memProxyRepo struct {
	mu      sync.Mutex
	nextID  int64
	proxies map[int64]*model.Proxy
}

func newMemProxyRepo() *memProxyRepo {
	return &memProxyRepo{proxies: make(map[int64]*model.Proxy)}
}

func (r *memProxyRepo) Save(ctx context.Context, tx repository.Tx, proxy *model.Proxy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if proxy.ID == 0 {
		r.nextID++
		proxy.ID = r.nextID
	}
	cp := *proxy
	r.proxies[proxy.ID] = &cp
	return nil
}

func (r *memProxyRepo) FindAll(ctx context.Context) ([]*model.Proxy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Proxy
	for _, p := range r.proxies {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memProxyRepo) ListAvailable(ctx context.Context, limit int) ([]*model.Proxy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Proxy
	for _, p := range r.proxies {
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

func (r *memProxyRepo) MarkConsumed(ctx context.Context, tx repository.Tx, id int64, who string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proxies[id]
	if !ok || p.Used {
		return domain.ErrResourceExhausted
	}
	p.Used = true
	p.UsedBy = who
	return nil
}

func (r *memProxyRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.proxies[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.proxies, id)
	return nil
}

// --- operation log ----------------------------------------------------------

type memOplogRepo struct {
	mu      sync.Mutex
	entries []*model.OperationLog
}

func newMemOplogRepo() *memOplogRepo { return &memOplogRepo{} }

func (r *memOplogRepo) Append(ctx context.Context, tx repository.Tx, entry *model.OperationLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *entry
	cp.ID = int64(len(r.entries) + 1)
	cp.CreatedAt = time.Now()
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *memOplogRepo) Recent(ctx context.Context, limit int) ([]*model.OperationLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]*model.OperationLog, 0, n)
	for i := len(r.entries) - 1; i >= 0 && len(out) < n; i-- {
		cp := *r.entries[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memOplogRepo) byType(opType string) []*model.OperationLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.OperationLog
	for _, e := range r.entries {
		if e.Type == opType {
			out = append(out, e)
		}
	}
	return out
}

// --- driver ------------------------------------------------------------------

// fakeDriver scripts per-email page behavior. Zero values mean a happy path
// up to the scripted state. Each Session call returns an isolated session;
// the shared maps are only read under the driver lock.
type fakeDriver struct {
	mu sync.Mutex

	states map[string]adapter.DriverState // keyed by email
	links  map[string]string

	sessionsErr error // returned by Session itself
	navigateErr error
	sessionErr  map[string]error
	bindErr     map[string]error
	confirmErr  map[string]error

	bound     map[string]int64 // email -> card id bound
	confirmed []string
	closed    int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		states:     make(map[string]adapter.DriverState),
		links:      make(map[string]string),
		sessionErr: make(map[string]error),
		bindErr:    make(map[string]error),
		confirmErr: make(map[string]error),
		bound:      make(map[string]int64),
	}
}

func (d *fakeDriver) Session(ctx context.Context) (adapter.DriverSession, error) {
	if d.sessionsErr != nil {
		return nil, d.sessionsErr
	}
	return &fakeSession{d: d}, nil
}

type fakeSession struct {
	d     *fakeDriver
	email string
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error { return s.d.navigateErr }

func (s *fakeSession) EstablishSession(ctx context.Context, creds adapter.Credentials) error {
	s.email = creds.Email
	s.d.mu.Lock()
	err := s.d.sessionErr[creds.Email]
	s.d.mu.Unlock()
	return err
}

func (s *fakeSession) DetectState(ctx context.Context) (adapter.DriverState, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if st, ok := s.d.states[s.email]; ok {
		return st, nil
	}
	return adapter.DriverStateUnknown, nil
}

func (s *fakeSession) ExtractVerificationLink(ctx context.Context) (string, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.d.links[s.email], nil
}

func (s *fakeSession) BindInstrument(ctx context.Context, card *model.Card) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.bindErr[s.email]; err != nil {
		return err
	}
	s.d.bound[s.email] = card.ID
	return nil
}

func (s *fakeSession) ConfirmSubscription(ctx context.Context) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.confirmErr[s.email]; err != nil {
		return err
	}
	s.d.confirmed = append(s.d.confirmed, s.email)
	return nil
}

func (s *fakeSession) Close(ctx context.Context) error {
	s.d.mu.Lock()
	s.d.closed++
	s.d.mu.Unlock()
	return nil
}

// --- verifier ------------------------------------------------------------------

type fakeVerifier struct {
	mu      sync.Mutex
	results map[string]model.VerifyResult
	calls   [][]string
	lastKey string
	err     error
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{results: make(map[string]model.VerifyResult)}
}

func (v *fakeVerifier) pass(id string) {
	v.results[id] = model.VerifyResult{VerificationID: id, Step: model.VerifyStepSuccess, Message: "ok"}
}

func (v *fakeVerifier) failWith(id, msg string) {
	v.results[id] = model.VerifyResult{VerificationID: id, Step: model.VerifyStepError, Message: msg}
}

func (v *fakeVerifier) VerifyBatch(ctx context.Context, ids []string, key string, progress model.ProgressFunc) (map[string]model.VerifyResult, error) {
	v.mu.Lock()
	v.calls = append(v.calls, append([]string(nil), ids...))
	v.lastKey = key
	v.mu.Unlock()
	out := make(map[string]model.VerifyResult, len(ids))
	for _, id := range ids {
		if res, ok := v.results[id]; ok {
			out[id] = res
		} else {
			out[id] = model.VerifyResult{VerificationID: id, Step: model.VerifyStepError, Message: "unknown id"}
		}
		if progress != nil {
			progress(id, "checked")
		}
	}
	return out, v.err
}

func (v *fakeVerifier) Cancel(ctx context.Context, verificationID string) (string, error) {
	return "canceled", nil
}

// --- locker ------------------------------------------------------------------

type fakeLocker struct {
	mu      sync.Mutex
	held    map[string]string
	denyAll bool
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: make(map[string]string)} }

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.denyAll {
		return "", domain.ErrBatchRunning
	}
	if _, ok := l.held[key]; ok {
		return "", domain.ErrBatchRunning
	}
	l.held[key] = "tok-" + key
	return l.held[key], nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

// --- observer ------------------------------------------------------------------

type recordingObserver struct {
	mu     sync.Mutex
	events []model.ProgressEvent
}

func (o *recordingObserver) OnProgress(ev model.ProgressEvent) {
	o.mu.Lock()
	o.events = append(o.events, ev)
	o.mu.Unlock()
}

func (o *recordingObserver) statuses(email string) []model.JobStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []model.JobStatus
	for _, ev := range o.events {
		if ev.Email == email {
			out = append(out, ev.Status)
		}
	}
	return out
}

// --- transaction manager --------------------------------------------------------

// fakeTxManager counts transactions and runs the callback inline.
type fakeTxManager struct {
	calls int
}

func (m *fakeTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.calls++
	return fn(ctx, nil)
}
