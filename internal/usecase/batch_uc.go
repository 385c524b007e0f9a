// File: internal/usecase/batch_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"student-offer-automation/internal/domain"
	"student-offer-automation/internal/domain/model"
	"student-offer-automation/internal/domain/ports/adapter"
	"student-offer-automation/internal/domain/ports/repository"
	"student-offer-automation/internal/infra/logging"
	"student-offer-automation/internal/infra/metrics"
	"student-offer-automation/internal/infra/worker"
)

// Compile-time check
var _ BatchUseCase = (*batchUC)(nil)

// RunLocker guards the single-active-batch invariant. Satisfied by the
// redis locker in production and a stub in tests.
type RunLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// BatchUseCase drives N jobs through the pipeline:
//
//	pending_check -> {link_ready|verified|subscribed|ineligible|error}
//	link_ready    -> {verified|error}        (extract link + verify)
//	verified      -> {subscribed|error}      (bind instrument + confirm)
//
// Jobs run in chunks of the configured concurrency; a chunk resolves fully
// before the next one starts, and one job's failure never aborts siblings.
type BatchUseCase interface {
	RunBatch(ctx context.Context, jobs []*model.Job, opts model.BatchOptions, obs adapter.BatchObserver) (*model.BatchSummary, error)
	Stop()
	Running() bool
}

const runLockKey = "batch:run"

type batchUC struct {
	jobs     repository.JobRepository
	cards    repository.CardRepository
	oplog    repository.OperationLogRepository
	driver   adapter.AutomationDriver
	verifier adapter.VerificationClient
	notifier adapter.Notifier
	locker   RunLocker
	offerURL string
	log      *zerolog.Logger

	running  atomic.Bool
	stopFlag atomic.Bool
}

func NewBatchUseCase(
	jobs repository.JobRepository,
	cards repository.CardRepository,
	oplog repository.OperationLogRepository,
	driver adapter.AutomationDriver,
	verifier adapter.VerificationClient,
	notifier adapter.Notifier,
	locker RunLocker,
	offerURL string,
	logger *zerolog.Logger,
) *batchUC {
	return &batchUC{
		jobs:     jobs,
		cards:    cards,
		oplog:    oplog,
		driver:   driver,
		verifier: verifier,
		notifier: notifier,
		locker:   locker,
		offerURL: offerURL,
		log:      logger,
	}
}

// Stop requests a cooperative stop: no new job or chunk starts, but jobs
// already in flight run to completion.
func (u *batchUC) Stop() { u.stopFlag.Store(true) }

func (u *batchUC) Running() bool { return u.running.Load() }

// cardAllocator hands out one card per job, rotating to the next card after
// perCard consumers (capped by the card's remaining capacity). It works off
// the availability snapshot taken at run start; the repo's MarkConsumed
// re-checks capacity, because a concurrent run could have spent the card in
// the meantime. That read-then-consume race is a documented property of the
// pool, not a bug to paper over here.
type cardAllocator struct {
	mu      sync.Mutex
	cards   []*model.Card
	perCard int
	idx     int
	served  int
}

func newCardAllocator(cards []*model.Card, perCard int) *cardAllocator {
	if perCard <= 0 {
		perCard = 1
	}
	return &cardAllocator{cards: cards, perCard: perCard}
}

func (a *cardAllocator) capacity(c *model.Card) int {
	remaining := c.MaxUsage - c.UsageCount
	if remaining < a.perCard {
		return remaining
	}
	return a.perCard
}

func (a *cardAllocator) next() (*model.Card, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for a.idx < len(a.cards) {
		if a.served < a.capacity(a.cards[a.idx]) {
			a.served++
			return a.cards[a.idx], nil
		}
		a.idx++
		a.served = 0
	}
	return nil, domain.ErrResourceExhausted
}

// summaryCollector tallies per-category outcomes under a lock; jobs in a
// chunk report concurrently.
type summaryCollector struct {
	mu sync.Mutex
	s  model.BatchSummary
}

func (c *summaryCollector) add(f func(*model.BatchSummary)) {
	c.mu.Lock()
	f(&c.s)
	c.mu.Unlock()
}

func (u *batchUC) RunBatch(ctx context.Context, jobs []*model.Job, opts model.BatchOptions, obs adapter.BatchObserver) (*model.BatchSummary, error) {
	if len(jobs) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if opts.CardsPerJob <= 0 {
		opts.CardsPerJob = 1
	}

	lockToken, err := u.locker.TryLock(ctx, runLockKey, 2*time.Hour)
	if err != nil {
		return nil, err
	}
	u.running.Store(true)
	u.stopFlag.Store(false)
	defer func() {
		u.running.Store(false)
		if uerr := u.locker.Unlock(context.Background(), runLockKey, lockToken); uerr != nil {
			u.log.Warn().Err(uerr).Msg("run lock release failed")
		}
	}()

	defer logging.TraceDuration(u.log, "BatchUC.RunBatch")()

	runID := ulid.Make().String()
	ctx = logging.WithRunID(ctx, runID)
	log := logging.With(ctx, u.log)
	log.Info().Int("jobs", len(jobs)).Int("concurrency", opts.Concurrency).Msg("batch started")
	u.audit(ctx, "batch_start", runID, fmt.Sprintf("%d jobs", len(jobs)), "success")

	collector := &summaryCollector{}
	collector.s.RunID = runID
	collector.s.Total = len(jobs)
	collector.s.StartedAt = time.Now()

	available, err := u.cards.ListAvailable(ctx)
	if err != nil {
		// A dead pool is not fatal: jobs that never reach the bind stage
		// don't need a card.
		log.Warn().Err(err).Msg("card snapshot failed, bind stages will exhaust")
	}
	alloc := newCardAllocator(available, opts.CardsPerJob)
	runner := worker.NewChunkRunner(opts.Concurrency)

	for start := 0; start < len(jobs); start += opts.Concurrency {
		if u.stopFlag.Load() || ctx.Err() != nil {
			log.Info().Int("remaining", len(jobs)-start).Msg("batch stopped before chunk")
			break
		}
		end := start + opts.Concurrency
		if end > len(jobs) {
			end = len(jobs)
		}
		chunk := jobs[start:end]
		log.Debug().Int("from", start).Int("to", end).Msg("chunk started")

		tasks := make([]worker.Task, len(chunk))
		for i, job := range chunk {
			job := job
			tasks[i] = func(ctx context.Context) error {
				jctx := logging.WithJobID(ctx, job.Email)
				u.processJob(jctx, runID, job, alloc, opts, obs, collector, logging.With(jctx, u.log))
				return nil
			}
		}
		runner.Run(ctx, tasks, nil)
		metrics.IncBatchChunk()
	}

	collector.s.FinishedAt = time.Now()
	summary := collector.s
	log.Info().
		Int("subscribed", summary.Subscribed).
		Int("verified", summary.Verified).
		Int("ineligible", summary.Ineligible).
		Int("errors", summary.Errors).
		Int("resource_exhausted", summary.ResourceExhausted).
		Msg("batch finished")
	u.audit(ctx, "batch_finish", runID,
		fmt.Sprintf("subscribed=%d verified=%d ineligible=%d errors=%d exhausted=%d",
			summary.Subscribed, summary.Verified, summary.Ineligible, summary.Errors, summary.ResourceExhausted),
		"success")

	if u.notifier != nil {
		if nerr := u.notifier.NotifyBatchFinished(ctx, summary); nerr != nil {
			log.Warn().Err(nerr).Msg("batch notification failed")
		}
	}
	return &summary, nil
}

// transition persists the new status and emits a progress event. Store
// failures are logged and swallowed: the store is best-effort and never
// aborts a pipeline.
func (u *batchUC) transition(ctx context.Context, runID string, email string, status model.JobStatus, message string, obs adapter.BatchObserver, log *zerolog.Logger) {
	if err := u.jobs.Upsert(ctx, nil, email, model.StatusPatch(status, message)); err != nil {
		log.Warn().Err(err).Str("job", email).Msg("job store write failed")
	}
	if obs != nil {
		obs.OnProgress(model.ProgressEvent{
			RunID:   runID,
			Email:   email,
			Status:  status,
			Message: message,
			At:      time.Now(),
		})
	}
}

// note emits a progress event without changing the stored status.
func (u *batchUC) note(ctx context.Context, runID string, job *model.Job, message string, obs adapter.BatchObserver, log *zerolog.Logger) {
	msg := message
	if err := u.jobs.Upsert(ctx, nil, job.Email, model.JobPatch{Message: &msg}); err != nil {
		log.Warn().Err(err).Str("job", job.Email).Msg("job store write failed")
	}
	if obs != nil {
		obs.OnProgress(model.ProgressEvent{
			RunID:   runID,
			Email:   job.Email,
			Status:  job.Status,
			Message: message,
			At:      time.Now(),
		})
	}
}

// processJob runs one job through the pipeline. Every failure is absorbed
// here and mapped to the job's error status; nothing propagates to the
// batch level.
func (u *batchUC) processJob(ctx context.Context, runID string, job *model.Job, alloc *cardAllocator, opts model.BatchOptions, obs adapter.BatchObserver, collector *summaryCollector, log *zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("panic: %v", r)
			log.Error().Str("job", job.Email).Msg(msg)
			u.transition(ctx, runID, job.Email, model.JobStatusError, msg, obs, log)
			collector.add(func(s *model.BatchSummary) { s.Errors++ })
		}
	}()

	if u.stopFlag.Load() || ctx.Err() != nil {
		u.note(ctx, runID, job, "skipped: batch stopped", obs, log)
		return
	}

	fail := func(msg string) {
		u.transition(ctx, runID, job.Email, model.JobStatusError, msg, obs, log)
		metrics.IncJobProcessed(string(model.JobStatusError))
		collector.add(func(s *model.BatchSummary) { s.Errors++ })
	}

	// Stage 1: session. Each job gets its own browser session; siblings in
	// the chunk never share page state.
	sess, err := u.driver.Session(ctx)
	if err != nil {
		fail("open session: " + err.Error())
		return
	}
	defer func() {
		if cerr := sess.Close(context.Background()); cerr != nil {
			log.Warn().Err(cerr).Str("job", job.Email).Msg("session close failed")
		}
	}()

	if err := sess.Navigate(ctx, u.offerURL); err != nil {
		fail("navigate: " + err.Error())
		return
	}
	settle(ctx, opts.DetectSettleWait)
	creds := adapter.Credentials{
		Email:         job.Email,
		Password:      job.Password,
		RecoveryEmail: job.RecoveryEmail,
		SecretKey:     job.SecretKey,
	}
	if err := sess.EstablishSession(ctx, creds); err != nil {
		fail("session: " + err.Error())
		return
	}

	// Stage 2: detect where this account stands.
	state, err := sess.DetectState(ctx)
	if err != nil {
		fail("detect: " + err.Error())
		return
	}
	log.Debug().Str("job", job.Email).Str("state", string(state)).Msg("state detected")

	switch state {
	case adapter.DriverStateSubscribed:
		u.transition(ctx, runID, job.Email, model.JobStatusSubscribed, "already subscribed", obs, log)
		metrics.IncJobProcessed(string(model.JobStatusSubscribed))
		collector.add(func(s *model.BatchSummary) { s.Subscribed++ })

	case adapter.DriverStateIneligible:
		u.transition(ctx, runID, job.Email, model.JobStatusIneligible, "account not eligible for the offer", obs, log)
		metrics.IncJobProcessed(string(model.JobStatusIneligible))
		collector.add(func(s *model.BatchSummary) { s.Ineligible++ })

	case adapter.DriverStateLinkReady:
		if !u.handleLinkReady(ctx, sess, runID, job, opts, obs, collector, log, fail) {
			return
		}
		u.bindAndConfirm(ctx, sess, runID, job, alloc, opts, obs, collector, log, fail)

	case adapter.DriverStateVerified:
		u.transition(ctx, runID, job.Email, model.JobStatusVerified, "verified, binding pending", obs, log)
		job.Status = model.JobStatusVerified
		u.bindAndConfirm(ctx, sess, runID, job, alloc, opts, obs, collector, log, fail)

	default:
		fail("unknown page state")
	}
}

// handleLinkReady extracts the verification link and drives the bypass
// service. Returns true when the job reached verified and may proceed to
// the bind stage.
func (u *batchUC) handleLinkReady(ctx context.Context, sess adapter.DriverSession, runID string, job *model.Job, opts model.BatchOptions, obs adapter.BatchObserver, collector *summaryCollector, log *zerolog.Logger, fail func(string)) bool {
	link, err := sess.ExtractVerificationLink(ctx)
	if err != nil {
		fail("extract link: " + err.Error())
		return false
	}
	if link == "" {
		fail("no verification link on page")
		return false
	}
	u.transition(ctx, runID, job.Email, model.JobStatusLinkReady, "verification link extracted", obs, log)
	job.Status = model.JobStatusLinkReady
	job.VerificationLink = link
	if uerr := u.jobs.Upsert(ctx, nil, job.Email, model.JobPatch{VerificationLink: &link}); uerr != nil {
		log.Warn().Err(uerr).Str("job", job.Email).Msg("job store write failed")
	}

	vid := extractVerificationID(link)
	if vid == "" {
		fail("no verification id in link")
		return false
	}

	progress := func(id, text string) {
		u.note(ctx, runID, job, text, obs, log)
	}
	results, verr := u.verifier.VerifyBatch(ctx, []string{vid}, opts.VerificationKey, progress)
	res := results[vid]
	metrics.IncVerifyResult(string(res.Step), res.TimedOut)
	u.audit(ctx, "verify", job.Email, res.Message, string(res.Step))
	if verr != nil && !res.Success() {
		fail("verify: " + verr.Error())
		return false
	}
	if !res.Success() {
		if res.TimedOut {
			fail("verify: " + domain.ErrClientTimeout.Error())
		} else {
			fail(fmt.Sprintf("verify: %v: %s", domain.ErrTerminalService, res.Message))
		}
		return false
	}

	u.transition(ctx, runID, job.Email, model.JobStatusVerified, "verification passed", obs, log)
	job.Status = model.JobStatusVerified
	return true
}

// bindAndConfirm allocates a card, binds it and confirms the subscription.
// Pool exhaustion leaves the job in its current status: it was not
// attempted and must not be reported as a pipeline error.
func (u *batchUC) bindAndConfirm(ctx context.Context, sess adapter.DriverSession, runID string, job *model.Job, alloc *cardAllocator, opts model.BatchOptions, obs adapter.BatchObserver, collector *summaryCollector, log *zerolog.Logger, fail func(string)) {
	card, err := alloc.next()
	if err != nil {
		if errors.Is(err, domain.ErrResourceExhausted) {
			metrics.IncPoolExhausted()
			u.note(ctx, runID, job, "not attempted: "+domain.ErrResourceExhausted.Error(), obs, log)
			collector.add(func(s *model.BatchSummary) {
				s.ResourceExhausted++
				if job.Status == model.JobStatusVerified {
					s.Verified++
				}
			})
			return
		}
		fail("allocate card: " + err.Error())
		return
	}

	if err := sess.BindInstrument(ctx, card); err != nil {
		fail("bind: " + err.Error())
		return
	}
	settle(ctx, opts.BindSettleWait)
	if err := sess.ConfirmSubscription(ctx); err != nil {
		fail("confirm: " + err.Error())
		return
	}

	u.transition(ctx, runID, job.Email, model.JobStatusSubscribed, "subscription confirmed", obs, log)
	metrics.IncJobProcessed(string(model.JobStatusSubscribed))
	collector.add(func(s *model.BatchSummary) { s.Subscribed++ })

	// Consumption is recorded after the success signal. A crash between the
	// confirm above and this write under-counts usage; that gap is accepted,
	// not transactionally closed.
	if err := u.cards.MarkConsumed(ctx, nil, card.ID, job.Email); err != nil {
		log.Warn().Err(err).Int64("card", card.ID).Str("job", job.Email).Msg("card consumption not recorded")
		u.audit(ctx, "card_consume", job.Email, fmt.Sprintf("card %d", card.ID), "failure")
		return
	}
	metrics.IncInstrumentConsumed("card")
	u.audit(ctx, "card_consume", job.Email, fmt.Sprintf("card %d", card.ID), "success")
}

// extractVerificationID pulls the verification id out of a service link:
// the verificationId query parameter when present, else the last path
// segment.
func extractVerificationID(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return ""
	}
	if v := parsed.Query().Get("verificationId"); v != "" {
		return v
	}
	segs := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segs) == 0 {
		return ""
	}
	last := segs[len(segs)-1]
	if last == "" || strings.Contains(last, ".") {
		return ""
	}
	return last
}

// settle waits for external page state, bailing out early on cancellation.
func settle(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (u *batchUC) audit(ctx context.Context, opType, target, detail, status string) {
	entry := &model.OperationLog{Type: opType, Target: target, Detail: detail, Status: status}
	if err := u.oplog.Append(ctx, nil, entry); err != nil {
		u.log.Warn().Err(err).Str("op", opType).Msg("oplog append failed")
	}
}
