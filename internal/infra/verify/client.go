// File: internal/infra/verify/client.go
package verify

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"student-offer-automation/internal/domain"
	"student-offer-automation/internal/domain/model"
	"student-offer-automation/internal/domain/ports/adapter"
	"student-offer-automation/internal/infra/metrics"
)

var _ adapter.VerificationClient = (*Client)(nil)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Known token embeddings, tried in order; first match wins. The markup is
// third-party and changes without notice, so extraction is best-effort and
// a miss degrades to tokenless requests instead of aborting.
var tokenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)window\.CSRF_TOKEN\s*=\s*["']([^"']+)["']`),
	regexp.MustCompile(`(?i)csrfToken["']?\s*[:=]\s*["']([^"']+)["']`),
	regexp.MustCompile(`(?i)_csrf["']?\s*[:=]\s*["']([^"']+)["']`),
}

type Options struct {
	BaseURL      string
	BypassKey    string
	BatchSize    int           // ids per submission, service caps at 5
	PollInterval time.Duration // delay between check-status calls
	PollAttempts int           // poll budget per id
	HTTPTimeout  time.Duration
}

// Client drives the bypass-service protocol: token acquisition, batched
// submission over an SSE-style stream, and per-id polling.
type Client struct {
	opts    Options
	httpc   *http.Client // token, poll, cancel
	streamc *http.Client // batch submission; no client timeout, ctx governs the stream
	log     *zerolog.Logger

	mu    sync.Mutex
	token string
}

func NewClient(opts Options, logger *zerolog.Logger) *Client {
	if opts.BatchSize <= 0 || opts.BatchSize > 5 {
		opts.BatchSize = 5
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = 60
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 30 * time.Second
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Client{
		opts:    opts,
		httpc:   &http.Client{Timeout: opts.HTTPTimeout},
		streamc: &http.Client{},
		log:     logger,
	}
}

// event is one data: payload from the stream or one check-status response.
type event struct {
	VerificationID string `json:"verificationId"`
	CurrentStep    string `json:"currentStep"`
	Message        string `json:"message"`
	CheckToken     string `json:"checkToken"`
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// refreshToken fetches the service root and extracts a CSRF-equivalent
// token. A miss is a soft failure: the caller proceeds tokenless.
func (c *Client) refreshToken(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL, nil)
	if err != nil {
		return err
	}
	c.decorate(req)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: fetch token page: %v", domain.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read token page: %v", domain.ErrTransientNetwork, err)
	}
	for _, pat := range tokenPatterns {
		if m := pat.FindSubmatch(body); m != nil {
			c.mu.Lock()
			c.token = string(m[1])
			c.mu.Unlock()
			c.log.Debug().Str("token", string(m[1][:min(8, len(m[1]))])+"...").Msg("csrf token acquired")
			return nil
		}
	}
	return domain.ErrNoToken
}

func (c *Client) decorate(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Origin", c.opts.BaseURL)
	req.Header.Set("Referer", c.opts.BaseURL+"/")
	if t := c.currentToken(); t != "" {
		req.Header.Set("X-CSRF-Token", t)
	}
}

// VerifyBatch resolves every id to a final result. The returned map holds
// exactly one entry per input id even when the service or network fails.
// A non-empty key overrides the configured bypass key for this call only.
func (c *Client) VerifyBatch(ctx context.Context, ids []string, key string, progress model.ProgressFunc) (map[string]model.VerifyResult, error) {
	results := make(map[string]model.VerifyResult, len(ids))
	if len(ids) == 0 {
		return results, nil
	}
	if key == "" {
		key = c.opts.BypassKey
	}

	// A fresh token per batch keeps long runs from drifting past the
	// service's session window. Failure here is soft.
	if err := c.refreshToken(ctx); err != nil {
		c.log.Warn().Err(err).Msg("token acquisition failed, submitting without token")
	}

	var mu sync.Mutex
	for start := 0; start < len(ids); start += c.opts.BatchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+c.opts.BatchSize, len(ids))
		c.submitBatch(ctx, ids[start:end], key, progress, &mu, results)
	}

	// Hard guarantee: one result per input id, no matter what happened above.
	mu.Lock()
	for _, id := range ids {
		if _, ok := results[id]; !ok {
			msg := "no result from service"
			if ctx.Err() != nil {
				msg = "cancelled: " + ctx.Err().Error()
			}
			results[id] = model.VerifyResult{VerificationID: id, Step: model.VerifyStepError, Message: msg}
		}
	}
	mu.Unlock()
	return results, ctx.Err()
}

// submitBatch posts one sub-batch and consumes the response stream. Pending
// ids with a poll token are polled concurrently after the stream closes.
func (c *Client) submitBatch(ctx context.Context, ids []string, key string, progress model.ProgressFunc, mu *sync.Mutex, results map[string]model.VerifyResult) {
	resp, err := c.postBatch(ctx, ids, key)
	if err == nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		// Authorization bounce: refresh once, resubmit the whole batch once.
		resp.Body.Close()
		c.log.Warn().Int("status", resp.StatusCode).Msg("batch rejected, refreshing token")
		if rerr := c.refreshToken(ctx); rerr != nil {
			c.failAll(ids, fmt.Sprintf("%v: token refresh failed: %v", domain.ErrAuthExpired, rerr), mu, results)
			return
		}
		resp, err = c.postBatch(ctx, ids, key)
	}
	if err != nil {
		c.failAll(ids, fmt.Sprintf("%v: %v", domain.ErrTransientNetwork, err), mu, results)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.failAll(ids, domain.ErrAuthExpired.Error(), mu, results)
		return
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		c.failAll(ids, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, snippet), mu, results)
		return
	}

	var pending []*model.VerificationTask
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var ev event
		if err := json.Unmarshal([]byte(strings.TrimSpace(line[5:])), &ev); err != nil {
			continue // malformed frames are skipped, not fatal
		}
		if ev.VerificationID == "" {
			continue
		}
		if progress != nil {
			progress(ev.VerificationID, fmt.Sprintf("step: %s | %s", ev.CurrentStep, ev.Message))
		}
		step := model.VerifyStep(ev.CurrentStep)
		switch {
		case step.Terminal():
			mu.Lock()
			results[ev.VerificationID] = model.VerifyResult{
				VerificationID: ev.VerificationID, Step: step, Message: ev.Message,
			}
			mu.Unlock()
		case step == model.VerifyStepPending && ev.CheckToken != "":
			pending = append(pending, &model.VerificationTask{
				VerificationID: ev.VerificationID,
				Step:           step,
				CheckToken:     ev.CheckToken,
				Message:        ev.Message,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		c.log.Warn().Err(err).Msg("batch stream interrupted")
	}

	var wg sync.WaitGroup
	for _, task := range pending {
		wg.Add(1)
		go func(t *model.VerificationTask) {
			defer wg.Done()
			res := c.poll(ctx, t, progress)
			mu.Lock()
			results[t.VerificationID] = res
			mu.Unlock()
		}(task)
	}
	wg.Wait()
}

func (c *Client) postBatch(ctx context.Context, ids []string, key string) (*http.Response, error) {
	payload := map[string]any{
		"verificationIds": ids,
		"hCaptchaToken":   key,
		"useLucky":        false,
		"programId":       "",
	}
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/api/batch", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	c.decorate(req)
	req.Header.Set("Content-Type", "application/json")
	return c.streamc.Do(req)
}

func (c *Client) failAll(ids []string, msg string, mu *sync.Mutex, results map[string]model.VerifyResult) {
	mu.Lock()
	defer mu.Unlock()
	for _, id := range ids {
		results[id] = model.VerifyResult{VerificationID: id, Step: model.VerifyStepError, Message: msg}
	}
}

// poll drives /api/check-status until a terminal step or the attempt budget
// runs out. Transient errors retry without burning the task; the budget
// alone bounds wall-clock time (attempts x interval).
func (c *Client) poll(ctx context.Context, task *model.VerificationTask, progress model.ProgressFunc) model.VerifyResult {
	for i := 0; i < c.opts.PollAttempts; i++ {
		select {
		case <-ctx.Done():
			return model.VerifyResult{
				VerificationID: task.VerificationID,
				Step:           model.VerifyStepError,
				Message:        "cancelled: " + ctx.Err().Error(),
			}
		case <-time.After(c.opts.PollInterval):
		}

		ev, err := c.checkStatus(ctx, task.CheckToken)
		if err != nil {
			if progress != nil {
				progress(task.VerificationID, fmt.Sprintf("polling error (retry %d/%d)", i+1, c.opts.PollAttempts))
			}
			continue
		}
		if progress != nil {
			progress(task.VerificationID, fmt.Sprintf("polling: %s (%d/%d) | %s", ev.CurrentStep, i+1, c.opts.PollAttempts, ev.Message))
		}
		step := model.VerifyStep(ev.CurrentStep)
		if step.Terminal() {
			metrics.ObservePollAttempts(i + 1)
			return model.VerifyResult{VerificationID: task.VerificationID, Step: step, Message: ev.Message}
		}
		if ev.CheckToken != "" {
			task.CheckToken = ev.CheckToken // service may rotate the poll token
		}
	}
	metrics.ObservePollAttempts(c.opts.PollAttempts)
	return model.VerifyResult{
		VerificationID: task.VerificationID,
		Step:           model.VerifyStepError,
		Message:        domain.ErrClientTimeout.Error(),
		TimedOut:       true,
	}
}

func (c *Client) checkStatus(ctx context.Context, checkToken string) (*event, error) {
	b, _ := json.Marshal(map[string]string{"checkToken": checkToken})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/api/check-status", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	c.decorate(req)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()
	var ev event
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		return nil, fmt.Errorf("%w: decode check-status: %v", domain.ErrTransientNetwork, err)
	}
	return &ev, nil
}

// Cancel asks the service to abandon a verification. Best-effort: the ack is
// returned verbatim and an in-flight poll loop is not stopped locally.
func (c *Client) Cancel(ctx context.Context, verificationID string) (string, error) {
	if c.currentToken() == "" {
		if err := c.refreshToken(ctx); err != nil {
			c.log.Warn().Err(err).Msg("cancel without csrf token")
		}
	}
	b, _ := json.Marshal(map[string]string{"verificationId": verificationID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/api/cancel", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	c.decorate(req)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()
	ack, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", err
	}
	return string(ack), nil
}
