// File: internal/infra/verify/client_test.go
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"student-offer-automation/internal/domain/model"
)

func newTestClient(baseURL string) *Client {
	nop := zerolog.Nop()
	return NewClient(Options{
		BaseURL:      baseURL,
		BypassKey:    "bypass-key",
		BatchSize:    5,
		PollInterval: 5 * time.Millisecond,
		PollAttempts: 10,
		HTTPTimeout:  2 * time.Second,
	}, &nop)
}

// bypassService is a scripted stand-in for the verification service.
type bypassService struct {
	mu sync.Mutex

	tokenPage   string
	batchStatus int // 0 means 200
	events      []string
	pollSteps   map[string][]event // by checkToken, consumed in order

	batchCalls  int32
	pollCalls   int32
	lastCSRF    string
	lastPayload map[string]any
}

func (b *bypassService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, b.tokenPage)
	})
	mux.HandleFunc("/api/batch", func(w http.ResponseWriter, r *http.Request) {
		calls := atomic.AddInt32(&b.batchCalls, 1)
		b.mu.Lock()
		b.lastCSRF = r.Header.Get("X-CSRF-Token")
		json.NewDecoder(r.Body).Decode(&b.lastPayload)
		status := b.batchStatus
		b.mu.Unlock()
		if status != 0 && calls == 1 {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range b.events {
			fmt.Fprintf(w, "data: %s\n\n", ev)
		}
	})
	mux.HandleFunc("/api/check-status", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&b.pollCalls, 1)
		var req struct {
			CheckToken string `json:"checkToken"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		defer b.mu.Unlock()
		steps := b.pollSteps[req.CheckToken]
		if len(steps) == 0 {
			json.NewEncoder(w).Encode(event{CurrentStep: "pending"})
			return
		}
		next := steps[0]
		b.pollSteps[req.CheckToken] = steps[1:]
		json.NewEncoder(w).Encode(next)
	})
	mux.HandleFunc("/api/cancel", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"cancelled"}`)
	})
	return mux
}

func newService(t *testing.T, svc *bypassService) *httptest.Server {
	t.Helper()
	if svc.pollSteps == nil {
		svc.pollSteps = map[string][]event{}
	}
	srv := httptest.NewServer(svc.handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestVerifyBatchImmediateResults(t *testing.T) {
	svc := &bypassService{
		tokenPage: `<script>window.CSRF_TOKEN = "tok-abc123";</script>`,
		events: []string{
			`{"verificationId":"v1","currentStep":"success","message":"approved"}`,
			`{"verificationId":"v2","currentStep":"error","message":"region blocked"}`,
		},
	}
	srv := newService(t, svc)
	c := newTestClient(srv.URL)

	results, err := c.VerifyBatch(context.Background(), []string{"v1", "v2"}, "", nil)
	if err != nil {
		t.Fatalf("VerifyBatch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d entries, want 2", len(results))
	}
	if !results["v1"].Success() || results["v1"].Message != "approved" {
		t.Fatalf("v1 = %+v", results["v1"])
	}
	if results["v2"].Step != model.VerifyStepError || results["v2"].Message != "region blocked" {
		t.Fatalf("v2 = %+v", results["v2"])
	}
	if svc.lastCSRF != "tok-abc123" {
		t.Fatalf("csrf header = %q, want extracted token", svc.lastCSRF)
	}
	if svc.lastPayload["hCaptchaToken"] != "bypass-key" {
		t.Fatalf("payload = %+v, want bypass key forwarded", svc.lastPayload)
	}
	if svc.lastPayload["useLucky"] != false {
		t.Fatalf("useLucky = %v, want false", svc.lastPayload["useLucky"])
	}
}

func TestVerifyBatchPollsPendingToSuccess(t *testing.T) {
	svc := &bypassService{
		tokenPage: `var cfg = {csrfToken: "tok-poll"};`,
		events: []string{
			`{"verificationId":"v1","currentStep":"pending","checkToken":"ck-1","message":"queued"}`,
		},
	}
	srv := newService(t, svc)
	svc.pollSteps["ck-1"] = []event{
		{CurrentStep: "pending", Message: "working"},
		{CurrentStep: "success", Message: "done"},
	}
	c := newTestClient(srv.URL)

	var progressLines []string
	var mu sync.Mutex
	progress := func(id, text string) {
		mu.Lock()
		progressLines = append(progressLines, text)
		mu.Unlock()
	}

	results, err := c.VerifyBatch(context.Background(), []string{"v1"}, "", progress)
	if err != nil {
		t.Fatalf("VerifyBatch: %v", err)
	}
	if !results["v1"].Success() || results["v1"].Message != "done" {
		t.Fatalf("v1 = %+v", results["v1"])
	}
	if atomic.LoadInt32(&svc.pollCalls) < 2 {
		t.Fatalf("poll calls = %d, want at least 2", svc.pollCalls)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(progressLines) == 0 {
		t.Fatal("no progress reported")
	}
}

func TestVerifyBatchCheckTokenRotation(t *testing.T) {
	svc := &bypassService{
		tokenPage: `window.CSRF_TOKEN = "tok"`,
		events: []string{
			`{"verificationId":"v1","currentStep":"pending","checkToken":"ck-old"}`,
		},
	}
	srv := newService(t, svc)
	svc.pollSteps["ck-old"] = []event{{CurrentStep: "pending", CheckToken: "ck-new"}}
	svc.pollSteps["ck-new"] = []event{{CurrentStep: "success", Message: "rotated"}}
	c := newTestClient(srv.URL)

	results, err := c.VerifyBatch(context.Background(), []string{"v1"}, "", nil)
	if err != nil {
		t.Fatalf("VerifyBatch: %v", err)
	}
	if !results["v1"].Success() || results["v1"].Message != "rotated" {
		t.Fatalf("v1 = %+v, want success after token rotation", results["v1"])
	}
}

func TestVerifyBatchPollBudgetExhausted(t *testing.T) {
	svc := &bypassService{
		tokenPage: `window.CSRF_TOKEN = "tok"`,
		events: []string{
			`{"verificationId":"v1","currentStep":"pending","checkToken":"ck-stuck"}`,
		},
	}
	srv := newService(t, svc)
	// no scripted steps: the service answers pending forever
	c := newTestClient(srv.URL)

	results, err := c.VerifyBatch(context.Background(), []string{"v1"}, "", nil)
	if err != nil {
		t.Fatalf("VerifyBatch: %v", err)
	}
	res := results["v1"]
	if res.Step != model.VerifyStepError || !res.TimedOut {
		t.Fatalf("v1 = %+v, want timed-out error", res)
	}
}

func TestVerifyBatchPollEndsInServiceError(t *testing.T) {
	svc := &bypassService{
		tokenPage: `window.CSRF_TOKEN = "tok"`,
		events: []string{
			`{"verificationId":"v1","currentStep":"pending","checkToken":"ck-doc"}`,
		},
	}
	srv := newService(t, svc)
	svc.pollSteps["ck-doc"] = []event{
		{CurrentStep: "pending", Message: "reviewing"},
		{CurrentStep: "error", Message: "document rejected"},
	}
	c := newTestClient(srv.URL)

	results, err := c.VerifyBatch(context.Background(), []string{"v1"}, "", nil)
	if err != nil {
		t.Fatalf("VerifyBatch: %v", err)
	}
	res := results["v1"]
	if res.Step != model.VerifyStepError || res.TimedOut {
		t.Fatalf("v1 = %+v, want service error without timeout", res)
	}
	if res.Message != "document rejected" {
		t.Fatalf("message = %q, want the service message verbatim", res.Message)
	}
	if atomic.LoadInt32(&svc.pollCalls) != 2 {
		t.Fatalf("poll calls = %d, want polling to stop at the error step", svc.pollCalls)
	}
}

func TestVerifyBatchPerCallKeyOverride(t *testing.T) {
	svc := &bypassService{
		tokenPage: `window.CSRF_TOKEN = "tok"`,
		events: []string{
			`{"verificationId":"v1","currentStep":"success"}`,
		},
	}
	srv := newService(t, svc)
	c := newTestClient(srv.URL)

	if _, err := c.VerifyBatch(context.Background(), []string{"v1"}, "run-key", nil); err != nil {
		t.Fatalf("VerifyBatch: %v", err)
	}
	if svc.lastPayload["hCaptchaToken"] != "run-key" {
		t.Fatalf("payload = %+v, want the per-call key", svc.lastPayload)
	}

	if _, err := c.VerifyBatch(context.Background(), []string{"v1"}, "", nil); err != nil {
		t.Fatalf("VerifyBatch: %v", err)
	}
	if svc.lastPayload["hCaptchaToken"] != "bypass-key" {
		t.Fatalf("payload = %+v, want the configured key when none is passed", svc.lastPayload)
	}
}

func TestVerifyBatchTokenMissStillSubmits(t *testing.T) {
	svc := &bypassService{
		tokenPage: `<html>no token anywhere</html>`,
		events: []string{
			`{"verificationId":"v1","currentStep":"success","message":"ok"}`,
		},
	}
	srv := newService(t, svc)
	c := newTestClient(srv.URL)

	results, err := c.VerifyBatch(context.Background(), []string{"v1"}, "", nil)
	if err != nil {
		t.Fatalf("VerifyBatch: %v", err)
	}
	if !results["v1"].Success() {
		t.Fatalf("v1 = %+v, want success without csrf token", results["v1"])
	}
	if svc.lastCSRF != "" {
		t.Fatalf("csrf header = %q, want empty", svc.lastCSRF)
	}
}

func TestVerifyBatchAuthBounceRefreshesOnce(t *testing.T) {
	svc := &bypassService{
		tokenPage:   `window.CSRF_TOKEN = "tok-fresh"`,
		batchStatus: http.StatusUnauthorized, // first submit bounces
		events: []string{
			`{"verificationId":"v1","currentStep":"success","message":"ok"}`,
		},
	}
	srv := newService(t, svc)
	c := newTestClient(srv.URL)

	results, err := c.VerifyBatch(context.Background(), []string{"v1"}, "", nil)
	if err != nil {
		t.Fatalf("VerifyBatch: %v", err)
	}
	if !results["v1"].Success() {
		t.Fatalf("v1 = %+v, want success after refresh and resubmit", results["v1"])
	}
	if got := atomic.LoadInt32(&svc.batchCalls); got != 2 {
		t.Fatalf("batch calls = %d, want 2", got)
	}
}

func TestVerifyBatchServiceErrorFailsAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/batch") {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `window.CSRF_TOKEN = "tok"`)
	}))
	defer srv.Close()
	c := newTestClient(srv.URL)

	results, err := c.VerifyBatch(context.Background(), []string{"v1", "v2"}, "", nil)
	if err != nil {
		t.Fatalf("VerifyBatch: %v", err)
	}
	for _, id := range []string{"v1", "v2"} {
		res := results[id]
		if res.Step != model.VerifyStepError {
			t.Fatalf("%s = %+v, want error", id, res)
		}
		if !strings.Contains(res.Message, "500") {
			t.Fatalf("%s message = %q, want status in message", id, res.Message)
		}
	}
}

func TestVerifyBatchExactlyOneResultPerID(t *testing.T) {
	// stream mentions only v1; v2 must still get a synthesized result
	svc := &bypassService{
		tokenPage: `window.CSRF_TOKEN = "tok"`,
		events: []string{
			`{"verificationId":"v1","currentStep":"success"}`,
		},
	}
	srv := newService(t, svc)
	c := newTestClient(srv.URL)

	results, err := c.VerifyBatch(context.Background(), []string{"v1", "v2"}, "", nil)
	if err != nil {
		t.Fatalf("VerifyBatch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d entries, want 2", len(results))
	}
	if results["v2"].Step != model.VerifyStepError {
		t.Fatalf("v2 = %+v, want synthesized error", results["v2"])
	}
}

func TestVerifyBatchCanceledContext(t *testing.T) {
	svc := &bypassService{tokenPage: `window.CSRF_TOKEN = "tok"`}
	srv := newService(t, svc)
	c := newTestClient(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := c.VerifyBatch(ctx, []string{"v1"}, "", nil)
	if err == nil {
		t.Fatal("want ctx error")
	}
	if res := results["v1"]; res.Step != model.VerifyStepError {
		t.Fatalf("v1 = %+v, want error result despite cancellation", res)
	}
}

func TestTokenPatternPrecedence(t *testing.T) {
	cases := []struct {
		name string
		page string
		want string
	}{
		{"window form", `window.CSRF_TOKEN = "first"`, "first"},
		{"object key form", `{csrfToken: "second"}`, "second"},
		{"underscore form", `_csrf = "third"`, "third"},
		{"case insensitive", `WINDOW.CSRF_TOKEN = 'mixed'`, "mixed"},
		{"first pattern wins", `window.CSRF_TOKEN = "a"; csrfToken: "b"`, "a"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &bypassService{tokenPage: tc.page}
			srv := newService(t, svc)
			c := newTestClient(srv.URL)
			if err := c.refreshToken(context.Background()); err != nil {
				t.Fatalf("refreshToken: %v", err)
			}
			if got := c.currentToken(); got != tc.want {
				t.Fatalf("token = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCancel(t *testing.T) {
	svc := &bypassService{tokenPage: `window.CSRF_TOKEN = "tok"`}
	srv := newService(t, svc)
	c := newTestClient(srv.URL)

	ack, err := c.Cancel(context.Background(), "v1")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !strings.Contains(ack, "cancelled") {
		t.Fatalf("ack = %q", ack)
	}
}
