// File: internal/infra/web/handlers.go
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"student-offer-automation/internal/domain"
	"student-offer-automation/internal/domain/model"
	"student-offer-automation/internal/domain/ports/adapter"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if s.apiKey == "" {
		s.log.Error().Msg("operator api key is not configured")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if req.APIKey != s.apiKey {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	token, err := s.auth.Mint(w)
	if err != nil {
		http.Error(w, "Failed to mint session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Token string `json:"token"`
	}{Token: token})
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	s.auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// statsHandler serves job counts plus pool headroom in one response.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := s.statsUC.JobCounts(ctx)
	if err != nil {
		http.Error(w, "Failed to count jobs", http.StatusInternalServerError)
		return
	}
	cardsAvail, proxiesAvail, err := s.statsUC.PoolCounts(ctx)
	if err != nil {
		http.Error(w, "Failed to count pools", http.StatusInternalServerError)
		return
	}

	byStatus := make(map[string]int, len(counts))
	total := 0
	for status, n := range counts {
		byStatus[string(status)] = n
		total += n
	}
	response := struct {
		TotalJobs    int            `json:"total_jobs"`
		JobsByStatus map[string]int `json:"jobs_by_status"`
		Pool         struct {
			CardsAvailable   int `json:"cards_available"`
			ProxiesAvailable int `json:"proxies_available"`
		} `json:"pool"`
		BatchRunning bool `json:"batch_running"`
	}{
		TotalJobs:    total,
		JobsByStatus: byStatus,
		BatchRunning: s.batchUC.Running(),
	}
	response.Pool.CardsAvailable = cardsAvail
	response.Pool.ProxiesAvailable = proxiesAvail

	writeJSON(w, http.StatusOK, response)
}

// jobsListHandler lists jobs, optionally filtered by ?status=.
func (s *Server) jobsListHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		jobs []*model.Job
		err  error
	)
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := model.JobStatus(raw)
		if !status.Valid() {
			http.Error(w, "Unknown status", http.StatusBadRequest)
			return
		}
		jobs, err = s.statsUC.JobsByStatus(ctx, status)
	} else {
		jobs, err = s.jobs.FindAll(ctx)
	}
	if err != nil {
		http.Error(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}

	type jobView struct {
		Email            string `json:"email"`
		Status           string `json:"status"`
		VerificationLink string `json:"verification_link,omitempty"`
		Message          string `json:"message,omitempty"`
		UpdatedAt        string `json:"updated_at"`
	}
	data := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		data = append(data, jobView{
			Email:            j.Email,
			Status:           string(j.Status),
			VerificationLink: j.VerificationLink,
			Message:          j.Message,
			UpdatedAt:        j.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	writeJSON(w, http.StatusOK, struct {
		Data  []jobView `json:"data"`
		Total int       `json:"total"`
	}{Data: data, Total: len(data)})
}

func (s *Server) cardsListHandler(w http.ResponseWriter, r *http.Request) {
	cards, err := s.poolUC.AllCards(r.Context())
	if err != nil {
		http.Error(w, "Failed to list cards", http.StatusInternalServerError)
		return
	}
	type cardView struct {
		ID         int64  `json:"id"`
		NumberTail string `json:"number_tail"`
		UsageCount int    `json:"usage_count"`
		MaxUsage   int    `json:"max_usage"`
		Active     bool   `json:"active"`
	}
	data := make([]cardView, 0, len(cards))
	for _, c := range cards {
		tail := c.Number
		if len(tail) > 4 {
			tail = tail[len(tail)-4:]
		}
		data = append(data, cardView{
			ID:         c.ID,
			NumberTail: tail,
			UsageCount: c.UsageCount,
			MaxUsage:   c.MaxUsage,
			Active:     c.Active,
		})
	}
	writeJSON(w, http.StatusOK, struct {
		Data []cardView `json:"data"`
	}{Data: data})
}

func (s *Server) proxiesListHandler(w http.ResponseWriter, r *http.Request) {
	proxies, err := s.poolUC.AllProxies(r.Context())
	if err != nil {
		http.Error(w, "Failed to list proxies", http.StatusInternalServerError)
		return
	}
	type proxyView struct {
		ID     int64  `json:"id"`
		Type   string `json:"type"`
		Host   string `json:"host"`
		Port   string `json:"port"`
		Used   bool   `json:"used"`
		UsedBy string `json:"used_by,omitempty"`
	}
	data := make([]proxyView, 0, len(proxies))
	for _, p := range proxies {
		data = append(data, proxyView{ID: p.ID, Type: p.Type, Host: p.Host, Port: p.Port, Used: p.Used, UsedBy: p.UsedBy})
	}
	writeJSON(w, http.StatusOK, struct {
		Data []proxyView `json:"data"`
	}{Data: data})
}

func (s *Server) importJobsHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text      string `json:"text"`
		Separator string `json:"separator"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	rep, err := s.importUC.ImportJobs(r.Context(), req.Text, req.Separator, "")
	if err != nil {
		http.Error(w, "Import failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) importCardsHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text     string `json:"text"`
		MaxUsage int    `json:"max_usage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	rep, err := s.importUC.ImportCards(r.Context(), req.Text, req.MaxUsage)
	if err != nil {
		http.Error(w, "Import failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) importProxiesHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
		Type string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	rep, err := s.importUC.ImportProxies(r.Context(), req.Text, req.Type)
	if err != nil {
		http.Error(w, "Import failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// batchStartHandler kicks off a run over the selected jobs and returns
// immediately; progress is observable through /stats, /jobs and /oplog.
func (s *Server) batchStartHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status          string   `json:"status"`
		Emails          []string `json:"emails"`
		Concurrency     int      `json:"concurrency"`
		CardsPerJob     int      `json:"cards_per_job"`
		VerificationKey string   `json:"verification_key"` // per-run bypass key override
	}
	if r.Body != nil {
		// an empty body means "all pending jobs with defaults"
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if s.batchUC.Running() {
		http.Error(w, "A batch is already running", http.StatusConflict)
		return
	}

	ctx := r.Context()
	var (
		jobs []*model.Job
		err  error
	)
	switch {
	case len(req.Emails) > 0:
		for _, email := range req.Emails {
			job, ferr := s.jobs.FindByEmail(ctx, email)
			if ferr != nil {
				if errors.Is(ferr, domain.ErrNotFound) {
					http.Error(w, "Unknown job: "+email, http.StatusBadRequest)
					return
				}
				http.Error(w, "Failed to load jobs", http.StatusInternalServerError)
				return
			}
			jobs = append(jobs, job)
		}
	case req.Status != "":
		status := model.JobStatus(req.Status)
		if !status.Valid() {
			http.Error(w, "Unknown status", http.StatusBadRequest)
			return
		}
		jobs, err = s.jobs.FindByStatus(ctx, status)
	default:
		jobs, err = s.jobs.FindByStatus(ctx, model.JobStatusPendingCheck)
	}
	if err != nil {
		http.Error(w, "Failed to load jobs", http.StatusInternalServerError)
		return
	}
	if len(jobs) == 0 {
		http.Error(w, "No jobs match the selection", http.StatusBadRequest)
		return
	}

	opts := s.defaults
	if req.Concurrency > 0 {
		opts.Concurrency = req.Concurrency
	}
	if req.CardsPerJob > 0 {
		opts.CardsPerJob = req.CardsPerJob
	}
	if req.VerificationKey != "" {
		opts.VerificationKey = req.VerificationKey
	}

	// the run outlives the request
	obs := adapter.ObserverFunc(func(ev model.ProgressEvent) {
		s.progress.add(ev)
		s.log.Info().
			Str("run_id", ev.RunID).
			Str("job", ev.Email).
			Str("status", string(ev.Status)).
			Str("message", ev.Message).
			Msg("batch progress")
	})
	go func() {
		if _, rerr := s.batchUC.RunBatch(context.Background(), jobs, opts, obs); rerr != nil {
			s.log.Error().Err(rerr).Msg("batch run failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, struct {
		Jobs        int `json:"jobs"`
		Concurrency int `json:"concurrency"`
	}{Jobs: len(jobs), Concurrency: opts.Concurrency})
}

func (s *Server) batchStopHandler(w http.ResponseWriter, r *http.Request) {
	if !s.batchUC.Running() {
		http.Error(w, "No batch is running", http.StatusConflict)
		return
	}
	s.batchUC.Stop()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) batchStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Running bool `json:"running"`
	}{Running: s.batchUC.Running()})
}

// batchProgressHandler serves the most recent transition events, newest
// last, so operators can follow a run without tailing logs.
func (s *Server) batchProgressHandler(w http.ResponseWriter, r *http.Request) {
	events := s.progress.snapshot()
	type eventView struct {
		RunID   string `json:"run_id"`
		Email   string `json:"email"`
		Status  string `json:"status"`
		Message string `json:"message,omitempty"`
		At      string `json:"at"`
	}
	data := make([]eventView, 0, len(events))
	for _, ev := range events {
		data = append(data, eventView{
			RunID:   ev.RunID,
			Email:   ev.Email,
			Status:  string(ev.Status),
			Message: ev.Message,
			At:      ev.At.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	writeJSON(w, http.StatusOK, struct {
		Data []eventView `json:"data"`
	}{Data: data})
}

func (s *Server) settingsListHandler(w http.ResponseWriter, r *http.Request) {
	all, err := s.settings.All(r.Context())
	if err != nil {
		http.Error(w, "Failed to read settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Data map[string]string `json:"data"`
	}{Data: all})
}

func (s *Server) settingsPutHandler(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req struct {
		Value       string `json:"value"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || key == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.settings.Set(r.Context(), key, req.Value, req.Description); err != nil {
		http.Error(w, "Failed to store setting", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) oplogHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	entries, err := s.oplog.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, "Failed to read operation log", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Data []*model.OperationLog `json:"data"`
	}{Data: entries})
}
