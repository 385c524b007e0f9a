// File: internal/infra/web/server.go
package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"student-offer-automation/internal/domain/model"
	"student-offer-automation/internal/domain/ports/repository"
	"student-offer-automation/internal/usecase"
)

// Server is the operator API: job state, instrument pools, imports and
// batch control. Batch runs are started here but owned by the use case;
// the HTTP layer only flips them on and off.
type Server struct {
	statsUC  usecase.StatsUseCase
	poolUC   usecase.PoolUseCase
	importUC usecase.ImportUseCase
	batchUC  usecase.BatchUseCase
	jobs     repository.JobRepository
	oplog    repository.OperationLogRepository
	settings repository.SettingsRepository
	auth     *AuthManager
	apiKey   string
	defaults model.BatchOptions
	progress progressBuffer
	log      *zerolog.Logger
}

func NewServer(
	statsUC usecase.StatsUseCase,
	poolUC usecase.PoolUseCase,
	importUC usecase.ImportUseCase,
	batchUC usecase.BatchUseCase,
	jobs repository.JobRepository,
	oplog repository.OperationLogRepository,
	settings repository.SettingsRepository,
	auth *AuthManager,
	apiKey string,
	defaults model.BatchOptions,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		statsUC:  statsUC,
		poolUC:   poolUC,
		importUC: importUC,
		batchUC:  batchUC,
		jobs:     jobs,
		oplog:    oplog,
		settings: settings,
		auth:     auth,
		apiKey:   apiKey,
		defaults: defaults,
		log:      logger,
	}
}

// Router builds the chi mux. /metrics and /healthz are open; everything
// under /api/v1 except login requires a valid session.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", s.loginHandler)

		r.Group(func(r chi.Router) {
			r.Use(s.sessionMiddleware)
			r.Post("/logout", s.logoutHandler)
			r.Get("/stats", s.statsHandler)
			r.Get("/jobs", s.jobsListHandler)
			r.Get("/cards", s.cardsListHandler)
			r.Get("/proxies", s.proxiesListHandler)
			r.Post("/import/jobs", s.importJobsHandler)
			r.Post("/import/cards", s.importCardsHandler)
			r.Post("/import/proxies", s.importProxiesHandler)
			r.Post("/batch/start", s.batchStartHandler)
			r.Post("/batch/stop", s.batchStopHandler)
			r.Get("/batch", s.batchStatusHandler)
			r.Get("/batch/progress", s.batchProgressHandler)
			r.Get("/oplog", s.oplogHandler)
			r.Get("/settings", s.settingsListHandler)
			r.Put("/settings/{key}", s.settingsPutHandler)
		})
	})
	return r
}

// sessionMiddleware accepts either a minted session or the raw API key as a
// bearer token, so scripted callers can skip the login round trip.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			if hdr := r.Header.Get("Authorization"); hdr != "" {
				parts := strings.SplitN(hdr, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") && parts[1] == s.apiKey {
					next.ServeHTTP(w, r)
					return
				}
			}
		}
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run serves until ctx is canceled, then drains with a short grace period.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info().Str("addr", addr).Msg("operator api listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
