// Package server exposes saved analysis reports over a small JSON API and
// optionally re-runs the analysis on a cron schedule.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/robfig/cron/v3"

	"github.com/build-flow-labs/spof/internal/spof/report"
)

// Job re-runs the analysis and writes a new report. Its context is cancelled
// when the server shuts down.
type Job func(ctx context.Context) error

// jobDrainTimeout bounds how long shutdown waits for a running job to write
// its partial report.
const jobDrainTimeout = 30 * time.Second

// Server serves the reports in one output directory.
type Server struct {
	index  *Index
	logger *slog.Logger
	cron   *cron.Cron

	// jobCtx is the context handed to scheduled jobs; Run replaces it with
	// its own before starting the scheduler.
	jobCtx context.Context
}

// New creates a Server and indexes the reports already in dir.
func New(dir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	idx := NewIndex(dir)
	if err := idx.Load(); err != nil {
		logger.Warn("failed to load initial reports", "error", err)
	}
	return &Server{index: idx, logger: logger, jobCtx: context.Background()}
}

// Index returns the report index.
func (s *Server) Index() *Index { return s.index }

// Refresh reloads reports from the output directory.
func (s *Server) Refresh() {
	if err := s.index.Load(); err != nil {
		s.logger.Error("report refresh failed", "error", err)
	}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/reports", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Get("/{id}/dependencies", s.handleDependencies)
	})
	return r
}

// Schedule registers job under a cron spec ("@daily", "0 3 * * *"). After
// each run the index is reloaded. Call Run to start the scheduler.
func (s *Server) Schedule(spec string, job Job) error {
	if s.cron == nil {
		s.cron = cron.New()
	}
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Info("scheduled analysis triggered", "schedule", spec)
		if err := job(s.jobCtx); err != nil {
			s.logger.Error("scheduled analysis failed", "error", err)
		}
		s.Refresh()
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Run serves on addr until ctx is cancelled. Scheduled jobs receive ctx, and
// Run waits for a running job to return before it does.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.cron != nil {
		s.jobCtx = ctx
		s.cron.Start()
		defer s.stopScheduler()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving reports", "addr", addr, "reports", s.index.Count())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) stopScheduler() {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-time.After(jobDrainTimeout):
		s.logger.Warn("scheduled analysis still running at shutdown", "waited", jobDrainTimeout)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{"status": "ok", "reports": s.index.Count()})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.index.List(r.URL.Query().Get("org")))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.report(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, rep)
}

func (s *Server) handleDependencies(w http.ResponseWriter, r *http.Request) {
	var f report.Filter
	f.Ecosystem = r.URL.Query().Get("ecosystem")
	if v := r.URL.Query().Get("min_score"); v != "" {
		minScore, err := strconv.ParseFloat(v, 64)
		if err != nil {
			http.Error(w, "invalid min_score value", http.StatusBadRequest)
			return
		}
		f.MinScore = minScore
	}

	rep, ok := s.report(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, rep.Filter(f))
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) (*report.Report, bool) {
	id := chi.URLParam(r, "id")
	rep, err := s.index.Get(id)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "report not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		s.logger.Error("loading report", "id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return nil, false
	}
	return rep, true
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}
