// Package server exposes the run history and the latest report over http.
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

	"github.com/dealerdiff/dealerdiff/internal/history"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Runs is the read side of the run history.
type Runs interface {
	Latest(ctx context.Context) (*history.Run, error)
	List(ctx context.Context, limit int) ([]history.Run, error)
}

// Server is the read-only http interface of dealerdiff.
type Server struct {
	runs     Runs
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// New returns a Server reading from runs. Metrics are served from gatherer
// if it is not nil.
func New(runs Runs, gatherer prometheus.Gatherer) *Server {
	return &Server{
		runs:     runs,
		gatherer: gatherer,
		logger:   slog.With(slog.String("component", "server")),
	}
}

// Handler returns the router with all routes registered.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api/runs", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Get("/latest", s.handleLatest)
	})
	r.Get("/report", s.handleReport)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", l))
			return
		}
		limit = v
	}
	runs, err := s.runs.List(r.Context(), limit)
	if err != nil {
		s.logger.Error(fmt.Sprintf("error while listing runs: %v", err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	run, ok := s.latest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	run, ok := s.latest(w, r)
	if !ok {
		return
	}
	html, err := run.Report.HTML()
	if err != nil {
		s.logger.Error(fmt.Sprintf("error while rendering report of run %d: %v", run.ID, err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(html))
}

func (s *Server) latest(w http.ResponseWriter, r *http.Request) (*history.Run, bool) {
	run, err := s.runs.Latest(r.Context())
	if errors.Is(err, history.ErrNoRuns) {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	if err != nil {
		s.logger.Error(fmt.Sprintf("error while reading latest run: %v", err))
		writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	if run.Report == nil {
		writeError(w, http.StatusNotFound, history.ErrNoRuns)
		return nil, false
	}
	return run, true
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info(fmt.Sprintf("listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
