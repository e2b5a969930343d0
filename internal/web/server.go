// Package web provides the HTTP status server for a load run.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/imdbload/internal/core"
	"github.com/JonMunkholm/imdbload/internal/pipeline"
	mw "github.com/JonMunkholm/imdbload/internal/web/middleware"
	"github.com/JonMunkholm/imdbload/internal/web/templates"
)

// Server exposes the live state of a run.
type Server struct {
	tracker *pipeline.Tracker
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new Server instance.
func NewServer(tracker *pipeline.Tracker) *Server {
	s := &Server{
		tracker: tracker,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleStatusPage)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", s.tracker.Metrics().Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/status/{table}", s.handleTableStatus)
	})
}

// Start begins listening for HTTP requests. It returns nil after Shutdown.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	slog.Info("status server listening", "addr", addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok", "stage": string(s.tracker.Stage())})
}

// handleStatus returns the whole run state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.tracker.Snapshot())
}

// handleTableStatus returns one table's state.
func (s *Server) handleTableStatus(w http.ResponseWriter, r *http.Request) {
	table, err := core.ParseTable(chi.URLParam(r, "table"))
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	for _, ts := range s.tracker.Snapshot().Tables {
		if ts.Table == table {
			writeJSON(w, ts)
			return
		}
	}
	s.respondError(w, r, core.ConfigError("table %s not tracked", table), http.StatusNotFound)
}

// handleStatusPage renders the HTML status page.
func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.StatusPage(statusData(s.tracker.Snapshot())).Render(r.Context(), w); err != nil {
		slog.Error("render status page", "error", err)
	}
}

func statusData(st pipeline.Status) templates.StatusData {
	d := templates.StatusData{
		RunID:      st.RunID,
		Stage:      string(st.Stage),
		DryRun:     st.DryRun,
		Resume:     string(st.Resume),
		StartedAt:  st.StartedAt,
		FinishedAt: st.FinishedAt,
		Error:      st.Error,
		Tables:     make([]templates.TableRow, len(st.Tables)),
	}
	for i, t := range st.Tables {
		d.Tables[i] = templates.TableRow{
			Table:      string(t.Table),
			InWindow:   t.InWindow,
			Percent:    t.Percent,
			Rows:       t.Rows,
			Rejected:   t.Rejected,
			Chunks:     t.Chunks,
			ChunksDone: t.ChunksDone,
			Loaded:     t.Loaded,
			Error:      t.Error,
		}
	}
	return d
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
