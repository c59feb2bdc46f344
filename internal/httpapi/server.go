// Package httpapi exposes a read-only introspection surface over a
// running (or completed) simulation (spec §6): sim_info, table queries
// against the recorder's backends, and a Stop endpoint. Grounded on the
// teacher's chi + cors router setup (internal/server/server.go).
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SimInfo is the static description of the running simulation (spec
// §4.1).
type SimInfo struct {
	SimID    uuid.UUID `json:"sim_id"`
	Duration int       `json:"duration"`
	DT       int       `json:"dt"`
}

// Kernel is the narrow surface the HTTP API needs from the running
// simulation, kept as an interface so httpapi does not import
// internal/context or internal/scheduler directly.
type Kernel interface {
	Info() SimInfo
	Now() int
	Query(table string) ([]map[string]interface{}, error)
	Stop()
}

// Server wraps a chi.Mux serving the introspection routes.
type Server struct {
	router *chi.Mux
	kernel Kernel
	log    zerolog.Logger
	http   *http.Server
}

// Config configures the listening address and dev-mode toggles.
type Config struct {
	Addr    string
	DevMode bool
}

// New builds a Server bound to kernel.
func New(cfg Config, kernel Kernel, log zerolog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		kernel: kernel,
		log:    log.With().Str("component", "httpapi").Logger(),
	}
	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/info", s.handleInfo)
		r.Get("/tables/{table}", s.handleTable)
		r.Post("/stop", s.handleStop)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   s.kernel.Now(),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.kernel.Info())
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	rows, err := s.kernel.Query(table)
	if err != nil {
		s.log.Warn().Err(err).Str("table", table).Msg("table query failed")
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.kernel.Stop()
	s.log.Info().Msg("stop requested via http api")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(w, `{"error":"encode failed"}`)
	}
}

// ListenAndServe blocks serving the introspection API until the
// process is terminated or Close is called.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Close shuts the HTTP server down.
func (s *Server) Close() error {
	return s.http.Close()
}
