// Package api serves the local command surface that UI surfaces
// (popup, dashboard) use to talk to the background collector.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/flowrise/focusync/internal/collector"
	"github.com/flowrise/focusync/internal/log"
	"github.com/flowrise/focusync/internal/recorder"
	"github.com/flowrise/focusync/internal/store"
	"github.com/flowrise/focusync/internal/transport"
)

// Config carries the server tunables.
type Config struct {
	ListenAddr      string
	RateLimitPerMin int
}

// Server exposes the command surface over local HTTP.
type Server struct {
	cfg       Config
	collector *collector.Collector
	recorder  *recorder.Recorder
	store     store.Store
	transport transport.Transport
	logger    zerolog.Logger

	http *http.Server
}

// New assembles the server around its collaborators.
func New(cfg Config, col *collector.Collector, rec *recorder.Recorder, st store.Store, tp transport.Transport) *Server {
	s := &Server{
		cfg:       cfg,
		collector: col,
		recorder:  rec,
		store:     st,
		transport: tp,
		logger:    log.WithComponent("api"),
	}
	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.newRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(s.correlationMiddleware)
	r.Use(s.loggingMiddleware)
	if s.cfg.RateLimitPerMin > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RateLimitPerMin, time.Minute))
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/focus/start", s.handleStart)
		r.Post("/focus/stop", s.handleStop)
		r.Get("/focus/status", s.handleStatus)
		r.Get("/focus/history", s.handleHistory)
		r.Post("/signals", s.handleSignal)
		r.Post("/learnings", s.handleSubmitLearning)
		r.Get("/sync/status", s.handleSyncStatus)
		r.Get("/prefs", s.handleGetPrefs)
		r.Put("/prefs", s.handlePutPrefs)
		r.Post("/transport/reconnect", s.handleReconnect)
	})
	return r
}

// ListenAndServe blocks until the server exits.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("command surface listening")
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
