// Package api serves the local status surface: job listing and tracking,
// results, live updates over SSE and WebSocket, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/bowlsense/internal/adapters/http/swagger"
	"github.com/okian/bowlsense/internal/domain/model"
	"github.com/okian/bowlsense/pkg/logger"
)

// HTTP server timeout constants. No write timeout: streams stay open.
const (
	readTimeout       = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	Track(ctx context.Context, kind model.Kind, id string) (model.Job, error)
	Job(ctx context.Context, id string) (model.Job, error)
	Jobs(ctx context.Context) []model.Job
	Cancel(ctx context.Context, id string) (model.Job, error)
	Result(ctx context.Context, id string) (model.Analysis, error)
	MultiResult(ctx context.Context, id string) (model.MultiAnalysis, error)
	Subscribe(id string) (<-chan model.Job, func())
}

// Server wires HTTP routes for the status API.
type Server struct {
	health *HealthHandler
	jobs   *JobsHandler
	stream *StreamHandler
	hub    *Hub

	logger logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	cfg := options{logger: logger.Nop(), heartbeat: defaultHeartbeat}
	for _, opt := range opts {
		opt(&cfg)
	}
	hub := NewHub(deps, cfg.logger)
	return &Server{
		health: NewHealthHandler(),
		jobs:   NewJobsHandler(deps),
		stream: NewStreamHandler(deps, hub, cfg.heartbeat, cfg.logger),
		hub:    hub,
		logger: cfg.logger,
	}
}

// Hub returns the broadcaster behind the stream routes.
func (s *Server) Hub() *Hub { return s.hub }

// Routes returns the router with every status route attached.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.health.HandleHealth)
	swagger.Register(r)
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.jobs.HandleList)
		r.Post("/", s.jobs.HandleTrack)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.jobs.HandleGet)
			r.Delete("/", s.jobs.HandleCancel)
			r.Get("/result", s.jobs.HandleResult)
			r.Get("/events", s.stream.HandleEvents)
			r.Get("/ws", s.stream.HandleWebSocket)
		})
	})
	return r
}

// Serve runs the hub and the HTTP server on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return hubCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "starting status server", logger.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("%w: %w", ErrServe, err)
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "shutting down status server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%w: shutdown: %w", ErrServe, err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%w: %w", ErrServe, err)
	}
	return nil
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
