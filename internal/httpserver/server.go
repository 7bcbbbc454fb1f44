// Package httpserver is the master-side HTTP adapter: it translates the
// three coordination verbs (ping, state, script) and the shutdown trigger
// into calls against the core actors, and is otherwise deliberately thin —
// the wire contract is external glue, not core logic.
package httpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// scriptTimeout bounds PUT /script per spec.md §6: a blocking call with a
// 60s ceiling so a wedged subprocess cannot hang the HTTP server forever.
const scriptTimeout = 60 * time.Second

// pingTimeout bounds PUT /ping's internal processing; the keepalive client
// already enforces its own 1s send timeout, this is the server-side mirror.
const pingTimeout = 5 * time.Second

// Deps are the core operations the HTTP surface dispatches into. All of them
// are satisfied by the sequence actor, the state key, the callback/script
// driver, and the supervisor, respectively.
type Deps struct {
	// OnPing accepts a raw pod-record JSON body from PUT /ping.
	OnPing func(ctx context.Context, body []byte) error
	// GetState returns the current opaque state-key contents for GET /state.
	GetState func(ctx context.Context) (string, error)
	// RunScript executes a one-shot script body from PUT /script and returns
	// its captured stdout.
	RunScript func(ctx context.Context, body []byte) (string, error)
	// Shutdown tears down every running actor for POST /down.
	Shutdown func(ctx context.Context) error
}

// Server is the master's coordination HTTP server.
type Server struct {
	Router *chi.Mux
	deps   Deps
	logger *slog.Logger
}

// NewServer builds the router with health/metrics endpoints plus the four
// coordination routes from spec.md §6.
func NewServer(deps Deps, logger *slog.Logger, reg *prometheus.Registry) *Server {
	s := &Server{Router: chi.NewRouter(), deps: deps, logger: logger}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.Router.Put("/ping", s.handlePing)
	s.Router.Get("/state", s.handleState)
	s.Router.Put("/script", s.handleScript)
	s.Router.Post("/down", s.handleDown)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePing implements PUT /ping: body = pod record JSON, 200 on accept,
// 500 on internal error (spec.md §6).
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		RespondError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	if err := s.deps.OnPing(ctx, body); err != nil {
		s.logger.Error("ping rejected", "error", err)
		RespondError(w, http.StatusInternalServerError, err)
		return
	}
	Respond(w, http.StatusOK, nil)
}

// handleState implements GET /state: 200 with the opaque state-key
// contents, which may be empty if no callback has run yet.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := s.deps.GetState(r.Context())
	if err != nil {
		RespondError(w, http.StatusInternalServerError, err)
		return
	}
	RespondText(w, http.StatusOK, state)
}

// handleScript implements PUT /script: body {cmd, ...}, blocking up to
// scriptTimeout, 200 with stdout on success, 500 on failure.
func (s *Server) handleScript(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		RespondError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), scriptTimeout)
	defer cancel()

	stdout, err := s.deps.RunScript(ctx, body)
	if err != nil {
		s.logger.Error("script invocation failed", "error", err)
		RespondError(w, http.StatusInternalServerError, err)
		return
	}
	RespondText(w, http.StatusOK, stdout)
}

// handleDown implements POST /down: shuts down every actor, 200 once done.
func (s *Server) handleDown(w http.ResponseWriter, r *http.Request) {
	if s.deps.Shutdown == nil {
		RespondError(w, http.StatusInternalServerError, errors.New("shutdown not wired"))
		return
	}
	if err := s.deps.Shutdown(r.Context()); err != nil {
		RespondError(w, http.StatusInternalServerError, err)
		return
	}
	Respond(w, http.StatusOK, nil)
}
