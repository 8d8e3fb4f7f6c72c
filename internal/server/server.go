package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lazypower/homeostat/internal/checkpoint"
	"github.com/lazypower/homeostat/internal/engine"
	"github.com/lazypower/homeostat/internal/executive"
	"github.com/lazypower/homeostat/internal/regulator"
	"github.com/lazypower/homeostat/internal/store"
)

// maxBody bounds request bodies.
const maxBody = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// Server is the homeostat HTTP API server.
type Server struct {
	engine      *engine.Engine
	regulator   *regulator.Regulator
	filter      *executive.Filter
	checkpoints *checkpoint.Manager
	ledger      *store.DB
	metrics     *prometheus.Registry
	now         func() time.Time

	router  chi.Router
	version string
	started time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithRegulator sets the regulator used by perceive and consolidate.
func WithRegulator(r *regulator.Regulator) Option { return func(s *Server) { s.regulator = r } }

// WithFilter sets the executive filter used by refine.
func WithFilter(f *executive.Filter) Option { return func(s *Server) { s.filter = f } }

// WithCheckpoints enables the checkpoint routes.
func WithCheckpoints(m *checkpoint.Manager) Option { return func(s *Server) { s.checkpoints = m } }

// WithLedger serves the journal from the ledger instead of the state file.
func WithLedger(db *store.DB) Option { return func(s *Server) { s.ledger = db } }

// WithMetrics exposes reg on /metrics.
func WithMetrics(reg *prometheus.Registry) Option { return func(s *Server) { s.metrics = reg } }

// WithClock sets the clock used for ticks.
func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// New creates a Server around eng. Without WithRegulator, perceive holds
// homeostasis and consolidate sleeps without reflection.
func New(eng *engine.Engine, version string, opts ...Option) *Server {
	s := &Server{
		engine:  eng,
		now:     time.Now,
		version: version,
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.regulator == nil {
		s.regulator = &regulator.Regulator{Engine: eng, Now: s.now}
	}
	if s.filter == nil {
		s.filter = executive.New(nil, executive.DefaultThreshold)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/manifest", s.handleManifest)
		r.Get("/state", s.handleState)
		r.Post("/tick", s.handleTick)

		r.Post("/stimulate", s.handleStimulate)
		r.Post("/visual", s.handleVisual)
		r.Post("/interventions", s.handleIntervene)
		r.Post("/deltas", s.handleDeltas)

		r.Post("/skills/{skill}/use", s.handleUseSkill)
		r.Post("/resources/{class}/use", s.handleUseResource)

		r.Post("/consolidate", s.handleConsolidate)
		r.Post("/perceive", s.handlePerceive)
		r.Post("/refine", s.handleRefine)
		r.Get("/journal", s.handleJournal)

		r.Get("/checkpoints", s.handleListCheckpoints)
		r.Post("/checkpoints", s.handleSaveCheckpoint)
	})

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	}

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ledgerOK := false
	if s.ledger != nil {
		ledgerOK = s.ledger.Ping() == nil
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     s.version,
		"uptime":      time.Since(s.started).Seconds(),
		"ledger":      ledgerOK,
		"checkpoints": s.checkpoints != nil,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decode reads a JSON body into dst and validates it. An empty body is
// allowed when allowEmpty is set. It writes the error response itself and
// reports whether the handler should continue.
func decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(dst)
	switch {
	case errors.Is(err, io.EOF) && allowEmpty:
	case err != nil:
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}
