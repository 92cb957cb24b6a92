// Package api exposes the HTTP interface for the logo service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finbrand/logo-crawler/internal/config"
	"github.com/finbrand/logo-crawler/internal/dispatcher"
	"github.com/finbrand/logo-crawler/internal/logo"
	"github.com/finbrand/logo-crawler/internal/metrics"
	"github.com/finbrand/logo-crawler/internal/recorder"
)

// Acquirer runs the acquisition pipeline; satisfied by the orchestrator.
type Acquirer interface {
	AcquireOne(ctx context.Context, target logo.Target) logo.Result
	Persist(ctx context.Context, hash string, source logo.Source, renditions map[string][]byte) ([]logo.Artifact, error)
}

// Directory provides logo lookups and soft deletion; satisfied by the
// metadata recorder.
type Directory interface {
	MasterHash(ctx context.Context, infomaxCode string) (string, error)
	Logo(ctx context.Context, logoHash string) (recorder.LogoRecord, error)
	Artifacts(ctx context.Context, logoID int64) ([]logo.Artifact, error)
	SoftDelete(ctx context.Context, logoHash string) error
}

// Server wires HTTP handlers to the pipeline and stores.
type Server struct {
	router     chi.Router
	acquirer   Acquirer
	directory  Directory
	converter  logo.Converter
	jobs       logo.JobStore
	dispatcher *dispatcher.Dispatcher
	idGen      logo.IDGenerator
	clock      logo.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	acquirer Acquirer,
	directory Directory,
	converter logo.Converter,
	jobs logo.JobStore,
	d *dispatcher.Dispatcher,
	idGen logo.IDGenerator,
	clock logo.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		acquirer:   acquirer,
		directory:  directory,
		converter:  converter,
		jobs:       jobs,
		dispatcher: d,
		idGen:      idGen,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(s.apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/logos", func(r chi.Router) {
			r.Post("/acquire", s.acquireLogo)
			r.Post("/batch", s.submitBatch)
			r.Route("/{infomax_code}", func(r chi.Router) {
				r.Get("/", s.getLogo)
				r.Post("/upload", s.uploadLogo)
				r.Delete("/", s.deleteLogo)
			})
		})
		r.Get("/jobs/{job_id}", s.getJob)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// Downstream stores are fail-open; readiness mirrors liveness for now.
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func (s *Server) apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				s.writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
