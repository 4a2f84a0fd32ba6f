// Package api exposes the HTTP interface for the verification service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prm-gestao/projudi-verifier/internal/config"
	"github.com/prm-gestao/projudi-verifier/internal/metrics"
	"github.com/prm-gestao/projudi-verifier/internal/verify"
)

// Server wires HTTP handlers to the stores.
type Server struct {
	router  chi.Router
	jobs    verify.JobStore
	records verify.RecordStore
	logs    verify.LogStore
	creds   verify.CredentialStore
	maint   verify.Maintenance
	idGen   verify.IDGenerator
	clock   verify.Clock
	cfg     config.Config
	logger  *zap.Logger
	ready   func(context.Context) error
}

// NewServer constructs a Server with middleware and routes. The ready probe
// may be nil, in which case /readyz always reports ready.
func NewServer(
	jobs verify.JobStore,
	records verify.RecordStore,
	logs verify.LogStore,
	creds verify.CredentialStore,
	maint verify.Maintenance,
	idGen verify.IDGenerator,
	clock verify.Clock,
	cfg config.Config,
	logger *zap.Logger,
	ready func(context.Context) error,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobs:    jobs,
		records: records,
		logs:    logs,
		creds:   creds,
		maint:   maint,
		idGen:   idGen,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
		ready:   ready,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/batches", func(r chi.Router) {
			r.Post("/", s.submitBatch)
			r.Get("/", s.listBatches)
			r.Route("/{batch_id}", func(r chi.Router) {
				r.Get("/", s.getBatch)
				r.Get("/records", s.batchRecords)
				r.Get("/logs", s.batchLogs)
				r.Post("/finalize", s.finalizeBatch)
			})
		})
		r.Get("/records/recent", s.recentRecords)
		r.Get("/logs/recent", s.recentLogs)
		r.Route("/admin", func(r chi.Router) {
			r.Post("/finalize-all", s.finalizeAll)
			r.Post("/reset", s.resetStore)
			r.Post("/credentials", s.saveCredential)
			r.Get("/credentials", s.listCredentials)
			r.Put("/settings/{key}", s.putSetting)
			r.Get("/settings/{key}", s.getSetting)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// limitParam parses ?limit with a default and a hard ceiling.
func limitParam(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > 1000 {
		return 1000
	}
	return n
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func hostname() string {
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "api"
}
