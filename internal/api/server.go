// Package api exposes the HTTP interface for the batch monitor service.
// Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/batches to submit a batch job for monitoring.
//   - GET /v1/batches and /v1/batches/{batch_id} for job inspection.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/batchops/batchwatch/internal/batch"
	"github.com/batchops/batchwatch/internal/config"
	"github.com/batchops/batchwatch/internal/monitor"
)

const submitTimeout = 30 * time.Second

// JobDirectory is the read side of the monitored-job registry.
type JobDirectory interface {
	List() []batch.MonitoredJob
	Get(id batch.JobID) (batch.MonitoredJob, bool)
}

// Server wires HTTP handlers to the monitor and job registry.
type Server struct {
	router   chi.Router
	submit   monitor.SubmitFunc
	jobs     JobDirectory
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	cfg      config.Config
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	submit monitor.SubmitFunc,
	jobs JobDirectory,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
	cfg config.Config,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		submit:   submit,
		jobs:     jobs,
		gatherer: gatherer,
		logger:   logger,
		cfg:      cfg,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", s.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/batches", func(r chi.Router) {
			r.Post("/", s.submitBatch)
			r.Get("/", s.listBatches)
			r.Get("/{batch_id}", s.getBatch)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.submit == nil || s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "monitor not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) metricsHandler() http.Handler {
	if s.gatherer == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusServiceUnavailable, "metrics unavailable")
		})
	}
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
}

type submitBatchRequest struct {
	InputFile string `json:"input_file"`
}

func (s *Server) submitBatch(w http.ResponseWriter, r *http.Request) {
	var req submitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InputFile == "" {
		writeError(w, http.StatusBadRequest, "input_file required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), submitTimeout)
	defer cancel()

	id, err := s.submit(ctx, req.InputFile)
	if err != nil {
		status := http.StatusBadGateway
		var transient *batch.TransientError
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		case errors.As(err, &transient):
			status = http.StatusServiceUnavailable
		}
		s.logger.Error("batch submission failed", zap.String("input_file", req.InputFile), zap.Error(err))
		writeError(w, status, "batch submission failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"batch_id": string(id)})
}

type batchDTO struct {
	ID          string    `json:"id"`
	Description string    `json:"description,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func (s *Server) listBatches(w http.ResponseWriter, _ *http.Request) {
	jobs := s.jobs.List()
	dtos := make([]batchDTO, 0, len(jobs))
	for _, j := range jobs {
		dtos = append(dtos, toBatchDTO(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": dtos})
}

func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	id := batch.JobID(chi.URLParam(r, "batch_id"))
	job, ok := s.jobs.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "batch not monitored")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch": toBatchDTO(job)})
}

func toBatchDTO(j batch.MonitoredJob) batchDTO {
	return batchDTO{
		ID:          string(j.ID),
		Description: j.Description,
		SubmittedAt: j.SubmittedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are already out; nothing left to do but note it.
		zap.L().Warn("encode response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the request ID stored by requestIDMiddleware, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
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
				zap.String("request_id", RequestID(r.Context())),
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

func apiKeyMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid API key")
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

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}
