// Package chi is the HTTP surface of the linkage service: mechanical glue
// between JSON requests and the usecases.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vitalregistry/linkage/internal/domain"
	bulkjobuc "github.com/vitalregistry/linkage/internal/usecase/bulkjob"
	healthuc "github.com/vitalregistry/linkage/internal/usecase/health"
	matchuc "github.com/vitalregistry/linkage/internal/usecase/match"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the linkage usecases over HTTP.
type Server struct {
	match         *matchuc.Service
	jobs          *bulkjobuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	match *matchuc.Service,
	jobs *bulkjobuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{match: match, jobs: jobs, health: health, logger: logger}
	s.errorHandlers = []errorHandler{
		validationHandler,
		sentinelHandler(domain.ErrConflict, http.StatusConflict, "conflict"),
		sentinelHandler(domain.ErrAdmission, http.StatusTooManyRequests, "too_many_jobs"),
		sentinelHandler(domain.ErrJobNotFound, http.StatusNotFound, "job_not_found"),
		sentinelHandler(domain.ErrAlreadyCancelled, http.StatusConflict, "already_cancelled"),
		sentinelHandler(domain.ErrResultNotReady, http.StatusConflict, "result_not_ready"),
		sentinelHandler(domain.ErrUpstream, http.StatusBadGateway, "index_unavailable"),
		sentinelHandler(domain.ErrPipeline, http.StatusInternalServerError, "pipeline_failure"),
	}
	return s
}

// Routes registers every endpoint on the router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/api/v1/search", s.Search)
	r.Post("/api/v1/search/aggregate", s.Aggregate)

	r.Route("/api/v1/bulk", func(r chi.Router) {
		r.Post("/", s.SubmitBulk)
		r.Get("/{jobID}", s.JobStatus)
		r.Get("/{jobID}/result", s.JobResult)
		r.Delete("/{jobID}", s.CancelJob)
	})

	r.Get("/healthz", s.Liveness)
	r.Get("/readyz", s.Readiness)
	r.Get("/metrics", s.Metrics)
}

// Liveness handles GET /healthz.
func (s *Server) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness handles GET /readyz.
func (s *Server) Readiness(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

type errorResponse struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Problems []problemEntry `json:"problems,omitempty"`
}

type problemEntry struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrConflict,
		domain.ErrAdmission,
		domain.ErrJobNotFound,
		domain.ErrAlreadyCancelled,
		domain.ErrResultNotReady,
		domain.ErrUpstream,
		domain.ErrPipeline,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// validationHandler reports every collected criterion problem in one response.
func validationHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrValidation) {
		return false
	}
	resp := errorResponse{Code: "validation_failed", Message: msg}
	var verrs *domain.ValidationErrors
	if errors.As(err, &verrs) {
		for _, p := range verrs.Problems {
			resp.Problems = append(resp.Problems, problemEntry{Field: p.Field, Reason: p.Reason})
		}
	}
	writeJSON(w, http.StatusBadRequest, resp)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
