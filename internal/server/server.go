// Package server exposes the search engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rankfuse/rankfuse/internal/async"
	ferrors "github.com/rankfuse/rankfuse/internal/errors"
	"github.com/rankfuse/rankfuse/internal/ireval"
	"github.com/rankfuse/rankfuse/internal/search"
	"github.com/rankfuse/rankfuse/internal/store"
	"github.com/rankfuse/rankfuse/internal/telemetry"
)

// Engine is the slice of the orchestrator the HTTP layer depends on.
type Engine interface {
	Search(ctx context.Context, query string, opts search.SearchOptions) (*search.SearchResponse, error)
	CompareMethods(ctx context.Context, query string, limit int) (*search.CompareResponse, error)
	Evaluate(ctx context.Context, query string, judgments ireval.Judgments) (*ireval.Metrics, error)
}

// JobStore is the slice of the document store the job endpoints need.
type JobStore interface {
	GetSparseJob(ctx context.Context, id string) (*store.SparseJob, error)
	ListSparseJobs(ctx context.Context, limit int) ([]*store.SparseJob, error)
}

// Server wires the engine and the sparse job runner into a chi router.
type Server struct {
	engine Engine
	jobs   JobStore
	runner *async.Runner // optional
}

// New creates the HTTP server. The runner may be nil when batch sparse
// generation is not exposed.
func New(engine Engine, jobs JobStore, runner *async.Runner) *Server {
	return &Server{engine: engine, jobs: jobs, runner: runner}
}

// Router builds the chi router with logging and metrics middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(telemetry.Middleware())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/compare", s.handleCompare)
		r.Post("/evaluate", s.handleEvaluate)
		r.Post("/jobs/sparse", s.handleStartSparseJob)
		r.Get("/jobs/sparse/{id}", s.handleGetSparseJob)
	})

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

type searchRequest struct {
	Query             string          `json:"query"`
	Limit             int             `json:"limit"`
	Offset            int             `json:"offset"`
	EnableReranking   bool            `json:"enable_reranking"`
	AdaptiveWeighting bool            `json:"adaptive_weighting"`
	Weights           *search.Weights `json:"weights,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ferrors.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}

	resp, err := s.engine.Search(r.Context(), req.Query, search.SearchOptions{
		Limit:             req.Limit,
		Offset:            req.Offset,
		EnableReranking:   req.EnableReranking,
		AdaptiveWeighting: req.AdaptiveWeighting,
		Weights:           req.Weights,
	})
	if err != nil {
		s.handleEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type compareRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ferrors.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}

	resp, err := s.engine.CompareMethods(r.Context(), req.Query, req.Limit)
	if err != nil {
		s.handleEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type evaluateRequest struct {
	Query     string         `json:"query"`
	Judgments map[string]int `json:"judgments"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ferrors.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if len(req.Judgments) == 0 {
		writeError(w, http.StatusBadRequest, ferrors.ErrCodeInvalidInput, "judgments are required")
		return
	}

	judgments := make(ireval.Judgments, len(req.Judgments))
	for id, grade := range req.Judgments {
		if grade < 0 || grade > 3 {
			writeError(w, http.StatusBadRequest, ferrors.ErrCodeInvalidInput, "judgment grades must be 0..3")
			return
		}
		judgments[id] = float64(grade)
	}

	metrics, err := s.engine.Evaluate(r.Context(), req.Query, judgments)
	if err != nil {
		s.handleEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) handleStartSparseJob(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusNotImplemented, ferrors.ErrCodeModelUnavailable, "sparse generation is not configured")
		return
	}

	// Detach from the request context: the job outlives the request.
	jobID, err := s.runner.Start(context.WithoutCancel(r.Context()))
	if err != nil {
		if ferrors.GetCode(err) == ferrors.ErrCodeModelUnavailable {
			writeError(w, http.StatusServiceUnavailable, ferrors.ErrCodeModelUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusConflict, ferrors.ErrCodeInvalidInput, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

type jobResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Model     string `json:"model"`
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleGetSparseJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := s.jobs.GetSparseJob(r.Context(), id)
	if err != nil {
		var notFound store.ErrNotFound
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, ferrors.ErrCodeInvalidInput, "job not found")
			return
		}
		s.handleEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, jobResponse{
		ID:        job.ID,
		Status:    string(job.Status),
		Model:     job.Model,
		Total:     job.Total,
		Processed: job.Processed,
		Failed:    job.Failed,
		Error:     job.Error,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEngineError maps the error taxonomy onto HTTP statuses.
func (s *Server) handleEngineError(w http.ResponseWriter, err error) {
	code := ferrors.GetCode(err)

	var status int
	switch ferrors.GetCategory(err) {
	case ferrors.CategoryValidation:
		status = http.StatusBadRequest
	case ferrors.CategoryRetrieval:
		status = http.StatusServiceUnavailable
	case ferrors.CategoryStorage:
		status = http.StatusInternalServerError
	default:
		switch code {
		case ferrors.ErrCodeAllRetrieversFailed, ferrors.ErrCodeModelUnavailable:
			status = http.StatusServiceUnavailable
		default:
			status = http.StatusInternalServerError
		}
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", slog.String("code", code), slog.String("error", err.Error()))
	}

	writeError(w, status, code, err.Error())
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
