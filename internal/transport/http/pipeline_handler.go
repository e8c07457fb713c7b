package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "foodpulse/internal/errors"
	"foodpulse/internal/infrastructure"
	"foodpulse/internal/middleware"
	"foodpulse/internal/pipeline"
)

const defaultJobsLimit = 50

// runRequest is the body of POST /api/pipeline/run. An empty body runs
// every stage.
type runRequest struct {
	Stages []string `json:"stages" validate:"omitempty,max=20,dive,required"`
}

// PipelineHandler starts pipeline runs and reports their jobs
type PipelineHandler struct {
	service      PipelineService
	validator    *middleware.Validator
	params       queryParser
	logger       *slog.Logger
	errorHandler *apperrors.ErrorHandler
}

// NewPipelineHandler creates a pipeline handler
func NewPipelineHandler(service PipelineService, validator *middleware.Validator, logger *slog.Logger, errorHandler *apperrors.ErrorHandler) *PipelineHandler {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	if validator == nil {
		validator = middleware.NewValidator()
	}
	return &PipelineHandler{
		service:      service,
		validator:    validator,
		params:       queryParser{validator: validator},
		logger:       logger.With(slog.String("component", "pipeline_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the pipeline routes
func (h *PipelineHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(middleware.ContentTypeValidator(h.errorHandler, "application/json")).Post("/run", h.Run)
	r.Get("/jobs", h.ListJobs)
	r.Get("/jobs/{id}", h.GetJob)
	r.Get("/stages", h.ListStages)

	return r
}

// Run handles POST /api/pipeline/run
func (h *PipelineHandler) Run(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil && !errors.Is(err, io.EOF) {
		h.errorHandler.HandleError(w, r, apperrors.NewWithDetails(
			http.StatusBadRequest, "INVALID_REQUEST", "Request body is not valid JSON", err.Error()))
		return
	}
	if err := h.validator.ValidateStruct(body); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	job, err := h.service.Submit(r.Context(), pipeline.RunRequest{Stages: body.Stages})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "pipeline run queued",
		slog.String("job_id", job.ID),
		slog.Any("stages", body.Stages),
		slog.String("request_id", middleware.GetRequestID(r.Context())))

	w.Header().Set("Location", "/api/pipeline/jobs/"+job.ID)
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]any{
		"status": "accepted",
		"data":   job,
	})
}

// ListJobs handles GET /api/pipeline/jobs
func (h *PipelineHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	q, err := h.params.jobs(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	limit := defaultJobsLimit
	if q.Limit != nil {
		limit = *q.Limit
	}

	jobs, err := h.service.Jobs(r.Context(), limit)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{
		"status": "success",
		"data":   jobs,
		"count":  len(jobs),
	})
}

// GetJob handles GET /api/pipeline/jobs/{id}
func (h *PipelineHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Job(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{
		"status": "success",
		"data":   job,
	})
}

// ListStages handles GET /api/pipeline/stages
func (h *PipelineHandler) ListStages(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"status": "success",
		"data":   h.service.Stages(),
	})
}
