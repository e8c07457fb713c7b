package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "foodpulse/internal/errors"
	"foodpulse/internal/explain"
	"foodpulse/internal/forecast"
	"foodpulse/internal/infrastructure"
	"foodpulse/internal/middleware"
	"foodpulse/internal/segmentation"
)

// AnalyticsHandler serves the dashboard views over the loaded dataset
type AnalyticsHandler struct {
	service      AnalyticsService
	params       queryParser
	logger       *slog.Logger
	errorHandler *apperrors.ErrorHandler
}

// NewAnalyticsHandler creates an analytics handler
func NewAnalyticsHandler(service AnalyticsService, validator *middleware.Validator, logger *slog.Logger, errorHandler *apperrors.ErrorHandler) *AnalyticsHandler {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	if validator == nil {
		validator = middleware.NewValidator()
	}
	return &AnalyticsHandler{
		service:      service,
		params:       queryParser{validator: validator},
		logger:       logger.With(slog.String("component", "analytics_handler")),
		errorHandler: errorHandler,
	}
}

// Routes mounts the read-only analytics routes
func (h *AnalyticsHandler) Routes(r chi.Router) {
	r.Get("/dataset", h.GetDataset)
	r.Get("/filters", h.GetFilters)
	r.Get("/summary", h.GetSummary)
	r.Get("/forecast", h.GetForecast)
	r.Get("/segments", h.GetSegments)
	r.Get("/explain", h.GetExplain)
}

// GetDataset handles GET /api/dataset
func (h *AnalyticsHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"status": "success",
		"data":   h.service.Status(),
	})
}

// GetFilters handles GET /api/filters
func (h *AnalyticsHandler) GetFilters(w http.ResponseWriter, r *http.Request) {
	opts, err := h.service.FilterOptions(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{
		"status": "success",
		"data":   opts,
	})
}

// GetSummary handles GET /api/summary
func (h *AnalyticsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	q, err := h.params.filter(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	summary, err := h.service.Summary(r.Context(), q.filter())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{
		"status": "success",
		"data":   summary,
	})
}

// forecastRow renders a forecast date without a time of day
type forecastRow struct {
	forecast.Row
	Date string `json:"ds"`
}

// GetForecast handles GET /api/forecast
func (h *AnalyticsHandler) GetForecast(w http.ResponseWriter, r *http.Request) {
	q, err := h.params.forecast(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	result, err := h.service.Forecast(r.Context(), q.filter(), q.Periods)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	rows := make([]forecastRow, len(result.Rows))
	for i, row := range result.Rows {
		rows[i] = forecastRow{Row: row, Date: row.Date.Format("2006-01-02")}
	}
	h.logger.DebugContext(r.Context(), "forecast served",
		slog.Int("history", len(result.History())),
		slog.Int("future", len(result.Future())))

	render.JSON(w, r, map[string]any{
		"status":  "success",
		"data":    rows,
		"history": len(result.History()),
		"periods": len(result.Future()),
	})
}

// GetSegments handles GET /api/segments
func (h *AnalyticsHandler) GetSegments(w http.ResponseWriter, r *http.Request) {
	q, err := h.params.segments(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	result, err := h.service.Segments(r.Context(), q.filter(), q.K)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{
		"status":    "success",
		"data":      result.Users,
		"features":  segmentation.FeatureNames,
		"centroids": result.Centroids,
		"sizes":     result.Sizes(),
		"inertia":   result.Inertia,
	})
}

// GetExplain handles GET /api/explain
func (h *AnalyticsHandler) GetExplain(w http.ResponseWriter, r *http.Request) {
	q, err := h.params.filter(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	attr, err := h.service.Explain(r.Context(), q.filter())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, explainResponse(attr))
}

func explainResponse(attr *explain.Attribution) map[string]any {
	return map[string]any{
		"status":     "success",
		"data":       attr,
		"importance": attr.Importance(),
		"count":      len(attr.Rows),
		"dropped":    attr.Dropped,
	}
}
