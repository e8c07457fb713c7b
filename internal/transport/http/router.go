package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"foodpulse/internal/config"
	apperrors "foodpulse/internal/errors"
	"foodpulse/internal/infrastructure"
	"foodpulse/internal/middleware"
)

// RouterOptions collects what NewRouter wires together
type RouterOptions struct {
	Server    config.ServerConfig
	Telemetry *infrastructure.Telemetry
	Logger    *slog.Logger

	Analytics AnalyticsService
	Pipeline  PipelineService
	Health    HealthService

	// PipelineStream serves /ws/pipeline, the websocket feed of run progress
	PipelineStream http.Handler

	// IncludeStack adds stack traces to 5xx problem details
	IncludeStack bool
}

// NewRouter builds the HTTP API
func NewRouter(opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	errorHandler := apperrors.NewErrorHandler(logger, opts.IncludeStack)
	validator := middleware.NewValidator()

	r := chi.NewRouter()
	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	r.Use(middleware.RequestID)
	r.Use(middleware.NewOTel(opts.Telemetry).Handler)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(apperrors.RecoveryMiddleware(errorHandler))
	r.Use(middleware.SecurityHeaders)

	metrics := promhttp.Handler()
	if opts.Telemetry != nil && opts.Telemetry.MetricsHandler != nil {
		metrics = opts.Telemetry.MetricsHandler
	}
	r.Handle("/metrics", metrics)

	if opts.PipelineStream != nil {
		r.Handle("/ws/pipeline", opts.PipelineStream)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		if opts.Server.RateLimit.Enabled {
			r.Use(middleware.NewRateLimiter(opts.Server.RateLimit.RPS, opts.Server.RateLimit.Burst, errorHandler, logger).Handler)
		}

		if opts.Health != nil {
			r.Get("/health", NewHealthHandler(opts.Health, logger).HealthCheck)
		}

		if opts.Analytics != nil {
			r.Group(func(r chi.Router) {
				if opts.Server.ReadTimeout > 0 {
					r.Use(chimiddleware.Timeout(opts.Server.ReadTimeout))
				}
				NewAnalyticsHandler(opts.Analytics, validator, logger, errorHandler).Routes(r)
			})
		}

		if opts.Pipeline != nil {
			r.Mount("/pipeline", NewPipelineHandler(opts.Pipeline, validator, logger, errorHandler).Routes())
		}
	})

	return r
}
