package http

import (
	"context"

	"foodpulse/internal/explain"
	"foodpulse/internal/forecast"
	"foodpulse/internal/insights"
	"foodpulse/internal/pipeline"
	"foodpulse/internal/segmentation"
	"foodpulse/internal/services"
)

// AnalyticsService is what the analytics handler needs from the service layer
type AnalyticsService interface {
	Status() services.DatasetStatus
	FilterOptions(ctx context.Context) (*services.FilterOptions, error)
	Summary(ctx context.Context, f insights.Filter) (*insights.Summary, error)
	Forecast(ctx context.Context, f insights.Filter, periods *int) (*forecast.Result, error)
	Segments(ctx context.Context, f insights.Filter, k *int) (*segmentation.Result, error)
	Explain(ctx context.Context, f insights.Filter) (*explain.Attribution, error)
}

// PipelineService queues and reports pipeline runs
type PipelineService interface {
	Submit(ctx context.Context, req pipeline.RunRequest) (*pipeline.Job, error)
	Job(ctx context.Context, id string) (*pipeline.Job, error)
	Jobs(ctx context.Context, limit int) ([]*pipeline.Job, error)
	Stages() []string
}

// HealthService reports service health
type HealthService interface {
	HealthCheck(ctx context.Context) services.HealthStatus
}
