package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"foodpulse/internal/infrastructure"
	"foodpulse/internal/pipeline"
)

// HealthService provides health check functionality
type HealthService struct {
	version   string
	dataDir   string
	analytics *AnalyticsService
	pipeline  *pipeline.Manager
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]any           `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
	Dataset   *DatasetStatus           `json:"dataset,omitempty"`
	LastRun   *pipeline.RunResponse    `json:"last_run,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewHealthService creates a health service. analytics and manager may be nil.
func NewHealthService(version, dataDir string, analytics *AnalyticsService, manager *pipeline.Manager, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &HealthService{
		version:   version,
		dataDir:   dataDir,
		analytics: analytics,
		pipeline:  manager,
		startTime: time.Now(),
		logger:    infrastructure.WithComponent(logger, "health_service"),
	}
}

// HealthCheck returns overall health. The service is "ok" once a dataset is
// loaded and "degraded" before.
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]any{
			"uptime_seconds": time.Since(hs.startTime).Seconds(),
			"go_version":     runtime.Version(),
			"goroutines":     runtime.NumGoroutine(),
		},
		Services: map[string]ServiceHealth{
			"dataset":  hs.checkDataset(),
			"pipeline": hs.checkPipeline(),
			"data_dir": hs.checkDataDir(),
		},
	}

	if hs.analytics != nil {
		ds := hs.analytics.Status()
		status.Dataset = &ds
	}
	if hs.pipeline != nil {
		if last := hs.pipeline.LastRun(); last != nil {
			status.LastRun = last.Response()
		}
	}

	for _, s := range status.Services {
		if s.Status != "ready" {
			status.Status = "degraded"
			break
		}
	}

	hs.logger.DebugContext(ctx, "health check",
		slog.String("status", status.Status))
	return status
}

func (hs *HealthService) checkDataset() ServiceHealth {
	if hs.analytics == nil || !hs.analytics.Status().Loaded {
		return ServiceHealth{Status: "not_ready", Message: "analytics dataset not loaded"}
	}
	return ServiceHealth{Status: "ready"}
}

func (hs *HealthService) checkPipeline() ServiceHealth {
	switch {
	case hs.pipeline == nil:
		return ServiceHealth{Status: "not_ready", Message: "pipeline not configured"}
	case hs.pipeline.Running():
		return ServiceHealth{Status: "ready", Message: "run in progress"}
	default:
		return ServiceHealth{Status: "ready"}
	}
}

func (hs *HealthService) checkDataDir() ServiceHealth {
	info, err := os.Stat(hs.dataDir)
	if err != nil {
		return ServiceHealth{Status: "not_ready", Message: fmt.Sprintf("data directory: %v", err)}
	}
	if !info.IsDir() {
		return ServiceHealth{Status: "not_ready", Message: hs.dataDir + " is not a directory"}
	}
	return ServiceHealth{Status: "ready"}
}
