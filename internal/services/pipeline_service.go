package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "foodpulse/internal/errors"
	"foodpulse/internal/infrastructure"
	"foodpulse/internal/pipeline"
)

// PipelineService queues pipeline runs and publishes their analytics table
type PipelineService struct {
	manager   *pipeline.Manager
	queue     *pipeline.JobQueue
	analytics *AnalyticsService
	logger    *slog.Logger
}

// NewPipelineService wires queue completions into analytics. analytics may be
// nil, in which case finished runs are only recorded.
func NewPipelineService(manager *pipeline.Manager, queue *pipeline.JobQueue, analytics *AnalyticsService, logger *slog.Logger) *PipelineService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	s := &PipelineService{
		manager:   manager,
		queue:     queue,
		analytics: analytics,
		logger:    infrastructure.WithComponent(logger, "pipeline_service"),
	}
	queue.OnComplete = s.publish
	return s
}

// Submit queues a run after checking the requested stages exist
func (s *PipelineService) Submit(ctx context.Context, req pipeline.RunRequest) (*pipeline.Job, error) {
	for _, id := range req.Stages {
		if !s.manager.Registry().Has(id) {
			return nil, apperrors.NewValidationErrors([]apperrors.ValidationError{
				{Field: "stages", Message: fmt.Sprintf("unknown stage %q", id)},
			})
		}
	}

	job, err := s.queue.Enqueue(ctx, req)
	switch {
	case errors.Is(err, pipeline.ErrQueueFull):
		return nil, apperrors.ErrPipelineRunning
	case errors.Is(err, pipeline.ErrJobExists):
		return nil, apperrors.ErrJobExists
	case err != nil:
		return nil, err
	}
	s.logger.InfoContext(ctx, "pipeline run queued",
		slog.String("job_id", job.ID),
		slog.Any("stages", req.Stages))
	return job, nil
}

// Job returns a queued or finished run
func (s *PipelineService) Job(ctx context.Context, id string) (*pipeline.Job, error) {
	job, err := s.queue.GetJob(id)
	if errors.Is(err, pipeline.ErrJobNotFound) {
		return nil, apperrors.ErrJobNotFound
	}
	return job, err
}

// Jobs lists the most recent runs, newest first
func (s *PipelineService) Jobs(ctx context.Context, limit int) ([]*pipeline.Job, error) {
	return s.queue.ListJobs(pipeline.JobFilter{Limit: limit})
}

// Stages lists the registered stage IDs in execution order
func (s *PipelineService) Stages() []string {
	return s.manager.Registry().ListIDs()
}

// publish swaps in the merged table of a run whose merge completed
func (s *PipelineService) publish(ctx context.Context, state *pipeline.State) {
	if s.analytics == nil {
		return
	}
	merge := state.GetStage(pipeline.StageIDMerge)
	if merge == nil || merge.GetStatus() != pipeline.StageStatusCompleted {
		return
	}
	s.analytics.SetTable(ctx, state.Artifacts().Table, "pipeline run "+state.ID)
}
