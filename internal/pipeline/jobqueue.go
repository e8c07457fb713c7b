package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"foodpulse/internal/infrastructure"
)

// JobStatus represents the status of a queued run
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// ErrQueueFull is returned when no more runs can be queued
var ErrQueueFull = errors.New("job queue is full")

// Job is an asynchronous pipeline run
type Job struct {
	ID          string       `json:"id"`
	Status      JobStatus    `json:"status"`
	Request     RunRequest   `json:"request"`
	TraceID     string       `json:"trace_id,omitempty"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Result      *RunResponse `json:"result,omitempty"`
}

// JobQueue runs queued requests one at a time on the manager
type JobQueue struct {
	jobs     chan *Job
	store    JobStore
	manager  *Manager
	logger   *slog.Logger
	shutdown chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// OnComplete is called with the state of every run that started
	OnComplete func(ctx context.Context, state *State)
}

// NewJobQueue creates a queue holding at most depth waiting jobs
func NewJobQueue(depth int, store JobStore, manager *Manager, logger *slog.Logger) *JobQueue {
	if depth <= 0 {
		depth = 4
	}
	if store == nil {
		store = NewMemoryJobStore()
	}
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &JobQueue{
		jobs:     make(chan *Job, depth),
		store:    store,
		manager:  manager,
		logger:   infrastructure.WithComponent(logger, "jobqueue"),
		shutdown: make(chan struct{}),
	}
}

// Start begins processing jobs until ctx ends or Stop is called
func (q *JobQueue) Start(ctx context.Context) {
	q.logger.Info("starting job queue", slog.Int("capacity", cap(q.jobs)))
	q.wg.Add(1)
	go q.worker(ctx)
}

// Stop waits for the running job to finish, up to timeout
func (q *JobQueue) Stop(timeout time.Duration) error {
	q.stopOnce.Do(func() { close(q.shutdown) })

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("job queue stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for job queue to stop")
	}
}

// Enqueue stores a pending job for req and queues it
func (q *JobQueue) Enqueue(ctx context.Context, req RunRequest) (*Job, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	job := &Job{
		ID:        req.ID,
		Status:    JobStatusPending,
		Request:   req,
		TraceID:   infrastructure.GetTraceID(ctx),
		CreatedAt: time.Now(),
	}
	if err := q.store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	// the worker owns job once it is sent
	accepted := *job
	select {
	case q.jobs <- job:
		q.logger.InfoContext(ctx, "job enqueued", slog.String("job_id", job.ID))
		return &accepted, nil
	default:
		job.Status = JobStatusFailed
		job.Error = ErrQueueFull.Error()
		_ = q.store.UpdateJob(job)
		return nil, ErrQueueFull
	}
}

// GetJob returns a job by ID
func (q *JobQueue) GetJob(id string) (*Job, error) {
	return q.store.GetJob(id)
}

// ListJobs returns jobs matching filter
func (q *JobQueue) ListJobs(filter JobFilter) ([]*Job, error) {
	return q.store.ListJobs(filter)
}

func (q *JobQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.shutdown:
			return
		case job := <-q.jobs:
			q.process(ctx, job)
		}
	}
}

func (q *JobQueue) process(ctx context.Context, job *Job) {
	if job.TraceID != "" {
		ctx = infrastructure.WithTraceID(ctx, job.TraceID)
	}
	logger := q.logger.With(slog.String("job_id", job.ID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", slog.Any("panic", r))
			q.finish(job, JobStatusFailed, nil, fmt.Errorf("job panicked: %v", r))
		}
	}()

	now := time.Now()
	job.Status = JobStatusRunning
	job.StartedAt = &now
	if err := q.store.UpdateJob(job); err != nil {
		logger.Error("failed to update job status", slog.String("error", err.Error()))
	}

	state, err := q.manager.Run(ctx, job.Request)
	if state != nil && q.OnComplete != nil {
		q.OnComplete(ctx, state)
	}

	status := JobStatusCompleted
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		status = JobStatusCancelled
	default:
		status = JobStatusFailed
	}
	q.finish(job, status, state, err)
	logger.Info("job finished", slog.String("status", string(status)))
}

func (q *JobQueue) finish(job *Job, status JobStatus, state *State, err error) {
	now := time.Now()
	job.Status = status
	job.CompletedAt = &now
	if state != nil {
		job.Result = state.Response()
	}
	if err != nil {
		job.Error = err.Error()
	}
	if uerr := q.store.UpdateJob(job); uerr != nil {
		q.logger.Error("failed to update job", slog.String("error", uerr.Error()))
	}
}
