package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"foodpulse/internal/config"
	apperrors "foodpulse/internal/errors"
	"foodpulse/internal/infrastructure"
)

// Config controls run execution
type Config struct {
	StageTimeout  time.Duration
	StageTimeouts map[string]time.Duration
	RunTimeout    time.Duration
	// ContinueOnError runs independent stages after a failure
	ContinueOnError bool
}

// DefaultConfig returns the default timeouts
func DefaultConfig() Config {
	return Config{
		StageTimeout: config.DefaultStageTimeout,
		RunTimeout:   config.DefaultPipelineTimeout,
	}
}

// stageTimeout returns the timeout for one stage
func (c Config) stageTimeout(id string) time.Duration {
	if t, ok := c.StageTimeouts[id]; ok && t > 0 {
		return t
	}
	if c.StageTimeout > 0 {
		return c.StageTimeout
	}
	return config.DefaultStageTimeout
}

// RunRequest selects what to run. Empty Stages runs every stage; otherwise
// the named stages and their dependencies run.
type RunRequest struct {
	ID     string   `json:"id,omitempty"`
	Stages []string `json:"stages,omitempty"`
}

// RunResponse summarizes a finished run
type RunResponse struct {
	ID       string                 `json:"id"`
	Status   RunStatus              `json:"status"`
	Duration time.Duration          `json:"duration"`
	Stages   map[string]*StageState `json:"stages"`
	Order    []string               `json:"order"`
	Error    string                 `json:"error,omitempty"`
}

// Manager orchestrates pipeline runs. One run executes at a time.
type Manager struct {
	registry *Registry
	config   Config
	tracer   *Tracer
	logger   *slog.Logger

	running atomic.Bool

	mu       sync.RWMutex
	last     *State
	notifier Notifier
}

// NewManager creates a manager over registry
func NewManager(registry *Registry, cfg Config, tracer *Tracer, logger *slog.Logger) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if tracer == nil {
		tracer = NewTracer(nil)
	}
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Manager{
		registry: registry,
		config:   cfg,
		tracer:   tracer,
		logger:   infrastructure.WithComponent(logger, "pipeline"),
	}
}

// Registry returns the stage registry
func (m *Manager) Registry() *Registry {
	return m.registry
}

// SetNotifier sets the receiver of run snapshots; nil disables publishing
func (m *Manager) SetNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

// notify publishes the current snapshot of state
func (m *Manager) notify(ctx context.Context, state *State) {
	m.mu.RLock()
	n := m.notifier
	m.mu.RUnlock()
	if n == nil {
		return
	}
	n.Notify(ctx, state.Snapshot())
}

// Running reports whether a run is in progress
func (m *Manager) Running() bool {
	return m.running.Load()
}

// LastRun returns the most recent run, or nil
func (m *Manager) LastRun() *State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Run executes the requested stages sequentially. The returned state is
// non-nil whenever the run started, even when it failed.
func (m *Manager) Run(ctx context.Context, req RunRequest) (*State, error) {
	if !m.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer m.running.Store(false)

	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	stages, err := m.selectStages(req.Stages)
	if err != nil {
		return nil, apperrors.NewAppValidationError(err.Error())
	}

	if m.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.RunTimeout)
		defer cancel()
	}

	state := NewState(req.ID)
	ids := make([]string, len(stages))
	for i, s := range stages {
		ids[i] = s.ID()
		state.SetStage(s.ID(), NewStageState(s.ID(), s.Name()))
	}
	state.Order = ids

	m.mu.Lock()
	m.last = state
	m.mu.Unlock()

	ctx, span := m.tracer.StartRun(ctx, req.ID, ids)
	logger := m.logger.With(slog.String("run_id", req.ID))
	logger.InfoContext(ctx, "run_start", slog.Any("stages", ids))

	state.Start()
	m.notify(ctx, state)
	runErr := m.executeSequential(ctx, logger, state, stages)

	switch {
	case runErr == nil:
		state.Complete()
	case errors.Is(runErr, context.Canceled):
		state.Cancel(runErr)
	default:
		state.Fail(runErr)
	}

	m.notify(ctx, state)

	status := state.Response().Status
	m.tracer.EndRun(ctx, span, status, state.Duration(), runErr)
	logger.InfoContext(ctx, "run_complete",
		slog.String("status", string(status)),
		slog.Duration("duration", state.Duration()))

	return state, runErr
}

func (m *Manager) selectStages(ids []string) ([]Stage, error) {
	if len(ids) == 0 {
		return m.registry.DependencyOrder()
	}
	return m.registry.Closure(ids)
}

func (m *Manager) executeSequential(ctx context.Context, logger *slog.Logger, state *State, stages []Stage) error {
	var firstErr error
	for i, stage := range stages {
		st := state.GetStage(stage.ID())

		if err := ctx.Err(); err != nil {
			logger.WarnContext(ctx, "run_cancelled", slog.String("stage", stage.ID()))
			st.Skip("run cancelled")
			return NewCancellationError(stage.ID(), err)
		}

		if dep, ok := m.unmetDependency(state, stage); !ok {
			st.Skip(fmt.Sprintf("dependency %s did not complete", dep))
			m.notify(ctx, state)
			logger.InfoContext(ctx, "stage_skipped",
				slog.String("stage", stage.ID()),
				slog.String("dependency", dep))
			continue
		}

		logger.InfoContext(ctx, "executing_stage",
			slog.String("stage", stage.ID()),
			slog.Int("stage_number", i+1),
			slog.Int("total_stages", len(stages)))

		if err := m.executeStage(ctx, logger, state, stage); err != nil {
			logger.ErrorContext(ctx, "stage_error",
				slog.String("stage", stage.ID()),
				slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
			if !m.config.ContinueOnError {
				m.skipRemaining(state, stages[i+1:], stage.ID())
				m.notify(ctx, state)
				return err
			}
		}
	}
	return firstErr
}

// unmetDependency returns the first dependency that did not complete
func (m *Manager) unmetDependency(state *State, stage Stage) (string, bool) {
	for _, dep := range stage.Dependencies() {
		depState := state.GetStage(dep)
		if depState == nil || depState.GetStatus() != StageStatusCompleted {
			return dep, false
		}
	}
	return "", true
}

func (m *Manager) skipRemaining(state *State, rest []Stage, failed string) {
	for _, s := range rest {
		if st := state.GetStage(s.ID()); st != nil && st.GetStatus() == StageStatusPending {
			st.Skip(fmt.Sprintf("stage %s failed", failed))
		}
	}
}

// executeStage runs one stage under its timeout. A stage whose input is too
// small for its computation completes without an artifact.
func (m *Manager) executeStage(ctx context.Context, logger *slog.Logger, state *State, stage Stage) error {
	st := state.GetStage(stage.ID())
	timeout := m.config.stageTimeout(stage.ID())

	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stageCtx, span := m.tracer.StartStage(stageCtx, state.ID, stage.ID())

	st.Start()
	m.notify(ctx, state)
	defer m.notify(ctx, state)

	start := time.Now()
	err := stage.Execute(stageCtx, state)
	duration := time.Since(start)

	switch {
	case err == nil:
		st.Complete("stage completed")
		m.tracer.EndStage(stageCtx, span, stage.ID(), StageStatusCompleted, duration, nil)
		logger.InfoContext(ctx, "stage_complete",
			slog.String("stage", stage.ID()),
			slog.Duration("duration", duration))
		return nil

	case errors.Is(err, apperrors.ErrInsufficientData):
		st.SetMetadata("insufficient_data", true)
		st.Complete(err.Error())
		m.tracer.EndStage(stageCtx, span, stage.ID(), StageStatusCompleted, duration, nil)
		logger.WarnContext(ctx, "stage_insufficient_data",
			slog.String("stage", stage.ID()),
			slog.String("reason", err.Error()))
		return nil

	case errors.Is(stageCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		err = NewTimeoutError(stage.ID(), timeout.String(), err)

	default:
		err = NewExecutionError(stage.ID(), err)
	}

	st.Fail(err)
	m.tracer.EndStage(stageCtx, span, stage.ID(), StageStatusFailed, duration, err)
	return err
}

// Response summarizes the state
func (s *State) Response() *RunResponse {
	stages := s.StageSnapshot()

	s.mu.RLock()
	defer s.mu.RUnlock()
	resp := &RunResponse{
		ID:     s.ID,
		Status: s.Status,
		Stages: stages,
		Order:  append([]string(nil), s.Order...),
	}
	if s.EndTime != nil {
		resp.Duration = s.EndTime.Sub(s.StartTime)
	} else {
		resp.Duration = time.Since(s.StartTime)
	}
	if s.Error != nil {
		resp.Error = s.Error.Error()
	}
	return resp
}
