package pipeline

import (
	"sync"
	"time"

	"foodpulse/internal/dataset"
	"foodpulse/internal/etl"
	"foodpulse/internal/explain"
	"foodpulse/internal/forecast"
	"foodpulse/internal/insights"
	"foodpulse/internal/segmentation"
)

// RunStatus represents the overall run status
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Artifacts are the results stages hand to each other
type Artifacts struct {
	Inputs      *etl.Inputs
	Table       *dataset.Table
	MergeStats  etl.MergeStats
	OutputPath  string
	Summary     *insights.Summary
	Forecast    *forecast.Result
	Segments    *segmentation.Result
	Attribution *explain.Attribution
	ReportPath  string
}

// State is the shared state of one run
type State struct {
	mu sync.RWMutex

	ID        string
	Status    RunStatus
	StartTime time.Time
	EndTime   *time.Time
	Stages    map[string]*StageState
	Order     []string // stage IDs in execution order
	Error     error

	artifacts Artifacts
}

// NewState creates the state for run id
func NewState(id string) *State {
	return &State{
		ID:        id,
		Status:    RunStatusPending,
		StartTime: time.Now(),
		Stages:    make(map[string]*StageState),
	}
}

// Start marks the run as running
func (s *State) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = RunStatusRunning
	s.StartTime = time.Now()
}

// Complete marks the run as completed
func (s *State) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.EndTime = &now
	s.Status = RunStatusCompleted
}

// Fail marks the run as failed
func (s *State) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.EndTime = &now
	s.Status = RunStatusFailed
	s.Error = err
}

// Cancel marks the run as cancelled
func (s *State) Cancel(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.EndTime = &now
	s.Status = RunStatusCancelled
	s.Error = err
}

// GetStage returns the state of a specific stage
func (s *State) GetStage(id string) *StageState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Stages[id]
}

// SetStage stores the state of a specific stage
func (s *State) SetStage(id string, st *StageState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Stages[id] = st
}

// Artifacts returns a snapshot of the produced artifacts
func (s *State) Artifacts() Artifacts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.artifacts
}

// UpdateArtifacts applies fn to the artifacts under the state lock
func (s *State) UpdateArtifacts(fn func(a *Artifacts)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.artifacts)
}

// Duration returns how long the run took, or has been running
func (s *State) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.EndTime != nil {
		return s.EndTime.Sub(s.StartTime)
	}
	return time.Since(s.StartTime)
}

// StageSnapshot copies every stage state
func (s *State) StageSnapshot() map[string]*StageState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*StageState, len(s.Stages))
	for k, v := range s.Stages {
		out[k] = v.clone()
	}
	return out
}

// HasFailures returns true if any stage has failed
func (s *State) HasFailures() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.Stages {
		if st.GetStatus() == StageStatusFailed {
			return true
		}
	}
	return false
}
