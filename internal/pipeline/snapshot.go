package pipeline

import (
	"context"
	"time"
)

// Snapshot is the complete progress of one run at a point in time. The
// manager publishes one after every run and stage transition.
type Snapshot struct {
	RunID        string          `json:"run_id"`
	Status       RunStatus       `json:"status"`
	Progress     int             `json:"progress"` // 0-100, share of finished stages
	CurrentStage string          `json:"current_stage,omitempty"`
	Stages       []StageSnapshot `json:"stages"`
	StartedAt    time.Time       `json:"started_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// StageSnapshot is the state of one stage inside a Snapshot
type StageSnapshot struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Status   StageStatus    `json:"status"`
	Message  string         `json:"message,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Notifier receives run snapshots. Notify is called synchronously from the
// run, so implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, snapshot Snapshot)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, snapshot Snapshot)

func (f NotifierFunc) Notify(ctx context.Context, snapshot Snapshot) {
	f(ctx, snapshot)
}

// Snapshot captures the run and its stages in execution order
func (s *State) Snapshot() Snapshot {
	stages := s.StageSnapshot()

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		RunID:       s.ID,
		Status:      s.Status,
		Stages:      make([]StageSnapshot, 0, len(s.Order)),
		StartedAt:   s.StartTime,
		UpdatedAt:   time.Now(),
		CompletedAt: s.EndTime,
	}
	if s.Error != nil {
		snap.Error = s.Error.Error()
	}

	finished := 0
	for _, id := range s.Order {
		st, ok := stages[id]
		if !ok {
			continue
		}
		switch st.Status {
		case StageStatusActive:
			snap.CurrentStage = id
		case StageStatusCompleted, StageStatusFailed, StageStatusSkipped:
			finished++
		}
		snap.Stages = append(snap.Stages, StageSnapshot{
			ID:       st.ID,
			Name:     st.Name,
			Status:   st.Status,
			Message:  st.Message,
			Error:    st.Error,
			Metadata: st.Metadata,
		})
	}
	if len(snap.Stages) > 0 {
		snap.Progress = finished * 100 / len(snap.Stages)
	}
	return snap
}
