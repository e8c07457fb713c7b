package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodpulse/internal/dataset"
	apperrors "foodpulse/internal/errors"
	"foodpulse/internal/etl"
	"foodpulse/internal/explain"
	"foodpulse/internal/exporter"
	"foodpulse/internal/forecast"
	"foodpulse/internal/insights"
	"foodpulse/internal/segmentation"
	"foodpulse/internal/sources"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func table(columns []string, rows ...[]string) *dataset.Table {
	values := make([][]dataset.Value, len(rows))
	for i, r := range rows {
		values[i] = make([]dataset.Value, len(r))
		for j, cell := range r {
			if cell == "" {
				values[i][j] = dataset.Null
			} else {
				values[i][j] = dataset.String(cell)
			}
		}
	}
	return dataset.MustNew(columns, values)
}

func staticSources() sources.Sources {
	orders := table([]string{"order_id", "user_id", "restaurant_id", "order_date", "total_amount"},
		[]string{"1", "U1", "R1", "01-01-2024", "450.50"},
		[]string{"2", "U2", "R2", "01-01-2024", "220.00"},
		[]string{"3", "U1", "R3", "02-01-2024", "780.25"},
		[]string{"4", "U3", "R1", "03-01-2024", "310.00"},
		[]string{"5", "U4", "R2", "04-01-2024", "95.75"},
		[]string{"6", "U5", "R3", "05-01-2024", "640.00"},
		[]string{"7", "U6", "R1", "05-01-2024", "120.00"},
		[]string{"8", "U2", "R3", "06-01-2024", "515.40"},
		[]string{"9", "U3", "R2", "07-01-2024", "88.10"},
		[]string{"10", "U9", "R9", "08-01-2024", "300.00"},
	)
	users := table([]string{"user_id", "city", "membership"},
		[]string{"U1", "Pune", "Gold"},
		[]string{"U2", "Delhi", "Regular"},
		[]string{"U3", "Pune", "Gold"},
		[]string{"U4", "Mumbai", "Regular"},
		[]string{"U5", "Delhi", "Gold"},
		[]string{"U6", "Mumbai", "Regular"},
	)
	restaurants := table([]string{"restaurant_id", "restaurant_name", "cuisine", "rating"},
		[]string{"R1", "Spice Route", "Indian", "4.5"},
		[]string{"R2", "Dragon Wok", "Chinese", "3.8"},
		[]string{"R3", "Pasta Piazza", "Italian", "4.9"},
	)
	return sources.Sources{
		Orders:      sources.StaticSource{Label: "orders", Table: orders},
		Users:       sources.StaticSource{Label: "users", Table: users},
		Restaurants: sources.StaticSource{Label: "restaurants", Table: restaurants},
	}
}

func testDeps(t *testing.T) Deps {
	t.Helper()
	dir := t.TempDir()
	logger := quietLogger()

	seg := segmentation.DefaultOptions()
	seg.Clusters = 2
	ex := explain.DefaultOptions()
	ex.Trees = 10

	return Deps{
		Sources:    staticSources(),
		CSV:        exporter.NewCSVWriter(nil, logger),
		Workbook:   exporter.NewWorkbookWriter(nil, logger),
		OutputPath: filepath.Join(dir, "final_food_delivery_dataset.csv"),
		ReportPath: filepath.Join(dir, "food_delivery_report.xlsx"),
		Merge:      etl.DefaultOptions(),
		Forecast:   forecast.DefaultOptions(),
		Segment:    seg,
		Explain:    ex,
		Insights:   insights.DefaultOptions(),
		Logger:     logger,
	}
}

func newTestManager(t *testing.T, d Deps, cfg Config) *Manager {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, RegisterStages(r, d))
	return NewManager(r, cfg, nil, quietLogger())
}

// funcStage runs fn as its Execute
type funcStage struct {
	BaseStage
	fn func(ctx context.Context, state *State) error
}

func (s *funcStage) Execute(ctx context.Context, state *State) error {
	return s.fn(ctx, state)
}

func TestRegistry_DependencyOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterStages(r, testDeps(t)))

	stages, err := r.DependencyOrder()
	require.NoError(t, err)

	ids := make([]string, len(stages))
	for i, s := range stages {
		ids[i] = s.ID()
	}
	assert.Equal(t, []string{
		StageIDLoad, StageIDMerge, StageIDPersist, StageIDSummarize,
		StageIDForecast, StageIDSegment, StageIDExplain, StageIDReport,
	}, ids)
}

func TestRegistry_NoWorkbookNoReport(t *testing.T) {
	d := testDeps(t)
	d.Workbook = nil
	r := NewRegistry()
	require.NoError(t, RegisterStages(r, d))

	assert.False(t, r.Has(StageIDReport))
	assert.Equal(t, 7, r.Count())
}

func TestRegistry_Closure(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterStages(r, testDeps(t)))

	tests := []struct {
		name    string
		ids     []string
		want    []string
		wantErr bool
	}{
		{"single stage pulls its chain", []string{StageIDForecast}, []string{StageIDLoad, StageIDMerge, StageIDForecast}, false},
		{"shared dependencies once", []string{StageIDSegment, StageIDPersist}, []string{StageIDLoad, StageIDMerge, StageIDPersist, StageIDSegment}, false},
		{"unknown stage", []string{"publish"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stages, err := r.Closure(tt.ids)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			got := make([]string, len(stages))
			for i, s := range stages {
				got[i] = s.ID()
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry_Errors(t *testing.T) {
	r := NewRegistry()
	a := &funcStage{BaseStage: NewBaseStage("a", "A")}
	require.NoError(t, r.Register(a))

	assert.Error(t, r.Register(a), "duplicate ID")
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&funcStage{BaseStage: NewBaseStage("", "blank")}))

	_, err := r.Get("missing")
	assert.Error(t, err)

	require.NoError(t, r.Register(&funcStage{BaseStage: NewBaseStage("b", "B", "c")}))
	_, err = r.DependencyOrder()
	assert.Error(t, err, "dependency on an unregistered stage")
}

func TestManager_FullRun(t *testing.T) {
	d := testDeps(t)
	m := newTestManager(t, d, DefaultConfig())

	state, err := m.Run(context.Background(), RunRequest{})
	require.NoError(t, err)
	require.NotNil(t, state)

	resp := state.Response()
	assert.Equal(t, RunStatusCompleted, resp.Status)
	assert.NotEmpty(t, resp.ID)
	for _, id := range resp.Order {
		assert.Equal(t, StageStatusCompleted, resp.Stages[id].Status, id)
	}

	a := state.Artifacts()
	require.NotNil(t, a.Table)
	assert.Equal(t, 10, a.Table.Len())
	assert.Equal(t, 1, a.MergeStats.UnmatchedUsers)
	assert.Equal(t, 1, a.MergeStats.UnmatchedRestaurants)
	assert.NotNil(t, a.Summary)
	assert.NotNil(t, a.Forecast)
	assert.NotNil(t, a.Segments)
	assert.NotNil(t, a.Attribution)

	assert.FileExists(t, d.OutputPath)
	assert.FileExists(t, d.ReportPath)
	assert.Same(t, state, m.LastRun())
	assert.False(t, m.Running())

	written, err := etl.ReadAnalyticsTable(d.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, a.Table.Columns(), written.Columns())
}

func TestManager_SelectedStages(t *testing.T) {
	d := testDeps(t)
	m := newTestManager(t, d, DefaultConfig())

	state, err := m.Run(context.Background(), RunRequest{Stages: []string{StageIDSummarize}})
	require.NoError(t, err)

	assert.Equal(t, []string{StageIDLoad, StageIDMerge, StageIDSummarize}, state.Order)
	assert.NotNil(t, state.Artifacts().Summary)
	assert.Nil(t, state.Artifacts().Forecast)
	assert.NoFileExists(t, d.OutputPath)

	_, err = m.Run(context.Background(), RunRequest{Stages: []string{"publish"}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidOptions)
}

func TestManager_InsufficientDataCompletesWithoutArtifact(t *testing.T) {
	d := testDeps(t)
	d.Segment.Clusters = 50
	m := newTestManager(t, d, DefaultConfig())

	state, err := m.Run(context.Background(), RunRequest{})
	require.NoError(t, err)

	stages := state.StageSnapshot()
	seg := stages[StageIDSegment]
	assert.Equal(t, StageStatusCompleted, seg.Status)
	assert.Equal(t, true, seg.Metadata["insufficient_data"])
	assert.Nil(t, state.Artifacts().Segments)

	assert.Equal(t, StageStatusCompleted, stages[StageIDReport].Status)
	assert.FileExists(t, d.ReportPath)
}

func TestManager_FailureSkipsRemainingStages(t *testing.T) {
	d := testDeps(t)
	d.Sources.Orders = sources.CSVSource{Path: filepath.Join(t.TempDir(), "missing.csv"), Logger: quietLogger()}
	m := newTestManager(t, d, DefaultConfig())

	state, err := m.Run(context.Background(), RunRequest{})
	require.Error(t, err)
	require.NotNil(t, state)

	assert.ErrorIs(t, err, apperrors.ErrSourceNotFound)
	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageIDLoad, se.Stage)
	assert.Equal(t, ErrorTypeExecution, se.Type)

	stages := state.StageSnapshot()
	assert.Equal(t, StageStatusFailed, stages[StageIDLoad].Status)
	for _, id := range state.Order[1:] {
		assert.Equal(t, StageStatusSkipped, stages[id].Status, id)
	}
	assert.Equal(t, RunStatusFailed, state.Response().Status)
	assert.True(t, state.HasFailures())
	assert.NoFileExists(t, d.OutputPath)
}

func TestManager_ContinueOnError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	require.NoError(t, r.Register(&funcStage{BaseStage: NewBaseStage("a", "A"), fn: func(context.Context, *State) error { return boom }}))
	require.NoError(t, r.Register(&funcStage{BaseStage: NewBaseStage("b", "B", "a"), fn: func(context.Context, *State) error { return nil }}))
	require.NoError(t, r.Register(&funcStage{BaseStage: NewBaseStage("c", "C"), fn: func(context.Context, *State) error { return nil }}))

	cfg := DefaultConfig()
	cfg.ContinueOnError = true
	m := NewManager(r, cfg, nil, quietLogger())

	state, err := m.Run(context.Background(), RunRequest{})
	assert.ErrorIs(t, err, boom)

	stages := state.StageSnapshot()
	assert.Equal(t, StageStatusFailed, stages["a"].Status)
	assert.Equal(t, StageStatusSkipped, stages["b"].Status)
	assert.Equal(t, StageStatusCompleted, stages["c"].Status)
}

func TestManager_PublishesSnapshots(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	require.NoError(t, r.Register(&funcStage{BaseStage: NewBaseStage("a", "A"), fn: func(context.Context, *State) error { return nil }}))
	require.NoError(t, r.Register(&funcStage{BaseStage: NewBaseStage("b", "B", "a"), fn: func(context.Context, *State) error { return boom }}))
	require.NoError(t, r.Register(&funcStage{BaseStage: NewBaseStage("c", "C", "b"), fn: func(context.Context, *State) error { return nil }}))

	m := NewManager(r, DefaultConfig(), nil, quietLogger())
	var snaps []Snapshot
	m.SetNotifier(NotifierFunc(func(_ context.Context, s Snapshot) { snaps = append(snaps, s) }))

	state, err := m.Run(context.Background(), RunRequest{ID: "run-1"})
	require.Error(t, err)
	require.NotEmpty(t, snaps)

	first := snaps[0]
	assert.Equal(t, "run-1", first.RunID)
	assert.Equal(t, RunStatusRunning, first.Status)
	assert.Equal(t, 0, first.Progress)
	require.Len(t, first.Stages, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{first.Stages[0].ID, first.Stages[1].ID, first.Stages[2].ID})

	var active []string
	for _, s := range snaps {
		if s.CurrentStage != "" {
			active = append(active, s.CurrentStage)
		}
	}
	assert.Equal(t, []string{"a", "b"}, active)

	for i := 1; i < len(snaps); i++ {
		assert.GreaterOrEqual(t, snaps[i].Progress, snaps[i-1].Progress)
	}

	last := snaps[len(snaps)-1]
	assert.Equal(t, RunStatusFailed, last.Status)
	assert.Equal(t, 100, last.Progress)
	assert.NotNil(t, last.CompletedAt)
	assert.Contains(t, last.Error, "boom")
	assert.Equal(t, StageStatusCompleted, last.Stages[0].Status)
	assert.Equal(t, StageStatusFailed, last.Stages[1].Status)
	assert.Equal(t, StageStatusSkipped, last.Stages[2].Status)
	assert.Equal(t, state.Snapshot().Stages, last.Stages)

	m.SetNotifier(nil)
	count := len(snaps)
	_, _ = m.Run(context.Background(), RunRequest{})
	assert.Len(t, snaps, count)
}

func TestManager_StageTimeout(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&funcStage{
		BaseStage: NewBaseStage("slow", "Slow"),
		fn: func(ctx context.Context, _ *State) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}))

	cfg := DefaultConfig()
	cfg.StageTimeouts = map[string]time.Duration{"slow": 20 * time.Millisecond}
	m := NewManager(r, cfg, nil, quietLogger())

	_, err := m.Run(context.Background(), RunRequest{})
	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ErrorTypeTimeout, se.Type)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRegistry()
	require.NoError(t, r.Register(&funcStage{BaseStage: NewBaseStage("a", "A"), fn: func(context.Context, *State) error {
		cancel()
		return nil
	}}))
	require.NoError(t, r.Register(&funcStage{BaseStage: NewBaseStage("b", "B", "a"), fn: func(context.Context, *State) error { return nil }}))
	m := NewManager(r, DefaultConfig(), nil, quietLogger())

	state, err := m.Run(ctx, RunRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, RunStatusCancelled, state.Response().Status)
	assert.Equal(t, StageStatusSkipped, state.StageSnapshot()["b"].Status)
}

func TestManager_RunInProgress(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	r := NewRegistry()
	require.NoError(t, r.Register(&funcStage{BaseStage: NewBaseStage("block", "Block"), fn: func(context.Context, *State) error {
		close(started)
		<-release
		return nil
	}}))
	m := NewManager(r, DefaultConfig(), nil, quietLogger())

	done := make(chan error, 1)
	go func() {
		_, err := m.Run(context.Background(), RunRequest{})
		done <- err
	}()

	<-started
	assert.True(t, m.Running())
	_, err := m.Run(context.Background(), RunRequest{})
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, m.Running())
}

func TestJobQueue_RunsJobs(t *testing.T) {
	d := testDeps(t)
	m := newTestManager(t, d, DefaultConfig())
	q := NewJobQueue(2, nil, m, quietLogger())

	completed := make(chan *State, 1)
	q.OnComplete = func(_ context.Context, s *State) { completed <- s }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer func() { assert.NoError(t, q.Stop(time.Second)) }()

	job, err := q.Enqueue(ctx, RunRequest{Stages: []string{StageIDPersist}})
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)

	select {
	case s := <-completed:
		assert.Equal(t, job.ID, s.ID)
	case <-time.After(10 * time.Second):
		t.Fatal("job did not complete")
	}

	assert.Eventually(t, func() bool {
		got, err := q.GetJob(job.ID)
		return err == nil && got.Status == JobStatusCompleted && got.Result != nil
	}, 5*time.Second, 10*time.Millisecond)

	_, err = os.Stat(d.OutputPath)
	assert.NoError(t, err)

	_, err = q.GetJob("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobQueue_Full(t *testing.T) {
	q := NewJobQueue(1, nil, NewManager(nil, DefaultConfig(), nil, quietLogger()), quietLogger())

	_, err := q.Enqueue(context.Background(), RunRequest{})
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), RunRequest{})
	assert.ErrorIs(t, err, ErrQueueFull)

	failed, err := q.ListJobs(JobFilter{Status: JobStatusFailed})
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func TestMemoryJobStore_ListJobs(t *testing.T) {
	s := NewMemoryJobStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateJob(&Job{ID: id, Status: JobStatusCompleted, CreatedAt: base.Add(time.Duration(i) * time.Hour)}))
	}
	assert.ErrorIs(t, s.CreateJob(&Job{ID: "a"}), ErrJobExists)
	assert.ErrorIs(t, s.UpdateJob(&Job{ID: "z"}), ErrJobNotFound)

	jobs, err := s.ListJobs(JobFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "c", jobs[0].ID)
	assert.Equal(t, "b", jobs[1].ID)

	jobs, err = s.ListJobs(JobFilter{Since: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}
