package services

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodpulse/internal/dataset"
	apperrors "foodpulse/internal/errors"
	"foodpulse/internal/etl"
	"foodpulse/internal/exporter"
	"foodpulse/internal/insights"
	"foodpulse/internal/pipeline"
	"foodpulse/internal/sources"
)

const analyticsCSV = `order_id,user_id,restaurant_id,order_date,total_amount,city,membership,rating
1,U1,R1,01-01-2024,450.50,Pune,Gold,4.5
2,U2,R2,01-01-2024,220.00,Delhi,Regular,3.8
3,U1,R3,02-01-2024,780.25,Pune,Gold,4.9
4,U3,R1,03-01-2024,310.00,Pune,Gold,4.5
5,U4,R2,04-01-2024,95.75,Mumbai,Regular,3.8
6,U5,R3,05-01-2024,640.00,Delhi,Gold,4.9
7,U6,R1,05-01-2024,120.00,Mumbai,Regular,4.5
8,U2,R3,06-01-2024,515.40,Delhi,Regular,4.9
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeAnalytics(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "final_food_delivery_dataset.csv")
	require.NoError(t, os.WriteFile(path, []byte(analyticsCSV), 0o644))
	return path
}

func loadedService(t *testing.T) *AnalyticsService {
	t.Helper()
	d := DefaultDefaults()
	d.Explain.Trees = 10
	svc := NewAnalyticsService(writeAnalytics(t), d, quietLogger())
	require.NoError(t, svc.Load(context.Background()))
	return svc
}

func TestAnalyticsService_NotLoaded(t *testing.T) {
	svc := NewAnalyticsService(filepath.Join(t.TempDir(), "missing.csv"), DefaultDefaults(), quietLogger())
	ctx := context.Background()

	err := svc.Load(ctx)
	assert.ErrorIs(t, err, apperrors.ErrSourceNotFound)
	assert.False(t, svc.Status().Loaded)

	_, err = svc.Summary(ctx, insights.Filter{})
	assert.ErrorIs(t, err, apperrors.ErrDatasetNotLoaded)
	_, err = svc.Forecast(ctx, insights.Filter{}, nil)
	assert.ErrorIs(t, err, apperrors.ErrDatasetNotLoaded)
	_, err = svc.Segments(ctx, insights.Filter{}, nil)
	assert.ErrorIs(t, err, apperrors.ErrDatasetNotLoaded)
	_, err = svc.Explain(ctx, insights.Filter{})
	assert.ErrorIs(t, err, apperrors.ErrDatasetNotLoaded)
}

func TestAnalyticsService_Status(t *testing.T) {
	svc := loadedService(t)

	st := svc.Status()
	assert.True(t, st.Loaded)
	assert.Equal(t, 8, st.Rows)
	assert.Contains(t, st.Columns, "membership")
	assert.WithinDuration(t, time.Now(), st.LoadedAt, time.Minute)
}

func TestAnalyticsService_Summary(t *testing.T) {
	svc := loadedService(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		filter     insights.Filter
		wantOrders int
		wantTotal  string
	}{
		{"unfiltered", insights.Filter{}, 8, "3131.9"},
		{"one city", insights.Filter{Cities: []string{"Pune"}}, 3, "1540.75"},
		{"city and tier", insights.Filter{Cities: []string{"Delhi"}, Memberships: []string{"Regular"}}, 2, "735.4"},
		{"no match", insights.Filter{Cities: []string{"Chennai"}}, 0, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := svc.Summary(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOrders, s.KPIs.TotalOrders)
			assert.Equal(t, tt.wantTotal, s.KPIs.TotalRevenue.String())
		})
	}
}

func TestAnalyticsService_FilterOptions(t *testing.T) {
	svc := loadedService(t)

	opts, err := svc.FilterOptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Delhi", "Mumbai", "Pune"}, opts.Cities)
	assert.Equal(t, []string{"Gold", "Regular"}, opts.Memberships)
}

func TestAnalyticsService_Transforms(t *testing.T) {
	svc := loadedService(t)
	ctx := context.Background()

	periods := 5
	fc, err := svc.Forecast(ctx, insights.Filter{}, &periods)
	require.NoError(t, err)
	assert.Len(t, fc.Future(), 5)
	assert.Len(t, fc.History(), 6)

	k := 2
	seg, err := svc.Segments(ctx, insights.Filter{}, &k)
	require.NoError(t, err)
	assert.Len(t, seg.Users, 6)
	assert.Len(t, seg.Centroids, 2)

	k = 10
	_, err = svc.Segments(ctx, insights.Filter{}, &k)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientData)

	attr, err := svc.Explain(ctx, insights.Filter{Memberships: []string{"Gold"}})
	require.NoError(t, err)
	assert.Len(t, attr.Rows, 4)
}

func TestAnalyticsService_SetTableSwapsSnapshot(t *testing.T) {
	svc := loadedService(t)
	ctx := context.Background()

	before, err := svc.Summary(ctx, insights.Filter{})
	require.NoError(t, err)

	replacement := dataset.MustNew([]string{"order_id", "total_amount"}, [][]dataset.Value{
		{dataset.String("1"), dataset.String("10")},
	})
	svc.SetTable(ctx, replacement, "test")
	svc.SetTable(ctx, nil, "ignored")

	after, err := svc.Summary(ctx, insights.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 8, before.KPIs.TotalOrders)
	assert.Equal(t, 1, after.KPIs.TotalOrders)
	assert.Equal(t, "test", svc.Status().Origin)
}

func newPipelineService(t *testing.T, analytics *AnalyticsService) (*PipelineService, *pipeline.JobQueue) {
	t.Helper()
	orders := dataset.MustNew(
		[]string{"order_id", "user_id", "restaurant_id", "order_date", "total_amount"},
		[][]dataset.Value{
			{dataset.String("1"), dataset.String("U1"), dataset.String("R1"), dataset.String("01-01-2024"), dataset.String("100")},
			{dataset.String("2"), dataset.String("U2"), dataset.String("R1"), dataset.String("02-01-2024"), dataset.String("200")},
		})
	users := dataset.MustNew([]string{"user_id", "city"}, [][]dataset.Value{
		{dataset.String("U1"), dataset.String("Pune")},
	})
	restaurants := dataset.MustNew([]string{"restaurant_id", "cuisine"}, [][]dataset.Value{
		{dataset.String("R1"), dataset.String("Indian")},
	})

	r := pipeline.NewRegistry()
	require.NoError(t, pipeline.RegisterStages(r, pipeline.Deps{
		Sources: sources.Sources{
			Orders:      sources.StaticSource{Label: "orders", Table: orders},
			Users:       sources.StaticSource{Label: "users", Table: users},
			Restaurants: sources.StaticSource{Label: "restaurants", Table: restaurants},
		},
		CSV:        exporter.NewCSVWriter(nil, quietLogger()),
		OutputPath: filepath.Join(t.TempDir(), "out.csv"),
		Merge:      etl.DefaultOptions(),
		Insights:   insights.DefaultOptions(),
		Logger:     quietLogger(),
	}))
	m := pipeline.NewManager(r, pipeline.DefaultConfig(), nil, quietLogger())
	q := pipeline.NewJobQueue(2, nil, m, quietLogger())
	return NewPipelineService(m, q, analytics, quietLogger()), q
}

func TestPipelineService_SubmitPublishesTable(t *testing.T) {
	analytics := NewAnalyticsService("", DefaultDefaults(), quietLogger())
	svc, q := newPipelineService(t, analytics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer func() { assert.NoError(t, q.Stop(time.Second)) }()

	job, err := svc.Submit(ctx, pipeline.RunRequest{Stages: []string{pipeline.StageIDSummarize}})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got, err := svc.Job(ctx, job.ID)
		return err == nil && got.Status == pipeline.JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	st := analytics.Status()
	assert.True(t, st.Loaded)
	assert.Equal(t, 2, st.Rows)
	assert.Equal(t, "pipeline run "+job.ID, st.Origin)

	jobs, err := svc.Jobs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestPipelineService_Errors(t *testing.T) {
	svc, _ := newPipelineService(t, nil)
	ctx := context.Background()

	_, err := svc.Submit(ctx, pipeline.RunRequest{Stages: []string{"publish"}})
	var apiErr *apperrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "VALIDATION_FAILED", apiErr.ErrorCode)

	_, err = svc.Job(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrJobNotFound)

	// the queue is not started, so the third submission finds it full
	_, err = svc.Submit(ctx, pipeline.RunRequest{})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, pipeline.RunRequest{})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, pipeline.RunRequest{})
	assert.ErrorIs(t, err, apperrors.ErrPipelineRunning)

	assert.Equal(t, []string{
		pipeline.StageIDLoad, pipeline.StageIDMerge, pipeline.StageIDPersist, pipeline.StageIDSummarize,
		pipeline.StageIDForecast, pipeline.StageIDSegment, pipeline.StageIDExplain,
	}, svc.Stages())
}

func TestPipelineService_DuplicateJobID(t *testing.T) {
	svc, _ := newPipelineService(t, nil)
	ctx := context.Background()

	job, err := svc.Submit(ctx, pipeline.RunRequest{ID: "nightly"})
	require.NoError(t, err)
	assert.Equal(t, "nightly", job.ID)

	_, err = svc.Submit(ctx, pipeline.RunRequest{ID: "nightly"})
	require.ErrorIs(t, err, apperrors.ErrJobExists)
	var apiErr *apperrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
}

func TestHealthService(t *testing.T) {
	ctx := context.Background()

	hs := NewHealthService("1.0.0", t.TempDir(), NewAnalyticsService("", DefaultDefaults(), quietLogger()), nil, quietLogger())
	status := hs.HealthCheck(ctx)
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "not_ready", status.Services["dataset"].Status)

	svc, _ := newPipelineService(t, nil)
	hs = NewHealthService("1.0.0", t.TempDir(), loadedService(t), svc.manager, quietLogger())
	status = hs.HealthCheck(ctx)
	assert.Equal(t, "ok", status.Status)
	require.NotNil(t, status.Dataset)
	assert.Equal(t, 8, status.Dataset.Rows)
	assert.Nil(t, status.LastRun)
}
