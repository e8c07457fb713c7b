package services

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"foodpulse/internal/dataset"
	apperrors "foodpulse/internal/errors"
	"foodpulse/internal/etl"
	"foodpulse/internal/explain"
	"foodpulse/internal/forecast"
	"foodpulse/internal/infrastructure"
	"foodpulse/internal/insights"
	"foodpulse/internal/segmentation"
	"foodpulse/internal/sources"
)

// Defaults are the transform options used when a request does not override them
type Defaults struct {
	Forecast forecast.Options
	Segment  segmentation.Options
	Explain  explain.Options
	Insights insights.Options
}

// DefaultDefaults returns each transform's DefaultOptions
func DefaultDefaults() Defaults {
	return Defaults{
		Forecast: forecast.DefaultOptions(),
		Segment:  segmentation.DefaultOptions(),
		Explain:  explain.DefaultOptions(),
		Insights: insights.DefaultOptions(),
	}
}

// snapshot is one immutable analytics table and where it came from
type snapshot struct {
	table    *dataset.Table
	origin   string
	loadedAt time.Time
}

// DatasetStatus describes the table being served
type DatasetStatus struct {
	Loaded   bool      `json:"loaded"`
	Origin   string    `json:"origin,omitempty"`
	Rows     int       `json:"rows"`
	Columns  []string  `json:"columns,omitempty"`
	LoadedAt time.Time `json:"loaded_at,omitempty"`
}

// FilterOptions lists the values the dashboard filters can take
type FilterOptions struct {
	Cities      []string `json:"cities"`
	Memberships []string `json:"memberships"`
}

// AnalyticsService serves the transforms over the current analytics table.
// The table is swapped atomically; every request works on its own filtered
// view of one snapshot.
type AnalyticsService struct {
	current  atomic.Pointer[snapshot]
	path     string
	defaults Defaults
	logger   *slog.Logger
}

// NewAnalyticsService creates a service that loads its table from path
func NewAnalyticsService(path string, defaults Defaults, logger *slog.Logger) *AnalyticsService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &AnalyticsService{
		path:     path,
		defaults: defaults,
		logger:   infrastructure.WithComponent(logger, "analytics_service"),
	}
}

// Load reads the analytics CSV and makes it current
func (s *AnalyticsService) Load(ctx context.Context) error {
	table, err := etl.ReadAnalyticsTable(s.path)
	if err != nil {
		s.logger.WarnContext(ctx, "analytics table not loaded",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
		return err
	}
	s.SetTable(ctx, table, s.path)
	return nil
}

// SetTable makes table current. A nil table is ignored.
func (s *AnalyticsService) SetTable(ctx context.Context, table *dataset.Table, origin string) {
	if table == nil {
		return
	}
	s.current.Store(&snapshot{table: table, origin: origin, loadedAt: time.Now()})
	s.logger.InfoContext(ctx, "analytics table loaded",
		slog.String("origin", origin),
		slog.Int("rows", table.Len()),
		slog.Int("columns", table.Width()))
}

// Status reports the table being served
func (s *AnalyticsService) Status() DatasetStatus {
	snap := s.current.Load()
	if snap == nil {
		return DatasetStatus{}
	}
	return DatasetStatus{
		Loaded:   true,
		Origin:   snap.origin,
		Rows:     snap.table.Len(),
		Columns:  snap.table.Columns(),
		LoadedAt: snap.loadedAt,
	}
}

// Defaults returns the configured transform options
func (s *AnalyticsService) Defaults() Defaults {
	return s.defaults
}

func (s *AnalyticsService) view(f insights.Filter) (*dataset.Table, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, apperrors.ErrDatasetNotLoaded
	}
	return f.Apply(snap.table), nil
}

// FilterOptions lists the distinct cities and membership tiers, sorted
func (s *AnalyticsService) FilterOptions(ctx context.Context) (*FilterOptions, error) {
	table, err := s.view(insights.Filter{})
	if err != nil {
		return nil, err
	}
	return &FilterOptions{
		Cities:      distinct(table, sources.ColCity),
		Memberships: distinct(table, sources.ColMembership),
	}, nil
}

// Summary computes the dashboard KPIs over the filtered table
func (s *AnalyticsService) Summary(ctx context.Context, f insights.Filter) (*insights.Summary, error) {
	table, err := s.view(f)
	if err != nil {
		return nil, err
	}
	return insights.Summarize(table, s.defaults.Insights)
}

// Forecast fits the revenue model. periods overrides the horizon when not nil.
func (s *AnalyticsService) Forecast(ctx context.Context, f insights.Filter, periods *int) (*forecast.Result, error) {
	table, err := s.view(f)
	if err != nil {
		return nil, err
	}
	opts := s.defaults.Forecast
	if periods != nil {
		opts.Periods = *periods
	}

	start := time.Now()
	result, err := forecast.Run(table, opts)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "forecast computed",
		slog.Int("rows", len(result.Rows)),
		slog.Duration("duration", time.Since(start)))
	return result, nil
}

// Segments clusters the filtered users. k overrides the cluster count when
// not nil.
func (s *AnalyticsService) Segments(ctx context.Context, f insights.Filter, k *int) (*segmentation.Result, error) {
	table, err := s.view(f)
	if err != nil {
		return nil, err
	}
	opts := s.defaults.Segment
	if k != nil {
		opts.Clusters = *k
	}

	start := time.Now()
	result, err := segmentation.Segment(table, opts)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "segments computed",
		slog.Int("users", len(result.Users)),
		slog.Duration("duration", time.Since(start)))
	return result, nil
}

// Explain attributes the target to the features over the filtered table
func (s *AnalyticsService) Explain(ctx context.Context, f insights.Filter) (*explain.Attribution, error) {
	table, err := s.view(f)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	attr, err := explain.Explain(table, s.defaults.Explain)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "attribution computed",
		slog.Int("rows", len(attr.Rows)),
		slog.Duration("duration", time.Since(start)))
	return attr, nil
}

func distinct(table *dataset.Table, column string) []string {
	values, err := table.Column(column)
	if err != nil {
		return []string{}
	}
	seen := make(map[string]bool)
	out := []string{}
	for _, v := range values {
		if v.IsNull() || seen[v.String()] {
			continue
		}
		seen[v.String()] = true
		out = append(out, v.String())
	}
	sort.Strings(out)
	return out
}
