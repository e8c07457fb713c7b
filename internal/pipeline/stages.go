package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"foodpulse/internal/dataset"
	"foodpulse/internal/etl"
	"foodpulse/internal/explain"
	"foodpulse/internal/exporter"
	"foodpulse/internal/forecast"
	"foodpulse/internal/infrastructure"
	"foodpulse/internal/insights"
	"foodpulse/internal/segmentation"
	"foodpulse/internal/sources"
)

// Stage IDs
const (
	StageIDLoad      = "load"
	StageIDMerge     = "merge"
	StageIDPersist   = "persist"
	StageIDSummarize = "summarize"
	StageIDForecast  = "forecast"
	StageIDSegment   = "segment"
	StageIDExplain   = "explain"
	StageIDReport    = "report"
)

var errNoTable = errors.New("analytics table not available")

// Deps is everything the standard stages need
type Deps struct {
	Sources    sources.Sources
	CSV        *exporter.CSVWriter
	Workbook   *exporter.WorkbookWriter
	OutputPath string
	ReportPath string

	Merge    etl.Options
	Forecast forecast.Options
	Segment  segmentation.Options
	Explain  explain.Options
	Insights insights.Options
	Tracer   *Tracer
	Logger   *slog.Logger
}

// RegisterStages registers the standard stages in execution order. The report
// stage is only registered when a workbook writer is configured.
func RegisterStages(r *Registry, d Deps) error {
	if d.Tracer == nil {
		d.Tracer = NewTracer(nil)
	}
	if d.Logger == nil {
		d.Logger = infrastructure.GetLogger()
	}

	stages := []Stage{
		&LoadStage{BaseStage: NewBaseStage(StageIDLoad, "Load sources"), deps: d},
		&MergeStage{BaseStage: NewBaseStage(StageIDMerge, "Merge sources", StageIDLoad), deps: d},
		&PersistStage{BaseStage: NewBaseStage(StageIDPersist, "Write analytics table", StageIDMerge), deps: d},
		&SummarizeStage{BaseStage: NewBaseStage(StageIDSummarize, "Dashboard summary", StageIDMerge), deps: d},
		&ForecastStage{BaseStage: NewBaseStage(StageIDForecast, "Revenue forecast", StageIDMerge), deps: d},
		&SegmentStage{BaseStage: NewBaseStage(StageIDSegment, "Customer segmentation", StageIDMerge), deps: d},
		&ExplainStage{BaseStage: NewBaseStage(StageIDExplain, "Feature attribution", StageIDMerge), deps: d},
	}
	if d.Workbook != nil {
		stages = append(stages, &ReportStage{
			BaseStage: NewBaseStage(StageIDReport, "Workbook report",
				StageIDSummarize, StageIDForecast, StageIDSegment, StageIDExplain),
			deps: d,
		})
	}

	for _, s := range stages {
		if err := r.Register(s); err != nil {
			return err
		}
	}
	return nil
}

// analyticsTable returns the merged table of the run
func analyticsTable(state *State) (*dataset.Table, error) {
	t := state.Artifacts().Table
	if t == nil {
		return nil, errNoTable
	}
	return t, nil
}

// LoadStage reads the three sources concurrently
type LoadStage struct {
	BaseStage
	deps Deps
}

func (s *LoadStage) Execute(ctx context.Context, state *State) error {
	in, err := etl.LoadAll(ctx, s.deps.Sources)
	if err != nil {
		return err
	}

	s.deps.Tracer.RecordLoad(ctx, "orders", in.Orders.Len())
	s.deps.Tracer.RecordLoad(ctx, "users", in.Users.Len())
	s.deps.Tracer.RecordLoad(ctx, "restaurants", in.Restaurants.Len())

	state.GetStage(s.ID()).SetMetadata("orders", in.Orders.Len())
	state.UpdateArtifacts(func(a *Artifacts) { a.Inputs = in })
	return nil
}

// MergeStage left-joins users and restaurants onto orders
type MergeStage struct {
	BaseStage
	deps Deps
}

func (s *MergeStage) Execute(ctx context.Context, state *State) error {
	in := state.Artifacts().Inputs
	if in == nil {
		return fmt.Errorf("source tables not loaded")
	}

	opts := s.deps.Merge
	if opts.Logger == nil {
		opts.Logger = s.deps.Logger
	}

	start := time.Now()
	table, stats, err := etl.Merge(in.Orders, in.Users, in.Restaurants, opts)
	if err != nil {
		return err
	}
	s.deps.Tracer.RecordTransform(ctx, StageIDMerge, time.Since(start))
	s.deps.Tracer.RecordUnmatched(ctx, "users", stats.UnmatchedUsers)
	s.deps.Tracer.RecordUnmatched(ctx, "restaurants", stats.UnmatchedRestaurants)

	st := state.GetStage(s.ID())
	st.SetMetadata("rows", stats.Rows)
	st.SetMetadata("unmatched_users", stats.UnmatchedUsers)
	st.SetMetadata("unmatched_restaurants", stats.UnmatchedRestaurants)

	state.UpdateArtifacts(func(a *Artifacts) {
		a.Table = table
		a.MergeStats = stats
	})
	return nil
}

// PersistStage writes the analytics table as CSV
type PersistStage struct {
	BaseStage
	deps Deps
}

func (s *PersistStage) Execute(ctx context.Context, state *State) error {
	table, err := analyticsTable(state)
	if err != nil {
		return err
	}
	if s.deps.CSV == nil {
		return fmt.Errorf("no csv writer configured")
	}
	if err := etl.Persist(s.deps.CSV, table, s.deps.OutputPath); err != nil {
		return err
	}

	state.GetStage(s.ID()).SetMetadata("path", s.deps.OutputPath)
	state.UpdateArtifacts(func(a *Artifacts) { a.OutputPath = s.deps.OutputPath })
	return nil
}

// SummarizeStage computes the dashboard KPIs
type SummarizeStage struct {
	BaseStage
	deps Deps
}

func (s *SummarizeStage) Execute(ctx context.Context, state *State) error {
	table, err := analyticsTable(state)
	if err != nil {
		return err
	}

	start := time.Now()
	summary, err := insights.Summarize(table, s.deps.Insights)
	if err != nil {
		return err
	}
	s.deps.Tracer.RecordTransform(ctx, StageIDSummarize, time.Since(start))

	state.UpdateArtifacts(func(a *Artifacts) { a.Summary = summary })
	return nil
}

// ForecastStage fits the daily revenue model
type ForecastStage struct {
	BaseStage
	deps Deps
}

func (s *ForecastStage) Execute(ctx context.Context, state *State) error {
	table, err := analyticsTable(state)
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := forecast.Run(table, s.deps.Forecast)
	if err != nil {
		return err
	}
	s.deps.Tracer.RecordTransform(ctx, StageIDForecast, time.Since(start))

	state.GetStage(s.ID()).SetMetadata("rows", len(result.Rows))
	state.UpdateArtifacts(func(a *Artifacts) { a.Forecast = result })
	return nil
}

// SegmentStage clusters users
type SegmentStage struct {
	BaseStage
	deps Deps
}

func (s *SegmentStage) Execute(ctx context.Context, state *State) error {
	table, err := analyticsTable(state)
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := segmentation.Segment(table, s.deps.Segment)
	if err != nil {
		return err
	}
	s.deps.Tracer.RecordTransform(ctx, StageIDSegment, time.Since(start))

	state.GetStage(s.ID()).SetMetadata("users", len(result.Users))
	state.UpdateArtifacts(func(a *Artifacts) { a.Segments = result })
	return nil
}

// ExplainStage attributes the target to the features
type ExplainStage struct {
	BaseStage
	deps Deps
}

func (s *ExplainStage) Execute(ctx context.Context, state *State) error {
	table, err := analyticsTable(state)
	if err != nil {
		return err
	}

	start := time.Now()
	attr, err := explain.Explain(table, s.deps.Explain)
	if err != nil {
		return err
	}
	s.deps.Tracer.RecordTransform(ctx, StageIDExplain, time.Since(start))

	state.GetStage(s.ID()).SetMetadata("rows", len(attr.Rows))
	state.GetStage(s.ID()).SetMetadata("dropped_rows", attr.Dropped)
	state.UpdateArtifacts(func(a *Artifacts) { a.Attribution = attr })
	return nil
}

// ReportStage writes every available artifact to a workbook. Analytics
// stages that completed without a result leave their sheet out.
type ReportStage struct {
	BaseStage
	deps Deps
}

func (s *ReportStage) Execute(ctx context.Context, state *State) error {
	sheets := reportSheets(state.Artifacts())
	if len(sheets) == 0 {
		return errNoTable
	}
	if err := s.deps.Workbook.Write(s.deps.ReportPath, sheets...); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	state.GetStage(s.ID()).SetMetadata("sheets", len(sheets))
	state.UpdateArtifacts(func(a *Artifacts) { a.ReportPath = s.deps.ReportPath })
	return nil
}
