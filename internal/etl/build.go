package etl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"foodpulse/internal/dataset"
	"foodpulse/internal/exporter"
	"foodpulse/internal/infrastructure"
	"foodpulse/internal/sources"
)

// Inputs are the three loaded source tables
type Inputs struct {
	Orders      *dataset.Table
	Users       *dataset.Table
	Restaurants *dataset.Table
}

// Result is the outcome of Build
type Result struct {
	Table      *dataset.Table
	Stats      MergeStats
	OutputPath string
	Duration   time.Duration
}

// LoadAll loads the three sources concurrently. The first failure cancels
// the others and is returned.
func LoadAll(ctx context.Context, srcs sources.Sources) (*Inputs, error) {
	var in Inputs
	g, gctx := errgroup.WithContext(ctx)

	load := func(src sources.Source, dst **dataset.Table) {
		g.Go(func() error {
			if src == nil {
				return fmt.Errorf("no source configured")
			}
			t, err := src.Load(gctx)
			if err != nil {
				return fmt.Errorf("load %s: %w", src.Name(), err)
			}
			*dst = t
			return nil
		})
	}
	load(srcs.Orders, &in.Orders)
	load(srcs.Users, &in.Users)
	load(srcs.Restaurants, &in.Restaurants)

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &in, nil
}

// Persist writes the analytics table as CSV
func Persist(w *exporter.CSVWriter, table *dataset.Table, path string) error {
	if err := w.WriteTable(path, table); err != nil {
		return fmt.Errorf("persist analytics table: %w", err)
	}
	return nil
}

// Build loads, merges and persists. It is the ETL entry point.
func Build(ctx context.Context, srcs sources.Sources, w *exporter.CSVWriter, outputPath string, opts Options) (*Result, error) {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	logger.InfoContext(ctx, "Starting ETL build", slog.String("output", outputPath))

	in, err := LoadAll(ctx, srcs)
	if err != nil {
		return nil, err
	}

	merged, stats, err := Merge(in.Orders, in.Users, in.Restaurants, opts)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := Persist(w, merged, outputPath); err != nil {
		return nil, err
	}

	res := &Result{
		Table:      merged,
		Stats:      stats,
		OutputPath: outputPath,
		Duration:   time.Since(start),
	}

	logger.InfoContext(ctx, "ETL build complete",
		slog.String("output", outputPath),
		slog.Int("rows", stats.Rows),
		slog.Int("columns", stats.Columns),
		slog.Int("unmatched_users", stats.UnmatchedUsers),
		slog.Int("unmatched_restaurants", stats.UnmatchedRestaurants),
		slog.Duration("duration", res.Duration))

	return res, nil
}
