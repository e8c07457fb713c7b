package sources

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"foodpulse/internal/config"
	"foodpulse/internal/dataset"
	apperrors "foodpulse/internal/errors"
	"foodpulse/internal/infrastructure"
)

// Source produces one raw table
type Source interface {
	Name() string
	Load(ctx context.Context) (*dataset.Table, error)
}

// Sources groups the three inputs of the merge
type Sources struct {
	Orders      Source
	Users       Source
	Restaurants Source
}

// StaticSource serves an already built table
type StaticSource struct {
	Label string
	Table *dataset.Table
}

func (s StaticSource) Name() string { return s.Label }

func (s StaticSource) Load(ctx context.Context) (*dataset.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Table == nil {
		return nil, apperrors.NewSchemaError("static source "+s.Label+" has no table", nil)
	}
	return s.Table, nil
}

// openSource opens path, mapping a missing file onto SourceNotFound
func openSource(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NewSourceNotFoundError(path, err)
		}
		return nil, apperrors.NewStorageError("open "+path, err)
	}
	return f, nil
}

func loggerOr(l *slog.Logger, source string) *slog.Logger {
	if l == nil {
		l = infrastructure.GetLogger()
	}
	return l.With(slog.String("source", source))
}

// FromConfig builds the three sources from resolved paths and configuration.
// A configured restaurants DSN replaces the SQL script with a live table; the
// returned close function releases that connection and is always non-nil.
func FromConfig(ctx context.Context, paths *config.Paths, cfg *config.Config, logger *slog.Logger) (Sources, func() error, error) {
	noop := func() error { return nil }

	srcs := Sources{
		Orders: CSVSource{
			Path:       paths.OrdersFile,
			DateLayout: cfg.Analytics.OrderDateLayout,
			Logger:     logger,
		},
		Users: JSONSource{
			Path:   paths.UsersFile,
			Logger: logger,
		},
		Restaurants: SQLScriptSource{
			Path:   paths.RestaurantsFile,
			Table:  cfg.Sources.RestaurantsTable,
			Logger: logger,
		},
	}

	if cfg.Sources.RestaurantsDSN == "" {
		return srcs, noop, nil
	}
	if cfg.Sources.RestaurantsDriver != "pgx" {
		return Sources{}, noop, apperrors.NewConfigError(
			fmt.Sprintf("unsupported restaurants driver %q", cfg.Sources.RestaurantsDriver), nil)
	}

	db, err := OpenPostgres(ctx, cfg.Sources.RestaurantsDSN)
	if err != nil {
		return Sources{}, noop, err
	}
	srcs.Restaurants = SQLTableSource{
		DB:     db,
		Table:  cfg.Sources.RestaurantsTable,
		Label:  "restaurants",
		Logger: logger,
	}
	return srcs, db.Close, nil
}
