package sources

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	_ "modernc.org/sqlite"

	"foodpulse/internal/config"
	"foodpulse/internal/dataset"
	apperrors "foodpulse/internal/errors"
)

// SQLScriptSource executes a schema-and-seed script against a fresh in-memory
// SQLite database and reads back one table. The database lives only for the
// duration of Load.
type SQLScriptSource struct {
	Path   string
	Table  string
	Logger *slog.Logger
}

func (s SQLScriptSource) Name() string { return "restaurants" }

// LoadRestaurants runs the script at path and returns the restaurants table
func LoadRestaurants(ctx context.Context, path string) (*dataset.Table, error) {
	return SQLScriptSource{Path: path}.Load(ctx)
}

func (s SQLScriptSource) Load(ctx context.Context) (*dataset.Table, error) {
	logger := loggerOr(s.Logger, s.Name())
	table := s.Table
	if table == "" {
		table = config.RestaurantsTable
	}

	f, err := openSource(s.Path)
	if err != nil {
		return nil, err
	}
	script, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return nil, apperrors.NewStorageError("read "+s.Path, err)
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, apperrors.NewStorageError("open in-memory store", err)
	}
	defer db.Close()
	// every connection to :memory: is its own database
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, string(script)); err != nil {
		return nil, apperrors.NewSchemaError(fmt.Sprintf("execute %s", s.Path), err)
	}

	var found string
	err = db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?`, table).Scan(&found)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewSchemaError(fmt.Sprintf("%s does not define table %q", s.Path, table), nil).
			WithContext("table", table)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("inspect schema", err)
	}

	result, err := queryTable(ctx, db, quoteIdent(table))
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "restaurants loaded",
		slog.String("path", s.Path),
		slog.Int("rows", result.Len()),
		slog.Int("columns", result.Width()))

	return result, nil
}
