package sources

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"foodpulse/internal/dataset"
	apperrors "foodpulse/internal/errors"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// SQLTableSource reads a pre-materialized table from any database/sql handle
type SQLTableSource struct {
	DB     *sql.DB
	Table  string
	Label  string
	Logger *slog.Logger
}

func (s SQLTableSource) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return s.Table
}

func (s SQLTableSource) Load(ctx context.Context) (*dataset.Table, error) {
	if s.DB == nil {
		return nil, apperrors.NewConfigError("sql table source has no database handle", nil)
	}
	if !identPattern.MatchString(s.Table) {
		return nil, apperrors.NewSchemaError(fmt.Sprintf("invalid table name %q", s.Table), nil)
	}

	result, err := queryTable(ctx, s.DB, quoteIdent(s.Table))
	if err != nil {
		return nil, err
	}

	loggerOr(s.Logger, s.Name()).InfoContext(ctx, "table loaded",
		slog.String("table", s.Table),
		slog.Int("rows", result.Len()),
		slog.Int("columns", result.Width()))

	return result, nil
}

// OpenPostgres opens a pgx-backed database/sql handle and verifies connectivity
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, apperrors.NewConfigError("open postgres", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, apperrors.NewStorageError("ping postgres", err)
	}
	return db, nil
}

// quoteIdent double-quotes each dotted part of an identifier
func quoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

// queryTable runs SELECT * and converts every cell; SQL NULL becomes dataset.Null
func queryTable(ctx context.Context, db *sql.DB, quoted string) (*dataset.Table, error) {
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quoted)
	if err != nil {
		return nil, apperrors.NewSchemaError("select from "+quoted, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, apperrors.NewStorageError("read columns", err)
	}

	var out [][]dataset.Value
	for rows.Next() {
		cells := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, apperrors.NewStorageError("scan row", err)
		}

		row := make([]dataset.Value, len(columns))
		for i, c := range cells {
			row[i] = sqlValue(c)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("iterate rows", err)
	}

	return dataset.New(columns, out)
}

func sqlValue(v any) dataset.Value {
	switch x := v.(type) {
	case nil:
		return dataset.Null
	case []byte:
		return dataset.String(string(x))
	case string:
		return dataset.String(x)
	case int64:
		return dataset.Int(x)
	case int32:
		return dataset.Int(int64(x))
	case float64:
		return dataset.Float(x)
	case float32:
		return dataset.Float(float64(x))
	case bool:
		if x {
			return dataset.String("true")
		}
		return dataset.String("false")
	case time.Time:
		return dataset.String(x.Format(time.RFC3339))
	default:
		return dataset.String(fmt.Sprint(x))
	}
}
