package sources

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"foodpulse/internal/config"
	"foodpulse/internal/dataset"
	apperrors "foodpulse/internal/errors"
)

// Order column names
const (
	ColOrderID      = "order_id"
	ColUserID       = "user_id"
	ColRestaurantID = "restaurant_id"
	ColOrderDate    = "order_date"
	ColTotalAmount  = "total_amount"
	ColRating       = "rating"
	ColCity         = "city"
	ColCuisine      = "cuisine"
	ColMembership   = "membership"
)

var requiredOrderColumns = []string{
	ColOrderID, ColUserID, ColRestaurantID, ColOrderDate, ColTotalAmount,
}

// CSVSource loads the orders file
type CSVSource struct {
	Path       string
	DateLayout string
	Logger     *slog.Logger
}

func (s CSVSource) Name() string { return "orders" }

// LoadOrders parses the orders CSV at path with the default date layout
func LoadOrders(ctx context.Context, path string) (*dataset.Table, error) {
	return CSVSource{Path: path}.Load(ctx)
}

// Load reads the file. Empty cells become missing values; order_id must be an
// integer, order_date must match DateLayout, and total_amount and rating (when
// the column exists) must be numeric.
func (s CSVSource) Load(ctx context.Context) (*dataset.Table, error) {
	logger := loggerOr(s.Logger, s.Name())
	layout := s.DateLayout
	if layout == "" {
		layout = config.OrderDateLayout
	}

	f, err := openSource(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.NewParsingError(s.Path+": empty file, header row expected", nil)
		}
		return nil, apperrors.NewParsingError(s.Path+": read header", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	for _, col := range requiredOrderColumns {
		if _, ok := idx[col]; !ok {
			return nil, apperrors.NewParsingError(fmt.Sprintf("%s: required column %q missing", s.Path, col), nil).
				WithContext("column", col)
		}
	}

	var rows [][]dataset.Value
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("%s line %d", s.Path, line), err).
				WithContext("line", line)
		}
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		row := make([]dataset.Value, len(header))
		for i, cell := range record {
			if cell == "" {
				row[i] = dataset.Null
				continue
			}
			row[i] = dataset.String(cell)
		}

		if err := validateOrder(row, idx, layout); err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("%s line %d", s.Path, line), err).
				WithContext("line", line)
		}
		rows = append(rows, row)
	}

	table, err := dataset.New(header, rows)
	if err != nil {
		return nil, apperrors.NewParsingError(s.Path, err)
	}

	logger.InfoContext(ctx, "orders loaded",
		slog.String("path", s.Path),
		slog.Int("rows", table.Len()),
		slog.Int("columns", table.Width()))

	return table, nil
}

func validateOrder(row []dataset.Value, idx map[string]int, layout string) error {
	id := row[idx[ColOrderID]]
	if id.IsNull() {
		return fmt.Errorf("%s is empty", ColOrderID)
	}
	if _, err := strconv.ParseInt(strings.TrimSpace(id.String()), 10, 64); err != nil {
		return fmt.Errorf("%s %q is not an integer", ColOrderID, id.String())
	}

	if date := row[idx[ColOrderDate]]; !date.IsNull() {
		if _, err := time.Parse(layout, strings.TrimSpace(date.String())); err != nil {
			return fmt.Errorf("%s %q does not match %s", ColOrderDate, date.String(), layout)
		}
	}

	for _, col := range []string{ColTotalAmount, ColRating} {
		i, ok := idx[col]
		if !ok {
			continue
		}
		if _, _, err := row[i].AsFloat(); err != nil {
			return fmt.Errorf("%s %q is not numeric", col, row[i].String())
		}
	}
	return nil
}
