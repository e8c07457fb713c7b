package forecast

import (
	"fmt"
	"sort"
	"time"

	"foodpulse/internal/dataset"
	apperrors "foodpulse/internal/errors"
)

// isoDate is accepted when the configured layout does not match
const isoDate = "2006-01-02"

// Point is one day of the revenue series
type Point struct {
	Date  time.Time `json:"ds"`
	Value float64   `json:"y"`
}

// DailySeries sums the value column per calendar date. Rows with a missing
// date are skipped; missing amounts contribute nothing but still register
// their date. Dates without orders are not filled in.
func DailySeries(table *dataset.Table, opts Options) ([]Point, error) {
	opts = opts.withDefaults()
	if err := table.RequireColumns(opts.DateColumn, opts.ValueColumn); err != nil {
		return nil, err
	}

	totals := make(map[time.Time]float64)
	for i := 0; i < table.Len(); i++ {
		cell := table.Get(i, opts.DateColumn)
		if cell.IsNull() {
			continue
		}
		day, err := parseDate(cell.String(), opts.DateLayout)
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("row %d column %s", i, opts.DateColumn), err)
		}

		amount, ok, err := table.Get(i, opts.ValueColumn).AsFloat()
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("row %d column %s", i, opts.ValueColumn), err)
		}
		if !ok {
			amount = 0
		}
		totals[day] += amount
	}

	series := make([]Point, 0, len(totals))
	for day, total := range totals {
		series = append(series, Point{Date: day, Value: total})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	return series, nil
}

func parseDate(raw, layout string) (time.Time, error) {
	t, err := time.Parse(layout, raw)
	if err != nil {
		var isoErr error
		if t, isoErr = time.Parse(isoDate, raw); isoErr != nil {
			return time.Time{}, err
		}
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
