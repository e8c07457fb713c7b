package forecast

import (
	"fmt"
	"time"

	"foodpulse/internal/config"
	"foodpulse/internal/dataset"
	apperrors "foodpulse/internal/errors"
	"foodpulse/internal/sources"
)

// Options controls aggregation, the model and the horizon. The zero Options
// means DefaultOptions. Otherwise start from DefaultOptions and override:
// zero Periods, ChangepointCount and false seasonality flags are taken
// literally, while other zero fields fall back to their defaults.
type Options struct {
	Periods int

	YearlySeasonality bool
	WeeklySeasonality bool
	DailySeasonality  bool
	YearlyOrder       int
	WeeklyOrder       int
	DailyOrder        int

	ChangepointCount      int
	ChangepointRange      float64
	ChangepointPriorScale float64
	SeasonalityPriorScale float64

	IntervalWidth float64

	DateColumn  string
	ValueColumn string
	DateLayout  string
}

// DefaultOptions returns a 30 day forecast with yearly and weekly seasonality
func DefaultOptions() Options {
	return Options{
		Periods:               config.DefaultForecastPeriods,
		YearlySeasonality:     true,
		WeeklySeasonality:     true,
		DailySeasonality:      false,
		YearlyOrder:           10,
		WeeklyOrder:           3,
		DailyOrder:            4,
		ChangepointCount:      25,
		ChangepointRange:      0.8,
		ChangepointPriorScale: 0.05,
		SeasonalityPriorScale: 10,
		IntervalWidth:         config.DefaultForecastInterval,
		DateColumn:            sources.ColOrderDate,
		ValueColumn:           sources.ColTotalAmount,
		DateLayout:            config.OrderDateLayout,
	}
}

// withDefaults fills zero-valued fields that have no meaningful zero
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o == (Options{}) {
		return d
	}
	if o.YearlyOrder == 0 {
		o.YearlyOrder = d.YearlyOrder
	}
	if o.WeeklyOrder == 0 {
		o.WeeklyOrder = d.WeeklyOrder
	}
	if o.DailyOrder == 0 {
		o.DailyOrder = d.DailyOrder
	}
	if o.ChangepointRange == 0 {
		o.ChangepointRange = d.ChangepointRange
	}
	if o.ChangepointPriorScale == 0 {
		o.ChangepointPriorScale = d.ChangepointPriorScale
	}
	if o.SeasonalityPriorScale == 0 {
		o.SeasonalityPriorScale = d.SeasonalityPriorScale
	}
	if o.IntervalWidth == 0 {
		o.IntervalWidth = d.IntervalWidth
	}
	if o.DateColumn == "" {
		o.DateColumn = d.DateColumn
	}
	if o.ValueColumn == "" {
		o.ValueColumn = d.ValueColumn
	}
	if o.DateLayout == "" {
		o.DateLayout = d.DateLayout
	}
	return o
}

// Validate checks option ranges
func (o Options) Validate() error {
	switch {
	case o.Periods < 0:
		return apperrors.NewAppValidationError(fmt.Sprintf("periods must not be negative, got %d", o.Periods))
	case o.IntervalWidth <= 0 || o.IntervalWidth >= 1:
		return apperrors.NewAppValidationError(fmt.Sprintf("interval width must be in (0,1), got %g", o.IntervalWidth))
	case o.ChangepointRange <= 0 || o.ChangepointRange > 1:
		return apperrors.NewAppValidationError(fmt.Sprintf("changepoint range must be in (0,1], got %g", o.ChangepointRange))
	case o.ChangepointCount < 0:
		return apperrors.NewAppValidationError("changepoint count must not be negative")
	case o.ChangepointPriorScale < 0 || o.SeasonalityPriorScale < 0:
		return apperrors.NewAppValidationError("prior scales must be positive")
	case o.YearlyOrder < 0 || o.WeeklyOrder < 0 || o.DailyOrder < 0:
		return apperrors.NewAppValidationError("fourier orders must be positive")
	}
	return nil
}

// Row is one forecast date. Components sum to YHat.
type Row struct {
	Date       time.Time `json:"ds"`
	YHat       float64   `json:"yhat"`
	YHatLower  float64   `json:"yhat_lower"`
	YHatUpper  float64   `json:"yhat_upper"`
	Trend      float64   `json:"trend"`
	Yearly     float64   `json:"yearly"`
	Weekly     float64   `json:"weekly"`
	Daily      float64   `json:"daily"`
	Historical bool      `json:"historical"`
}

// Result holds the full predicted series, history first
type Result struct {
	Rows  []Row
	Model *Model
}

// History returns the rows for observed dates
func (r *Result) History() []Row {
	return r.Rows[:len(r.Model.History)]
}

// Future returns only the forecast horizon
func (r *Result) Future() []Row {
	return r.Rows[len(r.Model.History):]
}

// Run aggregates the table into a daily series, fits the model and predicts
// every historical date plus opts.Periods following days.
func Run(table *dataset.Table, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	series, err := DailySeries(table, opts)
	if err != nil {
		return nil, fmt.Errorf("daily series: %w", err)
	}

	model, err := Fit(series, opts)
	if err != nil {
		return nil, err
	}

	dates := make([]time.Time, 0, len(series)+opts.Periods)
	for _, p := range series {
		dates = append(dates, p.Date)
	}
	dates = append(dates, model.FutureDates(opts.Periods)...)

	rows := model.Predict(dates)
	for i := range series {
		rows[i].Historical = true
	}
	return &Result{Rows: rows, Model: model}, nil
}
