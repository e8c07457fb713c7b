package forecast

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	apperrors "foodpulse/internal/errors"
)

const (
	secondsPerDay = 86400
	yearDays      = 365.25

	// prior scale of the base growth rate
	slopePriorScale = 5.0
)

type seasonality struct {
	name   string
	period float64 // days
	order  int
	column int // first of 2*order sin/cos columns
}

// Model is a fitted additive forecast model
type Model struct {
	// History is the training series
	History []Point
	// Changepoints are the dates where the trend may change slope
	Changepoints []time.Time

	start  time.Time
	tScale float64 // days mapped onto [0,1]
	yScale float64

	cps     []float64 // changepoints in scaled time
	seasons []seasonality
	width   int
	beta    []float64

	sigma      float64 // residual std, scaled units
	deltaScale float64 // mean absolute slope change
	z          float64

	constant bool
}

// Fit estimates the model on a daily series sorted by date. One date yields a
// constant model equal to that day's value.
func Fit(series []Point, opts Options) (*Model, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	n := len(series)
	if n == 0 {
		return nil, apperrors.NewInsufficientDataError("forecast needs at least one dated row")
	}

	m := &Model{
		History: append([]Point(nil), series...),
		start:   series[0].Date,
		z:       distuv.UnitNormal.Quantile((1 + opts.IntervalWidth) / 2),
	}

	y := make([]float64, n)
	for i, p := range series {
		y[i] = p.Value
		m.yScale = math.Max(m.yScale, math.Abs(p.Value))
	}
	if m.yScale == 0 {
		m.yScale = 1
	}
	floats.Scale(1/m.yScale, y)

	if n == 1 {
		m.tScale = 1
		m.constant = true
		m.beta = []float64{y[0]}
		return m, nil
	}

	m.tScale = dayNumber(series[n-1].Date) - dayNumber(m.start)
	t := make([]float64, n)
	for i, p := range series {
		t[i] = m.scaledTime(p.Date)
	}

	m.placeChangepoints(series, t, opts)
	m.addSeasonalities(opts)

	penalty := make([]float64, m.width)
	penalty[1] = 1 / (slopePriorScale * slopePriorScale)
	for j := range m.cps {
		penalty[2+j] = 1 / (opts.ChangepointPriorScale * opts.ChangepointPriorScale)
	}
	for _, s := range m.seasons {
		for c := s.column; c < s.column+2*s.order; c++ {
			penalty[c] = 1 / (opts.SeasonalityPriorScale * opts.SeasonalityPriorScale)
		}
	}

	X := mat.NewDense(n, m.width, nil)
	for i, p := range series {
		X.SetRow(i, m.features(p.Date))
	}

	var gram mat.SymDense
	gram.SymOuterK(1, X.T())
	for j, l := range penalty {
		gram.SetSym(j, j, gram.At(j, j)+l)
	}

	yv := mat.NewVecDense(n, y)
	var rhs mat.VecDense
	rhs.MulVec(X.T(), yv)

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return nil, fmt.Errorf("forecast fit: normal equations are not positive definite")
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &rhs); err != nil {
		return nil, fmt.Errorf("forecast fit: %w", err)
	}
	m.beta = mat.Col(nil, 0, &beta)

	var fitted mat.VecDense
	fitted.MulVec(X, &beta)
	resid := make([]float64, n)
	floats.SubTo(resid, y, fitted.RawVector().Data)
	m.sigma = math.Sqrt(floats.Dot(resid, resid) / float64(n))

	if len(m.cps) > 0 {
		deltas := m.beta[2 : 2+len(m.cps)]
		m.deltaScale = floats.Norm(deltas, 1) / float64(len(deltas))
	}
	return m, nil
}

// placeChangepoints spreads changepoints evenly over the observed rows that
// fall in the first ChangepointRange of the history.
func (m *Model) placeChangepoints(series []Point, t []float64, opts Options) {
	histSize := int(math.Floor(float64(len(series)) * opts.ChangepointRange))
	count := min(opts.ChangepointCount, histSize-1)
	for j := 1; j <= count; j++ {
		idx := int(math.RoundToEven(float64(j) * float64(histSize-1) / float64(count)))
		m.cps = append(m.cps, t[idx])
		m.Changepoints = append(m.Changepoints, series[idx].Date)
	}
	m.width = 2 + len(m.cps)
}

func (m *Model) addSeasonalities(opts Options) {
	add := func(enabled bool, name string, period float64, order int) {
		if !enabled || order == 0 {
			return
		}
		m.seasons = append(m.seasons, seasonality{name: name, period: period, order: order, column: m.width})
		m.width += 2 * order
	}
	add(opts.YearlySeasonality, "yearly", yearDays, opts.YearlyOrder)
	add(opts.WeeklySeasonality, "weekly", 7, opts.WeeklyOrder)
	add(opts.DailySeasonality, "daily", 1, opts.DailyOrder)
}

func dayNumber(d time.Time) float64 {
	return float64(d.Unix()) / secondsPerDay
}

func (m *Model) scaledTime(d time.Time) float64 {
	return (dayNumber(d) - dayNumber(m.start)) / m.tScale
}

// features is one design matrix row
func (m *Model) features(d time.Time) []float64 {
	t := m.scaledTime(d)
	x := make([]float64, m.width)
	x[0] = 1
	x[1] = t
	for j, s := range m.cps {
		x[2+j] = math.Max(0, t-s)
	}
	day := dayNumber(d)
	for _, s := range m.seasons {
		for k := 1; k <= s.order; k++ {
			arg := 2 * math.Pi * float64(k) * day / s.period
			x[s.column+2*(k-1)] = math.Sin(arg)
			x[s.column+2*(k-1)+1] = math.Cos(arg)
		}
	}
	return x
}

// variance of the scaled prediction at scaled time t. Beyond the history,
// slope changes keep arriving at the historical rate with Laplace magnitudes
// of scale deltaScale; their contribution grows with the cube of the horizon.
func (m *Model) variance(t float64) float64 {
	v := m.sigma * m.sigma
	if h := t - 1; h > 0 && len(m.cps) > 0 {
		rate := float64(len(m.cps))
		v += rate * 2 * m.deltaScale * m.deltaScale * h * h * h / 3
	}
	return v
}

// FutureDates returns the periods days following the last observed date
func (m *Model) FutureDates(periods int) []time.Time {
	last := m.History[len(m.History)-1].Date
	dates := make([]time.Time, periods)
	for i := range dates {
		dates[i] = last.AddDate(0, 0, i+1)
	}
	return dates
}

// NoiseStd is the residual standard deviation in revenue units
func (m *Model) NoiseStd() float64 {
	return m.sigma * m.yScale
}

// Predict evaluates the model at each date
func (m *Model) Predict(dates []time.Time) []Row {
	rows := make([]Row, len(dates))
	for i, d := range dates {
		row := Row{Date: d}
		if m.constant {
			level := m.beta[0] * m.yScale
			row.Trend, row.YHat, row.YHatLower, row.YHatUpper = level, level, level, level
			rows[i] = row
			continue
		}

		x := m.features(d)
		trendEnd := 2 + len(m.cps)
		row.Trend = floats.Dot(x[:trendEnd], m.beta[:trendEnd]) * m.yScale
		for _, s := range m.seasons {
			end := s.column + 2*s.order
			v := floats.Dot(x[s.column:end], m.beta[s.column:end]) * m.yScale
			switch s.name {
			case "yearly":
				row.Yearly = v
			case "weekly":
				row.Weekly = v
			case "daily":
				row.Daily = v
			}
		}
		row.YHat = row.Trend + row.Yearly + row.Weekly + row.Daily

		half := m.z * math.Sqrt(m.variance(m.scaledTime(d))) * m.yScale
		row.YHatLower = row.YHat - half
		row.YHatUpper = row.YHat + half
		rows[i] = row
	}
	return rows
}
