// Package forecast produces a daily revenue forecast from the analytics table.
//
// The model is additive:
//
//	y(t) = trend(t) + yearly(t) + weekly(t) [+ daily(t)]
//
// # Core Components
//
//   - series.go: aggregation of order rows into a daily revenue series
//   - model.go: design matrix, ridge fit and prediction
//   - forecast.go: Options, Run and the forecast rows
//
// The trend is piecewise linear with changepoints placed over the first part
// of the history. Seasonal terms are Fourier series. Coefficients carry
// Gaussian priors, so the fit reduces to ridge-regularized least squares on
// a scaled problem. Uncertainty bounds combine residual noise with the
// variance of future trend changes, which grows with the horizon.
//
// # Usage Example
//
//	res, err := forecast.Run(table, forecast.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	for _, row := range res.Future() {
//	    fmt.Println(row.Date.Format("2006-01-02"), row.YHat)
//	}
package forecast
