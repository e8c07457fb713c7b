package segmentation

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// epsilon is float64 machine epsilon
const epsilon = 2.220446049250313e-16

// Scaler standardizes columns to zero mean and unit population variance
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitScaler learns per-column mean and standard deviation. A (numerically)
// constant column gets scale 1 so it maps to zeros.
func FitScaler(rows [][]float64) Scaler {
	if len(rows) == 0 {
		return Scaler{}
	}
	width := len(rows[0])
	s := Scaler{Mean: make([]float64, width), Scale: make([]float64, width)}
	col := make([]float64, len(rows))
	for j := 0; j < width; j++ {
		for i, r := range rows {
			col[i] = r[j]
		}
		m, v := stat.PopMeanVariance(col, nil)
		s.Mean[j] = m
		s.Scale[j] = math.Sqrt(v)
		if s.Scale[j] < 10*epsilon {
			s.Scale[j] = 1
		}
	}
	return s
}

// Transform returns standardized copies of rows
func (s Scaler) Transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = make([]float64, len(r))
		for j, v := range r {
			out[i][j] = (v - s.Mean[j]) / s.Scale[j]
		}
	}
	return out
}

// imputeColumnMeans replaces NaN cells with the mean of the column's other
// cells, or 0 when the whole column is undefined.
func imputeColumnMeans(rows [][]float64) {
	if len(rows) == 0 {
		return
	}
	for j := range rows[0] {
		sum, count := 0.0, 0
		for _, r := range rows {
			if !math.IsNaN(r[j]) {
				sum += r[j]
				count++
			}
		}
		fill := 0.0
		if count > 0 {
			fill = sum / float64(count)
		}
		for _, r := range rows {
			if math.IsNaN(r[j]) {
				r[j] = fill
			}
		}
	}
}
