package explain

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"

	"foodpulse/internal/config"
	"foodpulse/internal/dataset"
	apperrors "foodpulse/internal/errors"
	"foodpulse/internal/sources"
)

// Options configures Explain
type Options struct {
	Features       []string
	Target         string
	Trees          int
	Seed           uint64
	MinSamplesLeaf int
	MaxDepth       int
	BackgroundSize int
}

// DefaultOptions explains total_amount by rating with 100 trees and seed 42
func DefaultOptions() Options {
	return Options{
		Features:       []string{sources.ColRating},
		Target:         sources.ColTotalAmount,
		Trees:          config.DefaultForestTrees,
		Seed:           config.DefaultRandomSeed,
		MinSamplesLeaf: 1,
		BackgroundSize: config.DefaultBackgroundSize,
	}
}

// Validate checks option ranges
func (o Options) Validate() error {
	switch {
	case len(o.Features) == 0:
		return apperrors.NewAppValidationError("at least one feature is required")
	case o.Target == "":
		return apperrors.NewAppValidationError("target column is required")
	case o.Trees < 1:
		return apperrors.NewAppValidationError(fmt.Sprintf("trees must be at least 1, got %d", o.Trees))
	case o.MinSamplesLeaf < 0 || o.MaxDepth < 0 || o.BackgroundSize < 0:
		return apperrors.NewAppValidationError("min samples leaf, max depth and background size must not be negative")
	}
	for _, f := range o.Features {
		if f == o.Target {
			return apperrors.NewAppValidationError(fmt.Sprintf("feature %q is also the target", f))
		}
	}
	return nil
}

// Attribution holds one row of attribution values per explained observation
type Attribution struct {
	Features []string `json:"features"`
	// X is the feature table the values were computed against
	X [][]float64 `json:"x"`
	// Rows maps each observation back to its row in the input table
	Rows []int `json:"rows"`
	// Dropped counts input rows left out for a missing feature or target
	Dropped     int         `json:"dropped_rows"`
	Values      [][]float64 `json:"values"`
	BaseValue   float64     `json:"base_value"`
	Predictions []float64   `json:"predictions"`

	Model *Forest `json:"-"`
}

// FeatureImportance is the mean absolute attribution of one feature
type FeatureImportance struct {
	Feature     string  `json:"feature"`
	MeanAbsSHAP float64 `json:"mean_abs_shap"`
}

// Importance ranks features by mean absolute attribution, largest first
func (a *Attribution) Importance() []FeatureImportance {
	out := make([]FeatureImportance, len(a.Features))
	for j, name := range a.Features {
		out[j].Feature = name
		if len(a.Values) == 0 {
			continue
		}
		sum := 0.0
		for _, row := range a.Values {
			sum += math.Abs(row[j])
		}
		out[j].MeanAbsSHAP = sum / float64(len(a.Values))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MeanAbsSHAP > out[j].MeanAbsSHAP })
	return out
}

// Table renders the attribution values with one shap_<feature> column per
// feature next to the feature values.
func (a *Attribution) Table() *dataset.Table {
	columns := make([]string, 0, 2*len(a.Features)+1)
	columns = append(columns, a.Features...)
	for _, f := range a.Features {
		columns = append(columns, "shap_"+f)
	}
	columns = append(columns, "prediction")

	rows := make([][]dataset.Value, len(a.Values))
	for i := range a.Values {
		row := make([]dataset.Value, 0, len(columns))
		for _, v := range a.X[i] {
			row = append(row, dataset.Float(v))
		}
		for _, v := range a.Values[i] {
			row = append(row, dataset.Float(v))
		}
		rows[i] = append(row, dataset.Float(a.Predictions[i]))
	}
	return dataset.MustNew(columns, rows)
}

// Explain fits a random forest of the target on the features and attributes
// every complete row. Rows with a missing feature or target are left out.
func Explain(table *dataset.Table, opts Options) (*Attribution, error) {
	if opts.BackgroundSize == 0 {
		opts.BackgroundSize = config.DefaultBackgroundSize
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	X, y, rows, err := matrix(table, opts.Features, opts.Target)
	if err != nil {
		return nil, err
	}

	attr := &Attribution{
		Features:    append([]string(nil), opts.Features...),
		X:           X,
		Rows:        rows,
		Dropped:     table.Len() - len(rows),
		Values:      make([][]float64, 0, len(X)),
		Predictions: make([]float64, 0, len(X)),
	}
	if len(X) == 0 {
		return attr, nil
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	forest := FitForest(X, y, ForestOptions{
		Trees:          opts.Trees,
		MinSamplesLeaf: opts.MinSamplesLeaf,
		MaxDepth:       opts.MaxDepth,
	}, rng)
	attr.Model = forest

	background := X
	if len(X) > opts.BackgroundSize {
		perm := rng.Perm(len(X))[:opts.BackgroundSize]
		sort.Ints(perm)
		background = make([][]float64, len(perm))
		for i, p := range perm {
			background[i] = X[p]
		}
	}
	for _, z := range background {
		attr.BaseValue += forest.Predict(z)
	}
	attr.BaseValue /= float64(len(background))

	// identical feature vectors share their attribution
	cache := make(map[string][]float64)
	for _, x := range X {
		key := vectorKey(x)
		phi, ok := cache[key]
		if !ok {
			phi = forest.SHAP(x, background)
			cache[key] = phi
		}
		attr.Values = append(attr.Values, append([]float64(nil), phi...))
		attr.Predictions = append(attr.Predictions, forest.Predict(x))
	}
	return attr, nil
}

// matrix extracts complete rows of features and target. Rows with a missing
// feature or target are skipped and absent from the returned row indexes.
func matrix(table *dataset.Table, features []string, target string) ([][]float64, []float64, []int, error) {
	if err := table.RequireColumns(append(append([]string(nil), features...), target)...); err != nil {
		return nil, nil, nil, err
	}

	var X [][]float64
	var y []float64
	var rows []int
	for i := 0; i < table.Len(); i++ {
		t, ok, err := table.Get(i, target).AsFloat()
		if err != nil {
			return nil, nil, nil, apperrors.NewParsingError(fmt.Sprintf("row %d column %s", i, target), err)
		}
		if !ok {
			continue
		}
		x := make([]float64, len(features))
		complete := true
		for j, name := range features {
			v, ok, err := table.Get(i, name).AsFloat()
			if err != nil {
				return nil, nil, nil, apperrors.NewParsingError(fmt.Sprintf("row %d column %s", i, name), err)
			}
			if !ok {
				complete = false
				break
			}
			x[j] = v
		}
		if !complete {
			continue
		}
		X = append(X, x)
		y = append(y, t)
		rows = append(rows, i)
	}
	return X, y, rows, nil
}

func vectorKey(x []float64) string {
	parts := make([]string, len(x))
	for i, v := range x {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, "|")
}
