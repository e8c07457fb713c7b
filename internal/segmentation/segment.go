package segmentation

import (
	"fmt"
	"strconv"

	"foodpulse/internal/config"
	"foodpulse/internal/dataset"
	apperrors "foodpulse/internal/errors"
)

// Options configures Segment
type Options struct {
	Clusters  int
	Seed      uint64
	MaxIter   int
	Tolerance float64
	Inits     int
}

// DefaultOptions returns four clusters with seed 42
func DefaultOptions() Options {
	return Options{
		Clusters:  config.DefaultSegmentCount,
		Seed:      config.DefaultRandomSeed,
		MaxIter:   300,
		Tolerance: 1e-4,
		Inits:     10,
	}
}

// Result is the per-user feature table with segment labels
type Result struct {
	Users     []UserFeatures `json:"users"`
	Centroids [][]float64    `json:"centroids"`
	Inertia   float64        `json:"inertia"`
	Scaler    Scaler         `json:"scaler"`
}

// Sizes counts users per segment label
func (r *Result) Sizes() map[int]int {
	sizes := make(map[int]int)
	for _, u := range r.Users {
		sizes[u.Segment]++
	}
	return sizes
}

// Segment builds user features, standardizes them and assigns each user a
// label in [0, Clusters). No users yields an empty result; fewer users than
// clusters is an insufficient data error.
func Segment(table *dataset.Table, opts Options) (*Result, error) {
	if opts.Clusters < 1 {
		return nil, apperrors.NewAppValidationError(fmt.Sprintf("clusters must be at least 1, got %d", opts.Clusters))
	}
	d := DefaultOptions()
	if opts.MaxIter <= 0 {
		opts.MaxIter = d.MaxIter
	}
	if opts.Tolerance < 0 {
		return nil, apperrors.NewAppValidationError("tolerance must not be negative")
	}

	users, err := BuildUserFeatures(table)
	if err != nil {
		return nil, fmt.Errorf("user features: %w", err)
	}
	if len(users) == 0 {
		return &Result{Users: users}, nil
	}
	if len(users) < opts.Clusters {
		return nil, apperrors.NewInsufficientDataError(
			fmt.Sprintf("%d users cannot form %d segments", len(users), opts.Clusters))
	}

	rows := make([][]float64, len(users))
	for i, u := range users {
		rows[i] = u.vector()
	}
	imputeColumnMeans(rows)

	scaler := FitScaler(rows)
	clustering := KMeans{
		K:         opts.Clusters,
		MaxIter:   opts.MaxIter,
		Tolerance: opts.Tolerance,
		Inits:     opts.Inits,
		Seed:      opts.Seed,
	}.Fit(scaler.Transform(rows))

	for i := range users {
		users[i].Segment = clustering.Labels[i]
	}
	return &Result{
		Users:     users,
		Centroids: clustering.Centroids,
		Inertia:   clustering.Inertia,
		Scaler:    scaler,
	}, nil
}

// Table renders the result as a dataset table; undefined averages are missing
func (r *Result) Table() *dataset.Table {
	columns := append([]string{"user_id"}, FeatureNames...)
	columns = append(columns, "segment")

	rows := make([][]dataset.Value, len(r.Users))
	for i, u := range r.Users {
		rows[i] = []dataset.Value{
			dataset.String(u.UserID),
			dataset.Int(int64(u.TotalOrders)),
			dataset.Float(u.TotalSpent),
			optional(u.AvgOrderValue),
			optional(u.AvgRating),
			dataset.String(strconv.Itoa(u.Segment)),
		}
	}
	return dataset.MustNew(columns, rows)
}

func optional(p *float64) dataset.Value {
	if p == nil {
		return dataset.Null
	}
	return dataset.Float(*p)
}
