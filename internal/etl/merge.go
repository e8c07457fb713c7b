package etl

import (
	"fmt"
	"log/slog"

	"foodpulse/internal/dataset"
	apperrors "foodpulse/internal/errors"
	"foodpulse/internal/infrastructure"
	"foodpulse/internal/sources"
)

// Options configures Merge
type Options struct {
	UserKey       string
	RestaurantKey string
	LeftSuffix    string
	RightSuffix   string
	Logger        *slog.Logger
}

// DefaultOptions returns the join keys and suffixes used by the pipeline
func DefaultOptions() Options {
	return Options{
		UserKey:       sources.ColUserID,
		RestaurantKey: sources.ColRestaurantID,
		LeftSuffix:    "_x",
		RightSuffix:   "_y",
	}
}

// MergeStats describes one merge
type MergeStats struct {
	Rows    int `json:"rows"`
	Columns int `json:"columns"`

	UnmatchedUsers       int `json:"unmatched_users"`
	UnmatchedRestaurants int `json:"unmatched_restaurants"`

	// right-side keys seen more than once; only the first occurrence joins
	DuplicateUserKeys       int `json:"duplicate_user_keys"`
	DuplicateRestaurantKeys int `json:"duplicate_restaurant_keys"`
}

// Merge left-joins users and then restaurants onto orders
func Merge(orders, users, restaurants *dataset.Table, opts Options) (*dataset.Table, MergeStats, error) {
	defaults := DefaultOptions()
	if opts.UserKey == "" {
		opts.UserKey = defaults.UserKey
	}
	if opts.RestaurantKey == "" {
		opts.RestaurantKey = defaults.RestaurantKey
	}
	if opts.LeftSuffix == "" {
		opts.LeftSuffix = defaults.LeftSuffix
	}
	if opts.RightSuffix == "" {
		opts.RightSuffix = defaults.RightSuffix
	}
	logger := opts.Logger
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	var stats MergeStats

	withUsers, unmatched, dups, err := leftJoin(orders, users, opts.UserKey, opts)
	if err != nil {
		return nil, stats, fmt.Errorf("join users: %w", err)
	}
	stats.UnmatchedUsers, stats.DuplicateUserKeys = unmatched, dups

	merged, unmatched, dups, err := leftJoin(withUsers, restaurants, opts.RestaurantKey, opts)
	if err != nil {
		return nil, stats, fmt.Errorf("join restaurants: %w", err)
	}
	stats.UnmatchedRestaurants, stats.DuplicateRestaurantKeys = unmatched, dups

	stats.Rows = merged.Len()
	stats.Columns = merged.Width()

	if stats.DuplicateUserKeys > 0 || stats.DuplicateRestaurantKeys > 0 {
		logger.Warn("duplicate master data keys ignored",
			slog.Int("duplicate_user_keys", stats.DuplicateUserKeys),
			slog.Int("duplicate_restaurant_keys", stats.DuplicateRestaurantKeys))
	}

	return merged, stats, nil
}

// leftJoin appends right's non-key columns to every left row with gota's
// LeftJoin. Right rows are reduced to the first occurrence of each key first,
// so every left row appears exactly once and in its original position. It
// returns the number of left rows without a match and the number of repeated
// right keys.
func leftJoin(left, right *dataset.Table, key string, opts Options) (*dataset.Table, int, int, error) {
	if err := left.RequireColumns(key); err != nil {
		return nil, 0, 0, err
	}
	if err := right.RequireColumns(key); err != nil {
		return nil, 0, 0, err
	}

	columns, err := joinedColumns(left.Columns(), right.Columns(), key, opts)
	if err != nil {
		return nil, 0, 0, err
	}

	leftNames, rightNames := collisionRenames(left.Columns(), right.Columns(), key, opts)
	left, err = left.Rename(leftNames)
	if err != nil {
		return nil, 0, 0, err
	}
	right, err = right.Rename(rightNames)
	if err != nil {
		return nil, 0, 0, err
	}

	right, keys, duplicates := firstByKey(right, key)

	unmatched := 0
	for i := 0; i < left.Len(); i++ {
		k := left.Get(i, key)
		if _, ok := keys[k.String()]; k.IsNull() || !ok {
			unmatched++
		}
	}

	joined, err := dataset.FromFrame(left.Frame().LeftJoin(right.Frame(), key))
	if err != nil {
		return nil, 0, 0, err
	}
	if joined.Len() != left.Len() {
		return nil, 0, 0, fmt.Errorf("join on %s produced %d rows from %d", key, joined.Len(), left.Len())
	}

	table, err := joined.Select(columns...)
	if err != nil {
		return nil, 0, 0, err
	}
	return table, unmatched, duplicates, nil
}

// firstByKey keeps the first row for every present key and drops rows whose
// key is missing. It returns the kept keys and how many rows repeated one.
func firstByKey(t *dataset.Table, key string) (*dataset.Table, map[string]struct{}, int) {
	keys := make(map[string]struct{}, t.Len())
	duplicates := 0
	kept := t.Filter(func(r dataset.RowView) bool {
		k := r.Get(key)
		if k.IsNull() {
			return false
		}
		if _, seen := keys[k.String()]; seen {
			duplicates++
			return false
		}
		keys[k.String()] = struct{}{}
		return true
	})
	return kept, keys, duplicates
}

// collisionRenames maps every non-key column present on both sides to its
// suffixed name, per side.
func collisionRenames(left, right []string, key string, opts Options) (map[string]string, map[string]string) {
	inRight := make(map[string]bool, len(right))
	for _, c := range right {
		inRight[c] = true
	}
	leftNames := make(map[string]string)
	rightNames := make(map[string]string)
	for _, c := range left {
		if c != key && inRight[c] {
			leftNames[c] = c + opts.LeftSuffix
			rightNames[c] = c + opts.RightSuffix
		}
	}
	return leftNames, rightNames
}

// joinedColumns names the output columns: left columns, then right columns
// without the key, suffixing names that exist on both sides.
func joinedColumns(left, right []string, key string, opts Options) ([]string, error) {
	inLeft := make(map[string]bool, len(left))
	for _, c := range left {
		inLeft[c] = true
	}
	inRight := make(map[string]bool, len(right))
	for _, c := range right {
		if c != key {
			inRight[c] = true
		}
	}

	columns := make([]string, 0, len(left)+len(right)-1)
	for _, c := range left {
		if c != key && inRight[c] {
			c += opts.LeftSuffix
		}
		columns = append(columns, c)
	}
	for _, c := range right {
		if c == key {
			continue
		}
		if inLeft[c] {
			c += opts.RightSuffix
		}
		columns = append(columns, c)
	}

	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if seen[c] {
			return nil, apperrors.NewSchemaError(fmt.Sprintf("joined column %q is ambiguous", c), nil)
		}
		seen[c] = true
	}
	return columns, nil
}
