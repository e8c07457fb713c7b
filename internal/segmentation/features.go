package segmentation

import (
	"fmt"
	"math"
	"sort"

	"foodpulse/internal/dataset"
	apperrors "foodpulse/internal/errors"
	"foodpulse/internal/sources"
)

// FeatureNames lists the clustered features in matrix column order
var FeatureNames = []string{"total_orders", "total_spent", "avg_order_value", "avg_rating"}

// UserFeatures is one row of the per-user feature table. Averages are nil
// when the user has no value to average.
type UserFeatures struct {
	UserID        string   `json:"user_id"`
	TotalOrders   int      `json:"total_orders"`
	TotalSpent    float64  `json:"total_spent"`
	AvgOrderValue *float64 `json:"avg_order_value"`
	AvgRating     *float64 `json:"avg_rating"`
	Segment       int      `json:"segment"`
}

// vector returns the features with NaN for undefined averages
func (u UserFeatures) vector() []float64 {
	return []float64{float64(u.TotalOrders), u.TotalSpent, deref(u.AvgOrderValue), deref(u.AvgRating)}
}

func deref(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

type accumulator struct {
	orders      int
	amountSum   float64
	amountCount int
	ratingSum   float64
	ratingCount int
}

func mean(sum float64, count int) *float64 {
	if count == 0 {
		return nil
	}
	m := sum / float64(count)
	return &m
}

// BuildUserFeatures aggregates orders per user_id, sorted by user_id. Rows
// without a user_id are skipped. Orders are counted by present order_id;
// missing amounts and ratings are left out of sums and means.
func BuildUserFeatures(table *dataset.Table) ([]UserFeatures, error) {
	if err := table.RequireColumns(sources.ColUserID, sources.ColOrderID, sources.ColTotalAmount); err != nil {
		return nil, err
	}
	hasRating := table.HasColumn(sources.ColRating)

	groups := make(map[string]*accumulator)
	for i := 0; i < table.Len(); i++ {
		user := table.Get(i, sources.ColUserID)
		if user.IsNull() {
			continue
		}
		acc, ok := groups[user.String()]
		if !ok {
			acc = &accumulator{}
			groups[user.String()] = acc
		}

		if !table.Get(i, sources.ColOrderID).IsNull() {
			acc.orders++
		}
		amount, ok, err := table.Get(i, sources.ColTotalAmount).AsFloat()
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("row %d column %s", i, sources.ColTotalAmount), err)
		}
		if ok {
			acc.amountSum += amount
			acc.amountCount++
		}
		if hasRating {
			rating, ok, err := table.Get(i, sources.ColRating).AsFloat()
			if err != nil {
				return nil, apperrors.NewParsingError(fmt.Sprintf("row %d column %s", i, sources.ColRating), err)
			}
			if ok {
				acc.ratingSum += rating
				acc.ratingCount++
			}
		}
	}

	users := make([]UserFeatures, 0, len(groups))
	for id, acc := range groups {
		users = append(users, UserFeatures{
			UserID:        id,
			TotalOrders:   acc.orders,
			TotalSpent:    acc.amountSum,
			AvgOrderValue: mean(acc.amountSum, acc.amountCount),
			AvgRating:     mean(acc.ratingSum, acc.ratingCount),
		})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users, nil
}
