package insights

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"foodpulse/internal/config"
	"foodpulse/internal/dataset"
	apperrors "foodpulse/internal/errors"
	"foodpulse/internal/sources"
)

var hundred = decimal.NewFromInt(100)

// Options configures Summarize
type Options struct {
	DateLayout string
	GoldTier   string
}

// DefaultOptions uses the order date layout and the "Gold" tier
func DefaultOptions() Options {
	return Options{DateLayout: config.OrderDateLayout, GoldTier: "Gold"}
}

// KPIs are the headline numbers
type KPIs struct {
	TotalOrders   int             `json:"total_orders"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	AvgOrderValue decimal.Decimal `json:"avg_order_value"`
	// GoldRevenuePct is the share of revenue from the gold tier, 0 without revenue
	GoldRevenuePct decimal.Decimal `json:"gold_revenue_pct"`
}

// MonthCount is the number of orders in one YYYY-MM month
type MonthCount struct {
	Month  string `json:"month"`
	Orders int    `json:"orders"`
}

// GroupRevenue is the revenue of one city or cuisine
type GroupRevenue struct {
	Key     string          `json:"key"`
	Revenue decimal.Decimal `json:"revenue"`
}

// MembershipStats summarizes one membership tier
type MembershipStats struct {
	Membership    string          `json:"membership"`
	OrderCount    int             `json:"order_count"`
	AvgOrderValue decimal.Decimal `json:"avg_order_value"`
	Revenue       decimal.Decimal `json:"revenue"`
}

// Summary is the dashboard data for one table
type Summary struct {
	KPIs             KPIs              `json:"kpis"`
	MonthlyOrders    []MonthCount      `json:"monthly_orders"`
	RevenueByCity    []GroupRevenue    `json:"revenue_by_city"`
	RevenueByCuisine []GroupRevenue    `json:"revenue_by_cuisine"`
	Memberships      []MembershipStats `json:"memberships"`
}

type group struct {
	count   int
	revenue decimal.Decimal
}

// Summarize computes KPIs and breakdowns. Missing amounts are left out of
// sums and means; rows with a missing group key are left out of that
// breakdown. Columns other than total_amount are optional.
func Summarize(table *dataset.Table, opts Options) (*Summary, error) {
	if opts.DateLayout == "" {
		opts.DateLayout = config.OrderDateLayout
	}
	if err := table.RequireColumns(sources.ColTotalAmount); err != nil {
		return nil, err
	}

	s := &Summary{}
	s.KPIs.TotalOrders = table.Len()

	months := make(map[string]int)
	cities := make(map[string]*group)
	cuisines := make(map[string]*group)
	tiers := make(map[string]*group)
	amounts := 0
	gold := decimal.Zero

	for i := 0; i < table.Len(); i++ {
		amount, present, err := table.Get(i, sources.ColTotalAmount).AsDecimal()
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("row %d column %s", i, sources.ColTotalAmount), err)
		}
		if present {
			amounts++
			s.KPIs.TotalRevenue = s.KPIs.TotalRevenue.Add(amount)
		}

		if d := table.Get(i, sources.ColOrderDate); !d.IsNull() {
			month, err := monthOf(d.String(), opts.DateLayout)
			if err != nil {
				return nil, apperrors.NewParsingError(fmt.Sprintf("row %d column %s", i, sources.ColOrderDate), err)
			}
			months[month]++
		}

		tally(cities, table.Get(i, sources.ColCity), amount, present)
		tally(cuisines, table.Get(i, sources.ColCuisine), amount, present)
		tier := table.Get(i, sources.ColMembership)
		tally(tiers, tier, amount, present)
		if present && !tier.IsNull() && tier.String() == opts.GoldTier {
			gold = gold.Add(amount)
		}
	}

	if amounts > 0 {
		s.KPIs.AvgOrderValue = s.KPIs.TotalRevenue.Div(decimal.NewFromInt(int64(amounts))).Round(2)
	}
	if s.KPIs.TotalRevenue.IsPositive() {
		s.KPIs.GoldRevenuePct = gold.Mul(hundred).Div(s.KPIs.TotalRevenue).Round(1)
	}

	for month, n := range months {
		s.MonthlyOrders = append(s.MonthlyOrders, MonthCount{Month: month, Orders: n})
	}
	sort.Slice(s.MonthlyOrders, func(i, j int) bool { return s.MonthlyOrders[i].Month < s.MonthlyOrders[j].Month })

	s.RevenueByCity = revenues(cities)
	sort.SliceStable(s.RevenueByCity, func(i, j int) bool {
		return s.RevenueByCity[i].Revenue.LessThan(s.RevenueByCity[j].Revenue)
	})
	s.RevenueByCuisine = revenues(cuisines)

	for _, key := range sortedKeys(tiers) {
		g := tiers[key]
		stats := MembershipStats{Membership: key, OrderCount: g.count, Revenue: g.revenue}
		if g.count > 0 {
			stats.AvgOrderValue = g.revenue.Div(decimal.NewFromInt(int64(g.count))).Round(2)
		}
		s.Memberships = append(s.Memberships, stats)
	}
	return s, nil
}

func monthOf(raw, layout string) (string, error) {
	t, err := time.Parse(layout, raw)
	if err != nil {
		if iso, isoErr := time.Parse("2006-01-02", raw); isoErr == nil {
			t, err = iso, nil
		}
	}
	if err != nil {
		return "", err
	}
	return t.Format("2006-01"), nil
}

// tally counts present amounts per non-missing key. Keys whose rows all lack
// an amount still appear, with zero revenue.
func tally(groups map[string]*group, key dataset.Value, amount decimal.Decimal, present bool) {
	if key.IsNull() {
		return
	}
	g, ok := groups[key.String()]
	if !ok {
		g = &group{}
		groups[key.String()] = g
	}
	if present {
		g.count++
		g.revenue = g.revenue.Add(amount)
	}
}

// revenues lists groups in key order
func revenues(groups map[string]*group) []GroupRevenue {
	out := make([]GroupRevenue, 0, len(groups))
	for _, key := range sortedKeys(groups) {
		out = append(out, GroupRevenue{Key: key, Revenue: groups[key].revenue})
	}
	return out
}

func sortedKeys(groups map[string]*group) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
