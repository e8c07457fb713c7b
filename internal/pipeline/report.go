package pipeline

import (
	"foodpulse/internal/exporter"
)

// reportSheets lays out every available artifact as a worksheet
func reportSheets(a Artifacts) []exporter.Sheet {
	var sheets []exporter.Sheet
	if a.Table != nil {
		sheets = append(sheets, exporter.TableSheet("analytics", a.Table))
	}

	if a.Forecast != nil {
		rows := make([][]any, len(a.Forecast.Rows))
		for i, r := range a.Forecast.Rows {
			rows[i] = []any{r.Date.Format("2006-01-02"), r.YHat, r.YHatLower, r.YHatUpper, r.Trend, r.Weekly, r.Yearly, r.Historical}
		}
		sheets = append(sheets, exporter.Sheet{
			Name:    "forecast",
			Headers: []string{"ds", "yhat", "yhat_lower", "yhat_upper", "trend", "weekly", "yearly", "historical"},
			Rows:    rows,
		})
	}

	if a.Segments != nil {
		sheets = append(sheets, exporter.TableSheet("segments", a.Segments.Table()))
	}

	if a.Attribution != nil {
		sheets = append(sheets, exporter.TableSheet("attribution", a.Attribution.Table()))
	}

	if a.Summary != nil {
		k := a.Summary.KPIs
		rows := [][]any{
			{"total_orders", k.TotalOrders},
			{"total_revenue", k.TotalRevenue.InexactFloat64()},
			{"avg_order_value", k.AvgOrderValue.InexactFloat64()},
			{"gold_revenue_pct", k.GoldRevenuePct.InexactFloat64()},
		}
		for _, m := range a.Summary.MonthlyOrders {
			rows = append(rows, []any{"orders " + m.Month, m.Orders})
		}
		for _, c := range a.Summary.RevenueByCity {
			rows = append(rows, []any{"revenue city " + c.Key, c.Revenue.InexactFloat64()})
		}
		for _, c := range a.Summary.RevenueByCuisine {
			rows = append(rows, []any{"revenue cuisine " + c.Key, c.Revenue.InexactFloat64()})
		}
		for _, m := range a.Summary.Memberships {
			rows = append(rows, []any{"revenue membership " + m.Membership, m.Revenue.InexactFloat64()})
		}
		sheets = append(sheets, exporter.Sheet{Name: "summary", Headers: []string{"metric", "value"}, Rows: rows})
	}
	return sheets
}
