// Package insights computes the descriptive statistics shown on the
// dashboard: headline KPIs, the monthly order trend and revenue breakdowns
// by city, cuisine and membership tier. Money is summed with
// shopspring/decimal so totals match the source amounts exactly.
package insights
