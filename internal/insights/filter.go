package insights

import (
	"foodpulse/internal/dataset"
	"foodpulse/internal/sources"
)

// Filter narrows the analytics table to the selected cities and membership
// tiers. An empty list selects everything.
type Filter struct {
	Cities      []string `json:"cities,omitempty"`
	Memberships []string `json:"memberships,omitempty"`
}

// IsZero reports whether the filter selects every row
func (f Filter) IsZero() bool {
	return len(f.Cities) == 0 && len(f.Memberships) == 0
}

// Apply returns the matching rows; the input table is not modified
func (f Filter) Apply(table *dataset.Table) *dataset.Table {
	if f.IsZero() {
		return table
	}
	return table.Filter(dataset.And(
		dataset.In(sources.ColCity, f.Cities...),
		dataset.In(sources.ColMembership, f.Memberships...),
	))
}
