// Package dataset holds the in-memory table every pipeline stage passes around.
//
// A Table wraps a gota DataFrame whose columns are string series. A Value is
// either present, carrying the raw text it was read from, or explicitly
// missing (Null), stored as an NA element. Missing is distinct from zero and
// from the empty string, so unmatched join keys survive all the way to the
// analytics CSV. gota reads the literal text "NaN" as NA, so such a cell comes
// back as missing.
//
// Tables are not mutated after construction. Filter, Select, Rename and the
// typed column accessors always return fresh data, which lets the forecast,
// segmentation and explain transforms share one table safely. Frame exposes
// the DataFrame for gota operations such as joins; FromFrame wraps the result.
package dataset
