package dataset

import (
	"fmt"
	"math"
	"slices"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	apperrors "foodpulse/internal/errors"
)

// Table is an immutable column-named frame of string series. Missing cells
// are NA elements.
type Table struct {
	frame dataframe.DataFrame
	// per-column copies taken once, so cell reads skip DataFrame.Col copies
	cols  []series.Series
	names []string
	index map[string]int
	nrows int
}

// New builds a table. Every row must have exactly one cell per column.
func New(columns []string, rows [][]Value) (*Table, error) {
	if err := checkColumns(columns); err != nil {
		return nil, err
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, apperrors.NewSchemaError(
				fmt.Sprintf("row %d has %d cells, want %d", i, len(row), len(columns)), nil)
		}
	}
	if len(columns) == 0 {
		return &Table{index: map[string]int{}, nrows: len(rows)}, nil
	}

	cols := make([]series.Series, len(columns))
	for c, name := range columns {
		cells := make([]interface{}, len(rows))
		for r, row := range rows {
			if !row[c].IsNull() {
				cells[r] = row[c].raw
			}
		}
		cols[c] = series.New(cells, series.String, name)
	}
	return FromFrame(dataframe.New(cols...))
}

// MustNew is New that panics on error, for fixtures and literals.
func MustNew(columns []string, rows [][]Value) *Table {
	t, err := New(columns, rows)
	if err != nil {
		panic(err)
	}
	return t
}

// Empty returns a table with the given columns and no rows
func Empty(columns ...string) *Table {
	return MustNew(columns, nil)
}

// FromFrame wraps a gota DataFrame. Every column is read as strings; a frame
// carrying an error is a SchemaError.
func FromFrame(df dataframe.DataFrame) (*Table, error) {
	if df.Err != nil {
		return nil, apperrors.NewSchemaError("invalid frame", df.Err)
	}
	names := df.Names()
	if err := checkColumns(names); err != nil {
		return nil, err
	}

	t := &Table{
		frame: df,
		cols:  make([]series.Series, len(names)),
		names: names,
		index: make(map[string]int, len(names)),
		nrows: df.Nrow(),
	}
	for i, name := range names {
		col := df.Col(name)
		if col.Type() != series.String {
			// NA records print as "NaN", which string series read back as NA
			col = series.New(col.Records(), series.String, name)
		}
		t.cols[i] = col
		t.index[name] = i
	}
	return t, nil
}

func checkColumns(columns []string) error {
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if c == "" {
			return apperrors.NewSchemaError("empty column name", nil)
		}
		if _, dup := seen[c]; dup {
			return apperrors.NewSchemaError(fmt.Sprintf("duplicate column %q", c), nil)
		}
		seen[c] = struct{}{}
	}
	return nil
}

// Frame returns the underlying DataFrame. gota operations return new frames,
// so the table is unaffected by what callers do with it.
func (t *Table) Frame() dataframe.DataFrame {
	return t.frame
}

// Columns returns a copy of the column names in order
func (t *Table) Columns() []string {
	return slices.Clone(t.names)
}

// Len returns the number of rows
func (t *Table) Len() int {
	return t.nrows
}

// Width returns the number of columns
func (t *Table) Width() int {
	return len(t.names)
}

// HasColumn reports whether name is a column
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// ColumnIndex returns the position of name
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// RequireColumns returns a SchemaError naming the first absent column
func (t *Table) RequireColumns(names ...string) error {
	for _, n := range names {
		if !t.HasColumn(n) {
			return apperrors.NewSchemaError(fmt.Sprintf("column %q not found", n), nil).
				WithContext("column", n)
		}
	}
	return nil
}

func cell(s series.Series, i int) Value {
	e := s.Elem(i)
	if e.IsNA() {
		return Null
	}
	return String(e.String())
}

// Row returns a copy of row i
func (t *Table) Row(i int) []Value {
	row := make([]Value, len(t.cols))
	for c, s := range t.cols {
		row[c] = cell(s, i)
	}
	return row
}

// Get returns the cell at row i, column name; Null when the column is absent
func (t *Table) Get(i int, name string) Value {
	c, ok := t.index[name]
	if !ok {
		return Null
	}
	return cell(t.cols[c], i)
}

// Column returns a copy of one column's cells
func (t *Table) Column(name string) ([]Value, error) {
	if err := t.RequireColumns(name); err != nil {
		return nil, err
	}
	s := t.cols[t.index[name]]
	out := make([]Value, t.nrows)
	for i := range out {
		out[i] = cell(s, i)
	}
	return out, nil
}

// FloatColumn parses a column as floats, with NaN for missing cells.
// Non-numeric text is a ParseError.
func (t *Table) FloatColumn(name string) ([]float64, error) {
	cells, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(cells))
	for i, cell := range cells {
		f, ok, err := cell.AsFloat()
		if err != nil {
			return nil, apperrors.NewParsingError(
				fmt.Sprintf("column %q row %d: %q is not numeric", name, i, cell.String()), err)
		}
		if !ok {
			f = math.NaN()
		}
		out[i] = f
	}
	return out, nil
}

// Filter returns a new table with the rows for which keep returns true
func (t *Table) Filter(keep func(r RowView) bool) *Table {
	var idx []int
	for i := 0; i < t.nrows; i++ {
		if keep(RowView{t: t, i: i}) {
			idx = append(idx, i)
		}
	}
	switch {
	case len(t.names) == 0:
		return &Table{index: t.index, nrows: len(idx)}
	case len(idx) == 0:
		return Empty(t.names...)
	case len(idx) == t.nrows:
		return t
	}

	out, err := FromFrame(t.frame.Subset(idx))
	if err != nil {
		// indexes come from this table, so Subset cannot fail
		panic(err)
	}
	return out
}

// Select returns a new table restricted to the named columns, in that order
func (t *Table) Select(names ...string) (*Table, error) {
	if err := t.RequireColumns(names...); err != nil {
		return nil, err
	}
	if err := checkColumns(names); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return &Table{index: map[string]int{}, nrows: t.nrows}, nil
	}
	return FromFrame(t.frame.Select(names))
}

// Rename returns a table with columns renamed by mapping (old name to new).
// Names absent from mapping are kept.
func (t *Table) Rename(mapping map[string]string) (*Table, error) {
	if len(mapping) == 0 || len(t.cols) == 0 {
		return t, nil
	}
	renamed := make([]string, len(t.names))
	for i, n := range t.names {
		if to, ok := mapping[n]; ok {
			n = to
		}
		renamed[i] = n
	}
	if err := checkColumns(renamed); err != nil {
		return nil, err
	}

	cols := make([]series.Series, len(t.cols))
	for i, col := range t.cols {
		col.Name = renamed[i]
		cols[i] = col
	}
	return FromFrame(dataframe.New(cols...))
}

// RowView is a read-only handle on one row, used by predicates
type RowView struct {
	t *Table
	i int
}

// Get returns the cell in the named column
func (r RowView) Get(name string) Value {
	return r.t.Get(r.i, name)
}

// Index returns the position of the row in its table
func (r RowView) Index() int {
	return r.i
}

// In builds a predicate matching rows whose column holds one of values.
// An empty value list matches every row.
func In(column string, values ...string) func(RowView) bool {
	if len(values) == 0 {
		return func(RowView) bool { return true }
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return func(r RowView) bool {
		v := r.Get(column)
		if v.IsNull() {
			return false
		}
		_, ok := set[v.String()]
		return ok
	}
}

// And combines predicates
func And(preds ...func(RowView) bool) func(RowView) bool {
	return func(r RowView) bool {
		for _, p := range preds {
			if !p(r) {
				return false
			}
		}
		return true
	}
}
