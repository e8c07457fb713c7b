package dataset

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// Value is one table cell
type Value struct {
	raw   string
	valid bool
}

// Null is the missing marker
var Null = Value{}

// String wraps raw text as a present value. The empty string is a present
// value; use Null for missing data.
func String(s string) Value {
	return Value{raw: s, valid: true}
}

// Float formats f as a present value
func Float(f float64) Value {
	return String(strconv.FormatFloat(f, 'f', -1, 64))
}

// Int formats i as a present value
func Int(i int64) Value {
	return String(strconv.FormatInt(i, 10))
}

// IsNull reports whether the cell is missing
func (v Value) IsNull() bool {
	return !v.valid
}

// String returns the raw text, or "" when missing
func (v Value) String() string {
	return v.raw
}

// AsDecimal parses the cell as a plain decimal number: an optional sign,
// digits with an optional fraction and an optional exponent. Surrounding
// spaces, NaN, infinities and hex floats are errors. ok is false for missing
// cells.
func (v Value) AsDecimal() (d decimal.Decimal, ok bool, err error) {
	if !v.valid {
		return decimal.Zero, false, nil
	}
	d, err = decimal.NewFromString(v.raw)
	if err != nil {
		return decimal.Zero, false, err
	}
	return d, true, nil
}

// AsFloat parses the cell with the AsDecimal grammar. Numbers outside the
// float64 range are errors.
func (v Value) AsFloat() (f float64, ok bool, err error) {
	d, ok, err := v.AsDecimal()
	if err != nil || !ok {
		return 0, false, err
	}
	f = d.InexactFloat64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false, fmt.Errorf("%q is out of range", v.raw)
	}
	return f, true, nil
}

// Equal compares two cells; two missing cells are equal
func (v Value) Equal(other Value) bool {
	return v.valid == other.valid && v.raw == other.raw
}
