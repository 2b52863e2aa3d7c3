// Package money holds the fixed-point amount type used for every monetary value
// handled by the contract engine.
package money

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// Amount is a signed amount in minor currency units (cents).
type Amount int64

// Zero is the zero amount.
const Zero Amount = 0

// FromFloat converts a floating point amount to cents, rounding half away from zero.
func FromFloat(f float64) Amount {
	return Amount(math.Round(f * 100))
}

// FromDecimal converts a decimal amount to cents, rounding half away from zero.
func FromDecimal(d decimal.Decimal) Amount {
	return Amount(d.Shift(2).Round(0).IntPart())
}

// Parse reads a decimal string such as "-12.5" or "1234.56".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("money.Parse: %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromRat converts a NUMERIC value read from the warehouse to cents. A nil value is zero.
func FromRat(r *big.Rat) Amount {
	if r == nil {
		return Zero
	}
	return MustParse(r.FloatString(2))
}

// Rat returns the amount in major units as an exact rational, the form the
// warehouse client writes NUMERIC columns from.
func (a Amount) Rat() *big.Rat {
	return big.NewRat(int64(a), 100)
}

// Decimal returns the amount in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -2)
}

// Float64 returns the amount in major units as a float.
func (a Amount) Float64() float64 {
	return a.Decimal().InexactFloat64()
}

// Abs returns the absolute amount.
func (a Amount) Abs() Amount {
	if a < 0 {
		return -a
	}
	return a
}

// String formats the amount with two decimals, e.g. "-50.00".
func (a Amount) String() string {
	return a.Decimal().StringFixed(2)
}

// WithinTolerance reports whether a differs from base by at most fraction of |base|.
// The comparison is exact: no floating point is involved.
func WithinTolerance(a, base Amount, fraction decimal.Decimal) bool {
	diff := decimal.NewFromInt(int64(a - base)).Abs()
	allowed := fraction.Mul(decimal.NewFromInt(int64(base.Abs())))
	return diff.LessThanOrEqual(allowed)
}
