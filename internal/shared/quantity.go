package shared

import "github.com/shopspring/decimal"

// Epsilon absorbs rounding when comparing quantities converted between units.
var Epsilon = decimal.New(1, -9)

// ExceedsBy reports whether value is greater than limit by more than Epsilon.
func ExceedsBy(value, limit decimal.Decimal) bool {
	return value.GreaterThan(limit.Add(Epsilon))
}

// MaxZero clamps negative quantities to zero.
func MaxZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
