package sale

import "github.com/shopspring/decimal"

// SalePrice applies the matched sales to the base price in the order given,
// which must be the catalog's declared order: a percent sale takes its
// fraction of the running price, a flat sale subtracts its amount, so
// percent-then-flat and flat-then-percent differ. The result is floored at
// zero and rounded to two decimal places.
func SalePrice(price decimal.Decimal, sales []Sale) decimal.Decimal {
	result := price
	for _, s := range sales {
		result = result.Sub(takeoff(result, s))
	}
	if result.IsNegative() {
		result = decimal.Zero
	}
	return result.Round(2)
}

// takeoff returns the amount the sale removes from the running price.
func takeoff(running decimal.Decimal, s Sale) decimal.Decimal {
	switch s.DiscountType {
	case TypePercent:
		return running.Mul(s.DiscountAmount)
	case TypeFlat:
		return s.DiscountAmount
	default:
		return decimal.Zero
	}
}
