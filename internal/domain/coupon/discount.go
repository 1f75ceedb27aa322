package coupon

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// CalculateDiscount returns the discount a coupon of type t and value takes
// off subtotal, rounded half-up to 2 decimal places. The result is never
// negative and never exceeds subtotal.
func CalculateDiscount(t Type, value, subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() || !value.IsPositive() {
		return decimal.Zero
	}

	var amount decimal.Decimal
	switch t {
	case TypePercentage:
		amount = subtotal.Mul(value).Div(hundred).Round(2)
	case TypeFixedAmount:
		amount = decimal.Min(value, subtotal).Round(2)
	default:
		return decimal.Zero
	}

	return decimal.Min(amount, subtotal)
}
