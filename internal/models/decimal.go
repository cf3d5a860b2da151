package models

import "github.com/shopspring/decimal"

// Fractional digits kept for each kind of amount.
const (
	PriceScale    int32 = 6
	MoneyScale    int32 = 4
	QuantityScale int32 = 8
	PercentScale  int32 = 4
)

// DustQuantity is the largest remaining quantity treated as an empty position.
var DustQuantity = decimal.New(1, -QuantityScale)

var hundred = decimal.NewFromInt(100)

// RoundPrice rounds half away from zero to PriceScale digits.
func RoundPrice(d decimal.Decimal) decimal.Decimal { return d.Round(PriceScale) }

// RoundMoney rounds half away from zero to MoneyScale digits.
func RoundMoney(d decimal.Decimal) decimal.Decimal { return d.Round(MoneyScale) }

// RoundQuantity rounds half away from zero to QuantityScale digits.
func RoundQuantity(d decimal.Decimal) decimal.Decimal { return d.Round(QuantityScale) }

// Percent returns part/whole*100 rounded to PercentScale, or zero when whole is zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.DivRound(whole, PriceScale).Mul(hundred).Round(PercentScale)
}
