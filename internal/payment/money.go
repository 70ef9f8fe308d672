package payment

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// TipBounds is the accepted tip range in major currency units, inclusive.
type TipBounds struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

func DefaultTipBounds() TipBounds {
	return TipBounds{Min: decimal.NewFromInt(5), Max: decimal.NewFromInt(500)}
}

// Validate reports whether Min <= amount <= Max.
func (b TipBounds) Validate(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(b.Min) && amount.LessThanOrEqual(b.Max)
}

// FeeModel is the platform's cut: a fixed base in minor units plus a percentage.
type FeeModel struct {
	BaseMinor int64
	Percent   decimal.Decimal
}

func DefaultFeeModel() FeeModel {
	return FeeModel{BaseMinor: 100, Percent: decimal.RequireFromString("4.5")}
}

// ApplicationFee returns BaseMinor + round(amountMinor * Percent / 100), half-up.
func (f FeeModel) ApplicationFee(amountMinor int64) int64 {
	pct := decimal.NewFromInt(amountMinor).Mul(f.Percent).Div(hundred).Round(0)
	return f.BaseMinor + pct.IntPart()
}

// ToMinorUnits converts a major-unit amount to minor units (x100, rounded half-up).
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
