package shared

import "github.com/shopspring/decimal"

// MoneyScale is the fixed-point scale used for all monetary values.
const MoneyScale = 4

// Round4 normalises a monetary value to the ledger's fixed-point scale.
func Round4(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// MulQty multiplies a unit amount by an integer quantity, keeping the scale.
func MulQty(unit decimal.Decimal, qty int64) decimal.Decimal {
	return Round4(unit.Mul(decimal.NewFromInt(qty)))
}

// WeightedUnitCost divides a total cost by quantity, returning zero for a
// zero quantity instead of panicking.
func WeightedUnitCost(total decimal.Decimal, qty int64) decimal.Decimal {
	if qty == 0 {
		return decimal.Zero
	}
	return total.DivRound(decimal.NewFromInt(qty), MoneyScale)
}
