package shared

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMulQty(t *testing.T) {
	unit := decimal.RequireFromString("10.5714")
	require.Equal(t, "73.9998", MulQty(unit, 7).StringFixed(4))
	require.Equal(t, "0.0000", MulQty(unit, 0).StringFixed(4))
}

func TestWeightedUnitCost(t *testing.T) {
	total := decimal.RequireFromString("74.0000")
	require.Equal(t, "10.5714", WeightedUnitCost(total, 7).StringFixed(4))
	require.Equal(t, "0.0000", WeightedUnitCost(total, 0).StringFixed(4))
}

func TestRound4(t *testing.T) {
	require.Equal(t, "1.2346", Round4(decimal.RequireFromString("1.23456")).StringFixed(4))
	require.Equal(t, "1.2345", Round4(decimal.RequireFromString("1.23451")).StringFixed(4))
}
