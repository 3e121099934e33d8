package pos

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculateLineTotal(t *testing.T) {
	require.Equal(t, "30.0000", CalculateLineTotal(3, d("10.0000"), decimal.Zero).StringFixed(4))
	require.Equal(t, "24.0000", CalculateLineTotal(3, d("10.0000"), d("2.0000")).StringFixed(4))
	// Discount above price floors the unit at zero rather than going negative.
	require.Equal(t, "0.0000", CalculateLineTotal(3, d("10.0000"), d("15.0000")).StringFixed(4))
}

func TestSaleTotals(t *testing.T) {
	items := []SaleItem{
		{LineTotal: d("24.0000")},
		{LineTotal: d("10.0000")},
	}

	subtotal, tax, total := saleTotals(items, decimal.Zero)
	require.Equal(t, "34.0000", subtotal.StringFixed(4))
	require.Equal(t, "0.0000", tax.StringFixed(4))
	require.Equal(t, "34.0000", total.StringFixed(4))

	_, _, discounted := saleTotals(items, d("4.0000"))
	require.Equal(t, "30.0000", discounted.StringFixed(4))

	// An order discount larger than the subtotal floors the total at zero.
	_, _, floored := saleTotals(items, d("50.0000"))
	require.Equal(t, "0.0000", floored.StringFixed(4))
}

func TestSaleStatusTransitions(t *testing.T) {
	require.True(t, SaleStatusDraft.CanTransition(SaleStatusCompleted))
	require.True(t, SaleStatusCompleted.CanTransition(SaleStatusVoided))
	require.True(t, SaleStatusCompleted.CanTransition(SaleStatusPartiallyRefunded))
	require.True(t, SaleStatusPartiallyRefunded.CanTransition(SaleStatusRefunded))

	require.False(t, SaleStatusDraft.CanTransition(SaleStatusVoided))
	require.False(t, SaleStatusVoided.CanTransition(SaleStatusCompleted))
	require.False(t, SaleStatusRefunded.CanTransition(SaleStatusCompleted))
	require.False(t, SaleStatusPartiallyRefunded.CanTransition(SaleStatusVoided))
}
