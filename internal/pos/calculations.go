package pos

import (
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// CalculateLineTotal prices one sale line: (unitPrice - unitDiscount) * qty.
func CalculateLineTotal(quantity int64, unitPrice, unitDiscount decimal.Decimal) decimal.Decimal {
	net := unitPrice.Sub(unitDiscount)
	if net.IsNegative() {
		net = decimal.Zero
	}
	return shared.MulQty(net, quantity)
}

// calculateTax is the placeholder for the external tax engine. It always
// returns zero today; totals already carry the field so the engine can slot
// in without schema changes.
func calculateTax(subtotal decimal.Decimal) decimal.Decimal {
	_ = subtotal
	return decimal.Zero
}

// saleTotals recomputes the aggregate amounts from the item lines. Per-line
// discounts are already netted into each LineTotal; orderDiscount is the
// additional sale-level discount.
func saleTotals(items []SaleItem, orderDiscount decimal.Decimal) (subtotal, tax, total decimal.Decimal) {
	subtotal = decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal)
	}
	subtotal = shared.Round4(subtotal)
	tax = calculateTax(subtotal)
	total = shared.Round4(subtotal.Sub(orderDiscount).Add(tax))
	if total.IsNegative() {
		total = decimal.Zero
	}
	return subtotal, tax, total
}

// sumPayments totals the offered tenders.
func sumPayments(payments []PaymentInput) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range payments {
		sum = sum.Add(p.Amount)
	}
	return shared.Round4(sum)
}
