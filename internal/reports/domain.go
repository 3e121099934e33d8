package reports

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailySummary aggregates one location's completed sales for one day.
// Voided sales are excluded; refunded sales still count at their sold totals.
type DailySummary struct {
	Date           string          `json:"date"`
	LocationID     int64           `json:"location_id"`
	SaleCount      int64           `json:"sale_count"`
	GrossAmount    decimal.Decimal `json:"gross_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	NetAmount      decimal.Decimal `json:"net_amount"`
	CashAmount     decimal.Decimal `json:"cash_amount"`
	NonCashAmount  decimal.Decimal `json:"non_cash_amount"`
	CostOfGoods    decimal.Decimal `json:"cost_of_goods"`
}

// SummaryQuery identifies one daily summary.
type SummaryQuery struct {
	TenantID   int64
	LocationID int64
	Date       time.Time
}
