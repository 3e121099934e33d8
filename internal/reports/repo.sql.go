package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository runs the read-only aggregation queries behind the reports.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// DailySummary aggregates completed sales for one location and day.
func (r *Repository) DailySummary(ctx context.Context, q SummaryQuery) (DailySummary, error) {
	start := time.Date(q.Date.Year(), q.Date.Month(), q.Date.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	summary := DailySummary{
		Date:           start.Format("2006-01-02"),
		LocationID:     q.LocationID,
		GrossAmount:    decimal.Zero,
		DiscountAmount: decimal.Zero,
		TaxAmount:      decimal.Zero,
		NetAmount:      decimal.Zero,
		CashAmount:     decimal.Zero,
		NonCashAmount:  decimal.Zero,
		CostOfGoods:    decimal.Zero,
	}
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(subtotal),0), COALESCE(SUM(discount_amount),0), COALESCE(SUM(tax_amount),0), COALESCE(SUM(total_amount),0)
FROM sales
WHERE tenant_id=$1 AND location_id=$2 AND completed_at >= $3 AND completed_at < $4
  AND status IN ('COMPLETED','PARTIALLY_REFUNDED','REFUNDED')`,
		q.TenantID, q.LocationID, start, end).Scan(
		&summary.SaleCount, &summary.GrossAmount, &summary.DiscountAmount, &summary.TaxAmount, &summary.NetAmount)
	if err != nil {
		return DailySummary{}, err
	}
	err = r.pool.QueryRow(ctx, `SELECT
  COALESCE(SUM(p.amount) FILTER (WHERE p.method = 'CASH'), 0),
  COALESCE(SUM(p.amount) FILTER (WHERE p.method <> 'CASH'), 0)
FROM sale_payments p
JOIN sales s ON s.id = p.sale_id
WHERE s.tenant_id=$1 AND s.location_id=$2 AND s.completed_at >= $3 AND s.completed_at < $4
  AND s.status IN ('COMPLETED','PARTIALLY_REFUNDED','REFUNDED')`,
		q.TenantID, q.LocationID, start, end).Scan(&summary.CashAmount, &summary.NonCashAmount)
	if err != nil {
		return DailySummary{}, err
	}
	err = r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(i.unit_cost * i.quantity), 0)
FROM sale_items i
JOIN sales s ON s.id = i.sale_id
WHERE s.tenant_id=$1 AND s.location_id=$2 AND s.completed_at >= $3 AND s.completed_at < $4
  AND s.status IN ('COMPLETED','PARTIALLY_REFUNDED','REFUNDED')`,
		q.TenantID, q.LocationID, start, end).Scan(&summary.CostOfGoods)
	if err != nil {
		return DailySummary{}, err
	}
	return summary, nil
}

// ActiveLocationIDs lists locations with at least one completed sale on the
// day, used by the nightly warmup task.
func (r *Repository) ActiveLocationIDs(ctx context.Context, tenantID int64, day time.Time) ([]int64, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT location_id FROM sales
WHERE tenant_id=$1 AND completed_at >= $2 AND completed_at < $3`,
		tenantID, start, start.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TenantIDs lists tenants with sales on the day.
func (r *Repository) TenantIDs(ctx context.Context, day time.Time) ([]int64, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM sales
WHERE completed_at >= $1 AND completed_at < $2`, start, start.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
