package pos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/inventory"
	"github.com/meridian-pos/meridian-pos/internal/platform/db"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// Repository persists sales and sessions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the orchestrator.
// Inventory() hands the same transaction to the stock engine, so sale row,
// movements, layers, balances and reservations commit or roll back together.
type TxRepository interface {
	InsertSale(ctx context.Context, sale Sale) error
	GetSaleForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (Sale, error)
	GetSaleItems(ctx context.Context, saleID uuid.UUID) ([]SaleItem, error)
	InsertSaleItem(ctx context.Context, item SaleItem) error
	UpdateSaleItem(ctx context.Context, item SaleItem) error
	DeleteSaleItem(ctx context.Context, itemID uuid.UUID) error
	InsertPayment(ctx context.Context, payment SalePayment) error
	UpdateSaleTotals(ctx context.Context, sale Sale) error
	UpdateSaleStatus(ctx context.Context, sale Sale) error
	NextSaleNumber(ctx context.Context, tenantID, locationID int64, day time.Time) (string, error)
	InsertSession(ctx context.Context, session POSSession) error
	GetSessionForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (POSSession, error)
	UpdateSessionClose(ctx context.Context, session POSSession) error
	SumCashPayments(ctx context.Context, sessionID uuid.UUID) (decimal.Decimal, error)
	Inventory() inventory.TxRepository
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("pos repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetSale loads a sale with its items and payments.
func (r *Repository) GetSale(ctx context.Context, tenantID int64, id uuid.UUID) (Sale, error) {
	var sale Sale
	err := r.pool.QueryRow(ctx, saleSelect+` WHERE tenant_id=$1 AND id=$2`, tenantID, id).Scan(saleFields(&sale)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, fmt.Errorf("sale %s: %w", id, shared.ErrNotFound)
		}
		return Sale{}, err
	}
	items, err := scanSaleItems(ctx, r.pool, id)
	if err != nil {
		return Sale{}, err
	}
	sale.Items = items
	payments, err := scanSalePayments(ctx, r.pool, id)
	if err != nil {
		return Sale{}, err
	}
	sale.Payments = payments
	return sale, nil
}

// GetSession loads a session by id.
func (r *Repository) GetSession(ctx context.Context, tenantID int64, id uuid.UUID) (POSSession, error) {
	var s POSSession
	err := r.pool.QueryRow(ctx, sessionSelect+` WHERE tenant_id=$1 AND id=$2`, tenantID, id).Scan(sessionFields(&s)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return POSSession{}, fmt.Errorf("session %s: %w", id, shared.ErrNotFound)
		}
		return POSSession{}, err
	}
	return s, nil
}

const saleSelect = `SELECT id, tenant_id, sale_number, status, location_id, session_id, customer_id, subtotal, discount_amount, tax_amount, total_amount, paid_amount, change_amount, void_reason, created_by, created_at, completed_at, voided_at, voided_by
FROM sales`

func saleFields(s *Sale) []any {
	return []any{&s.ID, &s.TenantID, &s.SaleNumber, &s.Status, &s.LocationID, &s.SessionID, &s.CustomerID, &s.Subtotal, &s.DiscountAmount, &s.TaxAmount, &s.TotalAmount, &s.PaidAmount, &s.ChangeAmount, &s.VoidReason, &s.CreatedBy, &s.CreatedAt, &s.CompletedAt, &s.VoidedAt, &s.VoidedBy}
}

const sessionSelect = `SELECT id, tenant_id, terminal_id, location_id, opening_balance, closing_balance, expected_balance, variance, status, opened_by, opened_at, closed_by, closed_at
FROM pos_sessions`

func sessionFields(s *POSSession) []any {
	return []any{&s.ID, &s.TenantID, &s.TerminalID, &s.LocationID, &s.OpeningBalance, &s.ClosingBalance, &s.ExpectedBalance, &s.Variance, &s.Status, &s.OpenedBy, &s.OpenedAt, &s.ClosedBy, &s.ClosedAt}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanSaleItems(ctx context.Context, q querier, saleID uuid.UUID) ([]SaleItem, error) {
	rows, err := q.Query(ctx, `SELECT id, sale_id, product_id, quantity, unit_price, unit_discount, unit_cost, line_total, refunded_qty, reservation_id
FROM sale_items WHERE sale_id=$1 ORDER BY created_at ASC, id ASC`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []SaleItem{}
	for rows.Next() {
		var it SaleItem
		if err := rows.Scan(&it.ID, &it.SaleID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.UnitDiscount, &it.UnitCost, &it.LineTotal, &it.RefundedQty, &it.ReservationID); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanSalePayments(ctx context.Context, q querier, saleID uuid.UUID) ([]SalePayment, error) {
	rows, err := q.Query(ctx, `SELECT id, sale_id, method, amount FROM sale_payments WHERE sale_id=$1 ORDER BY created_at ASC, id ASC`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	payments := []SalePayment{}
	for rows.Next() {
		var p SalePayment
		if err := rows.Scan(&p.ID, &p.SaleID, &p.Method, &p.Amount); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *txRepository) Inventory() inventory.TxRepository {
	return inventory.NewTxRepository(r.tx)
}

func (r *txRepository) InsertSale(ctx context.Context, sale Sale) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO sales (id, tenant_id, sale_number, status, location_id, session_id, customer_id, subtotal, discount_amount, tax_amount, total_amount, paid_amount, change_amount, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		sale.ID, sale.TenantID, sale.SaleNumber, string(sale.Status), sale.LocationID, sale.SessionID, sale.CustomerID,
		sale.Subtotal, sale.DiscountAmount, sale.TaxAmount, sale.TotalAmount, sale.PaidAmount, sale.ChangeAmount, sale.CreatedBy, sale.CreatedAt)
	return err
}

func (r *txRepository) GetSaleForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (Sale, error) {
	var sale Sale
	err := r.tx.QueryRow(ctx, saleSelect+` WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id).Scan(saleFields(&sale)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, fmt.Errorf("sale %s: %w", id, shared.ErrNotFound)
		}
		return Sale{}, err
	}
	return sale, nil
}

func (r *txRepository) GetSaleItems(ctx context.Context, saleID uuid.UUID) ([]SaleItem, error) {
	return scanSaleItems(ctx, r.tx, saleID)
}

func (r *txRepository) InsertSaleItem(ctx context.Context, item SaleItem) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO sale_items (id, sale_id, product_id, quantity, unit_price, unit_discount, unit_cost, line_total, refunded_qty, reservation_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())`,
		item.ID, item.SaleID, item.ProductID, item.Quantity, item.UnitPrice, item.UnitDiscount, item.UnitCost, item.LineTotal, item.RefundedQty, item.ReservationID)
	return err
}

func (r *txRepository) UpdateSaleItem(ctx context.Context, item SaleItem) error {
	_, err := r.tx.Exec(ctx, `UPDATE sale_items SET quantity=$2, unit_price=$3, unit_discount=$4, unit_cost=$5, line_total=$6, refunded_qty=$7, reservation_id=$8 WHERE id=$1`,
		item.ID, item.Quantity, item.UnitPrice, item.UnitDiscount, item.UnitCost, item.LineTotal, item.RefundedQty, item.ReservationID)
	return err
}

func (r *txRepository) DeleteSaleItem(ctx context.Context, itemID uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM sale_items WHERE id=$1`, itemID)
	return err
}

func (r *txRepository) InsertPayment(ctx context.Context, payment SalePayment) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO sale_payments (id, sale_id, method, amount, created_at) VALUES ($1,$2,$3,$4,NOW())`,
		payment.ID, payment.SaleID, string(payment.Method), payment.Amount)
	return err
}

func (r *txRepository) UpdateSaleTotals(ctx context.Context, sale Sale) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales SET subtotal=$2, discount_amount=$3, tax_amount=$4, total_amount=$5, paid_amount=$6, change_amount=$7 WHERE id=$1`,
		sale.ID, sale.Subtotal, sale.DiscountAmount, sale.TaxAmount, sale.TotalAmount, sale.PaidAmount, sale.ChangeAmount)
	return err
}

func (r *txRepository) UpdateSaleStatus(ctx context.Context, sale Sale) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales SET status=$2, completed_at=$3, voided_at=$4, voided_by=$5, void_reason=$6 WHERE id=$1`,
		sale.ID, string(sale.Status), sale.CompletedAt, sale.VoidedAt, sale.VoidedBy, sale.VoidReason)
	return err
}

// NextSaleNumber issues POS-YYYYMMDD-NNNN per location per day.
func (r *txRepository) NextSaleNumber(ctx context.Context, tenantID, locationID int64, day time.Time) (string, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM sales WHERE tenant_id=$1 AND location_id=$2 AND created_at >= $3 AND created_at < $4`,
		tenantID, locationID, start, start.Add(24*time.Hour)).Scan(&count)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("POS-%s-%04d", start.Format("20060102"), count+1), nil
}

func (r *txRepository) InsertSession(ctx context.Context, session POSSession) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO pos_sessions (id, tenant_id, terminal_id, location_id, opening_balance, status, opened_by, opened_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		session.ID, session.TenantID, session.TerminalID, session.LocationID, session.OpeningBalance, string(session.Status), session.OpenedBy, session.OpenedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("terminal %s already has an open session: %w", session.TerminalID, shared.ErrConflict)
		}
		return err
	}
	return nil
}

func (r *txRepository) GetSessionForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (POSSession, error) {
	var s POSSession
	err := r.tx.QueryRow(ctx, sessionSelect+` WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id).Scan(sessionFields(&s)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return POSSession{}, fmt.Errorf("session %s: %w", id, shared.ErrNotFound)
		}
		return POSSession{}, err
	}
	return s, nil
}

func (r *txRepository) UpdateSessionClose(ctx context.Context, session POSSession) error {
	_, err := r.tx.Exec(ctx, `UPDATE pos_sessions SET status=$2, closing_balance=$3, expected_balance=$4, variance=$5, closed_by=$6, closed_at=$7 WHERE id=$1`,
		session.ID, string(session.Status), session.ClosingBalance, session.ExpectedBalance, session.Variance, session.ClosedBy, session.ClosedAt)
	return err
}

// SumCashPayments totals cash tenders on the session's completed sales.
// Voided sales are excluded: their cash is assumed returned from the drawer.
func (r *txRepository) SumCashPayments(ctx context.Context, sessionID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(p.amount), 0)
FROM sale_payments p
JOIN sales s ON s.id = p.sale_id
WHERE s.session_id=$1 AND p.method='CASH' AND s.status IN ('COMPLETED','PARTIALLY_REFUNDED','REFUNDED')`, sessionID).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}
