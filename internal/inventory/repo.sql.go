package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian-pos/internal/platform/db"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// Repository persists the stock ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the engine. The
// POS orchestrator obtains one for its own transaction via NewTxRepository so
// movement posting, layer consumption, balance updates and reservation
// fulfillment commit or roll back together with the sale row.
type TxRepository interface {
	InsertMovement(ctx context.Context, m Movement) (Movement, bool, error)
	GetMovement(ctx context.Context, id uuid.UUID) (Movement, bool, error)
	GetBalanceForUpdate(ctx context.Context, tenantID, productID, locationID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertLayer(ctx context.Context, layer ValuationLayer) error
	GetOpenLayersForUpdate(ctx context.Context, tenantID, productID, locationID int64, order CostOrder) ([]ValuationLayer, error)
	SetLayerRemaining(ctx context.Context, id uuid.UUID, remaining int64) error
	InsertReservation(ctx context.Context, res Reservation) error
	GetReservationForUpdate(ctx context.Context, id uuid.UUID) (Reservation, error)
	SetReservationStatus(ctx context.Context, id uuid.UUID, status ReservationStatus) error
	SelectExpiredForUpdate(ctx context.Context, now time.Time, limit int) ([]Reservation, error)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction with the ledger operations.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// ErrBalanceNotFound indicates a missing balance row.
var ErrBalanceNotFound = errors.New("inventory balance not found")

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// ListMovements returns the read-only movement history for audit.
func (r *Repository) ListMovements(ctx context.Context, filter HistoryFilter) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, movement_type, product_id, location_id, quantity, unit_cost, total_cost, reference_type, reference_id, status, created_by, created_at
FROM stock_movements
WHERE tenant_id=$1 AND product_id=$2 AND location_id=$3
  AND created_at BETWEEN COALESCE($4, '-infinity') AND COALESCE($5, 'infinity')
ORDER BY created_at ASC, id ASC
LIMIT $6`, filter.TenantID, filter.ProductID, filter.LocationID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Type, &m.ProductID, &m.LocationID, &m.Quantity, &m.UnitCost, &m.TotalCost, &m.ReferenceType, &m.ReferenceID, &m.Status, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// GetBalance reads the current balance without locking.
func (r *Repository) GetBalance(ctx context.Context, tenantID, productID, locationID int64) (Balance, error) {
	var bal Balance
	err := r.pool.QueryRow(ctx, `SELECT tenant_id, product_id, location_id, on_hand_qty, reserved_qty, updated_at
FROM inventory_balances WHERE tenant_id=$1 AND product_id=$2 AND location_id=$3`, tenantID, productID, locationID).
		Scan(&bal.TenantID, &bal.ProductID, &bal.LocationID, &bal.OnHand, &bal.Reserved, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{TenantID: tenantID, ProductID: productID, LocationID: locationID}, nil
		}
		return Balance{}, err
	}
	return bal, nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (Movement, bool, error) {
	tag, err := r.tx.Exec(ctx, `INSERT INTO stock_movements (id, tenant_id, movement_type, product_id, location_id, quantity, unit_cost, total_cost, reference_type, reference_id, status, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO NOTHING`,
		m.ID, m.TenantID, string(m.Type), m.ProductID, m.LocationID, m.Quantity, m.UnitCost, m.TotalCost, m.ReferenceType, m.ReferenceID, m.Status, m.CreatedBy, m.CreatedAt)
	if err != nil {
		return Movement{}, false, err
	}
	if tag.RowsAffected() == 1 {
		return m, true, nil
	}
	// Retried reference: return the movement posted by the first dispatch.
	var existing Movement
	err = r.tx.QueryRow(ctx, `SELECT id, tenant_id, movement_type, product_id, location_id, quantity, unit_cost, total_cost, reference_type, reference_id, status, created_by, created_at
FROM stock_movements WHERE id=$1`, m.ID).
		Scan(&existing.ID, &existing.TenantID, &existing.Type, &existing.ProductID, &existing.LocationID, &existing.Quantity, &existing.UnitCost, &existing.TotalCost, &existing.ReferenceType, &existing.ReferenceID, &existing.Status, &existing.CreatedBy, &existing.CreatedAt)
	if err != nil {
		return Movement{}, false, err
	}
	return existing, false, nil
}

func (r *txRepository) GetMovement(ctx context.Context, id uuid.UUID) (Movement, bool, error) {
	var m Movement
	err := r.tx.QueryRow(ctx, `SELECT id, tenant_id, movement_type, product_id, location_id, quantity, unit_cost, total_cost, reference_type, reference_id, status, created_by, created_at
FROM stock_movements WHERE id=$1`, id).
		Scan(&m.ID, &m.TenantID, &m.Type, &m.ProductID, &m.LocationID, &m.Quantity, &m.UnitCost, &m.TotalCost, &m.ReferenceType, &m.ReferenceID, &m.Status, &m.CreatedBy, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, false, nil
		}
		return Movement{}, false, err
	}
	return m, true, nil
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, tenantID, productID, locationID int64) (Balance, error) {
	var bal Balance
	err := r.tx.QueryRow(ctx, `SELECT tenant_id, product_id, location_id, on_hand_qty, reserved_qty, updated_at
FROM inventory_balances WHERE tenant_id=$1 AND product_id=$2 AND location_id=$3 FOR UPDATE`, tenantID, productID, locationID).
		Scan(&bal.TenantID, &bal.ProductID, &bal.LocationID, &bal.OnHand, &bal.Reserved, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{TenantID: tenantID, ProductID: productID, LocationID: locationID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

func (r *txRepository) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_balances (tenant_id, product_id, location_id, on_hand_qty, reserved_qty, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW())
ON CONFLICT (tenant_id, product_id, location_id) DO UPDATE SET on_hand_qty=EXCLUDED.on_hand_qty, reserved_qty=EXCLUDED.reserved_qty, updated_at=NOW()`,
		balance.TenantID, balance.ProductID, balance.LocationID, balance.OnHand, balance.Reserved)
	return err
}

func (r *txRepository) InsertLayer(ctx context.Context, layer ValuationLayer) error {
	// receipt_seq is a bigserial; strict creation order for the FIFO walk.
	_, err := r.tx.Exec(ctx, `INSERT INTO valuation_layers (id, tenant_id, product_id, location_id, unit_cost, original_qty, remaining_qty, source_movement_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (source_movement_id) DO NOTHING`,
		layer.ID, layer.TenantID, layer.ProductID, layer.LocationID, layer.UnitCost, layer.OriginalQty, layer.RemainingQty, layer.SourceMovementID, layer.CreatedAt)
	return err
}

func (r *txRepository) GetOpenLayersForUpdate(ctx context.Context, tenantID, productID, locationID int64, order CostOrder) ([]ValuationLayer, error) {
	dir := "ASC"
	if order == CostLIFO {
		dir = "DESC"
	}
	rows, err := r.tx.Query(ctx, `SELECT id, tenant_id, product_id, location_id, unit_cost, original_qty, remaining_qty, source_movement_id, receipt_seq, created_at
FROM valuation_layers
WHERE tenant_id=$1 AND product_id=$2 AND location_id=$3 AND remaining_qty > 0
ORDER BY receipt_seq `+dir+`
FOR UPDATE`, tenantID, productID, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var layers []ValuationLayer
	for rows.Next() {
		var l ValuationLayer
		if err := rows.Scan(&l.ID, &l.TenantID, &l.ProductID, &l.LocationID, &l.UnitCost, &l.OriginalQty, &l.RemainingQty, &l.SourceMovementID, &l.ReceiptSeq, &l.CreatedAt); err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	return layers, rows.Err()
}

func (r *txRepository) SetLayerRemaining(ctx context.Context, id uuid.UUID, remaining int64) error {
	if remaining < 0 {
		return fmt.Errorf("layer %s: remaining quantity below zero", id)
	}
	tag, err := r.tx.Exec(ctx, `UPDATE valuation_layers SET remaining_qty=$2 WHERE id=$1 AND $2 <= original_qty`, id, remaining)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("layer %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *txRepository) InsertReservation(ctx context.Context, res Reservation) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_reservations (id, tenant_id, product_id, location_id, quantity, reference_type, reference_id, status, expires_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		res.ID, res.TenantID, res.ProductID, res.LocationID, res.Quantity, res.ReferenceType, res.ReferenceID, string(res.Status), res.ExpiresAt, res.CreatedAt)
	return err
}

func (r *txRepository) GetReservationForUpdate(ctx context.Context, id uuid.UUID) (Reservation, error) {
	var res Reservation
	err := r.tx.QueryRow(ctx, `SELECT id, tenant_id, product_id, location_id, quantity, reference_type, reference_id, status, expires_at, created_at
FROM stock_reservations WHERE id=$1 FOR UPDATE`, id).
		Scan(&res.ID, &res.TenantID, &res.ProductID, &res.LocationID, &res.Quantity, &res.ReferenceType, &res.ReferenceID, &res.Status, &res.ExpiresAt, &res.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, fmt.Errorf("reservation %s: %w", id, shared.ErrNotFound)
		}
		return Reservation{}, err
	}
	return res, nil
}

func (r *txRepository) SetReservationStatus(ctx context.Context, id uuid.UUID, status ReservationStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_reservations SET status=$2 WHERE id=$1`, id, string(status))
	return err
}

// SelectExpiredForUpdate picks up past-due ACTIVE reservations. SKIP LOCKED
// lets two sweep workers run concurrently without releasing a hold twice.
func (r *txRepository) SelectExpiredForUpdate(ctx context.Context, now time.Time, limit int) ([]Reservation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.tx.Query(ctx, `SELECT id, tenant_id, product_id, location_id, quantity, reference_type, reference_id, status, expires_at, created_at
FROM stock_reservations
WHERE status='ACTIVE' AND expires_at < $1
ORDER BY expires_at ASC
LIMIT $2
FOR UPDATE SKIP LOCKED`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reservations []Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.ID, &res.TenantID, &res.ProductID, &res.LocationID, &res.Quantity, &res.ReferenceType, &res.ReferenceID, &res.Status, &res.ExpiresAt, &res.CreatedAt); err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
