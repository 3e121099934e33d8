package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListMovements(ctx context.Context, filter HistoryFilter) ([]Movement, error)
	GetBalance(ctx context.Context, tenantID, productID, locationID int64) (Balance, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// DefaultReservationTTL bounds how long a cart may hold stock.
const DefaultReservationTTL = 30 * time.Minute

// Service coordinates the stock ledger, valuation layers, balances and
// reservations. All mutations run inside repository transactions; the
// tx-scoped methods additionally let the POS orchestrator drive the engine
// from its own transaction.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	logger      *slog.Logger
	ttl         time.Duration
	now         func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	ReservationTTL time.Duration
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.ReservationTTL
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	return &Service{repo: repo, audit: audit, idempotency: idem, logger: logger, ttl: ttl, now: time.Now}
}

// ============================================================================
// LEDGER POSTING
// ============================================================================

// ReceiveStock posts an inbound receipt and opens its valuation layer.
// The movement id derives from the reference, so re-dispatching the same
// stock-in produces exactly one movement and one layer.
func (s *Service) ReceiveStock(ctx context.Context, input ReceiveInput) (Movement, error) {
	if input.ProductID == 0 || input.LocationID == 0 {
		return Movement{}, errors.New("inventory: product and location required")
	}
	if input.Quantity <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	if input.UnitCost.IsNegative() {
		return Movement{}, ErrInvalidUnitCost
	}
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = s.postInbound(ctx, tx, inboundParams{
			ID:            s.deriveID(input.ReferenceType, input.ReferenceID, input.ProductID, input.LocationID, ""),
			TenantID:      input.TenantID,
			Type:          MovementIn,
			ProductID:     input.ProductID,
			LocationID:    input.LocationID,
			Quantity:      input.Quantity,
			UnitCost:      input.UnitCost,
			ReferenceType: input.ReferenceType,
			ReferenceID:   input.ReferenceID,
			ActorID:       input.ActorID,
		})
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, input.TenantID, input.ActorID, "inventory:receive", movement)
	return movement, nil
}

// PostAdjustment posts a signed manual adjustment. A positive quantity opens
// a layer at the supplied unit cost; a negative quantity consumes open layers.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (Movement, error) {
	if input.ProductID == 0 || input.LocationID == 0 {
		return Movement{}, errors.New("inventory: product and location required")
	}
	if input.Quantity == 0 {
		return Movement{}, ErrInvalidQuantity
	}
	if input.Quantity > 0 && input.UnitCost.IsNegative() {
		return Movement{}, ErrInvalidUnitCost
	}

	key := ""
	insertedKey := false
	if s.idempotency != nil && input.ReferenceID != "" {
		key = fmt.Sprintf("ADJUSTMENT:%s:%s:%d:%d", input.ReferenceType, input.ReferenceID, input.ProductID, input.LocationID)
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			return Movement{}, err
		}
		insertedKey = true
	}

	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if input.Quantity > 0 {
			movement, err = s.postInbound(ctx, tx, inboundParams{
				ID:            uuid.New(),
				TenantID:      input.TenantID,
				Type:          MovementAdjustment,
				ProductID:     input.ProductID,
				LocationID:    input.LocationID,
				Quantity:      input.Quantity,
				UnitCost:      input.UnitCost,
				ReferenceType: input.ReferenceType,
				ReferenceID:   input.ReferenceID,
				ActorID:       input.ActorID,
			})
			return err
		}
		movement, _, err = s.postOutbound(ctx, tx, outboundParams{
			ID:            uuid.New(),
			TenantID:      input.TenantID,
			Type:          MovementAdjustment,
			ProductID:     input.ProductID,
			LocationID:    input.LocationID,
			Quantity:      -input.Quantity,
			ReferenceType: input.ReferenceType,
			ReferenceID:   input.ReferenceID,
			ActorID:       input.ActorID,
		})
		return err
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Movement{}, err
	}
	s.recordAudit(ctx, input.TenantID, input.ActorID, "inventory:adjust", movement)
	return movement, nil
}

// PostTransfer moves stock between locations with an OUT and an IN leg in
// one transaction. The IN leg carries the FIFO cost of the OUT leg, and both
// legs derive deterministic ids so a retried transfer never double-posts.
func (s *Service) PostTransfer(ctx context.Context, input TransferInput) (Movement, Movement, error) {
	if input.ProductID == 0 || input.SrcLocationID == 0 || input.DstLocationID == 0 {
		return Movement{}, Movement{}, errors.New("inventory: product and locations required")
	}
	if input.SrcLocationID == input.DstLocationID {
		return Movement{}, Movement{}, errors.New("inventory: source and destination location must differ")
	}
	if input.Quantity <= 0 {
		return Movement{}, Movement{}, ErrInvalidQuantity
	}
	var out, in Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, _, err = s.postOutbound(ctx, tx, outboundParams{
			ID:            s.deriveID(input.ReferenceType, input.ReferenceID, input.ProductID, input.SrcLocationID, "out"),
			TenantID:      input.TenantID,
			Type:          MovementTransfer,
			ProductID:     input.ProductID,
			LocationID:    input.SrcLocationID,
			Quantity:      input.Quantity,
			ReferenceType: input.ReferenceType,
			ReferenceID:   input.ReferenceID,
			ActorID:       input.ActorID,
		})
		if err != nil {
			return err
		}
		in, err = s.postInbound(ctx, tx, inboundParams{
			ID:            s.deriveID(input.ReferenceType, input.ReferenceID, input.ProductID, input.DstLocationID, "in"),
			TenantID:      input.TenantID,
			Type:          MovementTransfer,
			ProductID:     input.ProductID,
			LocationID:    input.DstLocationID,
			Quantity:      input.Quantity,
			UnitCost:      out.UnitCost,
			ReferenceType: input.ReferenceType,
			ReferenceID:   input.ReferenceID,
			ActorID:       input.ActorID,
		})
		return err
	})
	if err != nil {
		return Movement{}, Movement{}, err
	}
	s.recordAudit(ctx, input.TenantID, input.ActorID, "inventory:transfer", out)
	return out, in, nil
}

// SaleOut posts the outbound movement for one sale line inside the caller's
// transaction. The unit cost comes from layer consumption, never the caller.
func (s *Service) SaleOut(ctx context.Context, tx TxRepository, input SaleOutInput) (Movement, error) {
	movement, consumption, err := s.postOutbound(ctx, tx, outboundParams{
		ID:            s.deriveID(input.ReferenceType, input.ReferenceID, input.ProductID, input.LocationID, "out"),
		TenantID:      input.TenantID,
		Type:          MovementOut,
		ProductID:     input.ProductID,
		LocationID:    input.LocationID,
		Quantity:      input.Quantity,
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		ActorID:       input.ActorID,
		CostOrder:     input.CostOrder,
	})
	if err != nil {
		return Movement{}, err
	}
	logShortfall(s.logger, consumption, input.TenantID, input.ProductID, input.LocationID)
	return movement, nil
}

// SaleReturn posts a compensating inbound movement at the recorded unit cost
// inside the caller's transaction. The reversal opens a fresh layer instead
// of un-consuming history.
func (s *Service) SaleReturn(ctx context.Context, tx TxRepository, input SaleReturnInput) (Movement, error) {
	if input.UnitCost.IsNegative() {
		return Movement{}, ErrInvalidUnitCost
	}
	return s.postInbound(ctx, tx, inboundParams{
		ID:            s.deriveID(input.ReferenceType, input.ReferenceID, input.ProductID, input.LocationID, "in"),
		TenantID:      input.TenantID,
		Type:          MovementIn,
		ProductID:     input.ProductID,
		LocationID:    input.LocationID,
		Quantity:      input.Quantity,
		UnitCost:      input.UnitCost,
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		ActorID:       input.ActorID,
	})
}

// ============================================================================
// RESERVATIONS
// ============================================================================

// Reserve creates a hold on available stock in its own transaction.
func (s *Service) Reserve(ctx context.Context, input ReserveInput) (Reservation, error) {
	var res Reservation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		res, err = s.ReserveTx(ctx, tx, input)
		return err
	})
	return res, err
}

// ReserveTx creates a hold inside the caller's transaction. Rejects with
// ErrInsufficientStock unless available >= quantity under the row lock.
func (s *Service) ReserveTx(ctx context.Context, tx TxRepository, input ReserveInput) (Reservation, error) {
	if input.ProductID == 0 || input.LocationID == 0 {
		return Reservation{}, errors.New("inventory: product and location required")
	}
	if input.Quantity <= 0 {
		return Reservation{}, ErrInvalidQuantity
	}
	ttl := input.TTL
	if ttl <= 0 {
		ttl = s.ttl
	}
	balance, err := s.lockBalance(ctx, tx, input.TenantID, input.ProductID, input.LocationID)
	if err != nil {
		return Reservation{}, err
	}
	if balance.Available() < input.Quantity {
		return Reservation{}, fmt.Errorf("reserve %d of product %d at location %d (available %d): %w",
			input.Quantity, input.ProductID, input.LocationID, balance.Available(), shared.ErrInsufficientStock)
	}
	balance.Reserved += input.Quantity
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return Reservation{}, err
	}
	now := s.now().UTC()
	res := Reservation{
		ID:            uuid.New(),
		TenantID:      input.TenantID,
		ProductID:     input.ProductID,
		LocationID:    input.LocationID,
		Quantity:      input.Quantity,
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		Status:        ReservationActive,
		ExpiresAt:     now.Add(ttl),
		CreatedAt:     now,
	}
	if err := tx.InsertReservation(ctx, res); err != nil {
		return Reservation{}, err
	}
	return res, nil
}

// Release returns a hold to available stock. Safe to call repeatedly; a
// reservation already in a terminal state is left untouched.
func (s *Service) Release(ctx context.Context, id uuid.UUID) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.ReleaseTx(ctx, tx, id)
	})
}

// ReleaseTx releases a hold inside the caller's transaction.
func (s *Service) ReleaseTx(ctx context.Context, tx TxRepository, id uuid.UUID) error {
	res, err := tx.GetReservationForUpdate(ctx, id)
	if err != nil {
		return err
	}
	if res.Status.IsTerminal() {
		return nil
	}
	balance, err := s.lockBalance(ctx, tx, res.TenantID, res.ProductID, res.LocationID)
	if err != nil {
		return err
	}
	balance.Reserved -= res.Quantity
	if balance.Reserved < 0 {
		balance.Reserved = 0
	}
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return err
	}
	return tx.SetReservationStatus(ctx, id, ReservationReleased)
}

// FulfillTx marks a reservation fulfilled inside the completion transaction
// and gives its hold back in the same step; the OUT movement that follows
// net-reduces on-hand once. Returns false when the reservation already
// reached a terminal state (e.g. swept as expired), in which case the
// availability guard on the movement takes over.
func (s *Service) FulfillTx(ctx context.Context, tx TxRepository, id uuid.UUID) (bool, error) {
	res, err := tx.GetReservationForUpdate(ctx, id)
	if err != nil {
		return false, err
	}
	if res.Status != ReservationActive {
		return false, nil
	}
	balance, err := s.lockBalance(ctx, tx, res.TenantID, res.ProductID, res.LocationID)
	if err != nil {
		return false, err
	}
	balance.Reserved -= res.Quantity
	if balance.Reserved < 0 {
		balance.Reserved = 0
	}
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return false, err
	}
	if err := tx.SetReservationStatus(ctx, id, ReservationFulfilled); err != nil {
		return false, err
	}
	return true, nil
}

// SweepExpired transitions past-due ACTIVE reservations to EXPIRED and
// returns their quantity to available stock. Safe to run from several
// workers at once; each reservation is released exactly once.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	swept := 0
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		expired, err := tx.SelectExpiredForUpdate(ctx, now, 500)
		if err != nil {
			return err
		}
		for _, res := range expired {
			balance, err := s.lockBalance(ctx, tx, res.TenantID, res.ProductID, res.LocationID)
			if err != nil {
				return err
			}
			balance.Reserved -= res.Quantity
			if balance.Reserved < 0 {
				balance.Reserved = 0
			}
			if err := tx.UpsertBalance(ctx, balance); err != nil {
				return err
			}
			if err := tx.SetReservationStatus(ctx, res.ID, ReservationExpired); err != nil {
				return err
			}
			swept++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		s.logger.Info("expired reservations swept", slog.Int("count", swept))
	}
	return swept, nil
}

// ============================================================================
// READS
// ============================================================================

// MovementHistory lists the read-only movement history per product/location.
func (s *Service) MovementHistory(ctx context.Context, filter HistoryFilter) ([]Movement, error) {
	if filter.ProductID == 0 || filter.LocationID == 0 {
		return nil, errors.New("inventory: product and location required")
	}
	return s.repo.ListMovements(ctx, filter)
}

// GetBalance returns the current balance row.
func (s *Service) GetBalance(ctx context.Context, tenantID, productID, locationID int64) (Balance, error) {
	return s.repo.GetBalance(ctx, tenantID, productID, locationID)
}

// GetAvailable returns on-hand minus reserved.
func (s *Service) GetAvailable(ctx context.Context, tenantID, productID, locationID int64) (int64, error) {
	balance, err := s.repo.GetBalance(ctx, tenantID, productID, locationID)
	if err != nil {
		return 0, err
	}
	return balance.Available(), nil
}

// ============================================================================
// POSTING CORE
// ============================================================================

type inboundParams struct {
	ID            uuid.UUID
	TenantID      int64
	Type          MovementType
	ProductID     int64
	LocationID    int64
	Quantity      int64
	UnitCost      decimal.Decimal
	ReferenceType string
	ReferenceID   string
	ActorID       int64
}

type outboundParams struct {
	ID            uuid.UUID
	TenantID      int64
	Type          MovementType
	ProductID     int64
	LocationID    int64
	Quantity      int64
	ReferenceType string
	ReferenceID   string
	ActorID       int64
	CostOrder     CostOrder
}

// postInbound appends an IN-effect movement, bumps on-hand and opens a layer.
// A retried reference returns the existing movement with no further effect.
func (s *Service) postInbound(ctx context.Context, tx TxRepository, p inboundParams) (Movement, error) {
	if p.Quantity <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	now := s.now().UTC()
	m := Movement{
		ID:            p.ID,
		TenantID:      p.TenantID,
		Type:          p.Type,
		ProductID:     p.ProductID,
		LocationID:    p.LocationID,
		Quantity:      p.Quantity,
		UnitCost:      shared.Round4(p.UnitCost),
		TotalCost:     shared.MulQty(p.UnitCost, p.Quantity),
		ReferenceType: p.ReferenceType,
		ReferenceID:   p.ReferenceID,
		Status:        MovementStatusPosted,
		CreatedBy:     p.ActorID,
		CreatedAt:     now,
	}
	balance, err := s.lockBalance(ctx, tx, p.TenantID, p.ProductID, p.LocationID)
	if err != nil {
		return Movement{}, err
	}
	inserted := false
	m, inserted, err = tx.InsertMovement(ctx, m)
	if err != nil {
		return Movement{}, err
	}
	if !inserted {
		return m, nil
	}
	balance.OnHand += p.Quantity
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return Movement{}, err
	}
	if err := receiveLayer(ctx, tx, m, now); err != nil {
		return Movement{}, err
	}
	return m, nil
}

// postOutbound costs an OUT-effect movement from the open layers, appends it
// and drops on-hand. Availability (on-hand minus reserved) never goes
// negative; callers holding a reservation give it back in the same
// transaction before posting.
func (s *Service) postOutbound(ctx context.Context, tx TxRepository, p outboundParams) (Movement, Consumption, error) {
	if p.Quantity <= 0 {
		return Movement{}, Consumption{}, ErrInvalidQuantity
	}
	balance, err := s.lockBalance(ctx, tx, p.TenantID, p.ProductID, p.LocationID)
	if err != nil {
		return Movement{}, Consumption{}, err
	}
	if existing, found, err := tx.GetMovement(ctx, p.ID); err != nil {
		return Movement{}, Consumption{}, err
	} else if found {
		return existing, Consumption{}, nil
	}
	if balance.OnHand-p.Quantity < balance.Reserved {
		return Movement{}, Consumption{}, fmt.Errorf("take %d of product %d at location %d (available %d): %w",
			p.Quantity, p.ProductID, p.LocationID, balance.Available(), shared.ErrInsufficientStock)
	}
	consumption, err := consumeLayers(ctx, tx, p.TenantID, p.ProductID, p.LocationID, p.Quantity, p.CostOrder)
	if err != nil {
		return Movement{}, Consumption{}, err
	}
	now := s.now().UTC()
	m := Movement{
		ID:            p.ID,
		TenantID:      p.TenantID,
		Type:          p.Type,
		ProductID:     p.ProductID,
		LocationID:    p.LocationID,
		Quantity:      p.Quantity,
		UnitCost:      consumption.UnitCost,
		TotalCost:     consumption.TotalCost,
		ReferenceType: p.ReferenceType,
		ReferenceID:   p.ReferenceID,
		Status:        MovementStatusPosted,
		CreatedBy:     p.ActorID,
		CreatedAt:     now,
	}
	m, _, err = tx.InsertMovement(ctx, m)
	if err != nil {
		return Movement{}, Consumption{}, err
	}
	balance.OnHand -= p.Quantity
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return Movement{}, Consumption{}, err
	}
	return m, consumption, nil
}

// lockBalance loads the balance row FOR UPDATE, treating a missing row as an
// empty balance. The row is the serialization anchor for the pair.
func (s *Service) lockBalance(ctx context.Context, tx TxRepository, tenantID, productID, locationID int64) (Balance, error) {
	balance, err := tx.GetBalanceForUpdate(ctx, tenantID, productID, locationID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return Balance{}, err
	}
	if errors.Is(err, ErrBalanceNotFound) {
		balance = Balance{TenantID: tenantID, ProductID: productID, LocationID: locationID}
	}
	return balance, nil
}

func (s *Service) deriveID(refType, refID string, productID, locationID int64, leg string) uuid.UUID {
	if refType == "" || refID == "" {
		return uuid.New()
	}
	return DerivedMovementID(refType, refID, productID, locationID, leg)
}

func (s *Service) recordAudit(ctx context.Context, tenantID, actorID int64, action string, m Movement) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_movement",
		EntityID: m.ID.String(),
		Meta: map[string]any{
			"product_id":  m.ProductID,
			"location_id": m.LocationID,
			"quantity":    m.Quantity,
			"total_cost":  m.TotalCost.String(),
		},
	})
}
