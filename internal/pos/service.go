package pos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/inventory"
	"github.com/meridian-pos/meridian-pos/internal/masterdata"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// RepositoryPort abstracts sale and session persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, tenantID int64, id uuid.UUID) (Sale, error)
	GetSession(ctx context.Context, tenantID int64, id uuid.UUID) (POSSession, error)
}

// CatalogPort resolves products and locations from master data.
type CatalogPort interface {
	GetProduct(ctx context.Context, tenantID, id int64) (masterdata.Product, error)
	GetLocation(ctx context.Context, tenantID, id int64) (masterdata.Location, error)
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// SummaryInvalidator is notified after a sale changes state, so downstream
// cached aggregates can drop stale entries.
type SummaryInvalidator interface {
	Invalidate(ctx context.Context)
}

// ErrPriceOutOfBounds indicates a unit price outside the product's configured range.
var ErrPriceOutOfBounds = errors.New("pos: unit price outside product bounds")

// ErrEmptySale indicates a completion attempt on a sale with no items.
var ErrEmptySale = errors.New("pos: sale has no items")

// ErrRefundQuantity indicates a refund exceeding the remaining sold quantity.
var ErrRefundQuantity = errors.New("pos: refund quantity exceeds remaining sold quantity")

// Service orchestrates the sale lifecycle on top of the stock engine. Every
// state change runs in one transaction shared with inventory via
// TxRepository.Inventory().
type Service struct {
	repo        RepositoryPort
	inventory   *inventory.Service
	catalog     CatalogPort
	audit       AuditPort
	invalidator SummaryInvalidator
	logger      *slog.Logger
	now         func() time.Time
}

// SetSummaryInvalidator attaches the optional downstream cache hook.
func (s *Service) SetSummaryInvalidator(inv SummaryInvalidator) {
	s.invalidator = inv
}

func (s *Service) invalidateSummaries(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
}

// NewService constructs Service.
func NewService(repo RepositoryPort, inv *inventory.Service, catalog CatalogPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		inventory: inv,
		catalog:   catalog,
		audit:     audit,
		logger:    logger,
		now:       time.Now,
	}
}

// ============================================================================
// CART
// ============================================================================

// CreateCart opens a DRAFT sale for incremental item entry.
func (s *Service) CreateCart(ctx context.Context, input CreateCartInput) (Sale, error) {
	if _, err := s.catalog.GetLocation(ctx, input.TenantID, input.LocationID); err != nil {
		return Sale{}, err
	}
	now := s.now().UTC()
	sale := Sale{
		ID:             uuid.New(),
		TenantID:       input.TenantID,
		Status:         SaleStatusDraft,
		LocationID:     input.LocationID,
		SessionID:      input.SessionID,
		CustomerID:     input.CustomerID,
		Subtotal:       decimal.Zero,
		DiscountAmount: decimal.Zero,
		TaxAmount:      decimal.Zero,
		TotalAmount:    decimal.Zero,
		PaidAmount:     decimal.Zero,
		ChangeAmount:   decimal.Zero,
		CreatedBy:      input.ActorID,
		CreatedAt:      now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextSaleNumber(ctx, input.TenantID, input.LocationID, now)
		if err != nil {
			return err
		}
		sale.SaleNumber = number
		return tx.InsertSale(ctx, sale)
	})
	if err != nil {
		return Sale{}, err
	}
	return sale, nil
}

// AddItem appends a line to a DRAFT sale and reserves its stock.
func (s *Service) AddItem(ctx context.Context, tenantID int64, saleID uuid.UUID, input CartItemInput) (Sale, error) {
	if err := s.validateItem(ctx, tenantID, input); err != nil {
		return Sale{}, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := s.lockDraft(ctx, tx, tenantID, saleID)
		if err != nil {
			return err
		}
		itemID := uuid.New()
		res, err := s.inventory.ReserveTx(ctx, tx.Inventory(), inventory.ReserveInput{
			TenantID:      tenantID,
			ProductID:     input.ProductID,
			LocationID:    sale.LocationID,
			Quantity:      input.Quantity,
			ReferenceType: "sale",
			ReferenceID:   lineRef(saleID, itemID),
		})
		if err != nil {
			return err
		}
		resID := res.ID
		item := SaleItem{
			ID:            itemID,
			SaleID:        saleID,
			ProductID:     input.ProductID,
			Quantity:      input.Quantity,
			UnitPrice:     input.UnitPrice,
			UnitDiscount:  input.UnitDiscount,
			UnitCost:      decimal.Zero,
			LineTotal:     CalculateLineTotal(input.Quantity, input.UnitPrice, input.UnitDiscount),
			ReservationID: &resID,
		}
		if err := tx.InsertSaleItem(ctx, item); err != nil {
			return err
		}
		return s.refreshTotals(ctx, tx, sale)
	})
	if err != nil {
		return Sale{}, err
	}
	return s.repo.GetSale(ctx, tenantID, saleID)
}

// UpdateItem changes a line's quantity or pricing. The old hold is released
// and a fresh one created, so availability is rechecked under the row lock.
func (s *Service) UpdateItem(ctx context.Context, tenantID int64, saleID, itemID uuid.UUID, input CartItemInput) (Sale, error) {
	if err := s.validateItem(ctx, tenantID, input); err != nil {
		return Sale{}, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := s.lockDraft(ctx, tx, tenantID, saleID)
		if err != nil {
			return err
		}
		item, err := s.findItem(ctx, tx, saleID, itemID)
		if err != nil {
			return err
		}
		if item.ProductID != input.ProductID {
			return fmt.Errorf("item %s is for a different product: %w", itemID, shared.ErrConflict)
		}
		inv := tx.Inventory()
		if item.ReservationID != nil {
			if err := s.inventory.ReleaseTx(ctx, inv, *item.ReservationID); err != nil {
				return err
			}
		}
		res, err := s.inventory.ReserveTx(ctx, inv, inventory.ReserveInput{
			TenantID:      tenantID,
			ProductID:     item.ProductID,
			LocationID:    sale.LocationID,
			Quantity:      input.Quantity,
			ReferenceType: "sale",
			ReferenceID:   lineRef(saleID, itemID),
		})
		if err != nil {
			return err
		}
		resID := res.ID
		item.Quantity = input.Quantity
		item.UnitPrice = input.UnitPrice
		item.UnitDiscount = input.UnitDiscount
		item.LineTotal = CalculateLineTotal(input.Quantity, input.UnitPrice, input.UnitDiscount)
		item.ReservationID = &resID
		if err := tx.UpdateSaleItem(ctx, item); err != nil {
			return err
		}
		return s.refreshTotals(ctx, tx, sale)
	})
	if err != nil {
		return Sale{}, err
	}
	return s.repo.GetSale(ctx, tenantID, saleID)
}

// RemoveItem drops a line from a DRAFT sale and releases its hold.
func (s *Service) RemoveItem(ctx context.Context, tenantID int64, saleID, itemID uuid.UUID) (Sale, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := s.lockDraft(ctx, tx, tenantID, saleID)
		if err != nil {
			return err
		}
		item, err := s.findItem(ctx, tx, saleID, itemID)
		if err != nil {
			return err
		}
		if item.ReservationID != nil {
			if err := s.inventory.ReleaseTx(ctx, tx.Inventory(), *item.ReservationID); err != nil {
				return err
			}
		}
		if err := tx.DeleteSaleItem(ctx, itemID); err != nil {
			return err
		}
		return s.refreshTotals(ctx, tx, sale)
	})
	if err != nil {
		return Sale{}, err
	}
	return s.repo.GetSale(ctx, tenantID, saleID)
}

// ============================================================================
// CHECKOUT
// ============================================================================

// Complete settles a DRAFT sale: payments are validated against the final
// total, each line's hold is fulfilled, and the outbound movements post with
// their consumed layer cost recorded back on the line.
func (s *Service) Complete(ctx context.Context, tenantID int64, saleID uuid.UUID, input CompleteInput) (Sale, error) {
	if err := validatePayments(input.Payments); err != nil {
		return Sale{}, err
	}
	if input.DiscountAmount.IsNegative() {
		return Sale{}, fmt.Errorf("pos: discount must be >= 0: %w", shared.ErrInvalidStateTransition)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, tenantID, saleID)
		if err != nil {
			return err
		}
		if !sale.Status.CanTransition(SaleStatusCompleted) {
			return fmt.Errorf("sale %s is %s: %w", saleID, sale.Status, shared.ErrInvalidStateTransition)
		}
		items, err := tx.GetSaleItems(ctx, saleID)
		if err != nil {
			return err
		}
		sale.DiscountAmount = input.DiscountAmount
		return s.settle(ctx, tx, &sale, items, input.Payments, input.ActorID)
	})
	if err != nil {
		return Sale{}, err
	}
	sale, err := s.repo.GetSale(ctx, tenantID, saleID)
	if err != nil {
		return Sale{}, err
	}
	s.invalidateSummaries(ctx)
	s.recordAudit(ctx, tenantID, input.ActorID, "pos.sale.complete", sale)
	return sale, nil
}

// QuickSale creates and settles a sale in one call, skipping the cart and
// reservation phase. Stock is checked directly when the OUT movements post.
func (s *Service) QuickSale(ctx context.Context, input QuickSaleInput) (Sale, error) {
	if len(input.Items) == 0 {
		return Sale{}, ErrEmptySale
	}
	if err := validatePayments(input.Payments); err != nil {
		return Sale{}, err
	}
	if input.DiscountAmount.IsNegative() {
		return Sale{}, fmt.Errorf("pos: discount must be >= 0: %w", shared.ErrInvalidStateTransition)
	}
	for _, it := range input.Items {
		if err := s.validateItem(ctx, input.TenantID, it); err != nil {
			return Sale{}, err
		}
	}
	if _, err := s.catalog.GetLocation(ctx, input.TenantID, input.LocationID); err != nil {
		return Sale{}, err
	}
	now := s.now().UTC()
	saleID := uuid.New()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextSaleNumber(ctx, input.TenantID, input.LocationID, now)
		if err != nil {
			return err
		}
		sale := Sale{
			ID:             saleID,
			TenantID:       input.TenantID,
			SaleNumber:     number,
			Status:         SaleStatusDraft,
			LocationID:     input.LocationID,
			SessionID:      input.SessionID,
			CustomerID:     input.CustomerID,
			Subtotal:       decimal.Zero,
			DiscountAmount: input.DiscountAmount,
			TaxAmount:      decimal.Zero,
			TotalAmount:    decimal.Zero,
			PaidAmount:     decimal.Zero,
			ChangeAmount:   decimal.Zero,
			CreatedBy:      input.ActorID,
			CreatedAt:      now,
		}
		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}
		items := make([]SaleItem, 0, len(input.Items))
		for _, in := range input.Items {
			item := SaleItem{
				ID:           uuid.New(),
				SaleID:       saleID,
				ProductID:    in.ProductID,
				Quantity:     in.Quantity,
				UnitPrice:    in.UnitPrice,
				UnitDiscount: in.UnitDiscount,
				UnitCost:     decimal.Zero,
				LineTotal:    CalculateLineTotal(in.Quantity, in.UnitPrice, in.UnitDiscount),
			}
			if err := tx.InsertSaleItem(ctx, item); err != nil {
				return err
			}
			items = append(items, item)
		}
		return s.settle(ctx, tx, &sale, items, input.Payments, input.ActorID)
	})
	if err != nil {
		return Sale{}, err
	}
	sale, err := s.repo.GetSale(ctx, input.TenantID, saleID)
	if err != nil {
		return Sale{}, err
	}
	s.invalidateSummaries(ctx)
	s.recordAudit(ctx, input.TenantID, input.ActorID, "pos.sale.quick", sale)
	return sale, nil
}

// settle runs the shared completion path inside the caller's transaction:
// totals, payment sufficiency, hold fulfillment, outbound postings, status.
func (s *Service) settle(ctx context.Context, tx TxRepository, sale *Sale, items []SaleItem, payments []PaymentInput, actorID int64) error {
	if len(items) == 0 {
		return ErrEmptySale
	}
	subtotal, tax, total := saleTotals(items, sale.DiscountAmount)
	paid := sumPayments(payments)
	if paid.LessThan(total) {
		return fmt.Errorf("paid %s of total %s: %w", paid.StringFixed(shared.MoneyScale), total.StringFixed(shared.MoneyScale), shared.ErrInsufficientPayment)
	}
	inv := tx.Inventory()
	for i := range items {
		item := &items[i]
		if item.ReservationID != nil {
			if _, err := s.inventory.FulfillTx(ctx, inv, *item.ReservationID); err != nil {
				return err
			}
		}
		order, err := s.costOrderFor(ctx, sale.TenantID, item.ProductID)
		if err != nil {
			return err
		}
		movement, err := s.inventory.SaleOut(ctx, inv, inventory.SaleOutInput{
			TenantID:      sale.TenantID,
			ProductID:     item.ProductID,
			LocationID:    sale.LocationID,
			Quantity:      item.Quantity,
			ReferenceType: "sale",
			ReferenceID:   lineRef(sale.ID, item.ID),
			ActorID:       actorID,
			CostOrder:     order,
		})
		if err != nil {
			return err
		}
		item.UnitCost = movement.UnitCost
		if err := tx.UpdateSaleItem(ctx, *item); err != nil {
			return err
		}
	}
	for _, p := range payments {
		if err := tx.InsertPayment(ctx, SalePayment{ID: uuid.New(), SaleID: sale.ID, Method: p.Method, Amount: p.Amount}); err != nil {
			return err
		}
	}
	sale.Subtotal = subtotal
	sale.TaxAmount = tax
	sale.TotalAmount = total
	sale.PaidAmount = paid
	sale.ChangeAmount = shared.Round4(paid.Sub(total))
	if err := tx.UpdateSaleTotals(ctx, *sale); err != nil {
		return err
	}
	completedAt := s.now().UTC()
	sale.Status = SaleStatusCompleted
	sale.CompletedAt = &completedAt
	return tx.UpdateSaleStatus(ctx, *sale)
}

// ============================================================================
// VOID / REFUND
// ============================================================================

// Void reverses a COMPLETED sale in full. Every line comes back into stock
// as a fresh layer at the exact cost the sale consumed.
func (s *Service) Void(ctx context.Context, tenantID int64, saleID uuid.UUID, reason string, actorID int64) (Sale, error) {
	if reason == "" {
		return Sale{}, errors.New("pos: void reason required")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, tenantID, saleID)
		if err != nil {
			return err
		}
		if !sale.Status.CanTransition(SaleStatusVoided) {
			return fmt.Errorf("sale %s is %s: %w", saleID, sale.Status, shared.ErrInvalidStateTransition)
		}
		items, err := tx.GetSaleItems(ctx, saleID)
		if err != nil {
			return err
		}
		inv := tx.Inventory()
		for _, item := range items {
			if _, err := s.inventory.SaleReturn(ctx, inv, inventory.SaleReturnInput{
				TenantID:      tenantID,
				ProductID:     item.ProductID,
				LocationID:    sale.LocationID,
				Quantity:      item.Quantity,
				UnitCost:      item.UnitCost,
				ReferenceType: "sale_void",
				ReferenceID:   lineRef(saleID, item.ID),
				ActorID:       actorID,
			}); err != nil {
				return err
			}
		}
		now := s.now().UTC()
		sale.Status = SaleStatusVoided
		sale.VoidReason = &reason
		sale.VoidedAt = &now
		sale.VoidedBy = &actorID
		return tx.UpdateSaleStatus(ctx, sale)
	})
	if err != nil {
		return Sale{}, err
	}
	sale, err := s.repo.GetSale(ctx, tenantID, saleID)
	if err != nil {
		return Sale{}, err
	}
	s.invalidateSummaries(ctx)
	s.recordAudit(ctx, tenantID, actorID, "pos.sale.void", sale)
	return sale, nil
}

// Refund returns part or all of a sale's lines to stock at their recorded
// cost. Cumulative refunds per line never exceed the sold quantity.
func (s *Service) Refund(ctx context.Context, tenantID int64, saleID uuid.UUID, lines []RefundLineInput, actorID int64) (Sale, error) {
	if len(lines) == 0 {
		return Sale{}, errors.New("pos: refund lines required")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, tenantID, saleID)
		if err != nil {
			return err
		}
		if sale.Status != SaleStatusCompleted && sale.Status != SaleStatusPartiallyRefunded {
			return fmt.Errorf("sale %s is %s: %w", saleID, sale.Status, shared.ErrInvalidStateTransition)
		}
		items, err := tx.GetSaleItems(ctx, saleID)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]*SaleItem, len(items))
		for i := range items {
			byID[items[i].ID] = &items[i]
		}
		inv := tx.Inventory()
		for _, line := range lines {
			item, ok := byID[line.ItemID]
			if !ok {
				return fmt.Errorf("sale item %s: %w", line.ItemID, shared.ErrNotFound)
			}
			if line.Quantity <= 0 {
				return inventory.ErrInvalidQuantity
			}
			remaining := item.Quantity - item.RefundedQty
			if line.Quantity > remaining {
				return fmt.Errorf("item %s: refund %d of %d remaining: %w", item.ID, line.Quantity, remaining, ErrRefundQuantity)
			}
			if _, err := s.inventory.SaleReturn(ctx, inv, inventory.SaleReturnInput{
				TenantID:      tenantID,
				ProductID:     item.ProductID,
				LocationID:    sale.LocationID,
				Quantity:      line.Quantity,
				UnitCost:      item.UnitCost,
				ReferenceType: "sale_refund",
				ReferenceID:   fmt.Sprintf("%s:%d", lineRef(saleID, item.ID), item.RefundedQty+line.Quantity),
				ActorID:       actorID,
			}); err != nil {
				return err
			}
			item.RefundedQty += line.Quantity
			if err := tx.UpdateSaleItem(ctx, *item); err != nil {
				return err
			}
		}
		next := SaleStatusRefunded
		for i := range items {
			if items[i].RefundedQty < items[i].Quantity {
				next = SaleStatusPartiallyRefunded
				break
			}
		}
		if sale.Status != next {
			if !sale.Status.CanTransition(next) {
				return fmt.Errorf("sale %s is %s: %w", saleID, sale.Status, shared.ErrInvalidStateTransition)
			}
			sale.Status = next
		}
		return tx.UpdateSaleStatus(ctx, sale)
	})
	if err != nil {
		return Sale{}, err
	}
	sale, err := s.repo.GetSale(ctx, tenantID, saleID)
	if err != nil {
		return Sale{}, err
	}
	s.invalidateSummaries(ctx)
	s.recordAudit(ctx, tenantID, actorID, "pos.sale.refund", sale)
	return sale, nil
}

// ============================================================================
// SESSIONS
// ============================================================================

// OpenSession opens a cash drawer session for one terminal. The partial
// unique index rejects a second OPEN session on the same terminal.
func (s *Service) OpenSession(ctx context.Context, input OpenSessionInput) (POSSession, error) {
	if input.TerminalID == "" {
		return POSSession{}, errors.New("pos: terminal id required")
	}
	if input.OpeningBalance.IsNegative() {
		return POSSession{}, errors.New("pos: opening balance must be >= 0")
	}
	if _, err := s.catalog.GetLocation(ctx, input.TenantID, input.LocationID); err != nil {
		return POSSession{}, err
	}
	session := POSSession{
		ID:             uuid.New(),
		TenantID:       input.TenantID,
		TerminalID:     input.TerminalID,
		LocationID:     input.LocationID,
		OpeningBalance: input.OpeningBalance,
		Status:         SessionOpen,
		OpenedBy:       input.ActorID,
		OpenedAt:       s.now().UTC(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertSession(ctx, session)
	})
	if err != nil {
		return POSSession{}, err
	}
	return session, nil
}

// CloseSession reconciles the drawer: expected = opening + cash payments on
// the session's completed sales, variance = counted - expected.
func (s *Service) CloseSession(ctx context.Context, tenantID int64, sessionID uuid.UUID, input CloseSessionInput) (POSSession, error) {
	var closed POSSession
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		session, err := tx.GetSessionForUpdate(ctx, tenantID, sessionID)
		if err != nil {
			return err
		}
		if session.Status != SessionOpen {
			return fmt.Errorf("session %s is %s: %w", sessionID, session.Status, shared.ErrInvalidStateTransition)
		}
		cash, err := tx.SumCashPayments(ctx, sessionID)
		if err != nil {
			return err
		}
		expected := shared.Round4(session.OpeningBalance.Add(cash))
		variance := shared.Round4(input.ClosingBalance.Sub(expected))
		now := s.now().UTC()
		closing := input.ClosingBalance
		session.Status = SessionClosed
		session.ClosingBalance = &closing
		session.ExpectedBalance = &expected
		session.Variance = &variance
		session.ClosedBy = &input.ActorID
		session.ClosedAt = &now
		if err := tx.UpdateSessionClose(ctx, session); err != nil {
			return err
		}
		closed = session
		return nil
	})
	if err != nil {
		return POSSession{}, err
	}
	if closed.Variance != nil && !closed.Variance.IsZero() {
		s.logger.Warn("session closed with variance",
			slog.String("session_id", closed.ID.String()),
			slog.String("variance", closed.Variance.StringFixed(shared.MoneyScale)))
	}
	return closed, nil
}

// ============================================================================
// READS
// ============================================================================

// GetSale loads a sale with items and payments.
func (s *Service) GetSale(ctx context.Context, tenantID int64, id uuid.UUID) (Sale, error) {
	return s.repo.GetSale(ctx, tenantID, id)
}

// GetSession loads a session.
func (s *Service) GetSession(ctx context.Context, tenantID int64, id uuid.UUID) (POSSession, error) {
	return s.repo.GetSession(ctx, tenantID, id)
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Service) validateItem(ctx context.Context, tenantID int64, input CartItemInput) error {
	if input.Quantity <= 0 {
		return inventory.ErrInvalidQuantity
	}
	if input.UnitPrice.IsNegative() || input.UnitDiscount.IsNegative() {
		return errors.New("pos: price and discount must be >= 0")
	}
	product, err := s.catalog.GetProduct(ctx, tenantID, input.ProductID)
	if err != nil {
		return err
	}
	if !product.IsActive {
		return fmt.Errorf("product %d is inactive: %w", input.ProductID, shared.ErrConflict)
	}
	if !product.PriceInBounds(input.UnitPrice) {
		return fmt.Errorf("product %d price %s: %w", input.ProductID, input.UnitPrice.StringFixed(shared.MoneyScale), ErrPriceOutOfBounds)
	}
	return nil
}

func (s *Service) lockDraft(ctx context.Context, tx TxRepository, tenantID int64, saleID uuid.UUID) (Sale, error) {
	sale, err := tx.GetSaleForUpdate(ctx, tenantID, saleID)
	if err != nil {
		return Sale{}, err
	}
	if sale.Status != SaleStatusDraft {
		return Sale{}, fmt.Errorf("sale %s is %s: %w", saleID, sale.Status, shared.ErrInvalidStateTransition)
	}
	return sale, nil
}

func (s *Service) findItem(ctx context.Context, tx TxRepository, saleID, itemID uuid.UUID) (SaleItem, error) {
	items, err := tx.GetSaleItems(ctx, saleID)
	if err != nil {
		return SaleItem{}, err
	}
	for _, item := range items {
		if item.ID == itemID {
			return item, nil
		}
	}
	return SaleItem{}, fmt.Errorf("sale item %s: %w", itemID, shared.ErrNotFound)
}

func (s *Service) refreshTotals(ctx context.Context, tx TxRepository, sale Sale) error {
	items, err := tx.GetSaleItems(ctx, sale.ID)
	if err != nil {
		return err
	}
	sale.Subtotal, sale.TaxAmount, sale.TotalAmount = saleTotals(items, sale.DiscountAmount)
	return tx.UpdateSaleTotals(ctx, sale)
}

// costOrderFor maps the product's pricing method to a layer consumption
// order. MOVING_AVERAGE products still consume oldest-first; their average
// emerges from the weighted cost across consumed layers.
func (s *Service) costOrderFor(ctx context.Context, tenantID, productID int64) (inventory.CostOrder, error) {
	product, err := s.catalog.GetProduct(ctx, tenantID, productID)
	if err != nil {
		return "", err
	}
	if product.PricingMethod == masterdata.PricingLIFO {
		return inventory.CostLIFO, nil
	}
	return inventory.CostFIFO, nil
}

func validatePayments(payments []PaymentInput) error {
	if len(payments) == 0 {
		return errors.New("pos: at least one payment required")
	}
	for _, p := range payments {
		if !p.Method.IsValid() {
			return fmt.Errorf("pos: unknown payment method %q", p.Method)
		}
		if !p.Amount.IsPositive() {
			return errors.New("pos: payment amount must be > 0")
		}
	}
	return nil
}

func lineRef(saleID, itemID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", saleID, itemID)
}

func (s *Service) recordAudit(ctx context.Context, tenantID, actorID int64, action string, sale Sale) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "sale",
		EntityID: sale.ID.String(),
		Meta: map[string]any{
			"sale_number": sale.SaleNumber,
			"status":      string(sale.Status),
			"total":       sale.TotalAmount.StringFixed(shared.MoneyScale),
		},
		At: s.now().UTC(),
	})
}
