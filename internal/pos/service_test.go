package pos

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian-pos/internal/inventory"
	"github.com/meridian-pos/meridian-pos/internal/masterdata"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// memoryStore backs both the POS and the inventory fakes with one dataset,
// so a sale transaction sees the stock engine's writes like the shared pgx
// transaction does in production. One mutex stands in for row locks; there
// is no rollback, so tests assert on balances and movements, not on
// transactional atomicity.
type memoryStore struct {
	mu sync.Mutex

	movements    map[uuid.UUID]inventory.Movement
	layers       []*inventory.ValuationLayer
	balances     map[string]inventory.Balance
	reservations map[uuid.UUID]*inventory.Reservation
	nextSeq      int64

	sales     map[uuid.UUID]Sale
	items     map[uuid.UUID]*SaleItem
	itemOrder map[uuid.UUID][]uuid.UUID
	payments  map[uuid.UUID][]SalePayment
	sessions  map[uuid.UUID]*POSSession
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		movements:    make(map[uuid.UUID]inventory.Movement),
		balances:     make(map[string]inventory.Balance),
		reservations: make(map[uuid.UUID]*inventory.Reservation),
		sales:        make(map[uuid.UUID]Sale),
		items:        make(map[uuid.UUID]*SaleItem),
		itemOrder:    make(map[uuid.UUID][]uuid.UUID),
		payments:     make(map[uuid.UUID][]SalePayment),
		sessions:     make(map[uuid.UUID]*POSSession),
	}
}

func invKey(tenantID, productID, locationID int64) string {
	return fmt.Sprintf("%d:%d:%d", tenantID, productID, locationID)
}

// ---------------------------------------------------------------------------
// inventory fakes
// ---------------------------------------------------------------------------

type memoryInvRepo struct {
	store *memoryStore
}

func (r *memoryInvRepo) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(ctx, &memoryInvTx{store: r.store})
}

func (r *memoryInvRepo) ListMovements(ctx context.Context, filter inventory.HistoryFilter) ([]inventory.Movement, error) {
	return nil, nil
}

func (r *memoryInvRepo) GetBalance(ctx context.Context, tenantID, productID, locationID int64) (inventory.Balance, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if bal, ok := r.store.balances[invKey(tenantID, productID, locationID)]; ok {
		return bal, nil
	}
	return inventory.Balance{TenantID: tenantID, ProductID: productID, LocationID: locationID}, nil
}

type memoryInvTx struct {
	store *memoryStore
}

func (tx *memoryInvTx) InsertMovement(ctx context.Context, m inventory.Movement) (inventory.Movement, bool, error) {
	if existing, ok := tx.store.movements[m.ID]; ok {
		return existing, false, nil
	}
	tx.store.movements[m.ID] = m
	return m, true, nil
}

func (tx *memoryInvTx) GetMovement(ctx context.Context, id uuid.UUID) (inventory.Movement, bool, error) {
	m, ok := tx.store.movements[id]
	return m, ok, nil
}

func (tx *memoryInvTx) GetBalanceForUpdate(ctx context.Context, tenantID, productID, locationID int64) (inventory.Balance, error) {
	if bal, ok := tx.store.balances[invKey(tenantID, productID, locationID)]; ok {
		return bal, nil
	}
	return inventory.Balance{TenantID: tenantID, ProductID: productID, LocationID: locationID}, inventory.ErrBalanceNotFound
}

func (tx *memoryInvTx) UpsertBalance(ctx context.Context, balance inventory.Balance) error {
	tx.store.balances[invKey(balance.TenantID, balance.ProductID, balance.LocationID)] = balance
	return nil
}

func (tx *memoryInvTx) InsertLayer(ctx context.Context, layer inventory.ValuationLayer) error {
	for _, l := range tx.store.layers {
		if l.SourceMovementID == layer.SourceMovementID {
			return nil
		}
	}
	tx.store.nextSeq++
	layer.ReceiptSeq = tx.store.nextSeq
	tx.store.layers = append(tx.store.layers, &layer)
	return nil
}

func (tx *memoryInvTx) GetOpenLayersForUpdate(ctx context.Context, tenantID, productID, locationID int64, order inventory.CostOrder) ([]inventory.ValuationLayer, error) {
	var open []inventory.ValuationLayer
	for _, l := range tx.store.layers {
		if l.TenantID == tenantID && l.ProductID == productID && l.LocationID == locationID && l.RemainingQty > 0 {
			open = append(open, *l)
		}
	}
	if order == inventory.CostLIFO {
		for i, j := 0, len(open)-1; i < j; i, j = i+1, j-1 {
			open[i], open[j] = open[j], open[i]
		}
	}
	return open, nil
}

func (tx *memoryInvTx) SetLayerRemaining(ctx context.Context, id uuid.UUID, remaining int64) error {
	for _, l := range tx.store.layers {
		if l.ID == id {
			l.RemainingQty = remaining
			return nil
		}
	}
	return fmt.Errorf("layer %s: %w", id, shared.ErrNotFound)
}

func (tx *memoryInvTx) InsertReservation(ctx context.Context, res inventory.Reservation) error {
	copied := res
	tx.store.reservations[res.ID] = &copied
	return nil
}

func (tx *memoryInvTx) GetReservationForUpdate(ctx context.Context, id uuid.UUID) (inventory.Reservation, error) {
	if res, ok := tx.store.reservations[id]; ok {
		return *res, nil
	}
	return inventory.Reservation{}, fmt.Errorf("reservation %s: %w", id, shared.ErrNotFound)
}

func (tx *memoryInvTx) SetReservationStatus(ctx context.Context, id uuid.UUID, status inventory.ReservationStatus) error {
	if res, ok := tx.store.reservations[id]; ok {
		res.Status = status
		return nil
	}
	return fmt.Errorf("reservation %s: %w", id, shared.ErrNotFound)
}

func (tx *memoryInvTx) SelectExpiredForUpdate(ctx context.Context, now time.Time, limit int) ([]inventory.Reservation, error) {
	var expired []inventory.Reservation
	for _, res := range tx.store.reservations {
		if res.Status == inventory.ReservationActive && res.ExpiresAt.Before(now) {
			expired = append(expired, *res)
		}
	}
	return expired, nil
}

// ---------------------------------------------------------------------------
// pos fakes
// ---------------------------------------------------------------------------

type memoryPOSRepo struct {
	store *memoryStore
}

func (r *memoryPOSRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(ctx, &memoryPOSTx{store: r.store})
}

func (r *memoryPOSRepo) GetSale(ctx context.Context, tenantID int64, id uuid.UUID) (Sale, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	tx := &memoryPOSTx{store: r.store}
	sale, err := tx.GetSaleForUpdate(ctx, tenantID, id)
	if err != nil {
		return Sale{}, err
	}
	sale.Items, _ = tx.GetSaleItems(ctx, id)
	sale.Payments = append([]SalePayment(nil), r.store.payments[id]...)
	return sale, nil
}

func (r *memoryPOSRepo) GetSession(ctx context.Context, tenantID int64, id uuid.UUID) (POSSession, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if s, ok := r.store.sessions[id]; ok && s.TenantID == tenantID {
		return *s, nil
	}
	return POSSession{}, fmt.Errorf("session %s: %w", id, shared.ErrNotFound)
}

type memoryPOSTx struct {
	store *memoryStore
}

func (tx *memoryPOSTx) Inventory() inventory.TxRepository {
	return &memoryInvTx{store: tx.store}
}

func (tx *memoryPOSTx) InsertSale(ctx context.Context, sale Sale) error {
	tx.store.sales[sale.ID] = sale
	return nil
}

func (tx *memoryPOSTx) GetSaleForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (Sale, error) {
	sale, ok := tx.store.sales[id]
	if !ok || sale.TenantID != tenantID {
		return Sale{}, fmt.Errorf("sale %s: %w", id, shared.ErrNotFound)
	}
	sale.Items = nil
	sale.Payments = nil
	return sale, nil
}

func (tx *memoryPOSTx) GetSaleItems(ctx context.Context, saleID uuid.UUID) ([]SaleItem, error) {
	items := make([]SaleItem, 0, len(tx.store.itemOrder[saleID]))
	for _, itemID := range tx.store.itemOrder[saleID] {
		if item, ok := tx.store.items[itemID]; ok {
			items = append(items, *item)
		}
	}
	return items, nil
}

func (tx *memoryPOSTx) InsertSaleItem(ctx context.Context, item SaleItem) error {
	copied := item
	tx.store.items[item.ID] = &copied
	tx.store.itemOrder[item.SaleID] = append(tx.store.itemOrder[item.SaleID], item.ID)
	return nil
}

func (tx *memoryPOSTx) UpdateSaleItem(ctx context.Context, item SaleItem) error {
	if _, ok := tx.store.items[item.ID]; !ok {
		return fmt.Errorf("sale item %s: %w", item.ID, shared.ErrNotFound)
	}
	copied := item
	tx.store.items[item.ID] = &copied
	return nil
}

func (tx *memoryPOSTx) DeleteSaleItem(ctx context.Context, itemID uuid.UUID) error {
	item, ok := tx.store.items[itemID]
	if !ok {
		return nil
	}
	delete(tx.store.items, itemID)
	order := tx.store.itemOrder[item.SaleID]
	for i, id := range order {
		if id == itemID {
			tx.store.itemOrder[item.SaleID] = append(order[:i], order[i+1:]...)
			break
		}
	}
	return nil
}

func (tx *memoryPOSTx) InsertPayment(ctx context.Context, payment SalePayment) error {
	tx.store.payments[payment.SaleID] = append(tx.store.payments[payment.SaleID], payment)
	return nil
}

func (tx *memoryPOSTx) UpdateSaleTotals(ctx context.Context, sale Sale) error {
	stored, ok := tx.store.sales[sale.ID]
	if !ok {
		return fmt.Errorf("sale %s: %w", sale.ID, shared.ErrNotFound)
	}
	stored.Subtotal = sale.Subtotal
	stored.DiscountAmount = sale.DiscountAmount
	stored.TaxAmount = sale.TaxAmount
	stored.TotalAmount = sale.TotalAmount
	stored.PaidAmount = sale.PaidAmount
	stored.ChangeAmount = sale.ChangeAmount
	tx.store.sales[sale.ID] = stored
	return nil
}

func (tx *memoryPOSTx) UpdateSaleStatus(ctx context.Context, sale Sale) error {
	stored, ok := tx.store.sales[sale.ID]
	if !ok {
		return fmt.Errorf("sale %s: %w", sale.ID, shared.ErrNotFound)
	}
	stored.Status = sale.Status
	stored.CompletedAt = sale.CompletedAt
	stored.VoidedAt = sale.VoidedAt
	stored.VoidedBy = sale.VoidedBy
	stored.VoidReason = sale.VoidReason
	tx.store.sales[sale.ID] = stored
	return nil
}

func (tx *memoryPOSTx) NextSaleNumber(ctx context.Context, tenantID, locationID int64, day time.Time) (string, error) {
	count := 0
	for _, sale := range tx.store.sales {
		if sale.TenantID == tenantID && sale.LocationID == locationID {
			count++
		}
	}
	return fmt.Sprintf("POS-%s-%04d", day.Format("20060102"), count+1), nil
}

func (tx *memoryPOSTx) InsertSession(ctx context.Context, session POSSession) error {
	for _, s := range tx.store.sessions {
		if s.TenantID == session.TenantID && s.TerminalID == session.TerminalID && s.Status == SessionOpen {
			return fmt.Errorf("terminal %s already has an open session: %w", session.TerminalID, shared.ErrConflict)
		}
	}
	copied := session
	tx.store.sessions[session.ID] = &copied
	return nil
}

func (tx *memoryPOSTx) GetSessionForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (POSSession, error) {
	if s, ok := tx.store.sessions[id]; ok && s.TenantID == tenantID {
		return *s, nil
	}
	return POSSession{}, fmt.Errorf("session %s: %w", id, shared.ErrNotFound)
}

func (tx *memoryPOSTx) UpdateSessionClose(ctx context.Context, session POSSession) error {
	if _, ok := tx.store.sessions[session.ID]; !ok {
		return fmt.Errorf("session %s: %w", session.ID, shared.ErrNotFound)
	}
	copied := session
	tx.store.sessions[session.ID] = &copied
	return nil
}

func (tx *memoryPOSTx) SumCashPayments(ctx context.Context, sessionID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	for saleID, payments := range tx.store.payments {
		sale, ok := tx.store.sales[saleID]
		if !ok || sale.SessionID == nil || *sale.SessionID != sessionID {
			continue
		}
		switch sale.Status {
		case SaleStatusCompleted, SaleStatusPartiallyRefunded, SaleStatusRefunded:
		default:
			continue
		}
		for _, p := range payments {
			if p.Method == PaymentCash {
				sum = sum.Add(p.Amount)
			}
		}
	}
	return sum, nil
}

// ---------------------------------------------------------------------------
// catalog fake
// ---------------------------------------------------------------------------

type memoryCatalog struct {
	products  map[int64]masterdata.Product
	locations map[int64]masterdata.Location
}

func (c *memoryCatalog) GetProduct(ctx context.Context, tenantID, id int64) (masterdata.Product, error) {
	if p, ok := c.products[id]; ok {
		return p, nil
	}
	return masterdata.Product{}, fmt.Errorf("product %d: %w", id, shared.ErrNotFound)
}

func (c *memoryCatalog) GetLocation(ctx context.Context, tenantID, id int64) (masterdata.Location, error) {
	if l, ok := c.locations[id]; ok {
		return l, nil
	}
	return masterdata.Location{}, fmt.Errorf("location %d: %w", id, shared.ErrNotFound)
}

// ---------------------------------------------------------------------------
// fixture
// ---------------------------------------------------------------------------

type fixture struct {
	store *memoryStore
	inv   *inventory.Service
	pos   *Service
}

func newFixture() *fixture {
	store := newMemoryStore()
	invSvc := inventory.NewService(&memoryInvRepo{store: store}, nil, nil, inventory.ServiceConfig{}, nil)
	minPrice := decimal.RequireFromString("5.0000")
	maxPrice := decimal.RequireFromString("10.0000")
	catalog := &memoryCatalog{
		products: map[int64]masterdata.Product{
			1: {ID: 1, TenantID: 1, SKU: "SKU-1", Name: "Widget", PricingMethod: masterdata.PricingFIFO, IsActive: true},
			2: {ID: 2, TenantID: 1, SKU: "SKU-2", Name: "Bounded", PricingMethod: masterdata.PricingFIFO, MinPrice: &minPrice, MaxPrice: &maxPrice, IsActive: true},
		},
		locations: map[int64]masterdata.Location{
			1: {ID: 1, TenantID: 1, Code: "MAIN", Name: "Main Store", IsActive: true},
		},
	}
	posSvc := NewService(&memoryPOSRepo{store: store}, invSvc, catalog, nil, nil)
	return &fixture{store: store, inv: invSvc, pos: posSvc}
}

func (f *fixture) seedStock(t *testing.T, productID, qty int64, cost string) {
	t.Helper()
	_, err := f.inv.ReceiveStock(context.Background(), inventory.ReceiveInput{
		TenantID:      1,
		ProductID:     productID,
		LocationID:    1,
		Quantity:      qty,
		UnitCost:      decimal.RequireFromString(cost),
		ReferenceType: "grn",
		ReferenceID:   fmt.Sprintf("GRN-%d", productID),
	})
	require.NoError(t, err)
}

func (f *fixture) onHand(productID int64) int64 {
	bal, _ := f.inv.GetBalance(context.Background(), 1, productID, 1)
	return bal.OnHand
}

func (f *fixture) reserved(productID int64) int64 {
	bal, _ := f.inv.GetBalance(context.Background(), 1, productID, 1)
	return bal.Reserved
}

func cashPayment(amount string) []PaymentInput {
	return []PaymentInput{{Method: PaymentCash, Amount: decimal.RequireFromString(amount)}}
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestQuickSaleCompletesAndRecordsCost(t *testing.T) {
	f := newFixture()
	f.seedStock(t, 1, 10, "4.0000")
	ctx := context.Background()

	sale, err := f.pos.QuickSale(ctx, QuickSaleInput{
		TenantID:   1,
		LocationID: 1,
		Items: []CartItemInput{
			{ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("10.0000")},
		},
		Payments: cashPayment("25.0000"),
		ActorID:  7,
	})
	require.NoError(t, err)

	require.Equal(t, SaleStatusCompleted, sale.Status)
	require.True(t, strings.HasPrefix(sale.SaleNumber, "POS-"))
	require.Equal(t, "20.0000", sale.TotalAmount.StringFixed(4))
	require.Equal(t, "25.0000", sale.PaidAmount.StringFixed(4))
	require.Equal(t, "5.0000", sale.ChangeAmount.StringFixed(4))
	require.NotNil(t, sale.CompletedAt)

	require.Len(t, sale.Items, 1)
	require.Equal(t, "4.0000", sale.Items[0].UnitCost.StringFixed(4))

	require.Equal(t, int64(8), f.onHand(1))
}

func TestQuickSaleInsufficientPaymentPostsNothing(t *testing.T) {
	f := newFixture()
	f.seedStock(t, 1, 10, "4.0000")
	movementsBefore := len(f.store.movements)

	_, err := f.pos.QuickSale(context.Background(), QuickSaleInput{
		TenantID:   1,
		LocationID: 1,
		Items: []CartItemInput{
			{ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("10.0000")},
		},
		Payments: cashPayment("10.0000"),
	})
	require.ErrorIs(t, err, shared.ErrInsufficientPayment)

	require.Equal(t, int64(10), f.onHand(1))
	require.Len(t, f.store.movements, movementsBefore)
}

func TestQuickSaleInsufficientStock(t *testing.T) {
	f := newFixture()
	f.seedStock(t, 1, 1, "4.0000")

	_, err := f.pos.QuickSale(context.Background(), QuickSaleInput{
		TenantID:   1,
		LocationID: 1,
		Items: []CartItemInput{
			{ProductID: 1, Quantity: 5, UnitPrice: decimal.RequireFromString("10.0000")},
		},
		Payments: cashPayment("50.0000"),
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, int64(1), f.onHand(1))
}

func TestCartLifecycle(t *testing.T) {
	f := newFixture()
	f.seedStock(t, 1, 10, "4.0000")
	ctx := context.Background()

	cart, err := f.pos.CreateCart(ctx, CreateCartInput{TenantID: 1, LocationID: 1, ActorID: 7})
	require.NoError(t, err)
	require.Equal(t, SaleStatusDraft, cart.Status)

	sale, err := f.pos.AddItem(ctx, 1, cart.ID, CartItemInput{
		ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("10.0000"),
	})
	require.NoError(t, err)
	require.Len(t, sale.Items, 1)
	require.Equal(t, "20.0000", sale.TotalAmount.StringFixed(4))
	require.Equal(t, int64(2), f.reserved(1))

	sale, err = f.pos.UpdateItem(ctx, 1, cart.ID, sale.Items[0].ID, CartItemInput{
		ProductID: 1, Quantity: 3, UnitPrice: decimal.RequireFromString("10.0000"),
	})
	require.NoError(t, err)
	require.Equal(t, "30.0000", sale.TotalAmount.StringFixed(4))
	require.Equal(t, int64(3), f.reserved(1))

	sale, err = f.pos.AddItem(ctx, 1, cart.ID, CartItemInput{
		ProductID: 1, Quantity: 1, UnitPrice: decimal.RequireFromString("10.0000"),
	})
	require.NoError(t, err)
	require.Len(t, sale.Items, 2)
	require.Equal(t, int64(4), f.reserved(1))

	sale, err = f.pos.RemoveItem(ctx, 1, cart.ID, sale.Items[1].ID)
	require.NoError(t, err)
	require.Len(t, sale.Items, 1)
	require.Equal(t, int64(3), f.reserved(1))
	require.Equal(t, "30.0000", sale.TotalAmount.StringFixed(4))

	sale, err = f.pos.Complete(ctx, 1, cart.ID, CompleteInput{Payments: cashPayment("30.0000"), ActorID: 7})
	require.NoError(t, err)
	require.Equal(t, SaleStatusCompleted, sale.Status)
	require.Equal(t, "0.0000", sale.ChangeAmount.StringFixed(4))
	require.Equal(t, int64(0), f.reserved(1))
	require.Equal(t, int64(7), f.onHand(1))
	require.Equal(t, inventory.ReservationFulfilled, f.store.reservations[*sale.Items[0].ReservationID].Status)

	_, err = f.pos.Complete(ctx, 1, cart.ID, CompleteInput{Payments: cashPayment("30.0000")})
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition)
}

func TestAddItemInsufficientStock(t *testing.T) {
	f := newFixture()
	f.seedStock(t, 1, 1, "4.0000")
	ctx := context.Background()

	cart, err := f.pos.CreateCart(ctx, CreateCartInput{TenantID: 1, LocationID: 1})
	require.NoError(t, err)

	_, err = f.pos.AddItem(ctx, 1, cart.ID, CartItemInput{
		ProductID: 1, Quantity: 5, UnitPrice: decimal.RequireFromString("10.0000"),
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, int64(0), f.reserved(1))
}

func TestPriceBoundsEnforced(t *testing.T) {
	f := newFixture()
	f.seedStock(t, 2, 10, "2.0000")
	ctx := context.Background()

	cart, err := f.pos.CreateCart(ctx, CreateCartInput{TenantID: 1, LocationID: 1})
	require.NoError(t, err)

	_, err = f.pos.AddItem(ctx, 1, cart.ID, CartItemInput{
		ProductID: 2, Quantity: 1, UnitPrice: decimal.RequireFromString("3.0000"),
	})
	require.ErrorIs(t, err, ErrPriceOutOfBounds)

	_, err = f.pos.AddItem(ctx, 1, cart.ID, CartItemInput{
		ProductID: 2, Quantity: 1, UnitPrice: decimal.RequireFromString("12.0000"),
	})
	require.ErrorIs(t, err, ErrPriceOutOfBounds)

	_, err = f.pos.AddItem(ctx, 1, cart.ID, CartItemInput{
		ProductID: 2, Quantity: 1, UnitPrice: decimal.RequireFromString("7.0000"),
	})
	require.NoError(t, err)
}

func TestVoidRestoresStockAtRecordedCost(t *testing.T) {
	f := newFixture()
	f.seedStock(t, 1, 5, "7.0000")
	ctx := context.Background()

	sale, err := f.pos.QuickSale(ctx, QuickSaleInput{
		TenantID:   1,
		LocationID: 1,
		Items: []CartItemInput{
			{ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("9.0000")},
		},
		Payments: cashPayment("18.0000"),
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), f.onHand(1))

	voided, err := f.pos.Void(ctx, 1, sale.ID, "customer cancelled", 7)
	require.NoError(t, err)
	require.Equal(t, SaleStatusVoided, voided.Status)
	require.NotNil(t, voided.VoidedAt)
	require.Equal(t, int64(5), f.onHand(1))

	var restored *inventory.ValuationLayer
	for _, l := range f.store.layers {
		if l.OriginalQty == 2 {
			restored = l
		}
	}
	require.NotNil(t, restored)
	require.Equal(t, "7.0000", restored.UnitCost.StringFixed(4))

	_, err = f.pos.Void(ctx, 1, sale.ID, "again", 7)
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition)
}

func TestRefundPartialThenFull(t *testing.T) {
	f := newFixture()
	f.seedStock(t, 1, 10, "4.0000")
	ctx := context.Background()

	sale, err := f.pos.QuickSale(ctx, QuickSaleInput{
		TenantID:   1,
		LocationID: 1,
		Items: []CartItemInput{
			{ProductID: 1, Quantity: 3, UnitPrice: decimal.RequireFromString("10.0000")},
		},
		Payments: cashPayment("30.0000"),
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), f.onHand(1))
	itemID := sale.Items[0].ID

	_, err = f.pos.Refund(ctx, 1, sale.ID, []RefundLineInput{{ItemID: itemID, Quantity: 5}}, 7)
	require.ErrorIs(t, err, ErrRefundQuantity)

	refunded, err := f.pos.Refund(ctx, 1, sale.ID, []RefundLineInput{{ItemID: itemID, Quantity: 1}}, 7)
	require.NoError(t, err)
	require.Equal(t, SaleStatusPartiallyRefunded, refunded.Status)
	require.Equal(t, int64(8), f.onHand(1))

	refunded, err = f.pos.Refund(ctx, 1, sale.ID, []RefundLineInput{{ItemID: itemID, Quantity: 2}}, 7)
	require.NoError(t, err)
	require.Equal(t, SaleStatusRefunded, refunded.Status)
	require.Equal(t, int64(10), f.onHand(1))

	_, err = f.pos.Refund(ctx, 1, sale.ID, []RefundLineInput{{ItemID: itemID, Quantity: 1}}, 7)
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition)
}

func TestSessionReconciliation(t *testing.T) {
	f := newFixture()
	f.seedStock(t, 1, 10, "4.0000")
	ctx := context.Background()

	session, err := f.pos.OpenSession(ctx, OpenSessionInput{
		TenantID:       1,
		TerminalID:     "T-1",
		LocationID:     1,
		OpeningBalance: decimal.RequireFromString("1000.0000"),
		ActorID:        7,
	})
	require.NoError(t, err)
	require.Equal(t, SessionOpen, session.Status)

	_, err = f.pos.QuickSale(ctx, QuickSaleInput{
		TenantID:   1,
		LocationID: 1,
		SessionID:  &session.ID,
		Items: []CartItemInput{
			{ProductID: 1, Quantity: 1, UnitPrice: decimal.RequireFromString("250.0000")},
		},
		Payments: cashPayment("250.0000"),
	})
	require.NoError(t, err)

	closed, err := f.pos.CloseSession(ctx, 1, session.ID, CloseSessionInput{
		ClosingBalance: decimal.RequireFromString("1260.0000"),
		ActorID:        7,
	})
	require.NoError(t, err)
	require.Equal(t, SessionClosed, closed.Status)
	require.Equal(t, "1250.0000", closed.ExpectedBalance.StringFixed(4))
	require.Equal(t, "10.0000", closed.Variance.StringFixed(4))

	_, err = f.pos.CloseSession(ctx, 1, session.ID, CloseSessionInput{
		ClosingBalance: decimal.RequireFromString("1260.0000"),
	})
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition)
}

func TestSecondOpenSessionSameTerminalConflicts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	open := OpenSessionInput{
		TenantID:       1,
		TerminalID:     "T-1",
		LocationID:     1,
		OpeningBalance: decimal.Zero,
	}
	_, err := f.pos.OpenSession(ctx, open)
	require.NoError(t, err)

	_, err = f.pos.OpenSession(ctx, open)
	require.ErrorIs(t, err, shared.ErrConflict)
}
