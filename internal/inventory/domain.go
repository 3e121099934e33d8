package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementIn represents an inbound movement (receipt, reversal).
	MovementIn MovementType = "IN"
	// MovementOut represents an outbound movement (sale, issue).
	MovementOut MovementType = "OUT"
	// MovementTransfer marks the legs of an inter-location transfer.
	MovementTransfer MovementType = "TRANSFER"
	// MovementAdjustment indicates manual adjustments.
	MovementAdjustment MovementType = "ADJUSTMENT"
)

// Movement is one immutable entry of the stock ledger. Corrections are new
// compensating movements; rows are never updated or deleted.
type Movement struct {
	ID            uuid.UUID
	TenantID      int64
	Type          MovementType
	ProductID     int64
	LocationID    int64
	Quantity      int64
	UnitCost      decimal.Decimal
	TotalCost     decimal.Decimal
	ReferenceType string
	ReferenceID   string
	Status        string
	CreatedBy     int64
	CreatedAt     time.Time
}

// MovementStatusPosted is the only movement status; kept as a column for audit parity.
const MovementStatusPosted = "POSTED"

// ValuationLayer is a cost-tagged slice of received quantity, consumed over
// time in receipt order. Exhausted layers are retained for audit.
type ValuationLayer struct {
	ID               uuid.UUID
	TenantID         int64
	ProductID        int64
	LocationID       int64
	UnitCost         decimal.Decimal
	OriginalQty      int64
	RemainingQty     int64
	SourceMovementID uuid.UUID
	ReceiptSeq       int64
	CreatedAt        time.Time
}

// Balance aggregates on-hand and reserved stock per product and location.
// It is written only inside the transaction of its source movement or
// reservation, so it cannot drift from the ledger.
type Balance struct {
	TenantID   int64
	ProductID  int64
	LocationID int64
	OnHand     int64
	Reserved   int64
	UpdatedAt  time.Time
}

// Available is on-hand minus reserved. Never negative by invariant.
func (b Balance) Available() int64 {
	return b.OnHand - b.Reserved
}

// ReservationStatus enumerates the reservation lifecycle.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationFulfilled ReservationStatus = "FULFILLED"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

// IsTerminal reports whether the status is final.
func (s ReservationStatus) IsTerminal() bool {
	return s == ReservationFulfilled || s == ReservationReleased || s == ReservationExpired
}

// Reservation is a short-lived hold on available stock. It never emits a
// ledger movement; it only shrinks what other carts can take.
type Reservation struct {
	ID            uuid.UUID
	TenantID      int64
	ProductID     int64
	LocationID    int64
	Quantity      int64
	ReferenceType string
	ReferenceID   string
	Status        ReservationStatus
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

// Consumption is the costing result of an outbound movement.
type Consumption struct {
	UnitCost  decimal.Decimal
	TotalCost decimal.Decimal
	Consumed  []ConsumedLayer
	// Shortfall is the quantity that could not be matched to any layer and
	// was costed at zero per policy.
	Shortfall int64
}

// ConsumedLayer records how much was taken from one layer.
type ConsumedLayer struct {
	LayerID  uuid.UUID
	Quantity int64
	UnitCost decimal.Decimal
}

// ReceiveInput describes an inbound receipt (initial stock-in, GRN).
type ReceiveInput struct {
	TenantID      int64
	ProductID     int64
	LocationID    int64
	Quantity      int64
	UnitCost      decimal.Decimal
	ReferenceType string
	ReferenceID   string
	ActorID       int64
}

// AdjustmentInput describes a signed manual stock adjustment.
type AdjustmentInput struct {
	TenantID   int64
	ProductID  int64
	LocationID int64
	// Quantity is signed: positive adds stock at UnitCost, negative removes
	// stock costed from the open layers.
	Quantity      int64
	UnitCost      decimal.Decimal
	ReferenceType string
	ReferenceID   string
	ActorID       int64
}

// TransferInput moves stock between two locations with an OUT and an IN leg.
type TransferInput struct {
	TenantID      int64
	ProductID     int64
	SrcLocationID int64
	DstLocationID int64
	Quantity      int64
	ReferenceType string
	ReferenceID   string
	ActorID       int64
}

// ReserveInput creates a hold for a cart line.
type ReserveInput struct {
	TenantID      int64
	ProductID     int64
	LocationID    int64
	Quantity      int64
	ReferenceType string
	ReferenceID   string
	TTL           time.Duration
}

// SaleOutInput posts the outbound movement for one sale line.
type SaleOutInput struct {
	TenantID      int64
	ProductID     int64
	LocationID    int64
	Quantity      int64
	ReferenceType string
	ReferenceID   string
	ActorID       int64
	// CostOrder selects the layer consumption order; zero value means FIFO.
	CostOrder CostOrder
}

// SaleReturnInput posts a compensating inbound movement at a recorded cost,
// used by void and refund reversals.
type SaleReturnInput struct {
	TenantID      int64
	ProductID     int64
	LocationID    int64
	Quantity      int64
	UnitCost      decimal.Decimal
	ReferenceType string
	ReferenceID   string
	ActorID       int64
}

// HistoryFilter filters the read-only movement history.
type HistoryFilter struct {
	TenantID   int64
	ProductID  int64
	LocationID int64
	From       time.Time
	To         time.Time
	Limit      int
}

// ErrInvalidQuantity indicates a non-positive (or zero) quantity.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")

// ErrInvalidUnitCost indicates a negative cost value.
var ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")

// movementNamespace seeds deterministic movement ids so naturally idempotent
// events (stock-in, transfer legs, sale lines) re-post to the same row.
var movementNamespace = uuid.MustParse("6ba7b812-9dad-11d1-80b4-00c04fd430c8")

// DerivedMovementID computes the deterministic id for an idempotent event.
// leg disambiguates multi-movement events such as transfer OUT/IN pairs.
func DerivedMovementID(referenceType, referenceID string, productID, locationID int64, leg string) uuid.UUID {
	name := fmt.Sprintf("%s:%s:%d:%d:%s", referenceType, referenceID, productID, locationID, leg)
	return uuid.NewSHA1(movementNamespace, []byte(name))
}
