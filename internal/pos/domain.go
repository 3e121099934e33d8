package pos

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaleStatus enumerates the sale lifecycle.
type SaleStatus string

const (
	SaleStatusDraft             SaleStatus = "DRAFT"
	SaleStatusCompleted         SaleStatus = "COMPLETED"
	SaleStatusVoided            SaleStatus = "VOIDED"
	SaleStatusPartiallyRefunded SaleStatus = "PARTIALLY_REFUNDED"
	SaleStatusRefunded          SaleStatus = "REFUNDED"
)

// saleTransitions is the exhaustive transition table. Anything not listed is
// illegal; VOIDED and REFUNDED are terminal, PARTIALLY_REFUNDED may only
// progress to REFUNDED.
var saleTransitions = map[SaleStatus][]SaleStatus{
	SaleStatusDraft:             {SaleStatusCompleted},
	SaleStatusCompleted:         {SaleStatusVoided, SaleStatusPartiallyRefunded, SaleStatusRefunded},
	SaleStatusPartiallyRefunded: {SaleStatusRefunded},
}

// CanTransition reports whether moving from s to next is legal.
func (s SaleStatus) CanTransition(next SaleStatus) bool {
	for _, allowed := range saleTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentMethod enumerates tender types. Only CASH feeds session reconciliation.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "CASH"
	PaymentCard     PaymentMethod = "CARD"
	PaymentTransfer PaymentMethod = "TRANSFER"
	PaymentOther    PaymentMethod = "OTHER"
)

// IsValid reports whether the method is a known tender type.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer, PaymentOther:
		return true
	}
	return false
}

// Sale is the orchestrated transaction: cart, quick sale, completion, void
// and refund all mutate this aggregate plus its items and payments.
type Sale struct {
	ID             uuid.UUID
	TenantID       int64
	SaleNumber     string
	Status         SaleStatus
	LocationID     int64
	SessionID      *uuid.UUID
	CustomerID     *int64
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	TotalAmount    decimal.Decimal
	PaidAmount     decimal.Decimal
	ChangeAmount   decimal.Decimal
	VoidReason     *string
	CreatedBy      int64
	CreatedAt      time.Time
	CompletedAt    *time.Time
	VoidedAt       *time.Time
	VoidedBy       *int64
	Items          []SaleItem
	Payments       []SalePayment
}

// SaleItem is one sale line. UnitCost is recorded at completion from FIFO
// consumption and reused verbatim by void/refund reversals.
type SaleItem struct {
	ID            uuid.UUID
	SaleID        uuid.UUID
	ProductID     int64
	Quantity      int64
	UnitPrice     decimal.Decimal
	UnitDiscount  decimal.Decimal
	UnitCost      decimal.Decimal
	LineTotal     decimal.Decimal
	RefundedQty   int64
	ReservationID *uuid.UUID
}

// SalePayment is one tender line on a sale.
type SalePayment struct {
	ID     uuid.UUID
	SaleID uuid.UUID
	Method PaymentMethod
	Amount decimal.Decimal
}

// SessionStatus enumerates the POS session lifecycle.
type SessionStatus string

const (
	SessionOpen   SessionStatus = "OPEN"
	SessionClosed SessionStatus = "CLOSED"
)

// POSSession tracks one terminal's cash drawer between open and close.
// A partial unique index on (tenant, terminal) WHERE status='OPEN' enforces
// the one-open-session-per-terminal rule in the database.
type POSSession struct {
	ID              uuid.UUID
	TenantID        int64
	TerminalID      string
	LocationID      int64
	OpeningBalance  decimal.Decimal
	ClosingBalance  *decimal.Decimal
	ExpectedBalance *decimal.Decimal
	Variance        *decimal.Decimal
	Status          SessionStatus
	OpenedBy        int64
	OpenedAt        time.Time
	ClosedBy        *int64
	ClosedAt        *time.Time
}

// CreateCartInput starts a DRAFT sale.
type CreateCartInput struct {
	TenantID   int64
	LocationID int64
	SessionID  *uuid.UUID
	CustomerID *int64
	ActorID    int64
}

// CartItemInput adds or updates one cart line.
type CartItemInput struct {
	ProductID    int64
	Quantity     int64
	UnitPrice    decimal.Decimal
	UnitDiscount decimal.Decimal
}

// PaymentInput is one tender offered at completion.
type PaymentInput struct {
	Method PaymentMethod
	Amount decimal.Decimal
}

// QuickSaleInput is the one-step checkout that skips the cart phase.
type QuickSaleInput struct {
	TenantID       int64
	LocationID     int64
	SessionID      *uuid.UUID
	CustomerID     *int64
	Items          []CartItemInput
	DiscountAmount decimal.Decimal
	Payments       []PaymentInput
	ActorID        int64
}

// CompleteInput settles a DRAFT sale.
type CompleteInput struct {
	DiscountAmount decimal.Decimal
	Payments       []PaymentInput
	ActorID        int64
}

// RefundLineInput refunds part of one sale item.
type RefundLineInput struct {
	ItemID   uuid.UUID
	Quantity int64
}

// OpenSessionInput opens a terminal session.
type OpenSessionInput struct {
	TenantID       int64
	TerminalID     string
	LocationID     int64
	OpeningBalance decimal.Decimal
	ActorID        int64
}

// CloseSessionInput closes a terminal session with the counted drawer amount.
type CloseSessionInput struct {
	ClosingBalance decimal.Decimal
	ActorID        int64
}
