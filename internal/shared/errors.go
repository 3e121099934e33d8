package shared

import "errors"

// Business-rule errors shared across modules. Every one of them is checked
// before the transaction begins and surfaces with no partial effect.
var (
	// ErrNotFound indicates an unknown product, location, sale, reservation or session.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates available stock below the requested quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInsufficientPayment indicates paid amount below the sale total.
	ErrInsufficientPayment = errors.New("insufficient payment")
	// ErrInvalidStateTransition indicates an illegal lifecycle move.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrConflict indicates a uniqueness violation such as a duplicate open session.
	ErrConflict = errors.New("conflict")
	// ErrInsufficientValuationData indicates FIFO layers exhausted before the
	// requested quantity was fully costed. Logged, not fatal, per costing policy.
	ErrInsufficientValuationData = errors.New("insufficient valuation data")
)
