package ledger

import "errors"

// Typed failures returned by ledger operations. Callers branch with
// errors.Is; nothing in this package panics or returns ad-hoc strings for
// these conditions.
var (
	ErrInsufficientInventory = errors.New("insufficient available inventory")
	ErrInsufficientFunds     = errors.New("insufficient wallet funds")
	ErrInvalidMovementKind   = errors.New("invalid movement kind")
	ErrInvalidQuantity       = errors.New("quantity must be positive")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrDuplicateRefund       = errors.New("refund already recorded for reference")
	ErrDuplicateHold         = errors.New("hold already exists for shipment")
	ErrConcurrencyConflict   = errors.New("concurrent balance update conflict")
	ErrNotFound              = errors.New("record not found")
	ErrHoldNotHeld           = errors.New("hold is not in HELD state")
)
