package domain

// MovementKind is the closed set of inventory ledger actions. Every kind has
// a fixed direction; there is no default branch anywhere that handles an
// unknown kind silently.
type MovementKind string

const (
	MovementReceipt     MovementKind = "RECEIPT"
	MovementIssue       MovementKind = "ISSUE"
	MovementTransferOut MovementKind = "TRANSFER_OUT"
	MovementTransferIn  MovementKind = "TRANSFER_IN"
	MovementReturnIn    MovementKind = "RETURN_IN"
	MovementReturnOut   MovementKind = "RETURN_OUT"
	MovementConsumed    MovementKind = "CONSUMED"
)

// Direction returns the signed multiplier for on-hand quantity (+1 inbound,
// -1 outbound) and false for a kind outside the closed set.
func (k MovementKind) Direction() (int64, bool) {
	switch k {
	case MovementReceipt, MovementTransferIn, MovementReturnIn:
		return 1, true
	case MovementIssue, MovementTransferOut, MovementReturnOut, MovementConsumed:
		return -1, true
	}
	return 0, false
}

// Inbound reports whether the kind increases on-hand quantity.
func (k MovementKind) Inbound() bool {
	d, ok := k.Direction()
	return ok && d > 0
}

// FinalizesHold reports whether the kind may resolve a reservation hold.
func (k MovementKind) FinalizesHold() bool {
	return k == MovementIssue || k == MovementTransferOut
}
