package reconciliation

import (
	"time"

	"github.com/google/uuid"
)

// Mode selects between reporting only and executing proposed repairs.
type Mode string

const (
	ModeDryRun Mode = "DRY_RUN"
	ModeApply  Mode = "APPLY"
)

// Severity ranks findings for triage.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// FindingKind is the closed set of drift conditions the engine detects.
type FindingKind string

const (
	FindingNegativeWallet FindingKind = "NEGATIVE_WALLET_BALANCE"
	FindingMissingRefund  FindingKind = "MISSING_REFUND"
	FindingInventoryDrift FindingKind = "INVENTORY_DRIFT"
	FindingOrphanedHold   FindingKind = "ORPHANED_HOLD"
)

// Finding is one detected inconsistency. Findings are data, not errors:
// CRITICAL ones are never auto-repaired, the rest carry a proposed fix that
// APPLY mode executes through the coordinator.
type Finding struct {
	Kind        FindingKind `json:"kind"`
	Severity    Severity    `json:"severity"`
	Detail      string      `json:"detail"`
	ProposedFix string      `json:"proposed_fix,omitempty"`

	AccountID  *uuid.UUID `json:"account_id,omitempty"`
	BrandID    *uuid.UUID `json:"brand_id,omitempty"`
	PartID     *uuid.UUID `json:"part_id,omitempty"`
	HoldID     *uuid.UUID `json:"hold_id,omitempty"`
	ShipmentID *uuid.UUID `json:"shipment_id,omitempty"`
	Amount     string     `json:"amount,omitempty"`

	Applied    bool   `json:"applied"`
	ApplyError string `json:"apply_error,omitempty"`
}

// Scope optionally narrows a run to one brand or one account.
type Scope struct {
	BrandID   *uuid.UUID `json:"brand_id,omitempty"`
	AccountID *uuid.UUID `json:"account_id,omitempty"`
}

// Report is the outcome of one reconciliation run.
type Report struct {
	RunID      uuid.UUID `json:"run_id"`
	Mode       Mode      `json:"mode"`
	Scope      Scope     `json:"scope"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Findings   []Finding `json:"findings"`
	Applied    int       `json:"applied"`
	Failed     int       `json:"failed"`
}

// CountBySeverity summarizes findings for logging and dashboards.
func (r *Report) CountBySeverity() map[Severity]int {
	out := map[Severity]int{}
	for _, f := range r.Findings {
		out[f.Severity]++
	}
	return out
}
