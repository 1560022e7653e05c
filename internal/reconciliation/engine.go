package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cargohold-backend/internal/domain"
	"cargohold-backend/internal/ledger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrRunInProgress is returned when another reconciliation run holds the
// lock.
var ErrRunInProgress = errors.New("reconciliation run already in progress")

const (
	runLockKey    = "reconciliation:lock"
	runLockTTL    = 10 * time.Minute
	lastReportKey = "reconciliation:last_report"
)

// ShipmentSource is the status lookup the engine consumes. Synchronous, no
// retries owned here.
type ShipmentSource interface {
	StatusOf(ctx context.Context, shipmentID uuid.UUID) (domain.ShipmentStatus, error)
	CancelledOrFailed(ctx context.Context, brandID *uuid.UUID) ([]domain.Shipment, error)
}

// Engine runs read-heavy analysis over both ledgers and projected balances.
// Repairs go through the coordinator like any other caller; the engine never
// writes storage directly, and DRY_RUN never writes at all.
type Engine struct {
	DB          *gorm.DB
	Coordinator *ledger.Coordinator
	Shipments   ShipmentSource
	Rdb         *redis.Client
}

// Run executes one reconciliation pass. The redis lock (when configured)
// keeps scheduled and on-demand runs from overlapping.
func (e *Engine) Run(ctx context.Context, mode Mode, scope Scope) (*Report, error) {
	if mode != ModeDryRun && mode != ModeApply {
		return nil, fmt.Errorf("unknown reconciliation mode %q", mode)
	}

	if e.Rdb != nil {
		ok, err := e.Rdb.SetNX(ctx, runLockKey, time.Now().Format(time.RFC3339), runLockTTL).Result()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrRunInProgress
		}
		defer e.Rdb.Del(context.Background(), runLockKey)
	}

	report := &Report{
		RunID:     uuid.New(),
		Mode:      mode,
		Scope:     scope,
		StartedAt: time.Now(),
	}

	detectors := []func(context.Context, *Report) error{
		e.detectNegativeWallets,
		e.detectMissingRefunds,
		e.detectInventoryDrift,
		e.detectOrphanedHolds,
	}
	for _, detect := range detectors {
		if err := detect(ctx, report); err != nil {
			return nil, err
		}
	}

	if mode == ModeApply {
		e.applyFixes(ctx, report)
	}
	report.FinishedAt = time.Now()

	log.Info().
		Str("run_id", report.RunID.String()).
		Str("mode", string(mode)).
		Int("findings", len(report.Findings)).
		Int("applied", report.Applied).
		Int("failed", report.Failed).
		Msg("reconciliation run finished")

	if e.Rdb != nil {
		if b, err := json.Marshal(report); err == nil {
			_ = e.Rdb.Set(ctx, lastReportKey, b, 0).Err()
		}
	}
	return report, nil
}

// LastReport returns the cached report from the most recent run, if any.
func (e *Engine) LastReport(ctx context.Context) (*Report, error) {
	if e.Rdb == nil {
		return nil, nil
	}
	b, err := e.Rdb.Get(ctx, lastReportKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var report Report
	if err := json.Unmarshal(b, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// detectNegativeWallets flags balances below zero. Proposed fix: a
// correction-class credit bringing the balance exactly to zero.
func (e *Engine) detectNegativeWallets(ctx context.Context, report *Report) error {
	q := e.DB.WithContext(ctx).Where("balance < 0")
	if report.Scope.AccountID != nil {
		q = q.Where("account_id = ?", *report.Scope.AccountID)
	}
	var wallets []domain.WalletBalance
	if err := q.Find(&wallets).Error; err != nil {
		return err
	}

	for i := range wallets {
		w := wallets[i]
		accountID := w.AccountID
		deficit := w.Balance.Neg()
		report.Findings = append(report.Findings, Finding{
			Kind:        FindingNegativeWallet,
			Severity:    SeverityHigh,
			Detail:      fmt.Sprintf("wallet balance is %s", w.Balance.String()),
			ProposedFix: "correction credit to zero",
			AccountID:   &accountID,
			Amount:      deficit.String(),
		})
	}
	return nil
}

// detectMissingRefunds flags cancelled or failed shipments whose debit total
// exceeds the matched refund total. Proposed fix: refund the shortfall.
func (e *Engine) detectMissingRefunds(ctx context.Context, report *Report) error {
	shipments, err := e.Shipments.CancelledOrFailed(ctx, report.Scope.BrandID)
	if err != nil {
		return err
	}

	for i := range shipments {
		s := shipments[i]
		if s.Reference == "" {
			continue
		}
		entries, err := e.Coordinator.WalletLedger.ListByReference(ctx, s.Reference)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			continue
		}

		debits := decimal.Zero
		credits := decimal.Zero
		accountID := entries[0].AccountID
		for _, entry := range entries {
			switch entry.Kind {
			case domain.EntryDebit:
				debits = debits.Add(entry.Amount)
			case domain.EntryCredit:
				credits = credits.Add(entry.Amount)
			}
		}
		if report.Scope.AccountID != nil && accountID != *report.Scope.AccountID {
			continue
		}

		shortfall := debits.Sub(credits)
		if shortfall.LessThanOrEqual(decimal.Zero) {
			continue
		}

		shipmentID := s.ShipmentID
		report.Findings = append(report.Findings, Finding{
			Kind:        FindingMissingRefund,
			Severity:    SeverityMedium,
			Detail:      fmt.Sprintf("shipment %s is %s but %s of its debit is unrefunded", s.Reference, s.Status, shortfall.String()),
			ProposedFix: "refund shortfall",
			AccountID:   &accountID,
			ShipmentID:  &shipmentID,
			Amount:      shortfall.String(),
		})
	}
	return nil
}

// detectInventoryDrift flags keys whose stored balance disagrees with the
// ledger. The cause is ambiguous (missed entry? double write?), so these are
// CRITICAL and never auto-repaired.
func (e *Engine) detectInventoryDrift(ctx context.Context, report *Report) error {
	q := e.DB.WithContext(ctx)
	if report.Scope.BrandID != nil {
		q = q.Where("brand_id = ?", *report.Scope.BrandID)
	}
	var balances []domain.InventoryBalance
	if err := q.Find(&balances).Error; err != nil {
		return err
	}

	for i := range balances {
		b := balances[i]
		brandID, partID := b.BrandID, b.PartID

		if b.Reserved < 0 || b.Reserved > b.OnHand || b.OnHand < 0 {
			report.Findings = append(report.Findings, Finding{
				Kind:     FindingInventoryDrift,
				Severity: SeverityCritical,
				Detail:   fmt.Sprintf("invariant violated: on_hand=%d reserved=%d", b.OnHand, b.Reserved),
				BrandID:  &brandID,
				PartID:   &partID,
			})
			continue
		}

		latest, err := e.Coordinator.Ledger.LatestFor(ctx, b.BrandID, b.PartID)
		if errors.Is(err, ledger.ErrNotFound) {
			if b.OnHand != 0 {
				report.Findings = append(report.Findings, Finding{
					Kind:     FindingInventoryDrift,
					Severity: SeverityCritical,
					Detail:   fmt.Sprintf("on_hand=%d with empty ledger", b.OnHand),
					BrandID:  &brandID,
					PartID:   &partID,
				})
			}
			continue
		}
		if err != nil {
			return err
		}
		if latest.BalanceAfter != b.OnHand {
			report.Findings = append(report.Findings, Finding{
				Kind:     FindingInventoryDrift,
				Severity: SeverityCritical,
				Detail:   fmt.Sprintf("latest ledger balance_after=%d disagrees with on_hand=%d", latest.BalanceAfter, b.OnHand),
				BrandID:  &brandID,
				PartID:   &partID,
			})
			continue
		}

		replayed, err := e.Coordinator.Inventory.Replay(ctx, e.Coordinator.Ledger, b.BrandID, b.PartID)
		if err != nil {
			return err
		}
		if replayed != b.OnHand {
			report.Findings = append(report.Findings, Finding{
				Kind:     FindingInventoryDrift,
				Severity: SeverityCritical,
				Detail:   fmt.Sprintf("ledger replay yields %d, stored on_hand=%d", replayed, b.OnHand),
				BrandID:  &brandID,
				PartID:   &partID,
			})
		}
	}
	return nil
}

// detectOrphanedHolds flags HELD holds whose shipment is gone or no longer
// active. Proposed fix: release.
func (e *Engine) detectOrphanedHolds(ctx context.Context, report *Report) error {
	holds, err := e.Coordinator.Holds.ListHeld(ctx)
	if err != nil {
		return err
	}

	for i := range holds {
		h := holds[i]
		if report.Scope.BrandID != nil && h.BrandID != *report.Scope.BrandID {
			continue
		}

		status, err := e.Shipments.StatusOf(ctx, h.ShipmentID)
		orphaned := false
		detail := ""
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			orphaned = true
			detail = "hold references a shipment that does not exist"
		case err != nil:
			return err
		case !status.Active():
			orphaned = true
			detail = fmt.Sprintf("hold still HELD but shipment is %s", status)
		}
		if !orphaned {
			continue
		}

		holdID, brandID, partID, shipmentID := h.HoldID, h.BrandID, h.PartID, h.ShipmentID
		report.Findings = append(report.Findings, Finding{
			Kind:        FindingOrphanedHold,
			Severity:    SeverityLow,
			Detail:      detail,
			ProposedFix: "release hold",
			HoldID:      &holdID,
			BrandID:     &brandID,
			PartID:      &partID,
			ShipmentID:  &shipmentID,
		})
	}
	return nil
}

// applyFixes executes proposed repairs one at a time through the
// coordinator, competing for balance keys like any other caller. CRITICAL
// findings are skipped by construction: they carry no proposed fix.
func (e *Engine) applyFixes(ctx context.Context, report *Report) {
	for i := range report.Findings {
		f := &report.Findings[i]
		var err error

		switch f.Kind {
		case FindingNegativeWallet:
			amount, perr := decimal.NewFromString(f.Amount)
			if perr != nil {
				err = perr
				break
			}
			reference := fmt.Sprintf("recon:%s:%s", report.RunID, f.AccountID)
			_, err = e.Coordinator.CorrectionCredit(ctx, *f.AccountID, amount, "reconciliation correction: negative balance", reference)
		case FindingMissingRefund:
			amount, perr := decimal.NewFromString(f.Amount)
			if perr != nil {
				err = perr
				break
			}
			var shipment domain.Shipment
			if derr := e.DB.WithContext(ctx).Where("shipment_id = ?", *f.ShipmentID).First(&shipment).Error; derr != nil {
				err = derr
				break
			}
			_, err = e.Coordinator.RefundWallet(ctx, *f.AccountID, amount, "reconciliation refund: cancelled shipment", shipment.Reference, domain.WalletMeta{Correction: true})
			if errors.Is(err, ledger.ErrDuplicateRefund) {
				// A partial refund already exists, so the refund path is
				// closed for this reference. The residual goes out as a
				// correction credit on the same reference, which zeroes the
				// shortfall for subsequent runs.
				_, err = e.Coordinator.CorrectionCredit(ctx, *f.AccountID, amount, "reconciliation correction: residual refund shortfall", shipment.Reference)
			}
		case FindingOrphanedHold:
			_, err = e.Coordinator.Release(ctx, *f.HoldID)
		default:
			continue
		}

		if err != nil {
			f.ApplyError = err.Error()
			report.Failed++
			log.Warn().Err(err).Str("kind", string(f.Kind)).Msg("reconciliation fix failed")
			continue
		}
		f.Applied = true
		report.Applied++
	}
}
