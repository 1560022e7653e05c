package reconciliation

import (
	"context"
	"testing"

	"cargohold-backend/internal/domain"
	"cargohold-backend/internal/ledger"
	"cargohold-backend/internal/shipments"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestEngine(t *testing.T) (*Engine, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&domain.InventoryBalance{},
		&domain.InventoryLedgerEntry{},
		&domain.WalletBalance{},
		&domain.WalletLedgerEntry{},
		&domain.ReservationHold{},
		&domain.Part{},
		&domain.Shipment{},
	))

	engine := &Engine{
		DB:          db,
		Coordinator: ledger.NewCoordinator(db, nil),
		Shipments:   &shipments.Service{DB: db},
	}
	return engine, db
}

func withRedis(t *testing.T, e *Engine) *miniredis.Miniredis {
	mr := miniredis.RunT(t)
	e.Rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr
}

func seedNegativeWallet(t *testing.T, db *gorm.DB, accountID uuid.UUID, balance int64) {
	t.Helper()
	require.NoError(t, db.Create(&domain.WalletBalance{
		AccountID:        accountID,
		Balance:          decimal.NewFromInt(balance),
		LifetimeCredited: decimal.Zero,
		LifetimeDebited:  decimal.Zero,
		Version:          1,
	}).Error)
}

func findingsOfKind(report *Report, kind FindingKind) []Finding {
	var out []Finding
	for _, f := range report.Findings {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func TestRun_RejectsUnknownMode(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Run(context.Background(), Mode("AUDIT"), Scope{})
	assert.Error(t, err)
}

func TestRun_DryRunNeverMutates(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	accountID := uuid.New()
	seedNegativeWallet(t, db, accountID, -50)

	brandID, partID := uuid.New(), uuid.New()
	unitCost := decimal.NewFromInt(1)
	_, err := engine.Coordinator.RecordInventoryMovement(ctx, ledger.MovementInput{
		BrandID: brandID, PartID: partID, Kind: domain.MovementReceipt, Quantity: 5, UnitCost: &unitCost,
	})
	require.NoError(t, err)

	shipment := domain.Shipment{BrandID: brandID, Reference: "SHIP-ORPHAN", Status: domain.ShipmentPending}
	require.NoError(t, db.Create(&shipment).Error)
	hold, err := engine.Coordinator.Reserve(ctx, brandID, partID, 2, shipment.ShipmentID)
	require.NoError(t, err)
	require.NoError(t, db.Model(&domain.Shipment{}).
		Where("shipment_id = ?", shipment.ShipmentID).
		Update("status", domain.ShipmentCancelled).Error)

	report, err := engine.Run(ctx, ModeDryRun, Scope{})
	require.NoError(t, err)
	assert.NotEmpty(t, findingsOfKind(report, FindingNegativeWallet))
	assert.NotEmpty(t, findingsOfKind(report, FindingOrphanedHold))
	assert.Equal(t, 0, report.Applied)

	// Nothing moved.
	wallet, err := engine.Coordinator.CurrentWallet(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.NewFromInt(-50)))

	current, err := engine.Coordinator.Holds.Get(ctx, hold.HoldID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldHeld, current.State)

	bal, err := engine.Coordinator.CurrentInventory(ctx, brandID, partID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), bal.Reserved)
}

func TestRun_AppliesNegativeWalletCorrection(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	accountID := uuid.New()
	seedNegativeWallet(t, db, accountID, -75)

	report, err := engine.Run(ctx, ModeApply, Scope{})
	require.NoError(t, err)
	require.Len(t, findingsOfKind(report, FindingNegativeWallet), 1)
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, 0, report.Failed)

	wallet, err := engine.Coordinator.CurrentWallet(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.IsZero(), "got %s", wallet.Balance)

	// The repair is a correction-class credit, distinguishable from revenue.
	entries, err := engine.Coordinator.WalletLedger.ListFor(ctx, accountID, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ClassCorrection, entries[0].Class)
	assert.Equal(t, domain.EntryCredit, entries[0].Kind)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(75)))

	// A clean second run finds nothing.
	report, err = engine.Run(ctx, ModeApply, Scope{})
	require.NoError(t, err)
	assert.Empty(t, report.Findings)
}

func TestRun_DetectsAndRepairsMissingRefund(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	accountID := uuid.New()
	brandID := uuid.New()
	_, err := engine.Coordinator.CreditWallet(ctx, accountID, decimal.NewFromInt(500), "top-up", "deposit-1", domain.WalletMeta{})
	require.NoError(t, err)
	_, err = engine.Coordinator.DebitWallet(ctx, accountID, decimal.NewFromInt(200), "shipment charge", "SHIP-42", domain.WalletMeta{})
	require.NoError(t, err)

	shipment := domain.Shipment{BrandID: brandID, AccountID: &accountID, Reference: "SHIP-42", Status: domain.ShipmentCancelled}
	require.NoError(t, db.Create(&shipment).Error)

	report, err := engine.Run(ctx, ModeDryRun, Scope{})
	require.NoError(t, err)
	found := findingsOfKind(report, FindingMissingRefund)
	require.Len(t, found, 1)
	assert.Equal(t, SeverityMedium, found[0].Severity)
	assert.Equal(t, "200", found[0].Amount)

	report, err = engine.Run(ctx, ModeApply, Scope{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)

	wallet, err := engine.Coordinator.CurrentWallet(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.NewFromInt(500)))

	// Refunded in full: the shipment no longer shows a shortfall.
	report, err = engine.Run(ctx, ModeDryRun, Scope{})
	require.NoError(t, err)
	assert.Empty(t, findingsOfKind(report, FindingMissingRefund))
}

func TestRun_RepairsShortfallAfterPartialRefund(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	accountID := uuid.New()
	brandID := uuid.New()
	_, err := engine.Coordinator.CreditWallet(ctx, accountID, decimal.NewFromInt(500), "top-up", "deposit-1", domain.WalletMeta{})
	require.NoError(t, err)
	_, err = engine.Coordinator.DebitWallet(ctx, accountID, decimal.NewFromInt(500), "shipment charge", "SHIP-77", domain.WalletMeta{})
	require.NoError(t, err)
	// The caller refunded part of the debit before the shipment failed.
	_, err = engine.Coordinator.RefundWallet(ctx, accountID, decimal.NewFromInt(200), "partial refund", "SHIP-77", domain.WalletMeta{})
	require.NoError(t, err)

	shipment := domain.Shipment{BrandID: brandID, AccountID: &accountID, Reference: "SHIP-77", Status: domain.ShipmentFailed}
	require.NoError(t, db.Create(&shipment).Error)

	report, err := engine.Run(ctx, ModeApply, Scope{})
	require.NoError(t, err)
	found := findingsOfKind(report, FindingMissingRefund)
	require.Len(t, found, 1)
	assert.Equal(t, "300", found[0].Amount)
	assert.True(t, found[0].Applied)
	assert.Empty(t, found[0].ApplyError)
	assert.Equal(t, 0, report.Failed)

	wallet, err := engine.Coordinator.CurrentWallet(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.NewFromInt(500)))

	// The residual went out as a correction credit, not a second refund.
	entries, err := engine.Coordinator.WalletLedger.ListByReference(ctx, "SHIP-77")
	require.NoError(t, err)
	classes := map[domain.EntryClass]int{}
	for _, e := range entries {
		if e.Kind == domain.EntryCredit {
			classes[e.Class]++
		}
	}
	assert.Equal(t, 1, classes[domain.ClassRefund])
	assert.Equal(t, 1, classes[domain.ClassCorrection])

	// The shortfall is settled; a later run finds nothing to repair.
	report, err = engine.Run(ctx, ModeDryRun, Scope{})
	require.NoError(t, err)
	assert.Empty(t, findingsOfKind(report, FindingMissingRefund))
}

func TestRun_ReleasesOrphanedHold(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	brandID, partID := uuid.New(), uuid.New()
	unitCost := decimal.NewFromInt(1)
	_, err := engine.Coordinator.RecordInventoryMovement(ctx, ledger.MovementInput{
		BrandID: brandID, PartID: partID, Kind: domain.MovementReceipt, Quantity: 5, UnitCost: &unitCost,
	})
	require.NoError(t, err)

	// Hold for a shipment that no longer exists at all.
	hold, err := engine.Coordinator.Reserve(ctx, brandID, partID, 2, uuid.New())
	require.NoError(t, err)

	report, err := engine.Run(ctx, ModeApply, Scope{})
	require.NoError(t, err)
	found := findingsOfKind(report, FindingOrphanedHold)
	require.Len(t, found, 1)
	assert.Equal(t, SeverityLow, found[0].Severity)
	assert.True(t, found[0].Applied)

	current, err := engine.Coordinator.Holds.Get(ctx, hold.HoldID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldReleased, current.State)

	bal, err := engine.Coordinator.CurrentInventory(ctx, brandID, partID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), bal.OnHand)
	assert.Equal(t, int64(0), bal.Reserved)
}

func TestRun_InventoryDriftIsCriticalAndNeverRepaired(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	brandID, partID := uuid.New(), uuid.New()
	// A stored balance with no ledger behind it.
	require.NoError(t, db.Create(&domain.InventoryBalance{
		BrandID:     brandID,
		PartID:      partID,
		OnHand:      5,
		AverageCost: decimal.Zero,
		LastCost:    decimal.Zero,
		Version:     1,
	}).Error)

	report, err := engine.Run(ctx, ModeApply, Scope{})
	require.NoError(t, err)
	found := findingsOfKind(report, FindingInventoryDrift)
	require.Len(t, found, 1)
	assert.Equal(t, SeverityCritical, found[0].Severity)
	assert.Empty(t, found[0].ProposedFix)
	assert.False(t, found[0].Applied)
	assert.Equal(t, 0, report.Applied)

	// The defective row is untouched for manual investigation.
	bal, err := engine.Coordinator.CurrentInventory(ctx, brandID, partID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), bal.OnHand)
}

func TestRun_InventoryInvariantViolation(t *testing.T) {
	engine, db := newTestEngine(t)

	require.NoError(t, db.Create(&domain.InventoryBalance{
		BrandID:     uuid.New(),
		PartID:      uuid.New(),
		OnHand:      1,
		Reserved:    2,
		AverageCost: decimal.Zero,
		LastCost:    decimal.Zero,
		Version:     1,
	}).Error)

	report, err := engine.Run(context.Background(), ModeDryRun, Scope{})
	require.NoError(t, err)
	found := findingsOfKind(report, FindingInventoryDrift)
	require.Len(t, found, 1)
	assert.Equal(t, SeverityCritical, found[0].Severity)
	assert.Contains(t, found[0].Detail, "invariant violated")
}

func TestRun_ScopeNarrowsToAccount(t *testing.T) {
	engine, db := newTestEngine(t)

	inScope, outOfScope := uuid.New(), uuid.New()
	seedNegativeWallet(t, db, inScope, -10)
	seedNegativeWallet(t, db, outOfScope, -20)

	report, err := engine.Run(context.Background(), ModeDryRun, Scope{AccountID: &inScope})
	require.NoError(t, err)
	found := findingsOfKind(report, FindingNegativeWallet)
	require.Len(t, found, 1)
	assert.Equal(t, inScope, *found[0].AccountID)
}

func TestRun_LockPreventsOverlap(t *testing.T) {
	engine, _ := newTestEngine(t)
	mr := withRedis(t, engine)
	ctx := context.Background()

	require.NoError(t, mr.Set(runLockKey, "held"))
	_, err := engine.Run(ctx, ModeDryRun, Scope{})
	assert.ErrorIs(t, err, ErrRunInProgress)

	mr.Del(runLockKey)
	_, err = engine.Run(ctx, ModeDryRun, Scope{})
	assert.NoError(t, err)
}

func TestLastReport_RoundTrip(t *testing.T) {
	engine, db := newTestEngine(t)
	withRedis(t, engine)
	ctx := context.Background()

	report, err := engine.LastReport(ctx)
	require.NoError(t, err)
	assert.Nil(t, report)

	seedNegativeWallet(t, db, uuid.New(), -5)
	ran, err := engine.Run(ctx, ModeDryRun, Scope{})
	require.NoError(t, err)

	report, err = engine.LastReport(ctx)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, ran.RunID, report.RunID)
	assert.Len(t, report.Findings, len(ran.Findings))
}
