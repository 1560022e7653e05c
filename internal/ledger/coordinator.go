package ledger

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"cargohold-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CatalogLookup resolves the default unit cost for a part when a movement
// arrives without one. Implemented by catalog.Service; no retry logic here.
type CatalogLookup interface {
	DefaultUnitCost(ctx context.Context, brandID, partID uuid.UUID) (decimal.Decimal, error)
}

// Coordinator is the only component permitted to mutate balances. Every
// public operation runs as one database transaction: read balance, validate,
// append ledger entry, write balance. Lost updates are prevented by the
// projectors' version CAS; ErrConcurrencyConflict is the one error retried
// here, everything else surfaces immediately.
type Coordinator struct {
	DB      *gorm.DB
	Catalog CatalogLookup

	Inventory    *BalanceProjector
	Wallets      *WalletProjector
	Ledger       *LedgerStore
	WalletLedger *WalletLedgerStore
	Holds        *ReservationManager

	locks *keyLocks
}

func NewCoordinator(db *gorm.DB, catalog CatalogLookup) *Coordinator {
	return &Coordinator{
		DB:           db,
		Catalog:      catalog,
		Inventory:    &BalanceProjector{DB: db},
		Wallets:      &WalletProjector{DB: db},
		Ledger:       &LedgerStore{DB: db},
		WalletLedger: &WalletLedgerStore{DB: db},
		Holds:        &ReservationManager{DB: db},
		locks:        newKeyLocks(),
	}
}

const casAttempts = 5

// withKey serializes same-process writers on one balance key and retries the
// read-modify-write on version conflicts with a short jittered backoff.
func (c *Coordinator) withKey(key string, fn func() error) error {
	unlock := c.locks.Lock(key)
	defer unlock()

	var err error
	for attempt := 0; attempt < casAttempts; attempt++ {
		err = fn()
		if !errors.Is(err, ErrConcurrencyConflict) {
			return err
		}
		backoff := time.Duration(attempt+1)*5*time.Millisecond + time.Duration(rand.Intn(5))*time.Millisecond
		log.Debug().Str("key", key).Int("attempt", attempt+1).Msg("balance version conflict, retrying")
		time.Sleep(backoff)
	}
	return err
}

func inventoryKey(brandID, partID uuid.UUID) string {
	return "inv:" + brandID.String() + ":" + partID.String()
}

func walletKey(accountID uuid.UUID) string {
	return "wal:" + accountID.String()
}

// MovementInput describes one inventory movement request.
type MovementInput struct {
	BrandID     uuid.UUID
	PartID      uuid.UUID
	Kind        domain.MovementKind
	Quantity    int64
	Source      string
	Destination string
	UnitCost    *decimal.Decimal
	ShipmentID  *uuid.UUID
	Actor       string
	Meta        domain.MovementMeta
}

// RecordInventoryMovement appends one ledger entry and updates the projected
// balance atomically.
func (c *Coordinator) RecordInventoryMovement(ctx context.Context, in MovementInput) (*domain.InventoryLedgerEntry, error) {
	if _, ok := in.Kind.Direction(); !ok {
		return nil, ErrInvalidMovementKind
	}
	if in.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	var entry *domain.InventoryLedgerEntry
	err := c.withKey(inventoryKey(in.BrandID, in.PartID), func() error {
		return c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			bal, err := c.Inventory.load(tx, in.BrandID, in.PartID)
			if err != nil {
				return err
			}

			cost, err := c.resolveUnitCost(ctx, in, bal)
			if err != nil {
				return err
			}

			now := time.Now()
			if err := c.Inventory.Apply(bal, in.Kind, in.Quantity, cost, now); err != nil {
				return err
			}

			meta, err := in.Meta.JSON()
			if err != nil {
				return err
			}
			e := &domain.InventoryLedgerEntry{
				BrandID:      in.BrandID,
				PartID:       in.PartID,
				Kind:         in.Kind,
				Quantity:     in.Quantity,
				Source:       in.Source,
				Destination:  in.Destination,
				UnitCost:     cost,
				TotalValue:   cost.Mul(decimal.NewFromInt(in.Quantity)).Round(2),
				BalanceAfter: bal.OnHand,
				ShipmentID:   in.ShipmentID,
				Actor:        in.Actor,
				Meta:         meta,
				CreatedAt:    now,
			}
			if _, err := c.Ledger.Append(tx, e); err != nil {
				return err
			}
			if err := c.Inventory.Save(tx, bal); err != nil {
				return err
			}
			entry = e
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("brand_id", in.BrandID.String()).
		Str("part_id", in.PartID.String()).
		Str("kind", string(in.Kind)).
		Int64("quantity", in.Quantity).
		Int64("balance_after", entry.BalanceAfter).
		Msg("inventory movement recorded")
	return entry, nil
}

func (c *Coordinator) resolveUnitCost(ctx context.Context, in MovementInput, bal *domain.InventoryBalance) (decimal.Decimal, error) {
	if in.UnitCost != nil {
		return *in.UnitCost, nil
	}
	if !in.Kind.Inbound() {
		// Outbound movements are valued at the current average cost.
		return bal.AverageCost, nil
	}
	if c.Catalog == nil {
		return decimal.Zero, nil
	}
	return c.Catalog.DefaultUnitCost(ctx, in.BrandID, in.PartID)
}

// CurrentInventory returns the projected snapshot for a key.
func (c *Coordinator) CurrentInventory(ctx context.Context, brandID, partID uuid.UUID) (*domain.InventoryBalance, error) {
	return c.Inventory.CurrentBalance(ctx, brandID, partID)
}

// CurrentWallet returns the projected snapshot for an account.
func (c *Coordinator) CurrentWallet(ctx context.Context, accountID uuid.UUID) (*domain.WalletBalance, error) {
	return c.Wallets.CurrentBalance(ctx, accountID)
}

// CreditWallet records a standard credit.
func (c *Coordinator) CreditWallet(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description, reference string, meta domain.WalletMeta) (*domain.WalletBalance, error) {
	return c.walletOp(ctx, accountID, domain.EntryCredit, domain.ClassStandard, amount, description, reference, false, meta)
}

// DebitWallet records a standard debit; fails with ErrInsufficientFunds
// rather than ever committing a negative balance.
func (c *Coordinator) DebitWallet(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description, reference string, meta domain.WalletMeta) (*domain.WalletBalance, error) {
	return c.walletOp(ctx, accountID, domain.EntryDebit, domain.ClassStandard, amount, description, reference, false, meta)
}

// RefundWallet credits back a previously debited reference. The reference
// must match an existing debit, and at most one refund may exist per
// reference; a second attempt fails with ErrDuplicateRefund.
func (c *Coordinator) RefundWallet(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description, reference string, meta domain.WalletMeta) (*domain.WalletBalance, error) {
	return c.walletOp(ctx, accountID, domain.EntryCredit, domain.ClassRefund, amount, description, reference, false, meta)
}

// CorrectionCredit is the repair path reconciliation uses to bring a
// negative balance back to zero. The resulting entry is distinguishable from
// ordinary credits by its CORRECTION class.
func (c *Coordinator) CorrectionCredit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description, reference string) (*domain.WalletBalance, error) {
	meta := domain.WalletMeta{Correction: true}
	return c.walletOp(ctx, accountID, domain.EntryCredit, domain.ClassCorrection, amount, description, reference, true, meta)
}

func (c *Coordinator) walletOp(ctx context.Context, accountID uuid.UUID, kind domain.EntryKind, class domain.EntryClass, amount decimal.Decimal, description, reference string, correction bool, meta domain.WalletMeta) (*domain.WalletBalance, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	var snapshot *domain.WalletBalance
	err := c.withKey(walletKey(accountID), func() error {
		return c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if class == domain.ClassRefund {
				if err := c.checkRefundable(tx, accountID, reference); err != nil {
					return err
				}
			}

			bal, err := c.Wallets.load(tx, accountID)
			if err != nil {
				return err
			}

			now := time.Now()
			if err := c.Wallets.Apply(bal, kind, amount, correction, now); err != nil {
				return err
			}

			metaJSON, err := meta.JSON()
			if err != nil {
				return err
			}
			e := &domain.WalletLedgerEntry{
				AccountID:    accountID,
				Kind:         kind,
				Class:        class,
				Amount:       amount,
				BalanceAfter: bal.Balance,
				Reference:    reference,
				Description:  description,
				Meta:         metaJSON,
				CreatedAt:    now,
			}
			if _, err := c.WalletLedger.Append(tx, e); err != nil {
				return err
			}
			if err := c.Wallets.Save(tx, bal); err != nil {
				return err
			}
			snapshot = bal
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("account_id", accountID.String()).
		Str("kind", string(kind)).
		Str("class", string(class)).
		Str("amount", amount.String()).
		Str("balance", snapshot.Balance.String()).
		Msg("wallet movement recorded")
	return snapshot, nil
}

// checkRefundable enforces refund idempotency: one refund per debited
// reference, and never a refund for a reference that was never debited.
func (c *Coordinator) checkRefundable(tx *gorm.DB, accountID uuid.UUID, reference string) error {
	if reference == "" {
		return ErrNotFound
	}

	var debits int64
	err := tx.Model(&domain.WalletLedgerEntry{}).
		Where("account_id = ? AND reference = ? AND kind = ?", accountID, reference, domain.EntryDebit).
		Count(&debits).Error
	if err != nil {
		return err
	}
	if debits == 0 {
		return ErrNotFound
	}

	var refunds int64
	err = tx.Model(&domain.WalletLedgerEntry{}).
		Where("account_id = ? AND reference = ? AND kind = ? AND class = ?", accountID, reference, domain.EntryCredit, domain.ClassRefund).
		Count(&refunds).Error
	if err != nil {
		return err
	}
	if refunds > 0 {
		return ErrDuplicateRefund
	}
	return nil
}
