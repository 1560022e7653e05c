package ledger

import (
	"context"
	"errors"
	"time"

	"cargohold-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WalletProjector is the monetary counterpart of BalanceProjector.
type WalletProjector struct {
	DB *gorm.DB
}

// CurrentBalance returns the stored snapshot, or a zero balance for an
// account with no history.
func (p *WalletProjector) CurrentBalance(ctx context.Context, accountID uuid.UUID) (*domain.WalletBalance, error) {
	return p.load(p.DB.WithContext(ctx), accountID)
}

func (p *WalletProjector) load(db *gorm.DB, accountID uuid.UUID) (*domain.WalletBalance, error) {
	var bal domain.WalletBalance
	err := db.Where("account_id = ?", accountID).First(&bal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.WalletBalance{
			AccountID:        accountID,
			Balance:          decimal.Zero,
			LifetimeCredited: decimal.Zero,
			LifetimeDebited:  decimal.Zero,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &bal, nil
}

// Apply mutates the snapshot in memory. A debit that would take the balance
// below zero is rejected unless correction is set; corrections are issued
// only by reconciliation repairs.
func (p *WalletProjector) Apply(bal *domain.WalletBalance, kind domain.EntryKind, amount decimal.Decimal, correction bool, at time.Time) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	switch kind {
	case domain.EntryCredit:
		bal.Balance = bal.Balance.Add(amount)
		bal.LifetimeCredited = bal.LifetimeCredited.Add(amount)
	case domain.EntryDebit:
		next := bal.Balance.Sub(amount)
		if next.IsNegative() && !correction {
			return ErrInsufficientFunds
		}
		bal.Balance = next
		bal.LifetimeDebited = bal.LifetimeDebited.Add(amount)
	default:
		return ErrInvalidMovementKind
	}

	bal.LastMovementAt = &at
	return nil
}

// Save persists the snapshot with the same version CAS as the inventory
// projector.
func (p *WalletProjector) Save(tx *gorm.DB, bal *domain.WalletBalance) error {
	now := time.Now()
	if bal.Version == 0 {
		bal.Version = 1
		if err := tx.Create(bal).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrConcurrencyConflict
			}
			return err
		}
		return nil
	}

	res := tx.Model(&domain.WalletBalance{}).
		Where("account_id = ? AND version = ?", bal.AccountID, bal.Version).
		Updates(map[string]interface{}{
			"balance":           bal.Balance,
			"lifetime_credited": bal.LifetimeCredited,
			"lifetime_debited":  bal.LifetimeDebited,
			"last_movement_at":  bal.LastMovementAt,
			"version":           bal.Version + 1,
			"updated_at":        now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConcurrencyConflict
	}
	bal.Version++
	return nil
}
