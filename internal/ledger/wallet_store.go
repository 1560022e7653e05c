package ledger

import (
	"context"

	"cargohold-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WalletLedgerStore persists financial movement records. Same append-only
// contract as LedgerStore.
type WalletLedgerStore struct {
	DB *gorm.DB
}

func (s *WalletLedgerStore) Append(tx *gorm.DB, e *domain.WalletLedgerEntry) (uuid.UUID, error) {
	if err := tx.Create(e).Error; err != nil {
		return uuid.Nil, err
	}
	return e.EntryID, nil
}

// ListFor returns all entries for an account in insertion order.
func (s *WalletLedgerStore) ListFor(ctx context.Context, accountID uuid.UUID, sinceID *uuid.UUID) ([]domain.WalletLedgerEntry, error) {
	q := s.DB.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC, entry_id ASC")

	if sinceID != nil {
		var since domain.WalletLedgerEntry
		if err := s.DB.WithContext(ctx).Where("entry_id = ?", *sinceID).First(&since).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, ErrNotFound
			}
			return nil, err
		}
		q = q.Where("created_at > ?", since.CreatedAt)
	}

	var entries []domain.WalletLedgerEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListByReference returns all entries carrying a reference, any account,
// insertion order. Used for refund matching and reconciliation.
func (s *WalletLedgerStore) ListByReference(ctx context.Context, reference string) ([]domain.WalletLedgerEntry, error) {
	var entries []domain.WalletLedgerEntry
	err := s.DB.WithContext(ctx).
		Where("reference = ?", reference).
		Order("created_at ASC, entry_id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
