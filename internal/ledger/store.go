package ledger

import (
	"context"

	"cargohold-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LedgerStore persists inventory movement records. Append-only: there is no
// update or delete method, and none may be added. Storage errors propagate
// to the caller unchanged.
type LedgerStore struct {
	DB *gorm.DB
}

// Append inserts one entry inside the given transaction and returns its id.
func (s *LedgerStore) Append(tx *gorm.DB, e *domain.InventoryLedgerEntry) (uuid.UUID, error) {
	if err := tx.Create(e).Error; err != nil {
		return uuid.Nil, err
	}
	return e.EntryID, nil
}

// ListFor returns all entries for a (brand, part) key in insertion order,
// optionally only those after sinceID.
func (s *LedgerStore) ListFor(ctx context.Context, brandID, partID uuid.UUID, sinceID *uuid.UUID) ([]domain.InventoryLedgerEntry, error) {
	q := s.DB.WithContext(ctx).
		Where("brand_id = ? AND part_id = ?", brandID, partID).
		Order("created_at ASC, entry_id ASC")

	if sinceID != nil {
		var since domain.InventoryLedgerEntry
		if err := s.DB.WithContext(ctx).Where("entry_id = ?", *sinceID).First(&since).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, ErrNotFound
			}
			return nil, err
		}
		q = q.Where("created_at > ?", since.CreatedAt)
	}

	var entries []domain.InventoryLedgerEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// LatestFor returns the most recent entry for a key, or ErrNotFound when the
// ledger has no history for it.
func (s *LedgerStore) LatestFor(ctx context.Context, brandID, partID uuid.UUID) (*domain.InventoryLedgerEntry, error) {
	var entry domain.InventoryLedgerEntry
	err := s.DB.WithContext(ctx).
		Where("brand_id = ? AND part_id = ?", brandID, partID).
		Order("created_at DESC, entry_id DESC").
		First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
