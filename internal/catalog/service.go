package catalog

import (
	"context"
	"errors"

	"cargohold-backend/internal/domain"
	"cargohold-backend/internal/ledger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service resolves part data for the ledger core. The core only asks it one
// question: what does this part cost when the movement did not say.
type Service struct {
	DB *gorm.DB
}

func (s *Service) DefaultUnitCost(ctx context.Context, brandID, partID uuid.UUID) (decimal.Decimal, error) {
	var part domain.Part
	err := s.DB.WithContext(ctx).
		Where("part_id = ? AND brand_id = ?", partID, brandID).
		First(&part).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, ledger.ErrNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	return part.DefaultUnitCost, nil
}

// Get returns a catalog part.
func (s *Service) Get(ctx context.Context, partID uuid.UUID) (*domain.Part, error) {
	var part domain.Part
	err := s.DB.WithContext(ctx).Where("part_id = ?", partID).First(&part).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &part, nil
}
