package shipments

import (
	"context"
	"errors"

	"cargohold-backend/internal/domain"
	"cargohold-backend/internal/ledger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotCancellable is returned when a cancel request hits a shipment that
// already reached a terminal delivered state.
var ErrNotCancellable = errors.New("shipment is not cancellable")

// Service is the shipment-status source the ledger core consumes. Courier
// webhooks and admin actions update shipment rows elsewhere; this service
// answers status questions and owns the cancel transition.
type Service struct {
	DB *gorm.DB
}

func (s *Service) StatusOf(ctx context.Context, shipmentID uuid.UUID) (domain.ShipmentStatus, error) {
	var shipment domain.Shipment
	err := s.DB.WithContext(ctx).
		Select("status").
		Where("shipment_id = ?", shipmentID).
		First(&shipment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ledger.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return shipment.Status, nil
}

// Cancel moves an active shipment to cancelled. Cancelling an already
// cancelled or failed shipment is a no-op; a delivered shipment cannot be
// cancelled.
func (s *Service) Cancel(ctx context.Context, shipmentID uuid.UUID) (*domain.Shipment, error) {
	var shipment domain.Shipment
	err := s.DB.WithContext(ctx).Where("shipment_id = ?", shipmentID).First(&shipment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if shipment.Status.CancelledOrFailed() {
		return &shipment, nil
	}
	if !shipment.Status.Active() {
		return nil, ErrNotCancellable
	}

	res := s.DB.WithContext(ctx).Model(&domain.Shipment{}).
		Where("shipment_id = ? AND status IN ?", shipmentID,
			[]domain.ShipmentStatus{domain.ShipmentPending, domain.ShipmentInTransit}).
		Update("status", domain.ShipmentCancelled)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost a race with a concurrent status change; report what stands.
		return s.cancelledOrError(ctx, shipmentID)
	}
	shipment.Status = domain.ShipmentCancelled
	return &shipment, nil
}

func (s *Service) cancelledOrError(ctx context.Context, shipmentID uuid.UUID) (*domain.Shipment, error) {
	var shipment domain.Shipment
	if err := s.DB.WithContext(ctx).Where("shipment_id = ?", shipmentID).First(&shipment).Error; err != nil {
		return nil, err
	}
	if shipment.Status.CancelledOrFailed() {
		return &shipment, nil
	}
	return nil, ErrNotCancellable
}

// CancelledOrFailed lists shipments whose debits are refund candidates,
// optionally narrowed to one brand.
func (s *Service) CancelledOrFailed(ctx context.Context, brandID *uuid.UUID) ([]domain.Shipment, error) {
	q := s.DB.WithContext(ctx).
		Where("status IN ?", []domain.ShipmentStatus{domain.ShipmentCancelled, domain.ShipmentFailed})
	if brandID != nil {
		q = q.Where("brand_id = ?", *brandID)
	}

	var out []domain.Shipment
	if err := q.Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
