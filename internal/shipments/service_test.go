package shipments

import (
	"context"
	"testing"

	"cargohold-backend/internal/domain"
	"cargohold-backend/internal/ledger"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Shipment{}))
	return &Service{DB: db}
}

func TestStatusOf(t *testing.T) {
	s := newTestService(t)
	shipment := domain.Shipment{BrandID: uuid.New(), Reference: "SHIP-1", Status: domain.ShipmentInTransit}
	require.NoError(t, s.DB.Create(&shipment).Error)

	status, err := s.StatusOf(context.Background(), shipment.ShipmentID)
	require.NoError(t, err)
	assert.Equal(t, domain.ShipmentInTransit, status)
	assert.True(t, status.Active())

	_, err = s.StatusOf(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestCancel(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	shipment := domain.Shipment{BrandID: uuid.New(), Reference: "C-1", Status: domain.ShipmentPending}
	require.NoError(t, s.DB.Create(&shipment).Error)

	cancelled, err := s.Cancel(ctx, shipment.ShipmentID)
	require.NoError(t, err)
	assert.Equal(t, domain.ShipmentCancelled, cancelled.Status)

	// Idempotent on terminal cancelled state.
	again, err := s.Cancel(ctx, shipment.ShipmentID)
	require.NoError(t, err)
	assert.Equal(t, domain.ShipmentCancelled, again.Status)

	delivered := domain.Shipment{BrandID: uuid.New(), Reference: "C-2", Status: domain.ShipmentDelivered}
	require.NoError(t, s.DB.Create(&delivered).Error)
	_, err = s.Cancel(ctx, delivered.ShipmentID)
	assert.ErrorIs(t, err, ErrNotCancellable)

	_, err = s.Cancel(ctx, uuid.New())
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestCancelledOrFailed(t *testing.T) {
	s := newTestService(t)
	brandA, brandB := uuid.New(), uuid.New()

	fixtures := []domain.Shipment{
		{BrandID: brandA, Reference: "A-1", Status: domain.ShipmentCancelled},
		{BrandID: brandA, Reference: "A-2", Status: domain.ShipmentDelivered},
		{BrandID: brandB, Reference: "B-1", Status: domain.ShipmentFailed},
	}
	for i := range fixtures {
		require.NoError(t, s.DB.Create(&fixtures[i]).Error)
	}

	all, err := s.CancelledOrFailed(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := s.CancelledOrFailed(context.Background(), &brandA)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "A-1", scoped[0].Reference)
}
