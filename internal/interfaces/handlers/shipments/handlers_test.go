package shipments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cargohold-backend/internal/domain"
	"cargohold-backend/internal/ledger"
	shipmentsvc "cargohold-backend/internal/shipments"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestApp(t *testing.T) (*fiber.App, *ledger.Coordinator, *gorm.DB) {
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
		&domain.Shipment{},
	))

	coordinator := ledger.NewCoordinator(db, nil)
	h := &Handlers{
		Coordinator: coordinator,
		Shipments:   &shipmentsvc.Service{DB: db},
	}

	app := fiber.New()
	app.Post("/api/v1/shipments/:shipment_id/cancel", h.Cancel)
	return app, coordinator, db
}

func cancel(t *testing.T, app *fiber.App, shipmentID string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/shipments/"+shipmentID+"/cancel", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(raw, &parsed))
	return resp, parsed
}

func TestCancel_ReleasesHoldsAndRefunds(t *testing.T) {
	app, c, db := newTestApp(t)
	ctx := context.Background()
	brandID, partID, accountID := uuid.New(), uuid.New(), uuid.New()

	unitCost := decimal.NewFromInt(1)
	_, err := c.RecordInventoryMovement(ctx, ledger.MovementInput{
		BrandID: brandID, PartID: partID, Kind: domain.MovementReceipt, Quantity: 10, UnitCost: &unitCost,
	})
	require.NoError(t, err)

	shipment := domain.Shipment{BrandID: brandID, AccountID: &accountID, Reference: "SHIP-77", Status: domain.ShipmentPending}
	require.NoError(t, db.Create(&shipment).Error)

	hold, err := c.Reserve(ctx, brandID, partID, 4, shipment.ShipmentID)
	require.NoError(t, err)

	_, err = c.CreditWallet(ctx, accountID, decimal.NewFromInt(500), "top-up", "deposit-1", domain.WalletMeta{})
	require.NoError(t, err)
	_, err = c.DebitWallet(ctx, accountID, decimal.NewFromInt(200), "shipment charge", "SHIP-77", domain.WalletMeta{})
	require.NoError(t, err)

	resp, body := cancel(t, app, shipment.ShipmentID.String())
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(1), data["holds_released"])
	assert.Equal(t, "200", data["refunded"])
	assert.Equal(t, "cancelled", data["shipment"].(map[string]any)["status"])

	current, err := c.Holds.Get(ctx, hold.HoldID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldReleased, current.State)

	bal, err := c.CurrentInventory(ctx, brandID, partID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.Reserved)

	wallet, err := c.CurrentWallet(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.NewFromInt(500)))

	// Cancelling again neither double-releases nor double-refunds.
	resp, body = cancel(t, app, shipment.ShipmentID.String())
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	data = body["data"].(map[string]any)
	assert.Equal(t, float64(0), data["holds_released"])
	assert.Equal(t, "0", data["refunded"])

	wallet, err = c.CurrentWallet(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.NewFromInt(500)))
}

func TestCancel_NoWalletActivity(t *testing.T) {
	app, _, db := newTestApp(t)

	shipment := domain.Shipment{BrandID: uuid.New(), Reference: "SHIP-NODEB", Status: domain.ShipmentInTransit}
	require.NoError(t, db.Create(&shipment).Error)

	resp, body := cancel(t, app, shipment.ShipmentID.String())
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(0), data["holds_released"])
	assert.Equal(t, "0", data["refunded"])
}

func TestCancel_Validation(t *testing.T) {
	app, _, db := newTestApp(t)

	resp, _ := cancel(t, app, "not-a-uuid")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = cancel(t, app, uuid.NewString())
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	delivered := domain.Shipment{BrandID: uuid.New(), Reference: "SHIP-DONE", Status: domain.ShipmentDelivered}
	require.NoError(t, db.Create(&delivered).Error)
	resp, _ = cancel(t, app, delivered.ShipmentID.String())
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}
