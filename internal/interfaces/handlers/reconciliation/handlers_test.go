package reconciliation

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cargohold-backend/internal/domain"
	"cargohold-backend/internal/ledger"
	recon "cargohold-backend/internal/reconciliation"
	"cargohold-backend/internal/shipments"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestApp(t *testing.T, withRedis bool) (*fiber.App, *gorm.DB) {
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

	engine := &recon.Engine{
		DB:          db,
		Coordinator: ledger.NewCoordinator(db, nil),
		Shipments:   &shipments.Service{DB: db},
	}
	if withRedis {
		mr := miniredis.RunT(t)
		engine.Rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	}
	h := &Handlers{Engine: engine}

	app := fiber.New()
	app.Post("/api/v1/reconciliation/run", h.Run)
	app.Get("/api/v1/reconciliation/last-report", h.LastReport)
	return app, db
}

func doJSON(t *testing.T, app *fiber.App, method, target string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(raw, &parsed))
	return resp, parsed
}

func TestRunEndpoint_ModeValidation(t *testing.T) {
	app, _ := newTestApp(t, false)

	resp, _ := doJSON(t, app, "POST", "/api/v1/reconciliation/run", fiber.Map{"mode": "AUDIT"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, "POST", "/api/v1/reconciliation/run", fiber.Map{
		"mode": "DRY_RUN", "brand_id": "not-a-uuid",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRunEndpoint_DryRunReportsFindings(t *testing.T) {
	app, db := newTestApp(t, false)

	require.NoError(t, db.Create(&domain.WalletBalance{
		AccountID:        uuid.New(),
		Balance:          decimal.NewFromInt(-30),
		LifetimeCredited: decimal.Zero,
		LifetimeDebited:  decimal.Zero,
		Version:          1,
	}).Error)

	resp, body := doJSON(t, app, "POST", "/api/v1/reconciliation/run", fiber.Map{"mode": "DRY_RUN"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])

	data := body["data"].(map[string]any)
	assert.Equal(t, "DRY_RUN", data["mode"])
	findings := data["findings"].([]any)
	require.Len(t, findings, 1)
	finding := findings[0].(map[string]any)
	assert.Equal(t, "NEGATIVE_WALLET_BALANCE", finding["kind"])
	assert.Equal(t, "HIGH", finding["severity"])
	assert.Equal(t, false, finding["applied"])

	meta := body["metadata"].(map[string]any)
	assert.Equal(t, float64(1), meta["findings"])
}

func TestRunEndpoint_CachesLastReport(t *testing.T) {
	app, _ := newTestApp(t, true)

	resp, _ := doJSON(t, app, "POST", "/api/v1/reconciliation/run", fiber.Map{"mode": "DRY_RUN"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, app, "GET", "/api/v1/reconciliation/last-report", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, "DRY_RUN", data["mode"])
}

func TestLastReportEndpoint_Empty(t *testing.T) {
	app, _ := newTestApp(t, false)

	resp, _ := doJSON(t, app, "GET", "/api/v1/reconciliation/last-report", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
