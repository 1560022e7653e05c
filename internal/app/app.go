package app

import (
	"cargohold-backend/internal/catalog"
	"cargohold-backend/internal/config"
	"cargohold-backend/internal/database"
	healthsvc "cargohold-backend/internal/health"
	cataloghandlers "cargohold-backend/internal/interfaces/handlers/catalog"
	healthhandlers "cargohold-backend/internal/interfaces/handlers/health"
	"cargohold-backend/internal/interfaces/handlers/inventory"
	"cargohold-backend/internal/interfaces/handlers/payments"
	reconhandlers "cargohold-backend/internal/interfaces/handlers/reconciliation"
	shipmenthandlers "cargohold-backend/internal/interfaces/handlers/shipments"
	"cargohold-backend/internal/interfaces/handlers/wallet"
	"cargohold-backend/internal/ledger"
	"cargohold-backend/internal/middleware"
	"cargohold-backend/internal/reconciliation"
	"cargohold-backend/internal/shipments"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// CreateApp builds the Fiber app with all global middleware and route
// registration. Returns the DB and redis client so entrypoints can verify
// connectivity before listening.
func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
	}))

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.AutoMigrate(db); err != nil {
			return nil, nil, nil, err
		}
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		rdb = redis.NewClient(opts)
	}

	// Stripe webhook mounted early, before any body handling middleware:
	// the raw payload must survive for signature verification.
	var coordinator *ledger.Coordinator
	if db != nil {
		coordinator = ledger.NewCoordinator(db, &catalog.Service{DB: db})
	}
	stripeWebhook := &payments.WebhookHandler{
		Coordinator:   coordinator,
		WebhookSecret: cfg.StripeWebhookSecret,
	}
	app.Post("/api/v1/stripe/webhook", stripeWebhook.HandleWebhook)

	if rdb != nil {
		app.Use(middleware.HealthMarker(rdb))
	}
	app.Use(middleware.ResponseFormatter())
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	// Health endpoints (no auth)
	var pinger healthsvc.DBPinger
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			pinger = sqlDB
		}
	}
	healthHandlers := &healthhandlers.Handlers{
		Rdb:            rdb,
		DB:             pinger,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	app.Get("/health/json", healthHandlers.JSON)
	app.Get("/health/reset", healthHandlers.Reset)

	if db != nil {
		shipmentSource := &shipments.Service{DB: db}
		engine := &reconciliation.Engine{
			DB:          db,
			Coordinator: coordinator,
			Shipments:   shipmentSource,
			Rdb:         rdb,
		}

		invHandlers := &inventory.Handlers{Coordinator: coordinator}
		invGroup := app.Group("/api/v1/inventory", middleware.RequireAPIKey(cfg.APIKey))
		invGroup.Post("/movements", invHandlers.RecordMovement)
		invGroup.Get("/balance", invHandlers.Balance)
		invGroup.Get("/ledger", invHandlers.Ledger)
		invGroup.Post("/reserve", invHandlers.Reserve)
		invGroup.Post("/release", invHandlers.Release)
		invGroup.Post("/consume", invHandlers.Consume)

		walletHandlers := &wallet.Handlers{
			Coordinator:   coordinator,
			StripeCreator: &wallet.RealStripeCreator{SecretKey: cfg.StripeSecretKey},
		}
		walletGroup := app.Group("/api/v1/wallets", middleware.RequireAPIKey(cfg.APIKey))
		walletGroup.Get("/:account_id", walletHandlers.Balance)
		walletGroup.Get("/:account_id/ledger", walletHandlers.Ledger)
		walletGroup.Post("/:account_id/credit", walletHandlers.Credit)
		walletGroup.Post("/:account_id/debit", walletHandlers.Debit)
		walletGroup.Post("/:account_id/refund", walletHandlers.Refund)
		walletGroup.Post("/:account_id/top-up", walletHandlers.TopUp)

		catalogHandlers := &cataloghandlers.Handlers{Catalog: &catalog.Service{DB: db}}
		catalogGroup := app.Group("/api/v1/catalog", middleware.RequireAPIKey(cfg.APIKey))
		catalogGroup.Get("/parts/:part_id", catalogHandlers.Part)

		shipmentHandlers := &shipmenthandlers.Handlers{
			Coordinator: coordinator,
			Shipments:   shipmentSource,
		}
		shipmentGroup := app.Group("/api/v1/shipments", middleware.RequireAPIKey(cfg.APIKey))
		shipmentGroup.Post("/:shipment_id/cancel", shipmentHandlers.Cancel)

		reconHandlers := &reconhandlers.Handlers{Engine: engine}
		reconGroup := app.Group("/api/v1/reconciliation", middleware.RequireAPIKey(cfg.APIKey))
		reconGroup.Post("/run", reconHandlers.Run)
		reconGroup.Get("/last-report", reconHandlers.LastReport)
	}

	return app, db, rdb, nil
}
