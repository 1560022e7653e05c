package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"cargohold-backend/internal/catalog"
	"cargohold-backend/internal/config"
	"cargohold-backend/internal/database"
	"cargohold-backend/internal/ledger"
	"cargohold-backend/internal/reconciliation"
	"cargohold-backend/internal/shipments"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// The reconciler runs reconciliation on a schedule, outside user-facing
// request handling. DRY_RUN by default; RECONCILE_APPLY=true enables
// repairs. The redis run lock keeps it from overlapping an on-demand run
// triggered through the API.
func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("APP_ENV") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database open failed")
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb = redis.NewClient(opts)
	}

	engine := &reconciliation.Engine{
		DB:          db,
		Coordinator: ledger.NewCoordinator(db, &catalog.Service{DB: db}),
		Shipments:   &shipments.Service{DB: db},
		Rdb:         rdb,
	}

	mode := reconciliation.ModeDryRun
	if cfg.ReconcileApply {
		mode = reconciliation.ModeApply
	}

	runOnce := func() {
		report, err := engine.Run(context.Background(), mode, reconciliation.Scope{})
		if err != nil {
			log.Error().Err(err).Msg("scheduled reconciliation failed")
			return
		}
		log.Info().
			Str("run_id", report.RunID.String()).
			Str("mode", string(report.Mode)).
			Int("findings", len(report.Findings)).
			Interface("by_severity", report.CountBySeverity()).
			Msg("scheduled reconciliation finished")
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.ReconcileSchedule, runOnce); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.ReconcileSchedule).Msg("invalid reconcile schedule")
	}
	c.Start()
	log.Info().Str("schedule", cfg.ReconcileSchedule).Str("mode", string(mode)).Msg("reconciler started")

	// Run immediately on boot, then on schedule.
	runOnce()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx := c.Stop()
	<-ctx.Done()
	log.Info().Msg("reconciler stopped")
}
