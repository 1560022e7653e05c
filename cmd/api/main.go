package main

import (
	"context"
	"os"

	"cargohold-backend/internal/app"
	"cargohold-backend/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("APP_ENV") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	fiberApp, db, rdb, err := app.CreateApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("app create failed")
	}

	// Verify connections before listening.
	if db != nil {
		sqlDB, err := db.DB()
		if err != nil {
			log.Fatal().Err(err).Msg("database handle unavailable")
		}
		if err := sqlDB.Ping(); err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}
		log.Info().Msg("database connected")
	}
	if rdb != nil {
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		log.Info().Msg("redis connected")
	}

	log.Info().Str("port", cfg.Port).Msg("cargohold api listening")
	if err := fiberApp.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
