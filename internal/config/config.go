package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	DatabaseURL         string
	RedisURL            string
	APIKey              string
	StripeSecretKey     string
	StripeWebhookSecret string
	FrontendURLEndsWith string
	HealthAdminKey      string
	ReconcileSchedule   string // cron spec for the reconciler binary
	ReconcileApply      bool   // when false the schedule only runs DRY_RUN
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	port := viper.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL")
	if env == "production" && viper.GetString("DATABASE_URL_PROD") != "" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	}

	schedule := viper.GetString("RECONCILE_SCHEDULE")
	if schedule == "" {
		schedule = "@hourly"
	}

	return &Config{
		Env:                 env,
		Port:                port,
		DatabaseURL:         dbURL,
		RedisURL:            viper.GetString("REDIS_URL"),
		APIKey:              viper.GetString("API_KEY"),
		StripeSecretKey:     viper.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: viper.GetString("STRIPE_WEBHOOK_SECRET"),
		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
		HealthAdminKey:      viper.GetString("HEALTH_ADMIN_KEY"),
		ReconcileSchedule:   schedule,
		ReconcileApply:      strings.EqualFold(viper.GetString("RECONCILE_APPLY"), "true"),
	}, nil
}
