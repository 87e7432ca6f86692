// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries everything the reconciliation service needs at startup.
// Every field has an env tag; required fields fail Load rather than limping
// along with a zero value.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	Schema      string `env:"DATABASE_SCHEMA" envDefault:"app"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	ServiceJWTSecret string `env:"SERVICE_JWT_SECRET,required"`

	SendgridAPIKey string `env:"SENDGRID_API_KEY"`
	SenderEmail    string `env:"SENDER_EMAIL" envDefault:"support@example.com"`
	SenderName     string `env:"SENDER_NAME" envDefault:"Support"`

	StripeAPIKey string `env:"STRIPE_API_KEY"`

	LifetimePriceID string `env:"LIFETIME_PRICE_ID"`
	MonthlyPriceID  string `env:"MONTHLY_PRICE_ID"`
	AnnualPriceID   string `env:"ANNUAL_PRICE_ID"`

	SourceTimeout time.Duration `env:"SOURCE_TIMEOUT" envDefault:"10s"`

	RefreshCron   string        `env:"REFRESH_CRON" envDefault:"0 */6 * * *"`
	RefreshWindow time.Duration `env:"REFRESH_WINDOW" envDefault:"168h"`
	RefreshBatch  int           `env:"REFRESH_BATCH" envDefault:"100"`

	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
}

// Load parses the process environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
