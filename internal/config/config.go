// Package config содержит логику чтения конфигурации кошелькового сервиса.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации кошелькового сервиса.
type Config struct {
	RunAddress          string        `env:"RUN_ADDRESS"`
	DatabaseURI         string        `env:"DATABASE_URI"`
	PayoutSystemAddress string        `env:"PAYOUT_SYSTEM_ADDRESS"`
	ServiceTokenSecret  string        `env:"SERVICE_TOKEN_SECRET"`
	Currency            string        `env:"CURRENCY"`
	PayoutPollInterval  time.Duration `env:"PAYOUT_POLL_INTERVAL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envPayoutAddress := cfg.PayoutSystemAddress
	envSecret := cfg.ServiceTokenSecret
	envCurrency := cfg.Currency
	envPollInterval := cfg.PayoutPollInterval

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PayoutSystemAddress, "p", "", "payout system address")
	flag.StringVar(&cfg.ServiceTokenSecret, "s", "", "service token secret")
	flag.StringVar(&cfg.Currency, "c", "ETB", "wallet currency")
	flag.DurationVar(&cfg.PayoutPollInterval, "i", 5*time.Second, "payout poll interval")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envPayoutAddress != "" {
		cfg.PayoutSystemAddress = envPayoutAddress
	}
	if envSecret != "" {
		cfg.ServiceTokenSecret = envSecret
	}
	if envCurrency != "" {
		cfg.Currency = envCurrency
	}
	if envPollInterval > 0 {
		cfg.PayoutPollInterval = envPollInterval
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.Currency == "" {
		cfg.Currency = "ETB"
	}

	return cfg, nil
}
