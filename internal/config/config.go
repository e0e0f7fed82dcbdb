// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	BaseCurrency string // Reporting currency for valuations (default USD)

	AlphaVantageAPIKey string

	// Price resolution tuning
	PriceConcurrency  int           // Worker pool size for batch updates
	PriceStagger      time.Duration // Delay between batch task submissions
	PriceMaxRetries   int
	PriceRetryBase    time.Duration
	SourceCallsPerMin int // Per-source rate limit window quota

	// PriceRefreshSchedule is a cron expression for the background refresh
	// job; empty disables scheduled refreshes.
	PriceRefreshSchedule string

	// Flat-rate tax estimate percentages per asset type.
	TaxRateStock      float64
	TaxRateCrypto     float64
	TaxRateEquityComp float64
}

// Load reads configuration from environment variables, with a .env file as
// the usual source during development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("KEEPER_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("KEEPER_PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		BaseCurrency: getEnv("BASE_CURRENCY", "USD"),

		AlphaVantageAPIKey: getEnv("ALPHAVANTAGE_API_KEY", ""),

		PriceConcurrency:  getEnvAsInt("PRICE_CONCURRENCY", 3),
		PriceStagger:      time.Duration(getEnvAsInt("PRICE_STAGGER_MS", 200)) * time.Millisecond,
		PriceMaxRetries:   getEnvAsInt("PRICE_MAX_RETRIES", 3),
		PriceRetryBase:    time.Duration(getEnvAsInt("PRICE_RETRY_BASE_MS", 500)) * time.Millisecond,
		SourceCallsPerMin: getEnvAsInt("SOURCE_CALLS_PER_MIN", 20),

		PriceRefreshSchedule: getEnv("PRICE_REFRESH_SCHEDULE", "@every 30m"),

		TaxRateStock:      getEnvAsFloat("TAX_RATE_STOCK", 15.0),
		TaxRateCrypto:     getEnvAsFloat("TAX_RATE_CRYPTO", 30.0),
		TaxRateEquityComp: getEnvAsFloat("TAX_RATE_EQUITY_COMP", 22.0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PriceConcurrency <= 0 {
		return fmt.Errorf("price concurrency must be positive, got %d", c.PriceConcurrency)
	}
	if c.SourceCallsPerMin <= 0 {
		return fmt.Errorf("source rate limit must be positive, got %d", c.SourceCallsPerMin)
	}
	if c.PriceMaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.PriceMaxRetries)
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
