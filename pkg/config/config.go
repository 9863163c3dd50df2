// Package config provides configuration management for the ECR agent.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Dialect values for the two SAM4S generations the agent understands.
const (
	Dialect420 = "d420"
	Dialect520 = "d520"
)

// marker520 forces the 520 dialect when present, so field engineers can
// switch a till without editing the environment.
const marker520 = "config/520"

// Config represents the agent configuration.
type Config struct {
	// Dialect selects the header pattern, baud rate and totaling strategy.
	Dialect string
	// SerialPort is the tty the register prints to.
	SerialPort string

	// OpeningHour and ClosingHour bound the business-hours gate (24h clock).
	OpeningHour int
	ClosingHour int

	// QuietSeconds is the inactivity threshold for the clock-based flush.
	QuietSeconds int
	// SingleItemCap rejects individual item prices at or above this value.
	SingleItemCap float64
	// CurrencySymbol is the symbol the normalizer rewrites device bytes to.
	CurrencySymbol string

	// MonitorMode persists raw chunks and skips parsing.
	MonitorMode bool
	// LoggingEnabled duplicates log output to a file sink under LogDir.
	LoggingEnabled bool

	OutputDir     string
	DataDir       string
	LogDir        string
	CatalogPath   string
	SitesPath     string
	HistoryDBPath string
}

// Load loads configuration from environment variables.
// It automatically loads a .env file from the current directory if available.
// You can optionally specify a custom .env file path.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		// Try to load .env from current directory (ignore error if not found)
		_ = godotenv.Load()
	}

	opening, err := parseIntEnv("ECR_OPENING_HOUR", 7)
	if err != nil {
		return nil, err
	}
	closing, err := parseIntEnv("ECR_CLOSING_HOUR", 22)
	if err != nil {
		return nil, err
	}
	quiet, err := parseIntEnv("ECR_QUIET_SECONDS", 1200)
	if err != nil {
		return nil, err
	}
	itemCap, err := parseFloatEnv("ECR_SINGLE_ITEM_CAP", 200)
	if err != nil {
		return nil, err
	}

	dialect := getEnvOrDefault("ECR_DIALECT", "")
	if dialect == "" {
		if fileExists(marker520) {
			dialect = Dialect520
		} else {
			dialect = Dialect420
		}
	}

	cfg := &Config{
		Dialect:        dialect,
		SerialPort:     getEnvOrDefault("ECR_SERIAL_PORT", "/dev/ttyS0"),
		OpeningHour:    opening,
		ClosingHour:    closing,
		QuietSeconds:   quiet,
		SingleItemCap:  itemCap,
		CurrencySymbol: getEnvOrDefault("ECR_CURRENCY_SYMBOL", "£"),
		MonitorMode:    os.Getenv("ECR_MONITOR_MODE") == "true",
		LoggingEnabled: os.Getenv("ECR_LOGGING_ENABLED") == "true",
		OutputDir:      getEnvOrDefault("ECR_OUTPUT_DIR", "ecr_data"),
		DataDir:        getEnvOrDefault("ECR_DATA_DIR", "."),
		LogDir:         getEnvOrDefault("ECR_LOG_DIR", "logs"),
		CatalogPath:    getEnvOrDefault("ECR_CATALOG_PATH", "config/plu.txt"),
		SitesPath:      getEnvOrDefault("ECR_SITES_PATH", "config/shops.csv"),
		HistoryDBPath:  getEnvOrDefault("ECR_HISTORY_DB_PATH", ""),
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Dialect != Dialect420 && c.Dialect != Dialect520 {
		return fmt.Errorf("invalid dialect %q: must be %s or %s", c.Dialect, Dialect420, Dialect520)
	}
	if c.OpeningHour < 0 || c.OpeningHour > 23 {
		return fmt.Errorf("invalid opening hour %d", c.OpeningHour)
	}
	if c.ClosingHour < 1 || c.ClosingHour > 24 {
		return fmt.Errorf("invalid closing hour %d", c.ClosingHour)
	}
	if c.OpeningHour >= c.ClosingHour {
		return fmt.Errorf("opening hour %d must be before closing hour %d", c.OpeningHour, c.ClosingHour)
	}
	if c.QuietSeconds <= 0 {
		return fmt.Errorf("quiet seconds must be positive, got %d", c.QuietSeconds)
	}
	if c.SingleItemCap <= 0 {
		return fmt.Errorf("single item cap must be positive, got %.2f", c.SingleItemCap)
	}
	if c.CurrencySymbol == "" {
		return fmt.Errorf("currency symbol must not be empty")
	}
	return nil
}

// Baud returns the line speed for the configured dialect.
// The 420 prints at 9600; the 520 polls at 115200.
func (c *Config) Baud() int {
	if c.Dialect == Dialect520 {
		return 115200
	}
	return 9600
}

// OpenAt reports whether the business-hours gate is open at t.
func (c *Config) OpenAt(t time.Time) bool {
	h := t.Hour()
	return h >= c.OpeningHour && h < c.ClosingHour
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv parses an int from an environment variable.
// Returns defaultValue if the environment variable is not set.
func parseIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %s", key, value)
	}
	return parsed, nil
}

// parseFloatEnv parses a float64 from an environment variable.
// Returns defaultValue if the environment variable is not set.
func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value for %s: %s", key, value)
	}
	return parsed, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
