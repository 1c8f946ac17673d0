package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultRPCURL is the public Solana mainnet-beta endpoint.
const DefaultRPCURL = "https://api.mainnet-beta.solana.com"

// Config holds all exporter configuration loaded from environment variables.
// Command-line flags override these values after loading.
type Config struct {
	LogLevel string

	// Output
	OutputFile string

	// Solana RPC configuration
	SolanaRPCURL    string
	RPCPageSize     int
	RPCMaxAttempts  int
	RPCBackoff      time.Duration
	RPCRequestDelay time.Duration

	// Optional sinks and metrics; empty disables them.
	MetricsAddr string
	NATSURL     string
	DatabaseURL string
}

// Load reads a .env file if present, then configuration from environment
// variables. Every parse problem is reported, not just the first. Load does
// not validate ranges; call Validate once overrides have been applied.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{}
	var errs []error

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.OutputFile = getEnvOrDefault("OUTPUT_FILE", "transactions.csv")
	cfg.SolanaRPCURL = getEnvOrDefault("SOLANA_RPC_URL", DefaultRPCURL)

	pageSize, err := parseInt("RPC_PAGE_SIZE", 1000)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.RPCPageSize = pageSize

	maxAttempts, err := parseInt("RPC_MAX_ATTEMPTS", 3)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.RPCMaxAttempts = maxAttempts

	backoff, err := parseDuration("RPC_BACKOFF", "1s")
	if err != nil {
		errs = append(errs, err)
	}
	cfg.RPCBackoff = backoff

	delay, err := parseDuration("RPC_REQUEST_DELAY", "600ms")
	if err != nil {
		errs = append(errs, err)
	}
	cfg.RPCRequestDelay = delay

	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to parse configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("LogLevel must be one of debug, info, warn, error; got %q", c.LogLevel))
	}

	if c.OutputFile == "" {
		errs = append(errs, fmt.Errorf("OutputFile is required"))
	}

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	} else if !strings.HasPrefix(c.SolanaRPCURL, "http://") && !strings.HasPrefix(c.SolanaRPCURL, "https://") {
		errs = append(errs, fmt.Errorf("SolanaRPCURL must be an http(s) URL, got %q", c.SolanaRPCURL))
	}

	if c.RPCPageSize < 1 || c.RPCPageSize > 1000 {
		errs = append(errs, fmt.Errorf("RPCPageSize must be between 1 and 1000, got %d", c.RPCPageSize))
	}

	if c.RPCMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("RPCMaxAttempts must be at least 1, got %d", c.RPCMaxAttempts))
	}

	if c.RPCBackoff < 0 {
		errs = append(errs, fmt.Errorf("RPCBackoff cannot be negative"))
	}

	if c.RPCRequestDelay < 0 {
		errs = append(errs, fmt.Errorf("RPCRequestDelay cannot be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
