package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"LOG_LEVEL",
	"OUTPUT_FILE",
	"SOLANA_RPC_URL",
	"RPC_PAGE_SIZE",
	"RPC_MAX_ATTEMPTS",
	"RPC_BACKOFF",
	"RPC_REQUEST_DELAY",
	"METRICS_ADDR",
	"NATS_URL",
	"DATABASE_URL",
}

// cleanEnv clears every variable Load reads and runs the test from an empty
// directory so no stray .env is picked up.
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	cleanEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "transactions.csv", cfg.OutputFile)
	assert.Equal(t, DefaultRPCURL, cfg.SolanaRPCURL)
	assert.Equal(t, 1000, cfg.RPCPageSize)
	assert.Equal(t, 3, cfg.RPCMaxAttempts)
	assert.Equal(t, time.Second, cfg.RPCBackoff)
	assert.Equal(t, 600*time.Millisecond, cfg.RPCRequestDelay)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Empty(t, cfg.NATSURL)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoad_CustomValues(t *testing.T) {
	cleanEnv(t)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("OUTPUT_FILE", "out.csv")
	t.Setenv("SOLANA_RPC_URL", "https://mainnet.helius-rpc.com/?api-key=secret")
	t.Setenv("RPC_PAGE_SIZE", "250")
	t.Setenv("RPC_MAX_ATTEMPTS", "5")
	t.Setenv("RPC_BACKOFF", "250ms")
	t.Setenv("RPC_REQUEST_DELAY", "100ms")
	t.Setenv("METRICS_ADDR", ":9090")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("DATABASE_URL", "postgres://localhost/solexport")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "out.csv", cfg.OutputFile)
	assert.Equal(t, "https://mainnet.helius-rpc.com/?api-key=secret", cfg.SolanaRPCURL)
	assert.Equal(t, 250, cfg.RPCPageSize)
	assert.Equal(t, 5, cfg.RPCMaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.RPCBackoff)
	assert.Equal(t, 100*time.Millisecond, cfg.RPCRequestDelay)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "postgres://localhost/solexport", cfg.DatabaseURL)
}

func TestLoad_DotEnv(t *testing.T) {
	cleanEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(".", ".env"), []byte("OUTPUT_FILE=from-dotenv.csv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("OUTPUT_FILE") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv.csv", cfg.OutputFile)
}

func TestLoad_EnvOverridesDotEnv(t *testing.T) {
	cleanEnv(t)
	require.NoError(t, os.WriteFile(".env", []byte("OUTPUT_FILE=from-dotenv.csv\n"), 0o600))
	t.Setenv("OUTPUT_FILE", "from-env.csv")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env.csv", cfg.OutputFile)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"bad duration", "RPC_BACKOFF", "soon", "invalid duration"},
		{"bad integer", "RPC_PAGE_SIZE", "lots", "invalid integer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_RangeErrorsLeftToValidate(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"page size too large", "RPC_PAGE_SIZE", "5000", "RPCPageSize must be between 1 and 1000"},
		{"zero attempts", "RPC_MAX_ATTEMPTS", "0", "RPCMaxAttempts must be at least 1"},
		{"unknown log level", "LOG_LEVEL", "verbose", "LogLevel must be one of"},
		{"non http rpc url", "SOLANA_RPC_URL", "ws://localhost:8900", "must be an http(s) URL"},
		{"negative delay", "RPC_REQUEST_DELAY", "-1s", "RPCRequestDelay cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()
			require.NoError(t, err, "overrides may still fix the value")

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ReportsEveryError(t *testing.T) {
	cleanEnv(t)
	t.Setenv("RPC_BACKOFF", "soon")
	t.Setenv("RPC_MAX_ATTEMPTS", "many")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RPC_BACKOFF")
	assert.Contains(t, err.Error(), "RPC_MAX_ATTEMPTS")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			LogLevel:        "info",
			OutputFile:      "transactions.csv",
			SolanaRPCURL:    DefaultRPCURL,
			RPCPageSize:     1000,
			RPCMaxAttempts:  3,
			RPCBackoff:      time.Second,
			RPCRequestDelay: 600 * time.Millisecond,
		}
	}

	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("empty output file", func(t *testing.T) {
		cfg := valid()
		cfg.OutputFile = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "OutputFile is required")
	})

	t.Run("empty rpc url", func(t *testing.T) {
		cfg := valid()
		cfg.SolanaRPCURL = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SolanaRPCURL is required")
	})

	t.Run("log level is case insensitive", func(t *testing.T) {
		cfg := valid()
		cfg.LogLevel = "DEBUG"
		assert.NoError(t, cfg.Validate())
	})
}
