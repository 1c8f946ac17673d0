package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/brojonat/solexport/service/config"
	"github.com/brojonat/solexport/service/export"
	"github.com/brojonat/solexport/service/solana"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "solexport",
		Usage: "Export the transaction history of a Solana wallet to CSV",
		Description: `Fetches every transaction signed by or involving a wallet, newest first,
classifies each one into a single transfer record and writes them to a CSV file.

Records can also be published to NATS JetStream and stored in Postgres.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "address",
				Aliases:  []string{"a"},
				Usage:    "Base58 address of the wallet to export",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "operation-limit",
				Aliases: []string{"o"},
				Usage:   "Maximum number of transactions to fetch (0 = unlimited)",
			},
			&cli.StringFlag{
				Name:  "output",
				Usage: "Output CSV file (env OUTPUT_FILE, default transactions.csv)",
			},
			&cli.StringFlag{
				Name:  "rpc-url",
				Usage: "Solana JSON-RPC endpoint (env SOLANA_RPC_URL)",
			},
			&cli.StringFlag{
				Name:  "filter",
				Usage: `jq expression a record must satisfy to be written, e.g. '.sent_currency == "USDC"'`,
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address during the run (env METRICS_ADDR)",
			},
			&cli.StringFlag{
				Name:  "nats-url",
				Usage: "Also publish records to NATS JetStream (env NATS_URL)",
			},
			&cli.StringFlag{
				Name:  "database-url",
				Usage: "Also store records in Postgres (env DATABASE_URL)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error (env LOG_LEVEL)",
			},
		},
		Action: exportAction,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func exportAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	opts := exportOptions{
		Address:        c.String("address"),
		OperationLimit: c.Int("operation-limit"),
		Filter:         c.String("filter"),
	}

	logger := setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := runExport(ctx, cfg, opts, solana.NewRPCClient(cfg.SolanaRPCURL), logger)
	if summary != nil {
		logger.InfoContext(ctx, "export finished",
			"output", cfg.OutputFile,
			"summary", summary,
		)
	}
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("export interrupted: %w", err)
		}
		return err
	}

	fmt.Fprintf(c.App.Writer, "wrote %d records to %s\n", summary.Written, cfg.OutputFile)
	return nil
}

// loadConfig reads the environment, applies flag overrides and validates the result.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags overrides environment configuration with explicitly set flags.
func applyFlags(c *cli.Context, cfg *config.Config) {
	overrides := []struct {
		flag string
		dst  *string
	}{
		{"output", &cfg.OutputFile},
		{"rpc-url", &cfg.SolanaRPCURL},
		{"metrics-addr", &cfg.MetricsAddr},
		{"nats-url", &cfg.NATSURL},
		{"database-url", &cfg.DatabaseURL},
		{"log-level", &cfg.LogLevel},
	}
	for _, o := range overrides {
		if c.IsSet(o.flag) {
			*o.dst = c.String(o.flag)
		}
	}
	if cfg.OutputFile == "" {
		cfg.OutputFile = export.DefaultFileName
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
