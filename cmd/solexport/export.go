package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/solexport/service/classifier"
	"github.com/brojonat/solexport/service/config"
	"github.com/brojonat/solexport/service/db"
	"github.com/brojonat/solexport/service/export"
	"github.com/brojonat/solexport/service/metrics"
	"github.com/brojonat/solexport/service/nats"
	"github.com/brojonat/solexport/service/pipeline"
	"github.com/brojonat/solexport/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// exportOptions are the per-run inputs that are not part of Config.
type exportOptions struct {
	Address        string
	OperationLimit int
	Filter         string
}

// runExport exports the history of opts.Address through rpcClient. Inputs are
// validated before the output file is created.
func runExport(ctx context.Context, cfg *config.Config, opts exportOptions, rpcClient solana.RPCClient, logger *slog.Logger) (*pipeline.Summary, error) {
	wallet, err := solanago.PublicKeyFromBase58(opts.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", opts.Address, err)
	}
	if opts.OperationLimit < 0 {
		return nil, fmt.Errorf("operation limit cannot be negative, got %d", opts.OperationLimit)
	}

	var (
		pipelineOpts []pipeline.Option
		filterExpr   string
	)
	if opts.Filter != "" {
		filter, err := pipeline.NewJQFilter(opts.Filter)
		if err != nil {
			return nil, err
		}
		filterExpr = filter.String()
		pipelineOpts = append(pipelineOpts, pipeline.WithFilter(filter))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)
	pipelineOpts = append(pipelineOpts, pipeline.WithMetrics(m))

	if cfg.MetricsAddr != "" {
		stopMetrics := serveMetrics(cfg.MetricsAddr, registry, logger)
		defer stopMetrics()
	}

	logger.InfoContext(ctx, "starting export",
		"wallet", wallet.String(),
		"operation_limit", opts.OperationLimit,
		"rpc_endpoint", solana.EndpointLabel(cfg.SolanaRPCURL),
		"output", cfg.OutputFile,
		"filter", filterExpr,
	)

	csvWriter, err := export.NewCSVWriter(cfg.OutputFile)
	if err != nil {
		return nil, err
	}
	sinks := []pipeline.Sink{csvWriter}

	if cfg.NATSURL != "" {
		publisher, err := nats.NewPublisher(ctx, cfg.NATSURL, logger)
		if err != nil {
			csvWriter.Close()
			return nil, err
		}
		defer publisher.Close()
		sinks = append(sinks, nats.NewRecordSink(publisher, wallet.String()))
	}

	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			csvWriter.Close()
			return nil, err
		}
		defer pool.Close()
		store := db.NewStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			csvWriter.Close()
			return nil, err
		}
		sinks = append(sinks, db.NewRecordSink(store, wallet.String()))
	}

	client := solana.NewClient(rpcClient, solana.EndpointLabel(cfg.SolanaRPCURL), m, logger,
		solana.WithPageSize(cfg.RPCPageSize),
		solana.WithMaxAttempts(cfg.RPCMaxAttempts),
		solana.WithBackoff(cfg.RPCBackoff),
		solana.WithRequestDelay(cfg.RPCRequestDelay),
	)
	resolver := solana.NewMetadataResolver(rpcClient, m, logger)

	p := pipeline.New(
		wallet.String(),
		client.History(wallet, opts.OperationLimit),
		classifier.New(resolver, logger),
		sinks,
		logger,
		pipelineOpts...,
	)

	summary, runErr := p.Run(ctx)
	if err := csvWriter.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return summary, runErr
}

// serveMetrics exposes registry on addr until the returned stop function is called.
func serveMetrics(addr string, registry *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting metrics HTTP server", "addr", addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}
}
