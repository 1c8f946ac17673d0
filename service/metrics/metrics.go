package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the exporter.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
// Every helper is safe to call on a nil *Metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal        *prometheus.CounterVec
	solanaRPCCallDuration      *prometheus.HistogramVec
	solanaRPCRateLimitHits     *prometheus.CounterVec
	solanaRPCRetries           *prometheus.CounterVec
	solanaRPCSignaturesPerCall *prometheus.HistogramVec

	// Transaction Processing Metrics
	transactionsFetchedTotal    *prometheus.CounterVec
	transactionsParsedTotal     *prometheus.CounterVec
	transactionsClassifiedTotal *prometheus.CounterVec
	transactionsSkippedTotal    *prometheus.CounterVec

	// Token metadata lookups
	metadataLookupsTotal *prometheus.CounterVec

	// Output Metrics
	recordsWrittenTotal *prometheus.CounterVec

	// Run Metrics
	exportRunDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),
		solanaRPCSignaturesPerCall: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_signatures_per_call",
				Help:    "Number of signatures fetched per GetSignaturesForAddress call",
				Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
			},
			[]string{"endpoint"},
		),

		// Transaction Processing Metrics
		transactionsFetchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_fetched_total",
				Help: "Total number of raw transactions fetched from Solana",
			},
			[]string{"wallet_address"},
		),
		transactionsParsedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_parsed_total",
				Help: "Total number of transaction payloads decoded",
			},
			[]string{"wallet_address", "status"},
		),
		transactionsClassifiedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_classified_total",
				Help: "Total number of transactions classified, by variant",
			},
			[]string{"wallet_address", "variant"},
		),
		transactionsSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_skipped_total",
				Help: "Total number of transactions skipped",
			},
			[]string{"wallet_address", "reason"},
		),

		metadataLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "token_metadata_lookups_total",
				Help: "Total number of token symbol lookups by source and status",
			},
			[]string{"source", "status"},
		),

		// Output Metrics
		recordsWrittenTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "records_written_total",
				Help: "Total number of transfer records written, by sink",
			},
			[]string{"wallet_address", "sink"},
		),

		exportRunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "export_run_duration_seconds",
				Help:    "Duration of a full export run in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 900},
			},
			[]string{"wallet_address", "status"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	if m == nil {
		return
	}
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	if m == nil {
		return
	}
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	if m == nil {
		return
	}
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// RecordRPCSignaturesPerCall records the number of signatures fetched.
func (m *Metrics) RecordRPCSignaturesPerCall(endpoint string, count float64) {
	if m == nil {
		return
	}
	m.solanaRPCSignaturesPerCall.WithLabelValues(endpoint).Observe(count)
}

// Transaction processing metric helpers

// RecordTransactionsFetched records raw transactions fetched from Solana.
func (m *Metrics) RecordTransactionsFetched(walletAddress string, count int) {
	if m == nil {
		return
	}
	m.transactionsFetchedTotal.WithLabelValues(walletAddress).Add(float64(count))
}

// RecordTransactionParsed records a transaction decode attempt.
func (m *Metrics) RecordTransactionParsed(walletAddress, status string) {
	if m == nil {
		return
	}
	m.transactionsParsedTotal.WithLabelValues(walletAddress, status).Inc()
}

// RecordTransactionClassified records a transaction classified as variant.
func (m *Metrics) RecordTransactionClassified(walletAddress, variant string) {
	if m == nil {
		return
	}
	m.transactionsClassifiedTotal.WithLabelValues(walletAddress, variant).Inc()
}

// RecordTransactionsSkipped records transactions skipped.
func (m *Metrics) RecordTransactionsSkipped(walletAddress, reason string, count int) {
	if m == nil {
		return
	}
	m.transactionsSkippedTotal.WithLabelValues(walletAddress, reason).Add(float64(count))
}

// RecordMetadataLookup records a token symbol lookup.
func (m *Metrics) RecordMetadataLookup(source, status string) {
	if m == nil {
		return
	}
	m.metadataLookupsTotal.WithLabelValues(source, status).Inc()
}

// RecordRecordsWritten records transfer records written to a sink.
func (m *Metrics) RecordRecordsWritten(walletAddress, sink string, count int) {
	if m == nil {
		return
	}
	m.recordsWrittenTotal.WithLabelValues(walletAddress, sink).Add(float64(count))
}

// RecordRunDuration records the duration of an export run.
func (m *Metrics) RecordRunDuration(walletAddress, status string, duration float64) {
	if m == nil {
		return
	}
	m.exportRunDuration.WithLabelValues(walletAddress, status).Observe(duration)
}
