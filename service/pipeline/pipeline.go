// Package pipeline drives one export run: fetch a page of history, classify
// each transaction and hand the records to every configured sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solexport/service/classifier"
	"github.com/brojonat/solexport/service/metrics"
	"github.com/brojonat/solexport/service/solana"
)

// Source produces raw transactions page by page.
// It returns solana.ErrEndOfHistory when exhausted.
type Source interface {
	NextBatch(ctx context.Context) ([]*solana.RawTransaction, error)
}

// Classifier turns a raw transaction into a record.
type Classifier interface {
	Classify(ctx context.Context, raw *solana.RawTransaction, subject string) (*classifier.TransferRecord, error)
}

// Sink receives classified records in history order.
type Sink interface {
	Name() string
	Write(ctx context.Context, rec *classifier.TransferRecord) error
}

// Summary describes a finished (or aborted) run.
type Summary struct {
	Fetched   int
	Written   int
	Skipped   int
	Filtered  int
	ByVariant map[string]int
}

// LogValue renders the summary as a structured log group.
func (s *Summary) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("fetched", s.Fetched),
		slog.Int("written", s.Written),
		slog.Int("skipped", s.Skipped),
		slog.Int("filtered", s.Filtered),
	}
	for variant, n := range s.ByVariant {
		attrs = append(attrs, slog.Int(variant, n))
	}
	return slog.GroupValue(attrs...)
}

// Pipeline exports the history of one wallet.
type Pipeline struct {
	wallet     string
	source     Source
	classifier Classifier
	sinks      []Sink
	filter     *JQFilter
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFilter drops records that do not match f.
func WithFilter(f *JQFilter) Option {
	return func(p *Pipeline) {
		p.filter = f
	}
}

// WithMetrics records run metrics to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// New creates a Pipeline for wallet.
func New(wallet string, source Source, cls Classifier, sinks []Sink, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		wallet:     wallet,
		source:     source,
		classifier: cls,
		sinks:      sinks,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run consumes the source until it is exhausted. Transactions that cannot be
// classified are logged and skipped. Fetch and sink errors abort the run; the
// returned summary still reflects the work done until then.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{ByVariant: make(map[string]int)}

	err := p.run(ctx, summary)

	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordRunDuration(p.wallet, status, time.Since(start).Seconds())

	return summary, err
}

func (p *Pipeline) run(ctx context.Context, summary *Summary) error {
	for {
		batch, err := p.source.NextBatch(ctx)
		if errors.Is(err, solana.ErrEndOfHistory) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to fetch history: %w", err)
		}
		summary.Fetched += len(batch)

		for _, raw := range batch {
			if err := p.process(ctx, raw, summary); err != nil {
				return err
			}
		}
	}
}

func (p *Pipeline) process(ctx context.Context, raw *solana.RawTransaction, summary *Summary) error {
	rec, err := p.classifier.Classify(ctx, raw, p.wallet)
	if err != nil {
		p.logger.WarnContext(ctx, "skipping transaction",
			"signature", raw.Signature,
			"error", err,
		)
		summary.Skipped++
		p.metrics.RecordTransactionsSkipped(p.wallet, skipReason(err), 1)
		return nil
	}
	if rec == nil {
		p.logger.DebugContext(ctx, "transaction moved nothing",
			"signature", raw.Signature,
		)
		summary.Skipped++
		p.metrics.RecordTransactionsSkipped(p.wallet, "empty", 1)
		return nil
	}

	variant := rec.Variant.String()
	summary.ByVariant[variant]++
	p.metrics.RecordTransactionClassified(p.wallet, variant)

	if p.filter != nil {
		ok, err := p.filter.Match(rec)
		if err != nil {
			p.logger.DebugContext(ctx, "jq filter error",
				"signature", rec.TxHash,
				"error", err,
			)
		}
		if !ok {
			summary.Filtered++
			p.metrics.RecordTransactionsSkipped(p.wallet, "filtered", 1)
			return nil
		}
	}

	for _, sink := range p.sinks {
		if err := sink.Write(ctx, rec); err != nil {
			return fmt.Errorf("sink %s: failed to write %s: %w", sink.Name(), rec.TxHash, err)
		}
		p.metrics.RecordRecordsWritten(p.wallet, sink.Name(), 1)
	}
	summary.Written++
	return nil
}

func skipReason(err error) string {
	if errors.Is(err, classifier.ErrMalformedTransaction) {
		return "malformed"
	}
	return "error"
}
