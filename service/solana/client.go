package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/solexport/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)

	GetAccountInfo(
		ctx context.Context,
		account solana.PublicKey,
	) (*rpc.GetAccountInfoResult, error)
}

var (
	// ErrEndOfHistory is returned by History.NextBatch once every signature
	// has been produced or the operation limit was reached.
	ErrEndOfHistory = errors.New("end of history")

	// ErrFetchExhausted marks an RPC call that kept failing after all retries.
	ErrFetchExhausted = errors.New("rpc retries exhausted")
)

// FetchError is returned when an RPC call fails after every retry attempt.
// It matches both ErrFetchExhausted and the last underlying error.
type FetchError struct {
	Method   string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Method, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrFetchExhausted, e.Err}
}

// Default fetch settings.
const (
	DefaultPageSize     = 1000
	DefaultMaxAttempts  = 3
	DefaultBackoff      = 1 * time.Second
	DefaultRequestDelay = 600 * time.Millisecond
)

// Client provides methods for fetching Solana transaction history.
// It wraps the RPC client with domain-specific operations.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics (e.g., "mainnet", "devnet", rpc host)

	pageSize     int
	maxAttempts  int
	backoff      time.Duration
	requestDelay time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithPageSize sets how many signatures are requested per page (1..1000).
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 && n <= DefaultPageSize {
			c.pageSize = n
		}
	}
}

// WithMaxAttempts sets how many times an RPC call is attempted.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoff sets the base delay of the exponential backoff.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.backoff = d
	}
}

// WithRequestDelay sets the pause before each GetTransaction call.
// Public mainnet: very conservative (1-2 RPS max).
// Helius/Premium: can be reduced to 100-150ms.
func WithRequestDelay(d time.Duration) Option {
	return func(c *Client) {
		c.requestDelay = d
	}
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g., "mainnet", "devnet", or RPC hostname).
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		rpc:          rpcClient,
		logger:       logger,
		metrics:      m,
		endpoint:     endpoint,
		pageSize:     DefaultPageSize,
		maxAttempts:  DefaultMaxAttempts,
		backoff:      DefaultBackoff,
		requestDelay: DefaultRequestDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// History pages through the signatures of one wallet, newest first, and
// resolves each one to a RawTransaction. It is consumable once.
type History struct {
	client  *Client
	wallet  solana.PublicKey
	limit   int
	before  solana.Signature
	fetched int
	done    bool
}

// History returns a History for wallet. A limit of zero means unlimited.
func (c *Client) History(wallet solana.PublicKey, limit int) *History {
	if limit < 0 {
		limit = 0
	}
	return &History{
		client: c,
		wallet: wallet,
		limit:  limit,
	}
}

// Fetched returns how many raw transactions have been produced so far.
func (h *History) Fetched() int {
	return h.fetched
}

// NextBatch returns the next page of transactions in the order the node
// reports them. It returns ErrEndOfHistory when nothing is left, and a
// *FetchError when the node keeps failing.
func (h *History) NextBatch(ctx context.Context) ([]*RawTransaction, error) {
	if h.done {
		return nil, ErrEndOfHistory
	}

	c := h.client
	pageSize := c.pageSize
	if h.limit > 0 {
		remaining := h.limit - h.fetched
		if remaining <= 0 {
			h.done = true
			c.logger.InfoContext(ctx, "operation limit reached",
				"wallet", h.wallet.String(),
				"limit", h.limit,
			)
			return nil, ErrEndOfHistory
		}
		pageSize = min(pageSize, remaining)
	}

	var before *solana.Signature
	if !h.before.IsZero() {
		before = &h.before
	}

	signatures, err := c.getSignatures(ctx, h.wallet, before, pageSize)
	if err != nil {
		return nil, err
	}

	if len(signatures) == 0 {
		h.done = true
		return nil, ErrEndOfHistory
	}
	if len(signatures) < pageSize {
		// A short page is the last one.
		h.done = true
	}
	h.before = signatures[len(signatures)-1].Signature

	transactions := make([]*RawTransaction, 0, len(signatures))
	for _, sig := range signatures {
		if c.requestDelay > 0 {
			if err := sleepContext(ctx, c.requestDelay); err != nil {
				return nil, err
			}
		}

		result, err := c.getTransaction(ctx, sig.Signature)
		if err != nil && !errors.Is(err, rpc.ErrNotFound) {
			return nil, err
		}

		txn, err := parseTransactionFromResult(sig, result)
		if err != nil {
			c.logger.WarnContext(ctx, "failed to decode transaction, passing it on as undecodable",
				"signature", sig.Signature.String(),
				"error", err,
			)
			c.metrics.RecordTransactionParsed(h.wallet.String(), "error")
			txn = signatureToDomain(sig)
			txn.DecodeErr = err
		} else {
			c.metrics.RecordTransactionParsed(h.wallet.String(), "success")
		}

		transactions = append(transactions, txn)
	}

	h.fetched += len(transactions)
	c.metrics.RecordTransactionsFetched(h.wallet.String(), len(transactions))

	c.logger.InfoContext(ctx, "fetched transaction page",
		"wallet", h.wallet.String(),
		"count", len(transactions),
		"total", h.fetched,
	)

	return transactions, nil
}

// getSignatures fetches one page of signatures with retries.
func (c *Client) getSignatures(
	ctx context.Context,
	wallet solana.PublicKey,
	before *solana.Signature,
	limit int,
) ([]*rpc.TransactionSignature, error) {
	opts := &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	}
	if before != nil {
		opts.Before = *before
	}

	c.logger.DebugContext(ctx, "calling GetSignaturesForAddress",
		"wallet", wallet.String(),
		"limit", limit,
		"before", before,
	)

	var signatures []*rpc.TransactionSignature
	err := c.withRetry(ctx, "GetSignaturesForAddress", wallet.String(), func() error {
		start := time.Now()
		out, err := c.rpc.GetSignaturesForAddress(ctx, wallet, opts)
		c.recordCall("GetSignaturesForAddress", err, time.Since(start))
		if err != nil {
			return err
		}
		signatures = out
		return nil
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get signatures",
			"wallet", wallet.String(),
			"error", err,
		)
		return nil, err
	}

	c.metrics.RecordRPCSignaturesPerCall(c.endpoint, float64(len(signatures)))
	c.logger.DebugContext(ctx, "fetched transaction signatures",
		"wallet", wallet.String(),
		"count", len(signatures),
	)
	return signatures, nil
}

// getTransaction fetches a full transaction with retries. Versioned
// transactions are requested first; on a decode mismatch the call is
// repeated immediately as legacy.
func (c *Client) getTransaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	var result *rpc.GetTransactionResult
	err := c.withRetry(ctx, "GetTransaction", sig.String(), func() error {
		txnOpts := &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &[]uint64{0}[0],
		}
		start := time.Now()
		out, err := c.rpc.GetTransaction(ctx, sig, txnOpts)
		c.recordCall("GetTransaction", err, time.Since(start))

		if err != nil && strings.Contains(err.Error(), "expects '\"' or 'n', but found '{'") {
			c.logger.WarnContext(ctx, "could not parse as versioned tx, retrying as legacy",
				"signature", sig.String(),
			)
			c.metrics.RecordRPCRetry("GetTransaction", "parse_error")

			legacyOpts := &rpc.GetTransactionOpts{
				Encoding:   solana.EncodingBase64,
				Commitment: rpc.CommitmentConfirmed,
			}
			legacyStart := time.Now()
			out, err = c.rpc.GetTransaction(ctx, sig, legacyOpts)
			c.recordCall("GetTransaction", err, time.Since(legacyStart))
		}
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	return result, err
}

// withRetry runs fn until it succeeds, the context ends, or maxAttempts is
// reached. Backoff doubles per attempt; rate limits (429) back off twice as long.
// rpc.ErrNotFound is returned immediately: retrying will not make a pruned
// transaction appear.
func (c *Client) withRetry(ctx context.Context, method, subject string, fn func() error) error {
	var err error
	for attempt := range c.maxAttempts {
		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, rpc.ErrNotFound) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if attempt == c.maxAttempts-1 {
			break
		}

		backoff := c.backoff << uint(attempt) // 1s, 2s, 4s, ...
		reason := "timeout_or_error"
		if strings.Contains(err.Error(), "429") {
			backoff = c.backoff << uint(attempt+1) // 2s, 4s, 8s, ...
			reason = "rate_limit"
			c.metrics.RecordRateLimitHit(c.endpoint)
		}
		c.metrics.RecordRPCRetry(method, reason)

		c.logger.WarnContext(ctx, "rpc call failed, sleeping before retry",
			"method", method,
			"subject", subject,
			"attempt", attempt+1,
			"error", err,
			"backoff_seconds", backoff.Seconds(),
		)
		if err := sleepContext(ctx, backoff); err != nil {
			return err
		}
	}

	return &FetchError{
		Method:   method,
		Attempts: c.maxAttempts,
		Err:      err,
	}
}

func (c *Client) recordCall(method string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, d.Seconds())
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
