// Package classifier turns raw Solana transactions into normalized transfer records.
//
// Classification is a pure function of the transaction, the queried address
// and the injected SymbolResolver. Nothing is remembered between calls, so
// callers may classify transactions concurrently.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brojonat/solexport/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// ErrMalformedTransaction is returned when a transaction lacks the data
// classification needs. The caller should skip it and continue.
var ErrMalformedTransaction = errors.New("malformed transaction")

// SymbolResolver resolves a token mint to a human-readable symbol.
type SymbolResolver interface {
	ResolveSymbol(ctx context.Context, mint string) (string, error)
}

// SymbolResolverFunc adapts a function to SymbolResolver.
type SymbolResolverFunc func(ctx context.Context, mint string) (string, error)

// ResolveSymbol calls f.
func (f SymbolResolverFunc) ResolveSymbol(ctx context.Context, mint string) (string, error) {
	return f(ctx, mint)
}

// legacyMemoProgramID is the v1 memo program, not exported by solana-go.
const legacyMemoProgramID = "Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo"

// plumbingPrograms move or prepare balances without trading them.
var plumbingPrograms = map[string]struct{}{
	solanago.SystemProgramID.String():                    {},
	solanago.TokenProgramID.String():                     {},
	solanago.Token2022ProgramID.String():                 {},
	solanago.SPLAssociatedTokenAccountProgramID.String(): {},
	solanago.ComputeBudget.String():                      {},
	solanago.MemoProgramID.String():                      {},
	legacyMemoProgramID:                                  {},
}

// Classifier maps raw transactions to TransferRecords.
type Classifier struct {
	symbols SymbolResolver
	logger  *slog.Logger
}

// New creates a Classifier. A nil resolver labels tokens by mint address.
func New(symbols SymbolResolver, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		symbols: symbols,
		logger:  logger,
	}
}

// Classify builds the TransferRecord for raw as seen from subject.
// It returns (nil, nil) for a transaction that moved nothing and charged no
// fee, and an error wrapping ErrMalformedTransaction when raw is unusable.
//
// Multi-party transactions are reported globally: the largest outflow and
// inflow win regardless of who owns them. subject only breaks ties.
func (c *Classifier) Classify(ctx context.Context, raw *solana.RawTransaction, subject string) (*TransferRecord, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: nil transaction", ErrMalformedTransaction)
	}
	if raw.DecodeErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedTransaction, raw.Signature, raw.DecodeErr)
	}
	if err := validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedTransaction, raw.Signature, err)
	}

	deltas, err := computeDeltas(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedTransaction, raw.Signature, err)
	}

	variant := variantOf(raw, deltas)

	rec := &TransferRecord{
		Timestamp:      raw.BlockTime,
		TxHash:         raw.Signature,
		SentAmount:     decimal.Zero,
		ReceivedAmount: decimal.Zero,
		FeeAmount:      LamportsToSOL(raw.Fee),
		FeeCurrency:    NativeCurrency,
		Variant:        variant,
	}

	var candidates []BalanceDelta
	switch variant {
	case FeeOnly:
		if raw.Fee == 0 {
			return nil, nil
		}
		rec.Source = raw.FeePayer()
		return rec, nil
	case NativeTransfer, MultiParty:
		candidates = deltas
	case TokenTransfer:
		// Rent paid to open a token account is not the transfer.
		candidates = make([]BalanceDelta, 0, len(deltas))
		for _, d := range deltas {
			if !d.IsNative() {
				candidates = append(candidates, d)
			}
		}
	case Malformed:
		return nil, fmt.Errorf("%w: %s", ErrMalformedTransaction, raw.Signature)
	default:
		return nil, fmt.Errorf("unhandled variant %v", variant)
	}

	if out, ok := dominant(candidates, -1, subject); ok {
		rec.Source = out.Account
		rec.SentAmount = out.Amount.Abs()
		rec.SentCurrency = c.currencyLabel(ctx, out.Currency)
	}
	if in, ok := dominant(candidates, 1, subject); ok {
		rec.Destination = in.Account
		rec.ReceivedAmount = in.Amount
		rec.ReceivedCurrency = c.currencyLabel(ctx, in.Currency)
	}

	return rec, nil
}

// variantOf picks the transaction shape from its deltas and outer programs.
func variantOf(raw *solana.RawTransaction, deltas []BalanceDelta) Variant {
	if len(deltas) == 0 {
		return FeeOnly
	}

	mints := make(map[string]struct{})
	for _, d := range deltas {
		if !d.IsNative() {
			mints[d.Currency] = struct{}{}
		}
	}

	switch {
	case len(mints) == 0:
		return NativeTransfer
	case len(mints) == 1 && onlyPlumbing(raw.Instructions):
		return TokenTransfer
	default:
		return MultiParty
	}
}

func onlyPlumbing(instructions []solana.Instruction) bool {
	for _, ix := range instructions {
		if ix.Inner {
			continue
		}
		if _, ok := plumbingPrograms[ix.ProgramID]; !ok {
			return false
		}
	}
	return true
}

// dominant returns the delta with the largest magnitude whose sign matches
// sign (-1 outflow, 1 inflow).
func dominant(deltas []BalanceDelta, sign int, subject string) (BalanceDelta, bool) {
	var best BalanceDelta
	found := false
	for _, d := range deltas {
		if d.Amount.Sign() != sign {
			continue
		}
		if !found || outranks(d, best, subject) {
			best = d
			found = true
		}
	}
	return best, found
}

// outranks orders candidates: larger magnitude, then the subject's own
// account, then the smaller account, then SOL before tokens, then the smaller mint.
func outranks(a, b BalanceDelta, subject string) bool {
	if c := a.Amount.Abs().Cmp(b.Amount.Abs()); c != 0 {
		return c > 0
	}
	if (a.Account == subject) != (b.Account == subject) {
		return a.Account == subject
	}
	if a.Account != b.Account {
		return a.Account < b.Account
	}
	if a.IsNative() != b.IsNative() {
		return a.IsNative()
	}
	return a.Currency < b.Currency
}

// currencyLabel resolves a currency identifier to a symbol, falling back to
// the identifier itself.
func (c *Classifier) currencyLabel(ctx context.Context, currency string) string {
	if currency == NativeCurrency || c.symbols == nil {
		return currency
	}
	symbol, err := c.symbols.ResolveSymbol(ctx, currency)
	if err != nil || symbol == "" {
		c.logger.DebugContext(ctx, "token symbol unavailable, using mint",
			"mint", currency,
			"error", err,
		)
		return currency
	}
	return symbol
}
