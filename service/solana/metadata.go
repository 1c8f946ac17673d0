package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brojonat/solexport/service/metrics"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// ErrMetadataNotFound is returned when a mint has no usable Metaplex metadata.
var ErrMetadataNotFound = errors.New("token metadata not found")

// Well-known mainnet mints that resolve without an RPC round trip.
var knownMints = map[string]string{
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": "USDC",
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": "USDT",
	solana.SolMint.String():                        "wSOL",
}

// metadataV1Key is the account discriminator of a Metaplex MetadataV1 account.
const metadataV1Key = 4

// MetadataResolver resolves token mints to their symbols.
// Lookups are not cached; every call goes to the known-mint table and then the node.
type MetadataResolver struct {
	rpc     RPCClient
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewMetadataResolver creates a resolver backed by rpcClient.
func NewMetadataResolver(rpcClient RPCClient, m *metrics.Metrics, logger *slog.Logger) *MetadataResolver {
	return &MetadataResolver{
		rpc:     rpcClient,
		logger:  logger,
		metrics: m,
	}
}

// ResolveSymbol returns the symbol of mint.
func (r *MetadataResolver) ResolveSymbol(ctx context.Context, mint string) (string, error) {
	if symbol, ok := knownMints[mint]; ok {
		r.metrics.RecordMetadataLookup("static", "success")
		return symbol, nil
	}

	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		r.metrics.RecordMetadataLookup("rpc", "error")
		return "", fmt.Errorf("invalid mint %q: %w", mint, err)
	}

	pda, _, err := solana.FindTokenMetadataAddress(mintKey)
	if err != nil {
		r.metrics.RecordMetadataLookup("rpc", "error")
		return "", fmt.Errorf("failed to derive metadata address for %s: %w", mint, err)
	}

	account, err := r.rpc.GetAccountInfo(ctx, pda)
	if err != nil {
		r.metrics.RecordMetadataLookup("rpc", "error")
		return "", fmt.Errorf("failed to fetch metadata account %s: %w", pda, err)
	}

	symbol, err := parseMetaplexSymbol(account.GetBinary())
	if err != nil {
		r.metrics.RecordMetadataLookup("rpc", "not_found")
		return "", fmt.Errorf("mint %s: %w", mint, err)
	}

	r.metrics.RecordMetadataLookup("rpc", "success")
	r.logger.DebugContext(ctx, "resolved token symbol",
		"mint", mint,
		"symbol", symbol,
	)
	return symbol, nil
}

// parseMetaplexSymbol extracts the symbol from Metaplex Token Metadata account data.
// Layout:
// - key: u8 (4 for MetadataV1)
// - updateAuthority: Pubkey (32 bytes)
// - mint: Pubkey (32 bytes)
// - name: borsh string (u32 length + bytes, NUL padded to 32)
// - symbol: borsh string (u32 length + bytes, NUL padded to 10)
// ...and more fields
func parseMetaplexSymbol(data []byte) (string, error) {
	if len(data) < 65 || data[0] != metadataV1Key {
		return "", ErrMetadataNotFound
	}

	dec := bin.NewBorshDecoder(data)
	// Skip: key(1) + updateAuthority(32) + mint(32) = 65 bytes
	if err := dec.SkipBytes(65); err != nil {
		return "", ErrMetadataNotFound
	}

	name, err := dec.ReadString()
	if err != nil || len(name) > 100 {
		return "", ErrMetadataNotFound
	}

	symbol, err := dec.ReadString()
	if err != nil || len(symbol) > 20 {
		return "", ErrMetadataNotFound
	}
	symbol = strings.TrimSpace(strings.TrimRight(symbol, "\x00"))
	if symbol == "" {
		return "", ErrMetadataNotFound
	}
	return symbol, nil
}
