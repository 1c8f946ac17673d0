package classifier

import (
	"time"

	"github.com/shopspring/decimal"
)

// NativeCurrency is the symbol used for SOL deltas and for every fee.
const NativeCurrency = "SOL"

// DateLayout renders block timestamps in UTC.
const DateLayout = "2006-01-02 15:04:05"

// Variant is the shape of a classified transaction.
type Variant int

const (
	// Malformed transactions lack data needed for classification. They are
	// reported through ErrMalformedTransaction and never produce a record.
	Malformed Variant = iota
	// FeeOnly transactions move nothing but the fee.
	FeeOnly
	// NativeTransfer transactions move only SOL.
	NativeTransfer
	// TokenTransfer transactions move a single token mint through plumbing
	// programs only (System, SPL Token, ATA, Compute Budget, Memo).
	TokenTransfer
	// MultiParty covers everything else: swaps, several mints, foreign programs.
	MultiParty
)

func (v Variant) String() string {
	switch v {
	case Malformed:
		return "malformed"
	case FeeOnly:
		return "fee_only"
	case NativeTransfer:
		return "native_transfer"
	case TokenTransfer:
		return "token_transfer"
	case MultiParty:
		return "multi_party"
	default:
		return "unknown"
	}
}

// MarshalText lets the variant appear by name in JSON.
func (v Variant) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// TransferRecord is the normalized view of one transaction.
// Amounts are magnitudes; the role (sent or received) carries the sign.
type TransferRecord struct {
	Timestamp        time.Time       `json:"timestamp"`
	TxHash           string          `json:"tx_hash"`
	Source           string          `json:"source"`
	Destination      string          `json:"destination"`
	SentAmount       decimal.Decimal `json:"sent_amount"`
	SentCurrency     string          `json:"sent_currency"`
	ReceivedAmount   decimal.Decimal `json:"received_amount"`
	ReceivedCurrency string          `json:"received_currency"`
	FeeAmount        decimal.Decimal `json:"fee_amount"`
	FeeCurrency      string          `json:"fee_currency"`
	Variant          Variant         `json:"variant"`
}

// Date renders the block timestamp. A missing timestamp renders as the Unix epoch.
func (r *TransferRecord) Date() string {
	if r.Timestamp.IsZero() {
		return time.Unix(0, 0).UTC().Format(DateLayout)
	}
	return r.Timestamp.UTC().Format(DateLayout)
}
