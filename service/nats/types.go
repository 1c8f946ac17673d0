package nats

import (
	"time"

	"github.com/brojonat/solexport/service/classifier"
	"github.com/shopspring/decimal"
)

// TransferEvent is a classified transaction published to NATS.
// This is published to the subject "transfers.{wallet_address}" in JetStream.
type TransferEvent struct {
	// Transaction identifiers
	Signature string `json:"signature"`
	Variant   string `json:"variant"`

	// WalletAddress is the exported wallet, not necessarily a party to the transfer.
	WalletAddress string `json:"wallet_address"`

	Source           string          `json:"source,omitempty"`
	Destination      string          `json:"destination,omitempty"`
	SentAmount       decimal.Decimal `json:"sent_amount"`
	SentCurrency     string          `json:"sent_currency,omitempty"`
	ReceivedAmount   decimal.Decimal `json:"received_amount"`
	ReceivedCurrency string          `json:"received_currency,omitempty"`
	FeeAmount        decimal.Decimal `json:"fee_amount"`
	FeeCurrency      string          `json:"fee_currency"`

	// Timing information
	BlockTime time.Time `json:"block_time"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// FromRecord converts a transfer record to a TransferEvent for publishing.
func FromRecord(wallet string, rec *classifier.TransferRecord) *TransferEvent {
	return &TransferEvent{
		Signature:        rec.TxHash,
		Variant:          rec.Variant.String(),
		WalletAddress:    wallet,
		Source:           rec.Source,
		Destination:      rec.Destination,
		SentAmount:       rec.SentAmount,
		SentCurrency:     rec.SentCurrency,
		ReceivedAmount:   rec.ReceivedAmount,
		ReceivedCurrency: rec.ReceivedCurrency,
		FeeAmount:        rec.FeeAmount,
		FeeCurrency:      rec.FeeCurrency,
		BlockTime:        rec.Timestamp,
		PublishedAt:      time.Now().UTC(),
	}
}
