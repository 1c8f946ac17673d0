package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/brojonat/solexport/service/classifier"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

func testRecord() *classifier.TransferRecord {
	return &classifier.TransferRecord{
		Timestamp:        time.Date(2024, 3, 9, 16, 4, 5, 0, time.UTC),
		TxHash:           "sig-1",
		Source:           wallet,
		Destination:      "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T",
		SentAmount:       decimal.RequireFromString("1.5"),
		SentCurrency:     "SOL",
		ReceivedAmount:   decimal.RequireFromString("1.5"),
		ReceivedCurrency: "SOL",
		FeeAmount:        decimal.RequireFromString("0.000005"),
		FeeCurrency:      "SOL",
		Variant:          classifier.NativeTransfer,
	}
}

func TestFromRecord(t *testing.T) {
	rec := testRecord()

	event := FromRecord(wallet, rec)

	assert.Equal(t, "sig-1", event.Signature)
	assert.Equal(t, "native_transfer", event.Variant)
	assert.Equal(t, wallet, event.WalletAddress)
	assert.Equal(t, rec.Source, event.Source)
	assert.Equal(t, rec.Destination, event.Destination)
	assert.True(t, rec.SentAmount.Equal(event.SentAmount))
	assert.Equal(t, rec.Timestamp, event.BlockTime)
	assert.False(t, event.PublishedAt.IsZero())
}

func TestTransferEvent_JSONAmountsAreStrings(t *testing.T) {
	data, err := json.Marshal(FromRecord(wallet, testRecord()))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "1.5", decoded["sent_amount"])
	assert.Equal(t, "0.000005", decoded["fee_amount"])
	assert.Equal(t, "SOL", decoded["fee_currency"])
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "transfers."+wallet, Subject(wallet))
}

func TestRecordSink_Write(t *testing.T) {
	mock := NewMockPublisher()
	sink := NewRecordSink(mock, wallet)

	require.NoError(t, sink.Write(context.Background(), testRecord()))

	events := mock.GetPublishedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, wallet, events[0].WalletAddress)
	assert.Equal(t, "sig-1", events[0].Signature)
	assert.Equal(t, "nats", sink.Name())
}

func TestRecordSink_PublishError(t *testing.T) {
	mock := NewMockPublisher()
	mock.SetPublishError(errors.New("no responders"))
	sink := NewRecordSink(mock, wallet)

	err := sink.Write(context.Background(), testRecord())
	assert.Error(t, err)
	assert.Equal(t, 0, mock.GetPublishedEventCount())
}
