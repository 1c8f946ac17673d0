package db

import (
	"context"
	"fmt"
	"time"

	"github.com/brojonat/solexport/service/classifier"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// schema is applied by EnsureSchema. Amounts are NUMERIC so no precision is
// lost; they travel as text between Go and Postgres.
const schema = `
CREATE TABLE IF NOT EXISTS transfer_records (
    wallet_address    TEXT        NOT NULL,
    tx_hash           TEXT        NOT NULL,
    variant           TEXT        NOT NULL,
    block_time        TIMESTAMPTZ,
    source            TEXT,
    destination       TEXT,
    sent_amount       NUMERIC     NOT NULL,
    sent_currency     TEXT,
    received_amount   NUMERIC     NOT NULL,
    received_currency TEXT,
    fee_amount        NUMERIC     NOT NULL,
    fee_currency      TEXT        NOT NULL,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (wallet_address, tx_hash)
);
CREATE INDEX IF NOT EXISTS idx_transfer_records_block_time
    ON transfer_records (wallet_address, block_time DESC);
`

// Store provides database operations for exported transfer records.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool for databaseURL and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the transfer_records table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// TransferRecord is a stored transfer record.
type TransferRecord struct {
	WalletAddress    string
	TxHash           string
	Variant          string
	BlockTime        *time.Time // nil if the node did not report a block time
	Source           *string
	Destination      *string
	SentAmount       decimal.Decimal
	SentCurrency     *string
	ReceivedAmount   decimal.Decimal
	ReceivedCurrency *string
	FeeAmount        decimal.Decimal
	FeeCurrency      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// UpsertTransferRecordParams contains the parameters for storing a record.
type UpsertTransferRecordParams struct {
	WalletAddress string
	Record        *classifier.TransferRecord
}

const upsertTransferRecord = `
INSERT INTO transfer_records (
    wallet_address, tx_hash, variant, block_time, source, destination,
    sent_amount, sent_currency, received_amount, received_currency,
    fee_amount, fee_currency
) VALUES (
    $1, $2, $3, $4, $5, $6,
    $7::numeric, $8, $9::numeric, $10,
    $11::numeric, $12
)
ON CONFLICT (wallet_address, tx_hash) DO UPDATE SET
    variant           = EXCLUDED.variant,
    block_time        = EXCLUDED.block_time,
    source            = EXCLUDED.source,
    destination       = EXCLUDED.destination,
    sent_amount       = EXCLUDED.sent_amount,
    sent_currency     = EXCLUDED.sent_currency,
    received_amount   = EXCLUDED.received_amount,
    received_currency = EXCLUDED.received_currency,
    fee_amount        = EXCLUDED.fee_amount,
    fee_currency      = EXCLUDED.fee_currency,
    updated_at        = NOW()
RETURNING ` + transferRecordColumns

const transferRecordColumns = `
    wallet_address, tx_hash, variant, block_time, source, destination,
    sent_amount::text, sent_currency, received_amount::text, received_currency,
    fee_amount::text, fee_currency, created_at, updated_at`

// UpsertTransferRecord inserts a record, or replaces the stored one for the
// same wallet and transaction.
func (s *Store) UpsertTransferRecord(ctx context.Context, params UpsertTransferRecordParams) (*TransferRecord, error) {
	rec := params.Record
	var blockTime pgtype.Timestamptz
	if !rec.Timestamp.IsZero() {
		blockTime = pgtype.Timestamptz{Time: rec.Timestamp, Valid: true}
	}

	row := s.pool.QueryRow(ctx, upsertTransferRecord,
		params.WalletAddress,
		rec.TxHash,
		rec.Variant.String(),
		blockTime,
		pgtextFromString(rec.Source),
		pgtextFromString(rec.Destination),
		rec.SentAmount.String(),
		pgtextFromString(rec.SentCurrency),
		rec.ReceivedAmount.String(),
		pgtextFromString(rec.ReceivedCurrency),
		rec.FeeAmount.String(),
		rec.FeeCurrency,
	)
	stored, err := scanTransferRecord(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert transfer record %s: %w", rec.TxHash, err)
	}
	return stored, nil
}

// GetTransferRecord retrieves one record. It returns pgx.ErrNoRows when absent.
func (s *Store) GetTransferRecord(ctx context.Context, walletAddress, txHash string) (*TransferRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+transferRecordColumns+` FROM transfer_records WHERE wallet_address = $1 AND tx_hash = $2`,
		walletAddress, txHash,
	)
	return scanTransferRecord(row)
}

// ListTransferRecordsParams contains pagination parameters.
type ListTransferRecordsParams struct {
	WalletAddress string
	Limit         int32
	Offset        int32
}

// ListTransferRecords returns the records of a wallet, most recent first.
func (s *Store) ListTransferRecords(ctx context.Context, params ListTransferRecordsParams) ([]*TransferRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transferRecordColumns+`
		 FROM transfer_records
		 WHERE wallet_address = $1
		 ORDER BY block_time DESC NULLS LAST, tx_hash
		 LIMIT $2 OFFSET $3`,
		params.WalletAddress, params.Limit, params.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfer records: %w", err)
	}
	defer rows.Close()

	var records []*TransferRecord
	for rows.Next() {
		rec, err := scanTransferRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list transfer records: %w", err)
	}
	return records, nil
}

// CountTransferRecords returns how many records are stored for a wallet.
func (s *Store) CountTransferRecords(ctx context.Context, walletAddress string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM transfer_records WHERE wallet_address = $1`,
		walletAddress,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count transfer records: %w", err)
	}
	return n, nil
}

// RecordSink stores every record it receives for one wallet.
type RecordSink struct {
	store  *Store
	wallet string
}

// NewRecordSink creates a sink writing records of wallet to store.
func NewRecordSink(store *Store, wallet string) *RecordSink {
	return &RecordSink{store: store, wallet: wallet}
}

// Name identifies the sink in logs and metrics.
func (s *RecordSink) Name() string {
	return "postgres"
}

// Write upserts rec.
func (s *RecordSink) Write(ctx context.Context, rec *classifier.TransferRecord) error {
	_, err := s.store.UpsertTransferRecord(ctx, UpsertTransferRecordParams{
		WalletAddress: s.wallet,
		Record:        rec,
	})
	return err
}

func scanTransferRecord(row pgx.Row) (*TransferRecord, error) {
	var (
		rec                          TransferRecord
		blockTime                    pgtype.Timestamptz
		source, destination          pgtype.Text
		sentCurrency, recvCurrency   pgtype.Text
		sentAmount, recvAmount, fees string
	)
	err := row.Scan(
		&rec.WalletAddress,
		&rec.TxHash,
		&rec.Variant,
		&blockTime,
		&source,
		&destination,
		&sentAmount,
		&sentCurrency,
		&recvAmount,
		&recvCurrency,
		&fees,
		&rec.FeeCurrency,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if rec.SentAmount, err = decimal.NewFromString(sentAmount); err != nil {
		return nil, fmt.Errorf("invalid sent_amount %q: %w", sentAmount, err)
	}
	if rec.ReceivedAmount, err = decimal.NewFromString(recvAmount); err != nil {
		return nil, fmt.Errorf("invalid received_amount %q: %w", recvAmount, err)
	}
	if rec.FeeAmount, err = decimal.NewFromString(fees); err != nil {
		return nil, fmt.Errorf("invalid fee_amount %q: %w", fees, err)
	}

	rec.BlockTime = timePtrFromPgTimestamptz(blockTime)
	rec.Source = stringPtrFromPgtext(source)
	rec.Destination = stringPtrFromPgtext(destination)
	rec.SentCurrency = stringPtrFromPgtext(sentCurrency)
	rec.ReceivedCurrency = stringPtrFromPgtext(recvCurrency)
	return &rec, nil
}

// pgtextFromString maps the empty string to NULL.
func pgtextFromString(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func timePtrFromPgTimestamptz(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
