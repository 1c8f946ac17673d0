package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/brojonat/solexport/service/classifier"
	"github.com/shopspring/decimal"
)

// DefaultFileName is the output file used when none is configured.
const DefaultFileName = "transactions.csv"

// ErrOutputWrite wraps every failure to create or write the output file.
var ErrOutputWrite = errors.New("output write failed")

// Header is the fixed column layout of the output file.
var Header = []string{
	"Date",
	"Tx Hash",
	"Source",
	"Destination",
	"Sent Amount",
	"Sent Currency",
	"Received Amount",
	"Received Currency",
	"Fee Amount",
	"Fee Currency",
}

// CSVWriter writes transfer records to a CSV file, one row per record.
// Each row is flushed as soon as it is written.
type CSVWriter struct {
	path string
	f    *os.File
	w    *csv.Writer
	rows int
}

// NewCSVWriter creates (or truncates) path and writes the header row.
func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrOutputWrite, path, err)
	}
	cw := &CSVWriter{
		path: path,
		f:    f,
		w:    csv.NewWriter(f),
	}
	if err := cw.writeRow(Header); err != nil {
		f.Close()
		return nil, err
	}
	return cw, nil
}

// Name identifies the sink in logs and metrics.
func (cw *CSVWriter) Name() string {
	return "csv"
}

// Rows returns the number of data rows written.
func (cw *CSVWriter) Rows() int {
	return cw.rows
}

// Write appends one record.
func (cw *CSVWriter) Write(_ context.Context, rec *classifier.TransferRecord) error {
	if err := cw.writeRow(Row(rec)); err != nil {
		return err
	}
	cw.rows++
	return nil
}

// Close flushes and closes the file.
func (cw *CSVWriter) Close() error {
	cw.w.Flush()
	if err := cw.w.Error(); err != nil {
		cw.f.Close()
		return fmt.Errorf("%w: flush %s: %v", ErrOutputWrite, cw.path, err)
	}
	if err := cw.f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrOutputWrite, cw.path, err)
	}
	return nil
}

func (cw *CSVWriter) writeRow(row []string) error {
	if err := cw.w.Write(row); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrOutputWrite, cw.path, err)
	}
	cw.w.Flush()
	if err := cw.w.Error(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrOutputWrite, cw.path, err)
	}
	return nil
}

// Row renders a record in Header order.
func Row(rec *classifier.TransferRecord) []string {
	return []string{
		rec.Date(),
		rec.TxHash,
		rec.Source,
		rec.Destination,
		rec.SentAmount.String(),
		rec.SentCurrency,
		rec.ReceivedAmount.String(),
		rec.ReceivedCurrency,
		rec.FeeAmount.String(),
		rec.FeeCurrency,
	}
}

// ReadRecords parses a file written by CSVWriter. The variant column is not
// stored, so it is left at its zero value.
func ReadRecords(r io.Reader) ([]*classifier.TransferRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i, h := range Header {
		if header[i] != h {
			return nil, fmt.Errorf("unexpected column %d: got %q, want %q", i, header[i], h)
		}
	}

	var records []*classifier.TransferRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(records)+1, err)
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(row []string) (*classifier.TransferRecord, error) {
	ts, err := time.ParseInLocation(classifier.DateLayout, row[0], time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", row[0], err)
	}
	if ts.Equal(time.Unix(0, 0)) {
		ts = time.Time{}
	}

	amounts := make([]decimal.Decimal, 3)
	for i, col := range []int{4, 6, 8} {
		amounts[i], err = decimal.NewFromString(row[col])
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", Header[col], row[col], err)
		}
	}

	return &classifier.TransferRecord{
		Timestamp:        ts,
		TxHash:           row[1],
		Source:           row[2],
		Destination:      row[3],
		SentAmount:       amounts[0],
		SentCurrency:     row[5],
		ReceivedAmount:   amounts[1],
		ReceivedCurrency: row[7],
		FeeAmount:        amounts[2],
		FeeCurrency:      row[9],
	}, nil
}
