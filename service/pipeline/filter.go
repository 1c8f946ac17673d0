package pipeline

import (
	"fmt"

	"github.com/brojonat/solexport/service/classifier"
	"github.com/itchyny/gojq"
)

// JQFilter keeps records for which a jq expression evaluates truthy.
//
// The expression sees one object per record:
//
//	{"date", "tx_hash", "source", "destination",
//	 "sent_amount", "sent_currency", "received_amount", "received_currency",
//	 "fee_amount", "fee_currency", "variant"}
//
// Amounts are numbers, so `.sent_amount > 10` works as expected.
type JQFilter struct {
	expr string
	code *gojq.Code
}

// NewJQFilter parses and compiles expr.
func NewJQFilter(expr string) (*JQFilter, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
	}
	return &JQFilter{expr: expr, code: code}, nil
}

// String returns the source expression.
func (f *JQFilter) String() string {
	return f.expr
}

// Match evaluates the filter against rec. Only the first output counts.
// An expression that produces no output does not match.
func (f *JQFilter) Match(rec *classifier.TransferRecord) (bool, error) {
	iter := f.code.Run(recordToJQ(rec))
	v, ok := iter.Next()
	if !ok {
		return false, nil
	}
	if err, isErr := v.(error); isErr {
		return false, fmt.Errorf("jq filter %q: %w", f.expr, err)
	}
	return isTruthy(v), nil
}

func recordToJQ(rec *classifier.TransferRecord) map[string]any {
	return map[string]any{
		"date":              rec.Date(),
		"tx_hash":           rec.TxHash,
		"source":            rec.Source,
		"destination":       rec.Destination,
		"sent_amount":       rec.SentAmount.InexactFloat64(),
		"sent_currency":     rec.SentCurrency,
		"received_amount":   rec.ReceivedAmount.InexactFloat64(),
		"received_currency": rec.ReceivedCurrency,
		"fee_amount":        rec.FeeAmount.InexactFloat64(),
		"fee_currency":      rec.FeeCurrency,
		"variant":           rec.Variant.String(),
	}
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v any) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}
