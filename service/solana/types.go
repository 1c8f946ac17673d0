package solana

import (
	"time"
)

// RawTransaction is a decoded Solana transaction with its balance snapshots.
// This is our domain model, independent of the RPC response format.
type RawTransaction struct {
	Signature string
	Slot      uint64
	BlockTime time.Time // zero if the node did not report a block time
	Fee       uint64    // lamports, charged to AccountKeys[0]
	Err       *string   // nil if transaction succeeded, contains error message if failed

	// AccountKeys holds the static keys followed by the loaded writable and
	// loaded readonly addresses of a v0 transaction.
	AccountKeys  []string
	PreBalances  []uint64
	PostBalances []uint64

	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance

	// Instructions are the outer and inner instructions in execution order.
	Instructions []Instruction

	// DecodeErr is set when the payload could not be turned into a usable
	// transaction. Everything except Signature and BlockTime may be empty.
	DecodeErr error
}

// TokenBalance is one SPL token account snapshot.
type TokenBalance struct {
	AccountIndex int
	Owner        string // empty if the node did not report an owner
	Mint         string
	Amount       string // raw integer amount, not scaled by decimals
	Decimals     uint8
}

// Instruction is a compiled instruction with its program resolved.
type Instruction struct {
	ProgramID string
	Accounts  []int // indexes into RawTransaction.AccountKeys
	Data      []byte
	Inner     bool
}

// FeePayer returns the account that paid the transaction fee.
func (t *RawTransaction) FeePayer() string {
	if len(t.AccountKeys) == 0 {
		return ""
	}
	return t.AccountKeys[0]
}
