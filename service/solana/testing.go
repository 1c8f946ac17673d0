package solana

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
)

// NewTransactionResult builds the GetTransaction response the node would
// return for tx with meta, encoded as base64 like a real call.
// It is meant for tests in this and other packages.
func NewTransactionResult(tx *solana.Transaction, meta *rpc.TransactionMeta, slot uint64, blockTime time.Time) (*rpc.GetTransactionResult, error) {
	if tx.Message.Header.NumRequiredSignatures == 0 {
		tx.Message.Header.NumRequiredSignatures = 1
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	// The envelope only decodes from JSON, so go through the wire format.
	wire, err := json.Marshal([]string{base64.StdEncoding.EncodeToString(raw), "base64"})
	if err != nil {
		return nil, err
	}
	envelope := new(rpc.TransactionResultEnvelope)
	if err := envelope.UnmarshalJSON(wire); err != nil {
		return nil, fmt.Errorf("failed to build envelope: %w", err)
	}

	result := &rpc.GetTransactionResult{
		Slot:        slot,
		Transaction: envelope,
		Meta:        meta,
	}
	if !blockTime.IsZero() {
		bt := solana.UnixTimeSeconds(blockTime.Unix())
		result.BlockTime = &bt
	}
	return result, nil
}

// NewNativeTransferResult builds a successful System Program transfer of
// lamports from one account to another, with from paying fee.
func NewNativeTransferResult(from, to solana.PublicKey, lamports, fee uint64, blockTime time.Time) (*rpc.GetTransactionResult, error) {
	ix := system.NewTransferInstruction(lamports, from, to).Build()
	data, err := ix.Data()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transfer: %w", err)
	}

	tx := &solana.Transaction{
		Message: solana.Message{
			Header: solana.MessageHeader{
				NumRequiredSignatures:       1,
				NumReadonlyUnsignedAccounts: 1,
			},
			AccountKeys: solana.PublicKeySlice{from, to, solana.SystemProgramID},
			Instructions: []solana.CompiledInstruction{
				{ProgramIDIndex: 2, Accounts: []uint16{0, 1}, Data: data},
			},
		},
	}

	start := 10 * solana.LAMPORTS_PER_SOL
	meta := &rpc.TransactionMeta{
		Fee:          fee,
		PreBalances:  []uint64{start, 0, 1},
		PostBalances: []uint64{start - lamports - fee, lamports, 1},
	}
	return NewTransactionResult(tx, meta, 1, blockTime)
}
