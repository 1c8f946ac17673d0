package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// signatureToDomain converts an RPC TransactionSignature to a RawTransaction.
// Note: This only includes metadata from the signature list, not balances.
// For full details, parse the GetTransaction result with parseTransactionFromResult.
func signatureToDomain(sig *rpc.TransactionSignature) *RawTransaction {
	txn := &RawTransaction{
		Signature: sig.Signature.String(),
		Slot:      sig.Slot,
	}

	if sig.BlockTime != nil {
		txn.BlockTime = sig.BlockTime.Time().UTC()
	}

	if sig.Err != nil {
		errMsg := fmt.Sprintf("transaction failed: %v", sig.Err)
		txn.Err = &errMsg
	}

	return txn
}

// parseTransactionFromResult decodes a full GetTransactionResult into a RawTransaction.
// Failed transactions are kept: they still charge a fee.
func parseTransactionFromResult(sig *rpc.TransactionSignature, result *rpc.GetTransactionResult) (*RawTransaction, error) {
	txn := signatureToDomain(sig)

	if result == nil || result.Transaction == nil {
		return nil, fmt.Errorf("transaction payload not available")
	}
	if result.Meta == nil {
		return nil, fmt.Errorf("transaction meta not available")
	}

	if result.BlockTime != nil {
		txn.BlockTime = result.BlockTime.Time().UTC()
	}
	if result.Slot != 0 {
		txn.Slot = result.Slot
	}
	if result.Meta.Err != nil && txn.Err == nil {
		errMsg := fmt.Sprintf("transaction failed: %v", result.Meta.Err)
		txn.Err = &errMsg
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	if tx == nil {
		return nil, fmt.Errorf("failed to decode transaction: empty envelope")
	}

	meta := result.Meta

	// v0 transactions reference extra accounts through lookup tables; the node
	// reports them in meta in the order the runtime appends them.
	keys := make([]solana.PublicKey, 0, len(tx.Message.AccountKeys)+len(meta.LoadedAddresses.Writable)+len(meta.LoadedAddresses.ReadOnly))
	keys = append(keys, tx.Message.AccountKeys...)
	keys = append(keys, meta.LoadedAddresses.Writable...)
	keys = append(keys, meta.LoadedAddresses.ReadOnly...)

	txn.AccountKeys = make([]string, len(keys))
	for i, k := range keys {
		txn.AccountKeys[i] = k.String()
	}

	txn.Fee = meta.Fee
	txn.PreBalances = append([]uint64(nil), meta.PreBalances...)
	txn.PostBalances = append([]uint64(nil), meta.PostBalances...)
	txn.PreTokenBalances = tokenBalancesToDomain(meta.PreTokenBalances)
	txn.PostTokenBalances = tokenBalancesToDomain(meta.PostTokenBalances)

	inner := make(map[uint16][]rpc.CompiledInstruction, len(meta.InnerInstructions))
	for _, ii := range meta.InnerInstructions {
		inner[ii.Index] = append(inner[ii.Index], ii.Instructions...)
	}

	for i, ci := range tx.Message.Instructions {
		ix, err := compiledToDomain(ci.ProgramIDIndex, ci.Accounts, ci.Data, txn.AccountKeys, false)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		txn.Instructions = append(txn.Instructions, ix)

		for j, ici := range inner[uint16(i)] {
			ix, err := compiledToDomain(ici.ProgramIDIndex, ici.Accounts, ici.Data, txn.AccountKeys, true)
			if err != nil {
				return nil, fmt.Errorf("inner instruction %d.%d: %w", i, j, err)
			}
			txn.Instructions = append(txn.Instructions, ix)
		}
	}

	return txn, nil
}

// compiledToDomain resolves the program of a compiled instruction. Account
// indexes are copied as-is; their validity is checked during classification.
func compiledToDomain(programIdx uint16, accounts []uint16, data []byte, keys []string, inner bool) (Instruction, error) {
	if int(programIdx) >= len(keys) {
		return Instruction{}, fmt.Errorf("program id index %d out of bounds (%d keys)", programIdx, len(keys))
	}
	ix := Instruction{
		ProgramID: keys[programIdx],
		Accounts:  make([]int, len(accounts)),
		Data:      append([]byte(nil), data...),
		Inner:     inner,
	}
	for i, a := range accounts {
		ix.Accounts[i] = int(a)
	}
	return ix, nil
}

func tokenBalancesToDomain(in []rpc.TokenBalance) []TokenBalance {
	if len(in) == 0 {
		return nil
	}
	out := make([]TokenBalance, 0, len(in))
	for _, tb := range in {
		b := TokenBalance{
			AccountIndex: int(tb.AccountIndex),
			Mint:         tb.Mint.String(),
			Amount:       "0",
		}
		if tb.Owner != nil {
			b.Owner = tb.Owner.String()
		}
		if tb.UiTokenAmount != nil {
			if tb.UiTokenAmount.Amount != "" {
				b.Amount = tb.UiTokenAmount.Amount
			}
			b.Decimals = tb.UiTokenAmount.Decimals
		}
		out = append(out, b)
	}
	return out
}
