package solana

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSig   = solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")
	walletA   = solana.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	walletB   = solana.MustPublicKeyFromBase58("4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T")
	usdcMint  = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	tokenAcct = solana.MustPublicKeyFromBase58("7UX2i7SucgLMQcfZ75s3VXmZZY4YRUyJN9X1RgfMoDUi")
	lookupKey = solana.MustPublicKeyFromBase58("5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1")
	testTime  = time.Date(2024, 3, 9, 16, 4, 5, 0, time.UTC)
)

func TestParseTransaction_NativeTransfer(t *testing.T) {
	result, err := NewNativeTransferResult(walletA, walletB, 1_500_000_000, 5000, testTime)
	require.NoError(t, err)

	sigData := &rpc.TransactionSignature{Signature: testSig, Slot: 100}

	txn, err := parseTransactionFromResult(sigData, result)
	require.NoError(t, err)

	assert.Equal(t, testSig.String(), txn.Signature)
	assert.Equal(t, testTime, txn.BlockTime)
	assert.Equal(t, uint64(1), txn.Slot)
	assert.Equal(t, uint64(5000), txn.Fee)
	assert.Nil(t, txn.Err)
	assert.Equal(t, []string{walletA.String(), walletB.String(), solana.SystemProgramID.String()}, txn.AccountKeys)
	assert.Equal(t, walletA.String(), txn.FeePayer())
	assert.Len(t, txn.PreBalances, 3)
	assert.Len(t, txn.PostBalances, 3)

	require.Len(t, txn.Instructions, 1)
	assert.Equal(t, solana.SystemProgramID.String(), txn.Instructions[0].ProgramID)
	assert.Equal(t, []int{0, 1}, txn.Instructions[0].Accounts)
	assert.False(t, txn.Instructions[0].Inner)
	assert.NoError(t, txn.DecodeErr)
}

func TestParseTransaction_TokenBalancesAndInnerInstructions(t *testing.T) {
	owner := walletA
	tx := &solana.Transaction{
		Message: solana.Message{
			Header:      solana.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys: solana.PublicKeySlice{walletA, tokenAcct, solana.TokenProgramID, walletB},
			Instructions: []solana.CompiledInstruction{
				{ProgramIDIndex: 3, Accounts: []uint16{0, 1}},
				{ProgramIDIndex: 2, Accounts: []uint16{1}},
			},
		},
	}
	meta := &rpc.TransactionMeta{
		Fee:          5000,
		PreBalances:  []uint64{1_000_000_000, 2_039_280, 1, 1},
		PostBalances: []uint64{999_995_000, 2_039_280, 1, 1},
		InnerInstructions: []rpc.InnerInstruction{
			{Index: 0, Instructions: []rpc.CompiledInstruction{
				{ProgramIDIndex: 2, Accounts: []uint16{1, 0}},
			}},
		},
		PreTokenBalances: []rpc.TokenBalance{
			{AccountIndex: 1, Owner: &owner, Mint: usdcMint, UiTokenAmount: &rpc.UiTokenAmount{Amount: "100000000", Decimals: 6}},
		},
		PostTokenBalances: []rpc.TokenBalance{
			{AccountIndex: 1, Mint: usdcMint, UiTokenAmount: &rpc.UiTokenAmount{Amount: "0", Decimals: 6}},
		},
	}
	result, err := NewTransactionResult(tx, meta, 7, testTime)
	require.NoError(t, err)

	txn, err := parseTransactionFromResult(&rpc.TransactionSignature{Signature: testSig}, result)
	require.NoError(t, err)

	// Inner instructions follow their outer instruction.
	require.Len(t, txn.Instructions, 3)
	assert.Equal(t, walletB.String(), txn.Instructions[0].ProgramID)
	assert.False(t, txn.Instructions[0].Inner)
	assert.Equal(t, solana.TokenProgramID.String(), txn.Instructions[1].ProgramID)
	assert.True(t, txn.Instructions[1].Inner)
	assert.Equal(t, []int{1, 0}, txn.Instructions[1].Accounts)
	assert.False(t, txn.Instructions[2].Inner)

	require.Len(t, txn.PreTokenBalances, 1)
	assert.Equal(t, TokenBalance{
		AccountIndex: 1,
		Owner:        walletA.String(),
		Mint:         usdcMint.String(),
		Amount:       "100000000",
		Decimals:     6,
	}, txn.PreTokenBalances[0])

	require.Len(t, txn.PostTokenBalances, 1)
	assert.Empty(t, txn.PostTokenBalances[0].Owner)
	assert.Equal(t, "0", txn.PostTokenBalances[0].Amount)
}

func TestParseTransaction_LoadedAddressesExtendKeys(t *testing.T) {
	tx := &solana.Transaction{
		Message: solana.Message{
			Header:      solana.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys: solana.PublicKeySlice{walletA, solana.SystemProgramID},
			Instructions: []solana.CompiledInstruction{
				{ProgramIDIndex: 1, Accounts: []uint16{0, 2}},
			},
		},
	}
	meta := &rpc.TransactionMeta{
		Fee:          5000,
		PreBalances:  []uint64{10, 1, 0, 5},
		PostBalances: []uint64{5, 1, 5, 5},
		LoadedAddresses: rpc.LoadedAddresses{
			Writable: solana.PublicKeySlice{walletB},
			ReadOnly: solana.PublicKeySlice{lookupKey},
		},
	}
	result, err := NewTransactionResult(tx, meta, 1, testTime)
	require.NoError(t, err)

	txn, err := parseTransactionFromResult(&rpc.TransactionSignature{Signature: testSig}, result)
	require.NoError(t, err)

	assert.Equal(t, []string{
		walletA.String(), solana.SystemProgramID.String(), walletB.String(), lookupKey.String(),
	}, txn.AccountKeys)
}

func TestParseTransaction_Failed(t *testing.T) {
	result, err := NewNativeTransferResult(walletA, walletB, 0, 5000, testTime)
	require.NoError(t, err)
	result.Meta.Err = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}

	txn, err := parseTransactionFromResult(&rpc.TransactionSignature{Signature: testSig}, result)
	require.NoError(t, err)

	require.NotNil(t, txn.Err)
	assert.Contains(t, *txn.Err, "transaction failed")
	assert.Equal(t, uint64(5000), txn.Fee)
}

func TestParseTransaction_MissingPayload(t *testing.T) {
	sigData := &rpc.TransactionSignature{Signature: testSig}

	_, err := parseTransactionFromResult(sigData, nil)
	assert.Error(t, err)

	_, err = parseTransactionFromResult(sigData, &rpc.GetTransactionResult{})
	assert.Error(t, err)

	result, err := NewNativeTransferResult(walletA, walletB, 1, 5000, testTime)
	require.NoError(t, err)
	result.Meta = nil
	_, err = parseTransactionFromResult(sigData, result)
	assert.Error(t, err)
}

func TestParseTransaction_ProgramIndexOutOfRange(t *testing.T) {
	tx := &solana.Transaction{
		Message: solana.Message{
			Header:      solana.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys: solana.PublicKeySlice{walletA},
			Instructions: []solana.CompiledInstruction{
				{ProgramIDIndex: 4},
			},
		},
	}
	result, err := NewTransactionResult(tx, &rpc.TransactionMeta{PreBalances: []uint64{1}, PostBalances: []uint64{1}}, 1, testTime)
	require.NoError(t, err)

	_, err = parseTransactionFromResult(&rpc.TransactionSignature{Signature: testSig}, result)
	assert.Error(t, err)
}

func TestConvertSignatureToDomain(t *testing.T) {
	bt := solana.UnixTimeSeconds(testTime.Unix())
	sigData := &rpc.TransactionSignature{
		Signature: testSig,
		Slot:      12345,
		BlockTime: &bt,
		Err:       map[string]interface{}{"InsufficientFundsForFee": nil},
	}

	txn := signatureToDomain(sigData)

	assert.Equal(t, testSig.String(), txn.Signature)
	assert.Equal(t, uint64(12345), txn.Slot)
	assert.Equal(t, testTime, txn.BlockTime)
	require.NotNil(t, txn.Err)
	assert.Empty(t, txn.AccountKeys)
}

func TestConvertSignatureToDomain_NoBlockTime(t *testing.T) {
	txn := signatureToDomain(&rpc.TransactionSignature{Signature: testSig})
	assert.True(t, txn.BlockTime.IsZero())
	assert.Nil(t, txn.Err)
}
