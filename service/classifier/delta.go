package classifier

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/brojonat/solexport/service/solana"
	"github.com/shopspring/decimal"
)

// lamportsPerSOL as a decimal exponent.
const solDecimals = 9

// BalanceDelta is the post minus pre balance of one (account, currency) pair.
// Currency is NativeCurrency or a token mint address.
type BalanceDelta struct {
	Account  string
	Currency string
	Amount   decimal.Decimal
}

// IsNative reports whether the delta is in SOL.
func (d BalanceDelta) IsNative() bool {
	return d.Currency == NativeCurrency
}

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -solDecimals)
}

// validate checks that every account the transaction references has the
// snapshots classification needs.
func validate(raw *solana.RawTransaction) error {
	nkeys := len(raw.AccountKeys)
	if nkeys == 0 {
		return fmt.Errorf("no account keys")
	}

	hasPair := func(idx int) bool {
		return idx < len(raw.PreBalances) && idx < len(raw.PostBalances)
	}

	if !hasPair(0) {
		return fmt.Errorf("fee payer %s has no pre/post balance", raw.AccountKeys[0])
	}

	for i, ix := range raw.Instructions {
		for _, idx := range ix.Accounts {
			if idx < 0 || idx >= nkeys {
				return fmt.Errorf("instruction %d references account index %d out of %d keys", i, idx, nkeys)
			}
			if !hasPair(idx) {
				return fmt.Errorf("instruction %d references account %s with no pre/post balance", i, raw.AccountKeys[idx])
			}
		}
	}

	mints := make(map[int]string)
	for _, side := range [][]solana.TokenBalance{raw.PreTokenBalances, raw.PostTokenBalances} {
		seen := make(map[int]struct{}, len(side))
		for _, tb := range side {
			if tb.AccountIndex < 0 || tb.AccountIndex >= nkeys {
				return fmt.Errorf("token balance references account index %d out of %d keys", tb.AccountIndex, nkeys)
			}
			if !hasPair(tb.AccountIndex) {
				return fmt.Errorf("token account %s has no pre/post balance", raw.AccountKeys[tb.AccountIndex])
			}
			if _, dup := seen[tb.AccountIndex]; dup {
				return fmt.Errorf("duplicate token balance for account %s", raw.AccountKeys[tb.AccountIndex])
			}
			seen[tb.AccountIndex] = struct{}{}
			if mint, ok := mints[tb.AccountIndex]; ok && mint != tb.Mint {
				return fmt.Errorf("token account %s changes mint from %s to %s", raw.AccountKeys[tb.AccountIndex], mint, tb.Mint)
			}
			mints[tb.AccountIndex] = tb.Mint
		}
	}

	return nil
}

type deltaKey struct {
	account  string
	currency string
}

// computeDeltas diffs the balance snapshots of raw. The fee is added back to
// the fee payer so it is not reported as a transfer. Zero deltas are dropped.
// The result is sorted by account, then currency.
func computeDeltas(raw *solana.RawTransaction) ([]BalanceDelta, error) {
	sums := make(map[deltaKey]decimal.Decimal)
	add := func(k deltaKey, amt decimal.Decimal) {
		if cur, ok := sums[k]; ok {
			sums[k] = cur.Add(amt)
			return
		}
		sums[k] = amt
	}

	n := min(len(raw.AccountKeys), len(raw.PreBalances), len(raw.PostBalances))
	for i := 0; i < n; i++ {
		diff := new(big.Int).SetUint64(raw.PostBalances[i])
		diff.Sub(diff, new(big.Int).SetUint64(raw.PreBalances[i]))
		if i == 0 {
			diff.Add(diff, new(big.Int).SetUint64(raw.Fee))
		}
		if diff.Sign() == 0 {
			continue
		}
		add(deltaKey{raw.AccountKeys[i], NativeCurrency}, decimal.NewFromBigInt(diff, -solDecimals))
	}

	type tokenSide struct {
		pre, post *solana.TokenBalance
	}
	sides := make(map[int]*tokenSide)
	indexes := make([]int, 0)
	get := func(idx int) *tokenSide {
		s, ok := sides[idx]
		if !ok {
			s = &tokenSide{}
			sides[idx] = s
			indexes = append(indexes, idx)
		}
		return s
	}
	for i := range raw.PreTokenBalances {
		get(raw.PreTokenBalances[i].AccountIndex).pre = &raw.PreTokenBalances[i]
	}
	for i := range raw.PostTokenBalances {
		get(raw.PostTokenBalances[i].AccountIndex).post = &raw.PostTokenBalances[i]
	}

	for _, idx := range indexes {
		s := sides[idx]
		// A missing side means the token account was created or closed.
		ref := s.post
		if ref == nil {
			ref = s.pre
		}
		pre, err := rawTokenAmount(s.pre)
		if err != nil {
			return nil, err
		}
		post, err := rawTokenAmount(s.post)
		if err != nil {
			return nil, err
		}
		diff := post.Sub(post, pre)
		if diff.Sign() == 0 {
			continue
		}

		account := ref.Owner
		if account == "" && s.pre != nil {
			account = s.pre.Owner
		}
		if account == "" {
			account = raw.AccountKeys[idx]
		}
		add(deltaKey{account, ref.Mint}, decimal.NewFromBigInt(diff, -int32(ref.Decimals)))
	}

	deltas := make([]BalanceDelta, 0, len(sums))
	for k, amt := range sums {
		if amt.IsZero() {
			continue
		}
		deltas = append(deltas, BalanceDelta{Account: k.account, Currency: k.currency, Amount: amt})
	}
	sort.Slice(deltas, func(i, j int) bool {
		if deltas[i].Account != deltas[j].Account {
			return deltas[i].Account < deltas[j].Account
		}
		return deltas[i].Currency < deltas[j].Currency
	})
	return deltas, nil
}

func rawTokenAmount(tb *solana.TokenBalance) (*big.Int, error) {
	if tb == nil || tb.Amount == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(tb.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid token amount %q for mint %s", tb.Amount, tb.Mint)
	}
	return v, nil
}
