package btc

import (
	"math"
	"sort"
	"strconv"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/wallet"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// Selection is the input side of a transaction: which outputs are spent, and
// how their value splits between amount, fee, and change.
type Selection struct {
	Inputs    []wallet.Spendable
	Amount    uint64
	Fee       uint64
	Change    uint64
	HasChange bool
	Total     uint64 // sum of Inputs
}

// Outputs returns the number of outputs the selection produces.
func (s *Selection) Outputs() int {
	if s.HasChange {
		return 2
	}
	return 1
}

// sortCandidates returns a copy ordered by value descending, then txid and
// vout. Duplicate outpoints and outputs valued at zero or above the coin
// supply are dropped.
func sortCandidates(candidates []wallet.Spendable) []wallet.Spendable {
	seen := make(map[string]struct{}, len(candidates))
	sorted := make([]wallet.Spendable, 0, len(candidates))
	for _, c := range candidates {
		if c.UTXO.Amount == 0 || c.UTXO.Amount > chain.MaxSupplySats {
			continue
		}
		key := c.UTXO.Outpoint()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		sorted = append(sorted, c)
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].UTXO, sorted[j].UTXO
		if a.Amount != b.Amount {
			return a.Amount > b.Amount
		}
		if a.TxID != b.TxID {
			return a.TxID < b.TxID
		}
		return a.Vout < b.Vout
	})
	return sorted
}

// SelectUTXOs picks the largest candidates until they cover target plus the
// fee for a two-output transaction. Change at or below DustLimit is folded
// into the fee.
func SelectUTXOs(candidates []wallet.Spendable, target, rate uint64) (*Selection, error) {
	if err := ValidateAmount(target); err != nil {
		return nil, err
	}
	if err := ValidateFeeRate(rate); err != nil {
		return nil, err
	}

	sorted := sortCandidates(candidates)
	if len(sorted) == 0 {
		return nil, satchelerr.InsufficientFunds(target+EstimateFee(1, 2, rate), 0)
	}

	var acc uint64
	for n := 1; n <= len(sorted); n++ {
		acc = addSats(acc, sorted[n-1].UTXO.Amount)
		fee := EstimateFee(n, 2, rate)
		if acc < fee || acc-fee < target {
			continue
		}

		sel := &Selection{
			Inputs: sorted[:n:n],
			Amount: target,
			Total:  acc,
		}
		if change := acc - target - fee; change > DustLimit {
			sel.Fee = fee
			sel.Change = change
			sel.HasChange = true
		} else {
			sel.Fee = acc - target
		}
		return sel, nil
	}

	return nil, satchelerr.InsufficientFunds(target+EstimateFee(len(sorted), 2, rate), acc)
}

// SweepAmount returns the amount left when every candidate is spent to a
// single output, together with the matching selection.
func SweepAmount(candidates []wallet.Spendable, rate uint64) (*Selection, error) {
	if err := ValidateFeeRate(rate); err != nil {
		return nil, err
	}

	sorted := sortCandidates(candidates)
	var total uint64
	for _, c := range sorted {
		total = addSats(total, c.UTXO.Amount)
	}
	fee := EstimateFee(len(sorted), 1, rate)
	if len(sorted) == 0 || total <= fee+DustLimit {
		return nil, satchelerr.InsufficientFunds(fee+DustLimit+1, total)
	}
	if total > chain.MaxSupplySats {
		return nil, invalidAmount(total)
	}

	return &Selection{
		Inputs: sorted,
		Amount: total - fee,
		Fee:    fee,
		Total:  total,
	}, nil
}

// ValidateAmount accepts payment amounts in (0, chain.MaxSupplySats].
func ValidateAmount(sats uint64) error {
	if sats == 0 || sats > chain.MaxSupplySats {
		return invalidAmount(sats)
	}
	return nil
}

func invalidAmount(sats uint64) error {
	return satchelerr.WithSuggestion(
		satchelerr.WithDetails(satchelerr.ErrInvalidAmount, map[string]string{"sats": strconv.FormatUint(sats, 10)}),
		"amount must be between 1 sat and 21,000,000 BTC",
	)
}

// addSats adds b to a, saturating instead of wrapping.
func addSats(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
