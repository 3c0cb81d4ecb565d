package balance

import (
	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/wallet"
)

// AddressBalance is the balance of one address.
type AddressBalance struct {
	Address     string `json:"address"`
	Confirmed   uint64 `json:"confirmed"`
	Unconfirmed int64  `json:"unconfirmed"`
	TxCount     uint64 `json:"tx_count"`
}

// AddressFailure records an address every provider failed for. It is excluded
// from the totals.
type AddressFailure struct {
	Address string `json:"address"`
	Err     error  `json:"-"`
}

// Error returns the failure message.
func (f AddressFailure) Error() string {
	if f.Err == nil {
		return f.Address
	}
	return f.Address + ": " + f.Err.Error()
}

// AggregateBalance is the combined balance of a set of addresses.
// PerAddress follows the order the addresses were given in.
type AggregateBalance struct {
	Total       uint64           `json:"total"`
	Unconfirmed int64            `json:"unconfirmed"`
	PerAddress  []AddressBalance `json:"addresses"`
	Failures    []AddressFailure `json:"failures,omitempty"`
}

// Funded returns the addresses with a non-zero confirmed or pending balance.
func (a *AggregateBalance) Funded() []AddressBalance {
	out := make([]AddressBalance, 0, len(a.PerAddress))
	for _, b := range a.PerAddress {
		if b.Confirmed > 0 || b.Unconfirmed != 0 {
			out = append(out, b)
		}
	}
	return out
}

// AggregateUTXOs is the spendable set of a group of addresses, each output
// tagged with the address record that owns it.
type AggregateUTXOs struct {
	Spendables []wallet.Spendable `json:"utxos"`
	Failures   []AddressFailure   `json:"failures,omitempty"`
}

// Total sums every spendable output.
func (a *AggregateUTXOs) Total() uint64 {
	return wallet.TotalSpendable(a.Spendables)
}

// UTXOs returns the bare outputs.
func (a *AggregateUTXOs) UTXOs() []chain.UTXO {
	out := make([]chain.UTXO, 0, len(a.Spendables))
	for _, s := range a.Spendables {
		out = append(out, s.UTXO)
	}
	return out
}
