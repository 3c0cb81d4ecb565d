package wallet

import (
	"strconv"

	"github.com/mrz1836/satchel/internal/chain"
)

// Default number of addresses generated per chain of an account.
const (
	DefaultReceiveCount = 20
	DefaultChangeCount  = 20
)

// AddressRecord is one derived address. It is never modified after
// derivation.
type AddressRecord struct {
	Address   string `json:"address"`
	Path      string `json:"path"`
	Index     uint32 `json:"index"`
	Change    bool   `json:"change"`
	PublicKey string `json:"public_key"` // compressed, hex
}

// DerivationPath parses the record's path.
func (r AddressRecord) DerivationPath() (DerivationPath, error) {
	return ParseDerivationPath(r.Path)
}

// Account is a batch of receive and change addresses for one BIP84 account.
type Account struct {
	Index   uint32          `json:"index"`
	Name    string          `json:"name"`
	Network string          `json:"network"`
	Receive []AddressRecord `json:"receive"`
	Change  []AddressRecord `json:"change"`
}

// AccountName returns the display name for an account index.
func AccountName(index uint32) string {
	return "Account " + strconv.FormatUint(uint64(index), 10)
}

// Addresses returns receive then change records.
func (a *Account) Addresses() []AddressRecord {
	out := make([]AddressRecord, 0, len(a.Receive)+len(a.Change))
	out = append(out, a.Receive...)
	return append(out, a.Change...)
}

// Find returns the record for address.
func (a *Account) Find(address string) (AddressRecord, bool) {
	for _, r := range a.Addresses() {
		if r.Address == address {
			return r, true
		}
	}
	return AddressRecord{}, false
}

// ChangeAddress returns the first change address, or the first receive
// address when no change addresses were derived.
func (a *Account) ChangeAddress() (AddressRecord, bool) {
	if len(a.Change) > 0 {
		return a.Change[0], true
	}
	if len(a.Receive) > 0 {
		return a.Receive[0], true
	}
	return AddressRecord{}, false
}

// Spendable pairs a UTXO with the address record that owns it. The pairing
// is made when the UTXO is fetched, so signing never has to guess the key.
type Spendable struct {
	UTXO  chain.UTXO    `json:"utxo"`
	Owner AddressRecord `json:"owner"`
}

// TotalSpendable sums the amounts of spendables.
func TotalSpendable(spendables []Spendable) uint64 {
	var total uint64
	for _, s := range spendables {
		total += s.UTXO.Amount
	}
	return total
}
