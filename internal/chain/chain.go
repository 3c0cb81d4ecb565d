// Package chain provides the Bitcoin network definitions, provider endpoints,
// and the ordered failover used to query remote indexers.
package chain

import "fmt"

// UTXO is an unspent output as reported by a provider. It is a snapshot;
// re-fetching produces a new value rather than mutating an old one.
type UTXO struct {
	TxID          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	Amount        uint64 `json:"amount"` // satoshis
	Height        int64  `json:"height"` // 0 while unconfirmed
	Confirmations uint32 `json:"confirmations"`
	Address       string `json:"address"`
}

// Confirmed reports whether the output has been mined.
func (u UTXO) Confirmed() bool {
	return u.Height > 0
}

// Outpoint returns the "txid:vout" form.
func (u UTXO) Outpoint() string {
	return fmt.Sprintf("%s:%d", u.TxID, u.Vout)
}

// Balance holds the address statistics reported by a provider.
type Balance struct {
	Address       string `json:"address"`
	Confirmed     uint64 `json:"confirmed"`
	Unconfirmed   int64  `json:"unconfirmed"` // mempool delta, may be negative
	TotalReceived uint64 `json:"total_received"`
	TotalSent     uint64 `json:"total_sent"`
	TxCount       uint64 `json:"tx_count"`
}

// TxStatus is the confirmation state of a transaction.
type TxStatus struct {
	TxID        string `json:"txid"`
	Confirmed   bool   `json:"confirmed"`
	BlockHeight int64  `json:"block_height,omitempty"`
	BlockHash   string `json:"block_hash,omitempty"`
	BlockTime   int64  `json:"block_time,omitempty"`
}

// TotalAmount sums a set of outputs.
func TotalAmount(utxos []UTXO) uint64 {
	var total uint64
	for _, u := range utxos {
		total += u.Amount
	}
	return total
}
