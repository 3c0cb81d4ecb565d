package transaction

import (
	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/chain/btc"
	"github.com/mrz1836/satchel/internal/wallet"
)

// SendRequest describes a payment from a set of owned addresses.
type SendRequest struct {
	Phrase     string
	Passphrase string
	Network    chain.Network

	To        string
	AmountStr string // BTC ("0.001"), sats ("5000sat"), or "all"

	// FeeRate in sat/vB wins over Speed when non-zero.
	FeeRate uint64
	Speed   string

	// Records are the addresses whose outputs may be spent.
	Records       []wallet.AddressRecord
	ChangeAddress string

	// Snapshot, when non-nil, replaces the UTXO fetch.
	Snapshot []wallet.Spendable

	DryRun bool
}

// SweepAll returns true if the amount is "all".
func (r *SendRequest) SweepAll() bool {
	return chain.IsAmountAll(r.AmountStr)
}

// FeeSource values reported in SendResult.
const (
	FeeFromFlag     = "flag"
	FeeFromProvider = "provider"
	FeeFromDefault  = "default"
)

// SendResult is the outcome of a send.
type SendResult struct {
	*btc.SignedTransaction

	To          string `json:"to"`
	FeeRate     uint64 `json:"fee_rate"`
	FeeSource   string `json:"fee_source"`
	Broadcast   bool   `json:"broadcast"`
	ExplorerURL string `json:"explorer_url,omitempty"`
}
