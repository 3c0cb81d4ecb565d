package transaction

import (
	"context"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/service/balance"
	"github.com/mrz1836/satchel/internal/utxostore"
	"github.com/mrz1836/satchel/internal/wallet"
)

// UTXOSource aggregates spendable outputs across addresses.
// Satisfied by *balance.Service.
type UTXOSource interface {
	GetAggregateUTXOs(ctx context.Context, records []wallet.AddressRecord, providers []chain.Endpoint) (*balance.AggregateUTXOs, error)
}

// FeeSource returns fee recommendations. Satisfied by *esplora.Gateway.
type FeeSource interface {
	FeeEstimates(ctx context.Context, providers []chain.Endpoint) chain.FeeEstimates
}

// Broadcaster submits a raw transaction. Satisfied by esplora.Broadcaster.
type Broadcaster interface {
	Broadcast(ctx context.Context, rawHex string, providers []chain.Endpoint) (string, error)
}

// SpentStore remembers outputs spent by earlier broadcasts.
// Satisfied by *utxostore.Store.
type SpentStore interface {
	FilterSpent(candidates []wallet.Spendable) []wallet.Spendable
	RecordSpent(network string, sp wallet.Spendable, spentTxID string)
	Reconcile(ctx context.Context, reported []wallet.Spendable, known utxostore.TxLookup) ([]string, error)
	Save() error
}

// LogWriter provides logging operations.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}
