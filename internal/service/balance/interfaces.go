package balance

import (
	"context"

	"github.com/mrz1836/satchel/internal/chain"
)

// Gateway queries one address over an ordered provider list.
// Satisfied by *esplora.Gateway.
type Gateway interface {
	GetBalance(ctx context.Context, address string, providers []chain.Endpoint) (*chain.Balance, error)
	GetUTXOs(ctx context.Context, address string, providers []chain.Endpoint) ([]chain.UTXO, error)
}

// LogWriter is the logging surface the service needs.
// Satisfied by *config.Logger.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}
