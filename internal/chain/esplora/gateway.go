package esplora

import (
	"context"
	"net/http"
	"time"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/metrics"
)

// Operation names used in errors, logs, and metrics.
const (
	OpBalance   = "balance"
	OpUTXOs     = "utxos"
	OpHeight    = "height"
	OpFees      = "fees"
	OpTxStatus  = "tx_status"
	OpBroadcast = "broadcast"
)

// Logger is the logging surface the gateway needs.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// GatewayOptions configures a Gateway. Zero values take defaults.
type GatewayOptions struct {
	QueryTimeout     time.Duration
	BroadcastTimeout time.Duration
	HTTPClient       *http.Client
	Limiter          *chain.RateLimiter
	Logger           Logger
	Metrics          *metrics.Metrics
}

// Gateway runs queries over an ordered provider list. It keeps no per-provider
// state between calls: every call starts again at the first provider.
type Gateway struct {
	queryTimeout     time.Duration
	broadcastTimeout time.Duration
	clientOpts       *ClientOptions
	logger           Logger
	metrics          *metrics.Metrics
}

// NewGateway creates a Gateway.
func NewGateway(opts GatewayOptions) *Gateway {
	g := &Gateway{
		queryTimeout:     opts.QueryTimeout,
		broadcastTimeout: opts.BroadcastTimeout,
		clientOpts:       &ClientOptions{HTTPClient: opts.HTTPClient, Limiter: opts.Limiter},
		logger:           opts.Logger,
		metrics:          opts.Metrics,
	}
	if g.queryTimeout <= 0 {
		g.queryTimeout = chain.DefaultQueryTimeout
	}
	if g.broadcastTimeout <= 0 {
		g.broadcastTimeout = chain.DefaultBroadcastTimeout
	}
	if g.logger == nil {
		g.logger = nopLogger{}
	}
	return g
}

func (g *Gateway) client(ep chain.Endpoint) *Client {
	return NewClient(ep, g.clientOpts)
}

func (g *Gateway) options(op string, timeout time.Duration) chain.FailoverOptions {
	return chain.FailoverOptions{
		Operation: op,
		Timeout:   timeout,
		Observer: func(a chain.Attempt) {
			g.metrics.RecordProviderCall(op, a.Duration, a.Err)
			if a.Err != nil {
				g.logger.Debug("%s: provider %d (%s) failed after %s: %v", op, a.Index, a.Endpoint.URL, a.Duration, a.Err)
			}
		},
	}
}

// run executes a query failover and logs exhaustion.
func run[T any](ctx context.Context, g *Gateway, op string, providers []chain.Endpoint,
	fn func(context.Context, *Client) (T, error),
) chain.Outcome[T] {
	out := chain.Failover(ctx, chain.FilterEndpoints(providers, chain.RoleQuery), g.options(op, g.queryTimeout),
		func(ctx context.Context, ep chain.Endpoint) (T, error) {
			return fn(ctx, g.client(ep))
		})
	if err := out.Err(); err != nil {
		g.logger.Error("%s: %v", op, err)
	}
	return out
}

// GetBalance returns the balance of address from the first provider that
// answers.
func (g *Gateway) GetBalance(ctx context.Context, address string, providers []chain.Endpoint) (*chain.Balance, error) {
	out := run(ctx, g, OpBalance, providers, func(ctx context.Context, c *Client) (*chain.Balance, error) {
		return c.GetAddressStats(ctx, address)
	})
	return out.Value, out.Err()
}

// GetUTXOs returns the unspent outputs of address. Confirmations come from
// the answering provider's own tip height when it has one, otherwise they are
// 1 for confirmed outputs and 0 for mempool outputs.
func (g *Gateway) GetUTXOs(ctx context.Context, address string, providers []chain.Endpoint) ([]chain.UTXO, error) {
	out := run(ctx, g, OpUTXOs, providers, func(ctx context.Context, c *Client) ([]chain.UTXO, error) {
		utxos, err := c.ListUTXOs(ctx, address)
		if err != nil {
			return nil, err
		}
		tip, tipErr := c.TipHeight(ctx)
		if tipErr != nil {
			g.logger.Debug("%s: tip height from %s unavailable: %v", OpUTXOs, c.URL(), tipErr)
		}
		return withConfirmations(utxos, tip), nil
	})
	return out.Value, out.Err()
}

func withConfirmations(utxos []chain.UTXO, tip int64) []chain.UTXO {
	out := make([]chain.UTXO, len(utxos))
	for i, u := range utxos {
		switch {
		case !u.Confirmed():
			u.Confirmations = 0
		case tip >= u.Height:
			u.Confirmations = uint32(tip - u.Height + 1) //nolint:gosec // bounded by chain height
		default:
			u.Confirmations = 1
		}
		out[i] = u
	}
	return out
}

// TipHeight returns the current chain height.
func (g *Gateway) TipHeight(ctx context.Context, providers []chain.Endpoint) (int64, error) {
	out := run(ctx, g, OpHeight, providers, func(ctx context.Context, c *Client) (int64, error) {
		return c.TipHeight(ctx)
	})
	return out.Value, out.Err()
}

// FeeEstimates returns recommended fee rates, or the built-in defaults with
// Fallback set when no provider answers.
func (g *Gateway) FeeEstimates(ctx context.Context, providers []chain.Endpoint) chain.FeeEstimates {
	out := run(ctx, g, OpFees, providers, func(ctx context.Context, c *Client) (*chain.FeeEstimates, error) {
		return c.FeeEstimates(ctx)
	})
	if out.Err() != nil {
		g.logger.Debug("%s: using default recommendations", OpFees)
		return chain.DefaultFeeEstimates()
	}
	return *out.Value
}

// TxKnown reports whether any provider knows txid, in its mempool or in a
// block. It is false only when every provider answered 404; any other
// failure is returned as an error so callers never act on a guess.
func (g *Gateway) TxKnown(ctx context.Context, txid string, providers []chain.Endpoint) (bool, error) {
	out := run(ctx, g, OpTxStatus, providers, func(ctx context.Context, c *Client) (*chain.TxStatus, error) {
		return c.TxStatus(ctx, txid)
	})
	if out.OK() {
		return true, nil
	}
	failures := out.Failures()
	if len(failures) == 0 || ctx.Err() != nil {
		return false, out.Err()
	}
	for _, a := range failures {
		if StatusCode(a.Err) != http.StatusNotFound {
			return false, out.Err()
		}
	}
	return false, nil
}

// TxStatus returns the confirmation state of txid.
func (g *Gateway) TxStatus(ctx context.Context, txid string, providers []chain.Endpoint) (*chain.TxStatus, error) {
	out := run(ctx, g, OpTxStatus, providers, func(ctx context.Context, c *Client) (*chain.TxStatus, error) {
		return c.TxStatus(ctx, txid)
	})
	return out.Value, out.Err()
}
