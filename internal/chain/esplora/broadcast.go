package esplora

import (
	"context"
	"errors"
	"strings"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/metrics"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// Broadcast submits rawHex to the broadcast-capable providers in order. An
// explicit rejection fails over exactly like a connection error; the outcome
// carries every attempt.
func (g *Gateway) Broadcast(ctx context.Context, rawHex string, providers []chain.Endpoint) chain.Outcome[string] {
	rawHex = strings.TrimSpace(rawHex)
	out := chain.Failover(ctx, chain.FilterEndpoints(providers, chain.RoleBroadcast),
		g.options(OpBroadcast, g.broadcastTimeout),
		func(ctx context.Context, ep chain.Endpoint) (string, error) {
			return g.client(ep).Broadcast(ctx, rawHex)
		})

	switch err := out.Err(); {
	case err == nil:
		g.metrics.RecordBroadcast(metrics.OutcomeOK)
		g.logger.Debug("%s: accepted by %s as %s", OpBroadcast, out.Attempts[out.Index].Endpoint.URL, out.Value)
	case errors.Is(err, satchelerr.ErrBroadcastRejected):
		g.metrics.RecordBroadcast(metrics.OutcomeRejected)
		g.logger.Error("%s: %v", OpBroadcast, err)
	default:
		g.metrics.RecordBroadcast(metrics.OutcomeError)
		g.logger.Error("%s: %v", OpBroadcast, err)
	}
	return out
}

// Broadcaster adapts a Gateway to the (txid, error) shape.
type Broadcaster struct {
	Gateway *Gateway
}

// Broadcast returns the accepted txid or an ErrAllProvidersFailed error.
func (b Broadcaster) Broadcast(ctx context.Context, rawHex string, providers []chain.Endpoint) (string, error) {
	out := b.Gateway.Broadcast(ctx, rawHex, providers)
	return out.Value, out.Err()
}
