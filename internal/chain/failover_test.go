package chain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/chain"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

var errRefused = errors.New("connection refused")

func threeEndpoints() []chain.Endpoint {
	return chain.EndpointsFromURLs([]string{"https://a.example", "https://b.example", "https://c.example"}, chain.RoleAll)
}

func TestFailover(t *testing.T) {
	t.Parallel()

	t.Run("first success wins", func(t *testing.T) {
		t.Parallel()
		calls := 0
		out := chain.Failover(context.Background(), threeEndpoints(), chain.FailoverOptions{Operation: "height"},
			func(_ context.Context, ep chain.Endpoint) (string, error) {
				calls++
				return ep.URL, nil
			})

		require.NoError(t, out.Err())
		assert.True(t, out.OK())
		assert.Equal(t, "https://a.example", out.Value)
		assert.Equal(t, 0, out.Index)
		assert.Equal(t, 1, calls)
		assert.Len(t, out.Attempts, 1)
	})

	t.Run("fails over in order", func(t *testing.T) {
		t.Parallel()
		counts := map[string]int{}
		var order []string
		var observed []chain.Attempt
		rejected := satchelerr.BroadcastRejected("https://b.example", 400, "bad-txns")

		out := chain.Failover(context.Background(), threeEndpoints(),
			chain.FailoverOptions{Operation: "broadcast", Observer: func(a chain.Attempt) { observed = append(observed, a) }},
			func(_ context.Context, ep chain.Endpoint) (string, error) {
				counts[ep.URL]++
				order = append(order, ep.URL)
				switch ep.URL {
				case "https://a.example":
					return "", errRefused
				case "https://b.example":
					return "", rejected
				default:
					return "txid-c", nil
				}
			})

		require.NoError(t, out.Err())
		assert.Equal(t, "txid-c", out.Value)
		assert.Equal(t, 2, out.Index)
		assert.Equal(t, []string{"https://a.example", "https://b.example", "https://c.example"}, order)
		assert.Equal(t, map[string]int{"https://a.example": 1, "https://b.example": 1, "https://c.example": 1}, counts)

		failures := out.Failures()
		require.Len(t, failures, 2)
		require.ErrorIs(t, failures[0].Err, errRefused)
		require.ErrorIs(t, failures[1].Err, satchelerr.ErrBroadcastRejected)
		assert.Len(t, observed, 3)
	})

	t.Run("all fail", func(t *testing.T) {
		t.Parallel()
		out := chain.Failover(context.Background(), threeEndpoints(), chain.FailoverOptions{Operation: "balance"},
			func(_ context.Context, _ chain.Endpoint) (int, error) {
				return 0, errRefused
			})

		err := out.Err()
		require.ErrorIs(t, err, satchelerr.ErrAllProvidersFailed)
		require.ErrorIs(t, err, errRefused)
		assert.False(t, out.OK())
		assert.Equal(t, -1, out.Index)
		assert.Len(t, out.Attempts, 3)

		n, ok := satchelerr.ProviderCount(err)
		require.True(t, ok)
		assert.Equal(t, 3, n)
		assert.Contains(t, err.Error(), "provider 2 (https://c.example)")
	})

	t.Run("no providers", func(t *testing.T) {
		t.Parallel()
		called := false
		out := chain.Failover(context.Background(), nil, chain.FailoverOptions{Operation: "utxo"},
			func(_ context.Context, _ chain.Endpoint) (int, error) {
				called = true
				return 1, nil
			})
		require.ErrorIs(t, out.Err(), satchelerr.ErrAllProvidersFailed)
		assert.False(t, called)
		assert.Empty(t, out.Attempts)
	})

	t.Run("per attempt timeout", func(t *testing.T) {
		t.Parallel()
		out := chain.Failover(context.Background(), threeEndpoints()[:2],
			chain.FailoverOptions{Operation: "height", Timeout: 20 * time.Millisecond},
			func(ctx context.Context, ep chain.Endpoint) (int, error) {
				if ep.URL == "https://a.example" {
					<-ctx.Done()
					return 0, ctx.Err()
				}
				_, hasDeadline := ctx.Deadline()
				assert.True(t, hasDeadline)
				return 42, nil
			})

		require.NoError(t, out.Err())
		assert.Equal(t, 42, out.Value)
		require.ErrorIs(t, out.Attempts[0].Err, context.DeadlineExceeded)
	})

	t.Run("parent cancel stops the walk", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		out := chain.Failover(ctx, threeEndpoints(), chain.FailoverOptions{Operation: "height"},
			func(_ context.Context, _ chain.Endpoint) (int, error) {
				calls++
				cancel()
				return 0, errRefused
			})

		require.ErrorIs(t, out.Err(), satchelerr.ErrAllProvidersFailed)
		assert.Equal(t, 1, calls)
	})
}
