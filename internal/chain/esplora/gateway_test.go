package esplora

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/metrics"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// countingServer wraps handler and counts the requests it receives.
type countingServer struct {
	*httptest.Server

	calls atomic.Int32
}

func newCountingServer(t *testing.T, handler http.HandlerFunc) *countingServer {
	t.Helper()
	cs := &countingServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func failing(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, http.StatusText(status), status)
	}
}

// recordingLogger captures log lines.
type recordingLogger struct {
	mu     sync.Mutex
	debugs []string
	errors []string
}

func (l *recordingLogger) Debug(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugs = append(l.debugs, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

func endpoints(role chain.Role, servers ...*countingServer) []chain.Endpoint {
	eps := make([]chain.Endpoint, 0, len(servers))
	for _, s := range servers {
		eps = append(eps, chain.NewEndpoint(s.URL, role))
	}
	return eps
}

func TestGateway_Broadcast_FailsOverInOrder(t *testing.T) {
	t.Parallel()

	down := newCountingServer(t, failing(http.StatusServiceUnavailable))
	rejecting := newCountingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad-txns-inputs-missingorspent", http.StatusBadRequest)
	})
	accepting := newCountingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(txA))
	})

	m := metrics.New()
	gw := NewGateway(GatewayOptions{Metrics: m})
	out := gw.Broadcast(context.Background(), "0200", endpoints(chain.RoleAll, down, rejecting, accepting))

	require.NoError(t, out.Err())
	assert.True(t, out.OK())
	assert.Equal(t, txA, out.Value)
	assert.Equal(t, 2, out.Index)
	assert.Equal(t, OpBroadcast, out.Operation)
	require.Len(t, out.Attempts, 3)
	require.Len(t, out.Failures(), 2)
	require.ErrorIs(t, out.Attempts[1].Err, satchelerr.ErrBroadcastRejected)

	assert.Equal(t, int32(1), down.calls.Load())
	assert.Equal(t, int32(1), rejecting.calls.Load())
	assert.Equal(t, int32(1), accepting.calls.Load())

	summary := m.Summary()
	assert.InDelta(t, 1.0, summary["satchel_broadcasts_total{outcome=ok}"], 0.001)
	assert.InDelta(t, 2.0, summary["satchel_provider_requests_total{operation=broadcast,outcome=error}"], 0.001)
	assert.InDelta(t, 1.0, summary["satchel_provider_requests_total{operation=broadcast,outcome=ok}"], 0.001)
}

func TestGateway_Broadcast_StopsAtFirstSuccess(t *testing.T) {
	t.Parallel()

	first := newCountingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(txB))
	})
	second := newCountingServer(t, failing(http.StatusInternalServerError))

	txid, err := Broadcaster{Gateway: NewGateway(GatewayOptions{})}.Broadcast(
		context.Background(), "0200", endpoints(chain.RoleAll, first, second))
	require.NoError(t, err)
	assert.Equal(t, txB, txid)
	assert.Equal(t, int32(0), second.calls.Load())
}

func TestGateway_Broadcast_AllRejected(t *testing.T) {
	t.Parallel()

	reject := func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "min relay fee not met", http.StatusBadRequest)
	}
	a := newCountingServer(t, reject)
	b := newCountingServer(t, reject)

	m := metrics.New()
	log := &recordingLogger{}
	gw := NewGateway(GatewayOptions{Metrics: m, Logger: log})
	out := gw.Broadcast(context.Background(), "0200", endpoints(chain.RoleAll, a, b))

	err := out.Err()
	require.Error(t, err)
	require.ErrorIs(t, err, satchelerr.ErrAllProvidersFailed)
	require.ErrorIs(t, err, satchelerr.ErrBroadcastRejected)
	assert.Equal(t, satchelerr.ExitNetwork, satchelerr.ExitCode(err))
	assert.Equal(t, -1, out.Index)

	n, ok := satchelerr.ProviderCount(err)
	require.True(t, ok)
	assert.Equal(t, 2, n)

	assert.InDelta(t, 1.0, m.Summary()["satchel_broadcasts_total{outcome=rejected}"], 0.001)
	assert.Len(t, log.errors, 1)
	assert.Len(t, log.debugs, 2)
}

func TestGateway_Broadcast_RoleFilter(t *testing.T) {
	t.Parallel()

	queryOnly := newCountingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(txA))
	})
	broadcaster := newCountingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(txC))
	})

	providers := []chain.Endpoint{
		chain.NewEndpoint(queryOnly.URL, chain.RoleQuery),
		chain.NewEndpoint(broadcaster.URL, chain.RoleBroadcast),
	}
	out := NewGateway(GatewayOptions{}).Broadcast(context.Background(), "0200", providers)
	require.NoError(t, out.Err())
	assert.Equal(t, txC, out.Value)
	assert.Equal(t, int32(0), queryOnly.calls.Load())
	assert.Len(t, out.Attempts, 1)
}

func TestGateway_Broadcast_NoProviders(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	out := NewGateway(GatewayOptions{Metrics: m}).Broadcast(context.Background(), "0200", nil)
	require.ErrorIs(t, out.Err(), satchelerr.ErrAllProvidersFailed)
	assert.Empty(t, out.Attempts)
	assert.InDelta(t, 1.0, m.Summary()["satchel_broadcasts_total{outcome=error}"], 0.001)
}

func TestGateway_AttemptTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	slow := newCountingServer(t, func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	fast := newCountingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("101"))
	})
	t.Cleanup(func() { close(release) })

	gw := NewGateway(GatewayOptions{QueryTimeout: 50 * time.Millisecond})
	height, err := gw.TipHeight(context.Background(), endpoints(chain.RoleAll, slow, fast))
	require.NoError(t, err)
	assert.Equal(t, int64(101), height)
}

func TestGateway_GetBalance(t *testing.T) {
	t.Parallel()

	down := newCountingServer(t, failing(http.StatusBadGateway))
	up := newCountingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"chain_stats":{"funded_txo_sum":5000,"spent_txo_sum":1000,"tx_count":2},"mempool_stats":{}}`))
	})

	bal, err := NewGateway(GatewayOptions{}).GetBalance(context.Background(), testAddr, endpoints(chain.RoleAll, down, up))
	require.NoError(t, err)
	assert.Equal(t, uint64(4000), bal.Confirmed)
	assert.Equal(t, int32(1), down.calls.Load())
}

func TestGateway_GetBalance_SkipsBroadcastOnly(t *testing.T) {
	t.Parallel()

	bcast := newCountingServer(t, failing(http.StatusInternalServerError))
	_, err := NewGateway(GatewayOptions{}).GetBalance(context.Background(), testAddr,
		[]chain.Endpoint{chain.NewEndpoint(bcast.URL, chain.RoleBroadcast)})
	require.ErrorIs(t, err, satchelerr.ErrAllProvidersFailed)
	assert.Equal(t, int32(0), bcast.calls.Load())
}

func TestGateway_GetUTXOs_Confirmations(t *testing.T) {
	t.Parallel()

	srv := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/blocks/tip/height":
			_, _ = w.Write([]byte("800009"))
		default:
			_, _ = w.Write([]byte(`[
				{"txid":"` + txA + `","vout":0,"value":1000,"status":{"confirmed":true,"block_height":800000}},
				{"txid":"` + txB + `","vout":0,"value":2000,"status":{"confirmed":false}}
			]`))
		}
	})

	utxos, err := NewGateway(GatewayOptions{}).GetUTXOs(context.Background(), testAddr, endpoints(chain.RoleAll, srv))
	require.NoError(t, err)
	require.Len(t, utxos, 2)
	assert.Equal(t, uint32(10), utxos[0].Confirmations)
	assert.Equal(t, uint32(0), utxos[1].Confirmations)
}

func TestWithConfirmations(t *testing.T) {
	t.Parallel()

	utxos := []chain.UTXO{
		{TxID: txA, Height: 100},
		{TxID: txB},
		{TxID: txC, Height: 150},
	}

	tests := []struct {
		name string
		tip  int64
		want []uint32
	}{
		{"tip known", 149, []uint32{50, 0, 1}},
		{"tip at output", 150, []uint32{51, 0, 1}},
		{"tip unknown", 0, []uint32{1, 0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := withConfirmations(utxos, tt.tip)
			require.Len(t, got, len(tt.want))
			for i, w := range tt.want {
				assert.Equal(t, w, got[i].Confirmations, "utxo %d", i)
			}
		})
	}
	assert.Zero(t, utxos[0].Confirmations)
}

func TestGateway_FeeEstimates(t *testing.T) {
	t.Parallel()

	t.Run("from provider", func(t *testing.T) {
		t.Parallel()
		srv := newCountingServer(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"fastestFee":12,"halfHourFee":9,"hourFee":7,"economyFee":3,"minimumFee":1}`))
		})
		est := NewGateway(GatewayOptions{}).FeeEstimates(context.Background(), endpoints(chain.RoleAll, srv))
		assert.False(t, est.Fallback)
		assert.Equal(t, uint64(12), est.ForSpeed(chain.SpeedFast))
	})

	t.Run("defaults when every provider fails", func(t *testing.T) {
		t.Parallel()
		srv := newCountingServer(t, failing(http.StatusInternalServerError))
		est := NewGateway(GatewayOptions{}).FeeEstimates(context.Background(), endpoints(chain.RoleAll, srv))
		assert.True(t, est.Fallback)
		assert.Equal(t, chain.DefaultFeeEstimates(), est)
	})
}

func TestGateway_TxStatus(t *testing.T) {
	t.Parallel()

	srv := newCountingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"confirmed":false}`))
	})
	st, err := NewGateway(GatewayOptions{}).TxStatus(context.Background(), txA, endpoints(chain.RoleAll, srv))
	require.NoError(t, err)
	assert.False(t, st.Confirmed)
	assert.Equal(t, txA, st.TxID)
}

func TestGateway_CanceledContext(t *testing.T) {
	t.Parallel()

	a := newCountingServer(t, failing(http.StatusInternalServerError))
	b := newCountingServer(t, failing(http.StatusInternalServerError))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewGateway(GatewayOptions{}).TipHeight(ctx, endpoints(chain.RoleAll, a, b))
	require.ErrorIs(t, err, satchelerr.ErrAllProvidersFailed)
	n, _ := satchelerr.ProviderCount(err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(0), b.calls.Load())
}

func TestGateway_TxKnown(t *testing.T) {
	t.Parallel()

	found := func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"confirmed":false}`))
	}

	tests := []struct {
		name    string
		servers []http.HandlerFunc
		want    bool
		wantErr bool
	}{
		{"found", []http.HandlerFunc{found}, true, false},
		{"found after a missing provider", []http.HandlerFunc{failing(http.StatusNotFound), found}, true, false},
		{"missing everywhere", []http.HandlerFunc{failing(http.StatusNotFound), failing(http.StatusNotFound)}, false, false},
		{"one provider down", []http.HandlerFunc{failing(http.StatusNotFound), failing(http.StatusBadGateway)}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			servers := make([]*countingServer, 0, len(tt.servers))
			for _, h := range tt.servers {
				servers = append(servers, newCountingServer(t, h))
			}
			known, err := NewGateway(GatewayOptions{}).TxKnown(context.Background(), txA, endpoints(chain.RoleAll, servers...))
			if tt.wantErr {
				require.ErrorIs(t, err, satchelerr.ErrAllProvidersFailed)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, known)
		})
	}

	t.Run("no providers", func(t *testing.T) {
		t.Parallel()
		known, err := NewGateway(GatewayOptions{}).TxKnown(context.Background(), txA, nil)
		require.Error(t, err)
		assert.False(t, known)
	})
}
