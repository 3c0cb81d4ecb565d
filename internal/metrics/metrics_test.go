package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTimeout = errors.New("timeout")

func TestMetrics_RecordProviderCall(t *testing.T) {
	t.Parallel()
	m := New()

	m.RecordProviderCall("balance", 100*time.Millisecond, nil)
	m.RecordProviderCall("balance", 300*time.Millisecond, errTimeout)
	m.RecordProviderCall("utxo", 50*time.Millisecond, nil)

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.providerRequests.WithLabelValues("balance", OutcomeOK)), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.providerRequests.WithLabelValues("balance", OutcomeError)), 0.001)
	assert.Equal(t, 3, testutil.CollectAndCount(m.providerRequests))

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.ProviderCalls)
	assert.Equal(t, int64(1), snap.ProviderErrors)
	assert.InDelta(t, 150.0, snap.LatencyAvgMs, 0.5)
}

func TestMetrics_BuildAndBroadcast(t *testing.T) {
	t.Parallel()
	m := New()

	m.RecordBuild(nil)
	m.RecordBuild(nil)
	m.RecordBuild(errTimeout)
	m.RecordBroadcast(OutcomeOK)
	m.RecordBroadcast(OutcomeRejected)

	assert.InDelta(t, 2.0, testutil.ToFloat64(m.txBuilt), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.txBuildErrors), 0.001)

	summary := m.Summary()
	assert.InDelta(t, 2.0, summary["satchel_transactions_built_total"], 0.001)
	assert.InDelta(t, 1.0, summary["satchel_broadcasts_total{outcome=rejected}"], 0.001)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Built)
	assert.Equal(t, int64(2), snap.Broadcasts)
}

func TestMetrics_SummaryHistogram(t *testing.T) {
	t.Parallel()
	m := New()
	m.RecordProviderCall("height", time.Second, nil)

	summary := m.Summary()
	assert.InDelta(t, 1.0, summary["satchel_provider_request_duration_seconds_count{operation=height}"], 0.001)
	assert.InDelta(t, 1.0, summary["satchel_provider_request_duration_seconds_sum{operation=height}"], 0.001)
	assert.InDelta(t, 1.0, summary["satchel_provider_requests_total{operation=height,outcome=ok}"], 0.001)
}

func TestMetrics_Nil(t *testing.T) {
	t.Parallel()
	var m *Metrics

	require.NotPanics(t, func() {
		m.RecordProviderCall("x", time.Second, nil)
		m.RecordBuild(nil)
		m.RecordBroadcast(OutcomeOK)
	})
	assert.Empty(t, m.Summary())
	assert.Nil(t, m.Registry())
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestGlobal(t *testing.T) {
	t.Parallel()
	require.NotNil(t, Global)
	require.NotNil(t, Global.Registry())
}
