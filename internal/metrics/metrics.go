// Package metrics collects provider, build, and broadcast metrics in a
// per-instance prometheus registry.
package metrics

import (
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
)

const namespace = "satchel"

// Metrics holds the collectors for one run. All methods are safe for
// concurrent use and tolerate a nil receiver.
type Metrics struct {
	registry         *prometheus.Registry
	providerRequests *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	txBuilt          prometheus.Counter
	txBuildErrors    prometheus.Counter
	broadcasts       *prometheus.CounterVec
}

// Global is the process-wide instance used by the CLI.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = New()

// New creates a Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		providerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "requests_total",
				Help:      "Provider attempts by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		providerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "request_duration_seconds",
				Help:      "Duration of provider attempts",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		txBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_built_total",
			Help:      "Transactions built and signed",
		}),
		txBuildErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_build_errors_total",
			Help:      "Transaction builds that failed",
		}),
		broadcasts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broadcasts_total",
				Help:      "Broadcast runs by outcome",
			},
			[]string{"outcome"},
		),
	}
	m.registry.MustRegister(m.providerRequests, m.providerDuration, m.txBuilt, m.txBuildErrors, m.broadcasts)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordProviderCall records one attempt against one provider.
func (m *Metrics) RecordProviderCall(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.providerRequests.WithLabelValues(operation, outcome).Inc()
	m.providerDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordBuild records a transaction build.
func (m *Metrics) RecordBuild(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.txBuildErrors.Inc()
		return
	}
	m.txBuilt.Inc()
}

// RecordBroadcast records the outcome of a broadcast run.
func (m *Metrics) RecordBroadcast(outcome string) {
	if m == nil {
		return
	}
	m.broadcasts.WithLabelValues(outcome).Inc()
}

// Summary flattens the registry into "name{label=value,...}" keys. Counters
// report their value; histograms report _count and _sum entries.
func (m *Metrics) Summary() map[string]float64 {
	out := map[string]float64{}
	if m == nil {
		return out
	}
	families, err := m.registry.Gather()
	if err != nil {
		return out
	}
	for _, fam := range families {
		for _, metric := range fam.GetMetric() {
			key := fam.GetName() + labelString(metric.GetLabel())
			switch {
			case metric.GetCounter() != nil:
				out[key] = metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				h := metric.GetHistogram()
				out[fam.GetName()+"_count"+labelString(metric.GetLabel())] = float64(h.GetSampleCount())
				out[fam.GetName()+"_sum"+labelString(metric.GetLabel())] = h.GetSampleSum()
			case metric.GetGauge() != nil:
				out[key] = metric.GetGauge().GetValue()
			}
		}
	}
	return out
}

func labelString(labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, l.GetName()+"="+l.GetValue())
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ",") + "}"
}

// Snapshot is a point-in-time view of the headline numbers.
type Snapshot struct {
	ProviderCalls  int64
	ProviderErrors int64
	LatencyAvgMs   float64
	Built          int64
	Broadcasts     int64
}

// Snapshot totals the collectors.
func (m *Metrics) Snapshot() Snapshot {
	var s Snapshot
	var latencySum, latencyCount float64
	for key, v := range m.Summary() {
		switch {
		case strings.HasPrefix(key, "satchel_provider_requests_total"):
			s.ProviderCalls += int64(v)
			if strings.Contains(key, "outcome="+OutcomeError) {
				s.ProviderErrors += int64(v)
			}
		case strings.HasPrefix(key, "satchel_provider_request_duration_seconds_sum"):
			latencySum += v
		case strings.HasPrefix(key, "satchel_provider_request_duration_seconds_count"):
			latencyCount += v
		case key == "satchel_transactions_built_total":
			s.Built = int64(v)
		case strings.HasPrefix(key, "satchel_broadcasts_total"):
			s.Broadcasts += int64(v)
		}
	}
	if latencyCount > 0 {
		s.LatencyAvgMs = latencySum / latencyCount * 1000
	}
	return s
}
