package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by contract and rpc collectors.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

type contractMetrics struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
	vaults  *prometheus.GaugeVec
}

type rpcMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
	replays   prometheus.Counter
}

var (
	contractMetricsOnce sync.Once
	contractRegistry    *contractMetrics

	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics
)

// Contracts returns the lazily-initialised registry recording contract call
// outcomes.
func Contracts() *contractMetrics {
	contractMetricsOnce.Do(func() {
		contractRegistry = &contractMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "accord",
				Subsystem: "contract",
				Name:      "calls_total",
				Help:      "Total submitted contract calls segmented by contract, method, and outcome.",
			}, []string{"contract", "method", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "accord",
				Subsystem: "contract",
				Name:      "call_duration_seconds",
				Help:      "Latency distribution for applying contract calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"contract", "method"}),
			vaults: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "accord",
				Subsystem: "contract",
				Name:      "vault_balance",
				Help:      "Base units held by each contract vault after the last commit.",
			}, []string{"contract"}),
		}
		prometheus.MustRegister(
			contractRegistry.calls,
			contractRegistry.latency,
			contractRegistry.vaults,
		)
	})
	return contractRegistry
}

// Observe records one applied call.
func (m *contractMetrics) Observe(contract, method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if contract == "" {
		contract = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	m.calls.WithLabelValues(contract, method, outcome).Inc()
	m.latency.WithLabelValues(contract, method).Observe(duration.Seconds())
}

// SetVaultBalance publishes the vault holdings of contract. Values beyond
// float64 precision are approximated.
func (m *contractMetrics) SetVaultBalance(contract string, balance float64) {
	if m == nil {
		return
	}
	m.vaults.WithLabelValues(contract).Set(balance)
}

// RPC returns the lazily-initialised registry recording JSON-RPC activity.
func RPC() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "accord",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "accord",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "accord",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by throttling policies.",
			}, []string{"reason"}),
			replays: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "accord",
				Subsystem: "rpc",
				Name:      "idempotent_replays_total",
				Help:      "Count of submissions answered from the idempotency store.",
			}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.latency,
			rpcRegistry.throttles,
			rpcRegistry.replays,
		)
	})
	return rpcRegistry
}

// Observe records the outcome of a JSON-RPC request.
func (m *rpcMetrics) Observe(method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *rpcMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// RecordReplay counts a submission served from the idempotency store.
func (m *rpcMetrics) RecordReplay() {
	if m == nil {
		return
	}
	m.replays.Inc()
}
