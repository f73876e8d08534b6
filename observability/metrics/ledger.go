package metrics

import (
	"sync"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks state transitions applied by the runtime.
type LedgerMetrics struct {
	calls          *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	allocated      prometheus.Counter
	coinsConsumed  prometheus.Gauge
	coinsRemaining prometheus.Gauge
	lockedBlocks   prometheus.Counter
	blockHeight    prometheus.Gauge
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the lazily registered ledger metrics.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "grantchain",
				Subsystem: "runtime",
				Name:      "calls_total",
				Help:      "Count of applied calls by kind and outcome.",
			}, []string{"call", "outcome"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "grantchain",
				Subsystem: "runtime",
				Name:      "rejections_total",
				Help:      "Count of rejected calls by reason.",
			}, []string{"reason"}),
			allocated: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "grantchain",
				Subsystem: "allocations",
				Name:      "allocations_total",
				Help:      "Count of successful allocations.",
			}),
			coinsConsumed: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "grantchain",
				Subsystem: "allocations",
				Name:      "coins_consumed",
				Help:      "Cumulative amount allocated since genesis.",
			}),
			coinsRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "grantchain",
				Subsystem: "allocations",
				Name:      "coins_remaining",
				Help:      "Amount that can still be allocated before the cap.",
			}),
			lockedBlocks: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "grantchain",
				Subsystem: "bank",
				Name:      "locked_transfers_total",
				Help:      "Count of transfers refused because funds were still vesting.",
			}),
			blockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "grantchain",
				Subsystem: "runtime",
				Name:      "block_height",
				Help:      "Block height last supplied by the host.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.calls,
			ledgerRegistry.rejections,
			ledgerRegistry.allocated,
			ledgerRegistry.coinsConsumed,
			ledgerRegistry.coinsRemaining,
			ledgerRegistry.lockedBlocks,
			ledgerRegistry.blockHeight,
		)
	})
	return ledgerRegistry
}

// ObserveCall records the outcome of one call.
func (m *LedgerMetrics) ObserveCall(kind string, err error) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	m.calls.WithLabelValues(kind, outcome).Inc()
}

// ObserveRejection records a rejection under a short reason label.
func (m *LedgerMetrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "other"
	}
	m.rejections.WithLabelValues(reason).Inc()
}

// ObserveAllocation counts an allocation and refreshes the cap gauges.
func (m *LedgerMetrics) ObserveAllocation(consumed, remaining *uint256.Int) {
	if m == nil {
		return
	}
	m.allocated.Inc()
	m.SetCoins(consumed, remaining)
}

// SetCoins refreshes the cap gauges. Values beyond float precision are
// approximated.
func (m *LedgerMetrics) SetCoins(consumed, remaining *uint256.Int) {
	if m == nil {
		return
	}
	if consumed != nil {
		m.coinsConsumed.Set(consumed.Float64())
	}
	if remaining != nil {
		m.coinsRemaining.Set(remaining.Float64())
	}
}

// ObserveLockedTransfer counts a transfer refused by a vesting lock.
func (m *LedgerMetrics) ObserveLockedTransfer() {
	if m == nil {
		return
	}
	m.lockedBlocks.Inc()
}

// SetBlockHeight records the current host height.
func (m *LedgerMetrics) SetBlockHeight(height uint64) {
	if m == nil {
		return
	}
	m.blockHeight.Set(float64(height))
}
