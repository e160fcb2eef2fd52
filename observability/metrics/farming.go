package metrics

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type FarmingMetrics struct {
	operations    *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	bonusOutcomes *prometheus.CounterVec
	reserves      *prometheus.GaugeVec
	emitted       prometheus.Counter
	halvings      prometheus.Counter
	cooldownDepth prometheus.Gauge
	recycled      prometheus.Counter
	dust          *prometheus.CounterVec
	stranded      *prometheus.CounterVec
}

var (
	farmingOnce     sync.Once
	farmingRegistry *FarmingMetrics
)

// Farming returns the lazily-initialised farming metrics registry.
func Farming() *FarmingMetrics {
	farmingOnce.Do(func() {
		farmingRegistry = &FarmingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "yield",
				Subsystem: "farm",
				Name:      "operations_total",
				Help:      "Count of farming entry point invocations by operation and failure kind.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "yield",
				Subsystem: "farm",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for farming entry points.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			bonusOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "yield",
				Subsystem: "bonus",
				Name:      "outcomes_total",
				Help:      "Best-effort bonus steps by stage and outcome.",
			}, []string{"stage", "outcome"}),
			reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "yield",
				Subsystem: "reserve",
				Name:      "balance",
				Help:      "Reserve ledger counters in subsidy token base units.",
			}, []string{"counter"}),
			emitted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "yield",
				Subsystem: "emission",
				Name:      "minted_total",
				Help:      "Subsidy tokens minted by the emission scheduler.",
			}),
			halvings: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "yield",
				Subsystem: "emission",
				Name:      "halvings_total",
				Help:      "Number of halving steps applied.",
			}),
			cooldownDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "yield",
				Subsystem: "cooldown",
				Name:      "entries",
				Help:      "Cooldown entries waiting for release.",
			}),
			recycled: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "yield",
				Subsystem: "cooldown",
				Name:      "recycled_total",
				Help:      "Subsidy tokens returned to the unissued bucket.",
			}),
			dust: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "yield",
				Subsystem: "revenue",
				Name:      "dust_total",
				Help:      "Rounding remainder left in the distributor by participant list.",
			}, []string{"list"}),
			stranded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "yield",
				Subsystem: "accumulator",
				Name:      "stranded_total",
				Help:      "Yield injected into farms without liquidity.",
			}, []string{"farm"}),
		}
		prometheus.MustRegister(
			farmingRegistry.operations,
			farmingRegistry.latency,
			farmingRegistry.bonusOutcomes,
			farmingRegistry.reserves,
			farmingRegistry.emitted,
			farmingRegistry.halvings,
			farmingRegistry.cooldownDepth,
			farmingRegistry.recycled,
			farmingRegistry.dust,
			farmingRegistry.stranded,
		)
	})
	return farmingRegistry
}

// ObserveOperation records the latency and outcome of an entry point.
func (m *FarmingMetrics) ObserveOperation(operation string, duration time.Duration, outcome string) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	if outcome == "" {
		outcome = "none"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *FarmingMetrics) RecordBonusOutcome(stage, outcome string) {
	if m == nil {
		return
	}
	m.bonusOutcomes.WithLabelValues(stage, outcome).Inc()
}

func (m *FarmingMetrics) SetReserves(protocol, emission *big.Int) {
	if m == nil {
		return
	}
	m.reserves.WithLabelValues("protocol").Set(toFloat(protocol))
	m.reserves.WithLabelValues("emission").Set(toFloat(emission))
}

func (m *FarmingMetrics) AddEmitted(amount *big.Int) {
	if m == nil {
		return
	}
	m.emitted.Add(toFloat(amount))
}

func (m *FarmingMetrics) IncHalving() {
	if m == nil {
		return
	}
	m.halvings.Inc()
}

func (m *FarmingMetrics) SetCooldownDepth(entries int) {
	if m == nil {
		return
	}
	m.cooldownDepth.Set(float64(entries))
}

func (m *FarmingMetrics) AddRecycled(amount *big.Int) {
	if m == nil {
		return
	}
	m.recycled.Add(toFloat(amount))
}

func (m *FarmingMetrics) AddDust(list string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.dust.WithLabelValues(list).Add(toFloat(amount))
}

func (m *FarmingMetrics) AddStranded(farm string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.stranded.WithLabelValues(farm).Add(toFloat(amount))
}

func toFloat(v *big.Int) float64 {
	if v == nil || v.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
