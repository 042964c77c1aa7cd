package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stablebond"

var (
	stableEngineOnce sync.Once
	stableEngineReg  *StableEngineMetrics

	oracleMetricsOnce sync.Once
	oracleRegistry    *OracleMetrics
)

// StableEngineMetrics wraps collectors describing issuance engine activity.
type StableEngineMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	supply   *prometheus.GaugeVec
	backing  *prometheus.GaugeVec
}

// StableEngine returns the singleton metrics registry for the issuance engine.
func StableEngine() *StableEngineMetrics {
	stableEngineOnce.Do(func() {
		stableEngineReg = &StableEngineMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Count of engine operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for engine operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "errors_total",
				Help:      "Count of engine failures segmented by operation and reason.",
			}, []string{"operation", "reason"}),
			supply: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "asset_supply",
				Help:      "Circulating supply per synthetic asset in base units.",
			}, []string{"asset"}),
			backing: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "asset_collateral",
				Help:      "Bond collateral held per synthetic asset in base units.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			stableEngineReg.requests,
			stableEngineReg.latency,
			stableEngineReg.errors,
			stableEngineReg.supply,
			stableEngineReg.backing,
		)
	})
	return stableEngineReg
}

// Observe records the execution metrics for an engine operation.
func (m *StableEngineMetrics) Observe(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		reason := strings.TrimPrefix(strings.TrimSpace(err.Error()), "stable engine: ")
		if reason == "" {
			reason = "unknown"
		}
		m.errors.WithLabelValues(op, reason).Inc()
	}
	m.requests.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordBacking publishes the supply and collateral totals of an asset.
func (m *StableEngineMetrics) RecordBacking(asset string, supply, collateral uint64) {
	if m == nil {
		return
	}
	label := labelAsset(asset)
	m.supply.WithLabelValues(label).Set(float64(supply))
	m.backing.WithLabelValues(label).Set(float64(collateral))
}

// OracleMetrics tracks feed freshness for the oracle manager.
type OracleMetrics struct {
	age     *prometheus.GaugeVec
	updates *prometheus.CounterVec
	rejects *prometheus.CounterVec
}

// Oracle exposes the oracle manager metrics registry.
func Oracle() *OracleMetrics {
	oracleMetricsOnce.Do(func() {
		oracleRegistry = &OracleMetrics{
			age: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "oracle",
				Name:      "reading_age_seconds",
				Help:      "Age of the latest accepted reading per feed.",
			}, []string{"feed"}),
			updates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "oracle",
				Name:      "updates_total",
				Help:      "Accepted readings segmented by feed and source.",
			}, []string{"feed", "source"}),
			rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "oracle",
				Name:      "rejections_total",
				Help:      "Rejected readings segmented by feed and reason.",
			}, []string{"feed", "reason"}),
		}
		prometheus.MustRegister(oracleRegistry.age, oracleRegistry.updates, oracleRegistry.rejects)
	})
	return oracleRegistry
}

// RecordUpdate notes an accepted reading.
func (m *OracleMetrics) RecordUpdate(feed, source string, age time.Duration) {
	if m == nil {
		return
	}
	feed = labelAsset(feed)
	m.updates.WithLabelValues(feed, strings.TrimSpace(source)).Inc()
	m.age.WithLabelValues(feed).Set(age.Seconds())
}

// RecordReject notes a reading the manager refused.
func (m *OracleMetrics) RecordReject(feed, reason string) {
	if m == nil {
		return
	}
	m.rejects.WithLabelValues(labelAsset(feed), strings.TrimSpace(reason)).Inc()
}

func labelAsset(asset string) string {
	normalized := strings.ToUpper(strings.TrimSpace(asset))
	if normalized == "" {
		return "UNKNOWN"
	}
	return normalized
}
