package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DiscountMetrics tracks the discount ledger's administrative operations.
type DiscountMetrics struct {
	operations  *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	lastApplied prometheus.Gauge
}

var (
	discountOnce     sync.Once
	discountRegistry *DiscountMetrics
)

// Discount returns the lazily-initialised discount metrics registry.
func Discount() *DiscountMetrics {
	discountOnce.Do(func() {
		discountRegistry = &DiscountMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cpswap",
				Subsystem: "discount",
				Name:      "operations_total",
				Help:      "Count of discount ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cpswap",
				Subsystem: "discount",
				Name:      "rejections_total",
				Help:      "Count of rejected discount operations segmented by operation and reason.",
			}, []string{"operation", "reason"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "cpswap",
				Subsystem: "discount",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for discount ledger operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			lastApplied: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "cpswap",
				Subsystem: "discount",
				Name:      "last_applied_numerator",
				Help:      "Numerator written by the most recent successful discount update.",
			}),
		}
		prometheus.MustRegister(
			discountRegistry.operations,
			discountRegistry.rejections,
			discountRegistry.latency,
			discountRegistry.lastApplied,
		)
	})
	return discountRegistry
}

// Observe records the outcome of an operation. reason is only used when the
// operation failed and should be a stable label such as "unauthorized".
func (m *DiscountMetrics) Observe(operation, reason string, duration time.Duration, err error) {
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
		if strings.TrimSpace(reason) == "" {
			reason = "internal"
		}
		m.rejections.WithLabelValues(op, reason).Inc()
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordApplied updates the last-applied gauge.
func (m *DiscountMetrics) RecordApplied(numerator uint64) {
	if m == nil {
		return
	}
	m.lastApplied.Set(float64(numerator))
}

// OperationsCounter exposes the operations collector for assertions.
func (m *DiscountMetrics) OperationsCounter() *prometheus.CounterVec {
	if m == nil {
		return nil
	}
	return m.operations
}

// RejectionsCounter exposes the rejection collector for assertions.
func (m *DiscountMetrics) RejectionsCounter() *prometheus.CounterVec {
	if m == nil {
		return nil
	}
	return m.rejections
}
