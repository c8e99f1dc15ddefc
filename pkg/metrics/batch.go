package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BatchEngineMetrics records notification engine activity.
type BatchEngineMetrics struct {
	admitted      *prometheus.CounterVec
	delivered     *prometheus.CounterVec
	suppressed    prometheus.Counter
	retries       prometheus.Counter
	flushDuration prometheus.Histogram
	pending       prometheus.Gauge
}

// NewBatchEngineMetrics registers the engine metrics on the provided registerer.
func NewBatchEngineMetrics(reg prometheus.Registerer) *BatchEngineMetrics {
	if reg == nil {
		return &BatchEngineMetrics{}
	}
	admitted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_admitted_total",
		Help: "Notifications accepted by the batcher, by policy decision.",
	}, []string{"decision"})
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_delivered_total",
		Help: "Notifications handed to the delivery channel, by trigger.",
	}, []string{"trigger"})
	suppressed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_suppressed_total",
		Help: "Notifications deferred by quiet hours or weekend mode.",
	})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_delivery_retries_total",
		Help: "Digests requeued after a delivery channel failure.",
	})
	flushDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "notification_flush_duration_seconds",
		Help:    "Duration of scheduler reconciliation passes.",
		Buckets: prometheus.DefBuckets,
	})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "notifications_pending",
		Help: "Notifications currently waiting in recipient batches.",
	})
	reg.MustRegister(admitted, delivered, suppressed, retries, flushDuration, pending)
	return &BatchEngineMetrics{
		admitted:      admitted,
		delivered:     delivered,
		suppressed:    suppressed,
		retries:       retries,
		flushDuration: flushDuration,
		pending:       pending,
	}
}

// IncAdmitted counts an accepted notification by decision label.
func (m *BatchEngineMetrics) IncAdmitted(decision string) {
	if m == nil || m.admitted == nil {
		return
	}
	m.admitted.WithLabelValues(normalizeLabel(decision)).Inc()
}

// AddDelivered counts notifications handed to the delivery channel.
func (m *BatchEngineMetrics) AddDelivered(trigger string, count int) {
	if m == nil || m.delivered == nil {
		return
	}
	m.delivered.WithLabelValues(normalizeLabel(trigger)).Add(float64(count))
}

// IncSuppressed counts a quiet-hours/weekend deferral.
func (m *BatchEngineMetrics) IncSuppressed() {
	if m == nil || m.suppressed == nil {
		return
	}
	m.suppressed.Inc()
}

// IncRetry counts a digest requeued after delivery failure.
func (m *BatchEngineMetrics) IncRetry() {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Inc()
}

// ObserveFlush records a reconciliation pass duration.
func (m *BatchEngineMetrics) ObserveFlush(duration time.Duration) {
	if m == nil || m.flushDuration == nil {
		return
	}
	m.flushDuration.Observe(duration.Seconds())
}

// SetPending tracks the current pending backlog size.
func (m *BatchEngineMetrics) SetPending(count int) {
	if m == nil || m.pending == nil {
		return
	}
	m.pending.Set(float64(count))
}
