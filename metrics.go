package pool

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds pool metrics. The zero value records plain counters only;
// pass MetricsOptions to NewMetrics to additionally register Prometheus
// collectors.
type Metrics struct {
	acquireCount         int64
	acquireDuration      time.Duration
	emptyAcquireCount    int64
	canceledAcquireCount atomic.Int64
	evictionCount        atomic.Int64
	createErrorCount     atomic.Int64
	destroyErrorCount    atomic.Int64

	// acquireDurationHistogram can be nil.
	acquireDurationHistogram *prometheus.HistogramVec
	// destroyDurationHistogram can be nil.
	destroyDurationHistogram *prometheus.HistogramVec

	// sizeGauge, availableGauge, borrowedGauge, pendingGauge can be nil.
	sizeGauge      prometheus.Gauge
	availableGauge prometheus.Gauge
	borrowedGauge  prometheus.Gauge
	pendingGauge   prometheus.Gauge
}

func NewMetrics(opts ...MetricsOption) *Metrics {
	var m Metrics
	for _, o := range opts {
		o(&m)
	}
	return &m
}

func (m *Metrics) observeAcquireDuration(d time.Duration, isEmptyAcquire bool) {
	m.acquireCount++
	m.acquireDuration += d
	if isEmptyAcquire {
		m.emptyAcquireCount++
	}

	if m.acquireDurationHistogram != nil {
		m.acquireDurationHistogram.
			WithLabelValues(strconv.FormatBool(isEmptyAcquire)).
			Observe(float64(d.Nanoseconds()))
	}
}

func (m *Metrics) observeAcquireCancel() {
	m.canceledAcquireCount.Add(1)
}

func (m *Metrics) observeDestroyDuration(d time.Duration, reason string) {
	if m.destroyDurationHistogram != nil {
		m.destroyDurationHistogram.
			WithLabelValues(reason).
			Observe(float64(d.Nanoseconds()))
	}
}

func (m *Metrics) observeEviction() {
	m.evictionCount.Add(1)
}

func (m *Metrics) observeCreateError() {
	m.createErrorCount.Add(1)
}

func (m *Metrics) observeDestroyError() {
	m.destroyErrorCount.Add(1)
}

func (m *Metrics) observeSize(size, available, borrowed, pending int) {
	if m.sizeGauge != nil {
		m.sizeGauge.Set(float64(size))
	}
	if m.availableGauge != nil {
		m.availableGauge.Set(float64(available))
	}
	if m.borrowedGauge != nil {
		m.borrowedGauge.Set(float64(borrowed))
	}
	if m.pendingGauge != nil {
		m.pendingGauge.Set(float64(pending))
	}
}

type MetricsOption func(m *Metrics)

// WithAcquireDurationHistogram turns on recording of pool resource acquire
// duration. Histogram metrics can be very expensive for Prometheus to
// retain and query.
func WithAcquireDurationHistogram(reg prometheus.Registerer, opts ...HistogramOption) MetricsOption {
	return func(m *Metrics) {
		histOpts := prometheus.HistogramOpts{
			Name:    "pool_acquire_duration_nanoseconds",
			Help:    "Histogram of a pool resource acquire duration (nanoseconds).",
			Buckets: prometheus.DefBuckets,
		}
		for _, o := range opts {
			o(&histOpts)
		}

		m.acquireDurationHistogram = prometheus.NewHistogramVec(histOpts, []string{"empty"})
		reg.MustRegister(m.acquireDurationHistogram)
	}
}

// WithDestroyDurationHistogram turns on recording of factory destroy call
// duration, labeled by the reason the destroy was triggered.
func WithDestroyDurationHistogram(reg prometheus.Registerer, opts ...HistogramOption) MetricsOption {
	return func(m *Metrics) {
		histOpts := prometheus.HistogramOpts{
			Name:    "pool_destroy_duration_nanoseconds",
			Help:    "Histogram of a pool resource destroy duration (nanoseconds).",
			Buckets: prometheus.DefBuckets,
		}
		for _, o := range opts {
			o(&histOpts)
		}

		m.destroyDurationHistogram = prometheus.NewHistogramVec(histOpts, []string{"reason"})
		reg.MustRegister(m.destroyDurationHistogram)
	}
}

// WithSizeGauges registers gauges tracking pool size, available count,
// borrowed count, and waiting-request count.
func WithSizeGauges(reg prometheus.Registerer) MetricsOption {
	return func(m *Metrics) {
		m.sizeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pool_size",
			Help: "Current number of resources managed by the pool.",
		})
		m.availableGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pool_available",
			Help: "Current number of idle resources available for dispense.",
		})
		m.borrowedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pool_borrowed",
			Help: "Current number of resources on loan.",
		})
		m.pendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pool_pending_acquires",
			Help: "Current number of Acquire calls waiting in the queue.",
		})
		reg.MustRegister(m.sizeGauge, m.availableGauge, m.borrowedGauge, m.pendingGauge)
	}
}

// A HistogramOption lets you add options to Histogram metrics using With*
// funcs.
type HistogramOption func(*prometheus.HistogramOpts)

// WithHistogramBuckets allows you to specify custom bucket ranges for
// histograms.
func WithHistogramBuckets(buckets []float64) HistogramOption {
	return func(o *prometheus.HistogramOpts) { o.Buckets = buckets }
}

// WithHistogramConstLabels allows you to add custom ConstLabels to
// histograms metrics.
func WithHistogramConstLabels(labels prometheus.Labels) HistogramOption {
	return func(o *prometheus.HistogramOpts) {
		o.ConstLabels = labels
	}
}

// WithHistogramSubsystem allows you to add a Subsystem to histograms
// metrics.
func WithHistogramSubsystem(subsystem string) HistogramOption {
	return func(o *prometheus.HistogramOpts) {
		o.Subsystem = subsystem
	}
}
