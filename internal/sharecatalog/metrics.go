package sharecatalog

import "github.com/prometheus/client_golang/prometheus"

// Metrics mirrors the internal/metrics.NewPrometheusCollector pattern: a
// small, purpose-built set of counters/histograms registered by the caller,
// not a tracing pipeline. This is the one piece of the otherwise
// out-of-scope telemetry layer cheap enough to carry as ambient stack (see
// SPEC_FULL.md §4.6).
type Metrics struct {
	txnAttempts *prometheus.CounterVec
	retryCount  prometheus.Histogram
}

// NewMetrics builds a fresh, unregistered Metrics instance. Callers decide
// whether/where to register it (tests typically don't).
func NewMetrics() *Metrics {
	return &Metrics{
		txnAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sharecatalog",
			Name:      "txn_attempts_total",
			Help:      "Number of share-catalog transaction attempts, by operation and outcome.",
		}, []string{"op", "outcome"}),
		retryCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sharecatalog",
			Name:      "txn_retry_count",
			Help:      "Number of retries a share-catalog operation needed before committing or giving up.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 10},
		}),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.txnAttempts.Describe(ch)
	m.retryCount.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.txnAttempts.Collect(ch)
	m.retryCount.Collect(ch)
}

func (m *Metrics) observeAttempt(op string, succeeded bool) {
	if m == nil {
		return
	}
	outcome := "conflict"
	if succeeded {
		outcome = "committed"
	}
	m.txnAttempts.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) observeRetries(n int) {
	if m == nil {
		return
	}
	m.retryCount.Observe(float64(n))
}

var _ prometheus.Collector = (*Metrics)(nil)
