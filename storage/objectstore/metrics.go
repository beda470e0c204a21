package objectstore

import "github.com/prometheus/client_golang/prometheus"

// storeMetrics tracks per-operation counters for one bucket. A nil
// receiver is a no-op so metrics stay optional.
type storeMetrics struct {
	operations *prometheus.CounterVec
	errors     *prometheus.CounterVec
	bytes      *prometheus.CounterVec
}

func newStoreMetrics(reg prometheus.Registerer, bucket string) *storeMetrics {
	labels := prometheus.Labels{"bucket": bucket}
	m := &storeMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "semledger_objectstore_operations_total",
			Help:        "Total object store operations by type",
			ConstLabels: labels,
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "semledger_objectstore_errors_total",
			Help:        "Total object store operation failures by type",
			ConstLabels: labels,
		}, []string{"operation"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "semledger_objectstore_bytes_total",
			Help:        "Total bytes transferred by operation type",
			ConstLabels: labels,
		}, []string{"operation"}),
	}
	reg.MustRegister(m.operations, m.errors, m.bytes)
	return m
}

func (m *storeMetrics) observe(operation string, size int) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation).Inc()
	if size > 0 {
		m.bytes.WithLabelValues(operation).Add(float64(size))
	}
}

func (m *storeMetrics) observeError(operation string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(operation).Inc()
}
