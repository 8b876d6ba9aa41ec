// Package metrics holds the Prometheus collectors for the conversion pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "doctext"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry  *prometheus.Registry
	documents *prometheus.CounterVec
	ocrPages  prometheus.Counter
	repairs   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Documents processed, by kind, extraction method and status.",
		}, []string{"kind", "method", "status"}),
		ocrPages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ocr_pages_total",
			Help:      "Pages recognized and appended by the OCR path.",
		}),
		repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repairs_total",
			Help:      "Quality gate reprocessing attempts, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "document_duration_seconds",
			Help:      "Wall time spent extracting a single document.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"kind"}),
	}
	m.registry.MustRegister(m.documents, m.ocrPages, m.repairs, m.duration)
	return m
}

func (m *Metrics) ObserveDocument(kind, method, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(kind, method, status).Inc()
	m.duration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *Metrics) AddOCRPage() {
	if m == nil {
		return
	}
	m.ocrPages.Inc()
}

func (m *Metrics) ObserveRepair(outcome string) {
	if m == nil {
		return
	}
	m.repairs.WithLabelValues(outcome).Inc()
}

// WriteTextfile dumps all collectors in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
