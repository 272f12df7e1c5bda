// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	harvesterPagesTotal        *prometheus.CounterVec
	harvesterFetchRetriesTotal prometheus.Counter
	harvesterAttachmentsTotal  *prometheus.CounterVec
	harvesterOCRFallbacksTotal prometheus.Counter
	harvesterRunsTotal         *prometheus.CounterVec
	harvesterThrottleDelay     prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvesterPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_pages_total",
				Help: "Total pages fetched, labeled by outcome.",
			},
			[]string{"status"},
		)

		harvesterFetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_fetch_retries_total",
				Help: "Total fetch attempts beyond the first.",
			},
		)

		harvesterAttachmentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_attachments_total",
				Help: "Total attachments resolved, labeled by extraction method.",
			},
			[]string{"method"},
		)

		harvesterOCRFallbacksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_ocr_fallbacks_total",
				Help: "Total PDFs routed to the OCR fallback extractor.",
			},
		)

		harvesterRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_runs_total",
				Help: "Total harvest runs, labeled by final status.",
			},
			[]string{"status"},
		)

		harvesterThrottleDelay = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_throttle_delay_seconds",
				Help:    "Histogram of delays introduced by the politeness throttle.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)
	})
}

// IncPage records one fetched page with the given outcome label.
func IncPage(status string) {
	if harvesterPagesTotal != nil {
		harvesterPagesTotal.WithLabelValues(status).Inc()
	}
}

// IncRetry records one retried fetch attempt.
func IncRetry() {
	if harvesterFetchRetriesTotal != nil {
		harvesterFetchRetriesTotal.Inc()
	}
}

// IncAttachment records one resolved attachment by extraction method.
func IncAttachment(method string) {
	if harvesterAttachmentsTotal != nil {
		harvesterAttachmentsTotal.WithLabelValues(method).Inc()
	}
}

// IncOCRFallback records one PDF handed to the OCR extractor.
func IncOCRFallback() {
	if harvesterOCRFallbacksTotal != nil {
		harvesterOCRFallbacksTotal.Inc()
	}
}

// IncRun records the final status of a harvest run.
func IncRun(status string) {
	if harvesterRunsTotal != nil {
		harvesterRunsTotal.WithLabelValues(status).Inc()
	}
}

// ObserveThrottleDelay records a delay imposed by the politeness limiter.
func ObserveThrottleDelay(d time.Duration) {
	if harvesterThrottleDelay != nil {
		harvesterThrottleDelay.Observe(d.Seconds())
	}
}
