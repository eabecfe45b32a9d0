// Package metrics exposes Prometheus collectors for the processing pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Document results.
const (
	ResultProcessed = "processed"
	ResultSkipped   = "skipped"
	ResultFailed    = "failed"
)

var (
	DocumentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "practicos_documents_total",
		Help: "Total number of PDF documents handled by result",
	}, []string{"result"})

	PagesRecognizedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "practicos_ocr_pages_total",
		Help: "Total number of pages sent to OCR by engine and outcome",
	}, []string{"engine", "outcome"})

	AIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "practicos_ai_requests_total",
		Help: "Total number of AI extraction requests by provider and result",
	}, []string{"provider", "result"})

	DocumentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "practicos_document_processing_seconds",
		Help:    "Time spent turning one PDF into a workbook",
		Buckets: []float64{1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	})
)

// IncDocument records a handled document.
func IncDocument(result string) {
	DocumentsTotal.WithLabelValues(result).Inc()
}

// IncPage records one OCR'd page. Outcome is "ok", "error" or "duplicate".
func IncPage(engine, outcome string) {
	if engine == "" {
		engine = "unknown"
	}
	PagesRecognizedTotal.WithLabelValues(engine, outcome).Inc()
}

func IncAIRequest(provider, result string) {
	if provider == "" {
		provider = "unknown"
	}
	AIRequestsTotal.WithLabelValues(provider, result).Inc()
}

func ObserveDocument(seconds float64) {
	DocumentDuration.Observe(seconds)
}
