// Package metrics provides Prometheus metrics for the enrichment server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the server.
type Metrics struct {
	// Uploads handled (total)
	Uploads *prometheus.CounterVec

	// Enrichment calls (geocode, pois, wikidata)
	EnrichmentCalls *prometheus.CounterVec

	// Model calls (describe, translate, suggest-filename)
	ModelCalls *prometheus.CounterVec

	// Upload pipeline duration histogram
	UploadDuration prometheus.Histogram

	// Model call duration histogram
	ModelDuration *prometheus.HistogramVec
}

// New creates and registers all server metrics.
func New() *Metrics {
	return &Metrics{
		Uploads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "upload_requests_total",
			Help: "Total number of upload requests",
		}, []string{"status"}), // status: success, bad_request, failed

		EnrichmentCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enrichment_calls_total",
			Help: "Total number of geographic enrichment calls",
		}, []string{"service", "status"}), // service: geocode, pois, wikidata

		ModelCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "model_calls_total",
			Help: "Total number of language model calls",
		}, []string{"kind", "status"}), // kind: describe, translate, suggest_filename

		UploadDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "upload_duration_seconds",
			Help:    "Time taken to decode, store and enrich an upload",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),

		ModelDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "model_call_duration_seconds",
			Help:    "Time taken by language model calls",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"kind"}),
	}
}
