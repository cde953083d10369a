package handlers

import (
	"time"

	"github.com/MathiasSchindler/commonsimagedescription/internal/metrics"
)

// observeModelCall records outcome and latency of one language model call.
// Metrics may be nil in tests.
func observeModelCall(m *metrics.Metrics, kind string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.ModelCalls.WithLabelValues(kind, status).Inc()
	m.ModelDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
