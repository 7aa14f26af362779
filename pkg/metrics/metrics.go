// Package metrics instruments casjobs requests with Prometheus counters
// and histograms. The client stays silent unless a Recorder is attached.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder tracks request counts and durations per service operation.
type Recorder struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRecorder creates a Recorder and registers its collectors with reg.
// Pass prometheus.DefaultRegisterer to use the process-wide registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casjobs_requests_total",
				Help: "Total requests issued against the CasJobs service",
			},
			[]string{"operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "casjobs_request_duration_seconds",
				Help:    "Duration of CasJobs service requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
	reg.MustRegister(r.requests)
	reg.MustRegister(r.duration)
	return r
}

// Observe records one completed request. Safe to call on a nil Recorder.
func (r *Recorder) Observe(operation, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(operation, outcome).Inc()
	r.duration.WithLabelValues(operation).Observe(d.Seconds())
}
