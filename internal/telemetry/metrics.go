// Package telemetry exposes Prometheus counters for the webhook pipeline.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	WebhooksReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sidekick_webhooks_received_total", Help: "Webhook deliveries received, by event kind"},
		[]string{"event"},
	)
	SignatureRejects = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sidekick_signature_rejects_total", Help: "Webhook deliveries rejected by signature or replay-window checks"},
	)
	AccessDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sidekick_access_denied_total", Help: "Requests denied by access control, by reason"},
		[]string{"reason"},
	)
	JobsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sidekick_jobs_created_total", Help: "Processing jobs created"},
	)
	JobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sidekick_jobs_finished_total", Help: "Processing jobs finished, by terminal status"},
		[]string{"status"},
	)
	JobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sidekick_job_duration_seconds",
			Help:    "End-to-end job execution time",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			WebhooksReceived,
			SignatureRejects,
			AccessDenied,
			JobsCreated,
			JobsFinished,
			JobDuration,
		)
	})
	return promhttp.Handler()
}
