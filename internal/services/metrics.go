package services

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbourn/wa-intercom-relay/internal/domain"
)

var (
	// relayOutcomes counts terminal relay results. code is "" on success.
	relayOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "outcomes_total",
			Help:      "Relay runs by direction, final event status and error code.",
		},
		[]string{"direction", "status", "code"},
	)

	// relayDuration observes the wall time of one relay run.
	relayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "relay",
			Name:      "duration_seconds",
			Help:      "Duration of relay runs in seconds.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"direction"},
	)

	// webhookDeliveries counts inbound webhooks by integration and the
	// status recorded on their event.
	webhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "webhook_deliveries_total",
			Help:      "Inbound webhook deliveries by integration, recorded status and code.",
		},
		[]string{"integration", "status", "code"},
	)

	// dispatcherQueued gauges relay jobs waiting for or running on a worker.
	dispatcherQueued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "dispatcher_jobs_inflight",
			Help:      "Relay jobs submitted to the worker pool and not yet finished.",
		},
	)
)

func init() {
	prometheus.MustRegister(relayOutcomes, relayDuration, webhookDeliveries, dispatcherQueued)
}

func observeOutcome(dir domain.Direction, status domain.EventStatus, code string) {
	relayOutcomes.WithLabelValues(string(dir), string(status), code).Inc()
}

func observeDelivery(integration string, status domain.EventStatus, code string) {
	webhookDeliveries.WithLabelValues(integration, string(status), code).Inc()
}
