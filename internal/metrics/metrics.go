package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsTriggeredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payhula_webhook_events_total",
			Help: "Total number of business events triggered, by event type.",
		},
		[]string{"event_type"},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payhula_webhook_deliveries_total",
			Help: "Total number of delivery attempt outcomes by status.",
		},
		[]string{"status"}, // pending, success, failed, retrying
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payhula_webhook_retries_total",
			Help: "Total number of delivery retries by reason.",
		},
		[]string{"reason"}, // e.g. http_5xx, timeout, network, other
	)

	DLQTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payhula_webhook_dlq_total",
			Help: "Total number of delivery episodes published to the DLQ.",
		},
	)

	DeliveryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payhula_webhook_delivery_latency_seconds",
			Help:    "Latency of outbound webhook HTTP attempts.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	SweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payhula_webhook_sweeps_total",
			Help: "Total number of retry sweep passes.",
		},
	)

	SweepDueRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payhula_webhook_sweep_due_rows",
			Help:    "Number of due retry rows claimed per sweep pass.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		EventsTriggeredTotal,
		DeliveriesTotal,
		RetriesTotal,
		DLQTotal,
		DeliveryLatency,
		SweepsTotal,
		SweepDueRows,
	)
}

// RecordEventTriggered increments the event counter for the given event type
func RecordEventTriggered(eventType string) {
	EventsTriggeredTotal.WithLabelValues(eventType).Inc()
}

// RecordDelivery records one attempt outcome and its latency
func RecordDelivery(status string, latency time.Duration) {
	DeliveriesTotal.WithLabelValues(status).Inc()
	DeliveryLatency.WithLabelValues(status).Observe(latency.Seconds())
}

// RecordRetry increments the retry counter for the given failure reason
func RecordRetry(reason string) {
	RetriesTotal.WithLabelValues(reason).Inc()
}

// RecordDLQ increments the DLQ counter
func RecordDLQ() {
	DLQTotal.Inc()
}

// RecordSweep records one sweep pass and the number of rows it claimed
func RecordSweep(dueRows int) {
	SweepsTotal.Inc()
	SweepDueRows.Observe(float64(dueRows))
}
