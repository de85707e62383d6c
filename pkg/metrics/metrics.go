package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Document store metrics
	DocumentOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_document_operations_total",
			Help: "Total number of document store operations by model, operation and outcome",
		},
		[]string{"model", "operation", "status"},
	)

	DocumentOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strata_document_operation_duration_seconds",
			Help:    "Document store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model", "operation"},
	)

	// Producer queue (outbox) metrics
	OutboxMessagesEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_outbox_messages_enqueued_total",
			Help: "Total number of messages appended to the producer queue, by topic and op",
		},
		[]string{"topic", "op"},
	)

	OutboxMessagesDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_outbox_messages_delivered_total",
			Help: "Total number of producer queue messages delivered, by topic and outcome",
		},
		[]string{"topic", "status"},
	)

	OutboxDeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strata_outbox_delivery_duration_seconds",
			Help:    "Time from dequeue to transport acknowledgement in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	OutboxRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_outbox_retries_total",
			Help: "Total number of producer queue delivery retries, by topic",
		},
		[]string{"topic"},
	)

	// Access checker metrics
	AccessChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_access_checks_total",
			Help: "Total number of access checks by decision (grant, deny, unknown)",
		},
		[]string{"decision"},
	)

	AccessCheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_access_check_duration_seconds",
			Help:    "Time to resolve a single access check in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AccessCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_access_cache_hits_total",
			Help: "Total number of access checks short-circuited by the decision cache",
		},
	)

	// Task runtime metrics
	TaskRuntimeTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_taskrt_tasks_total",
			Help: "Total number of tasks dispatched by topic worker",
		},
		[]string{"topic"},
	)

	TaskRuntimeQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strata_taskrt_queue_depth",
			Help: "Current number of queued tasks per worker",
		},
		[]string{"worker"},
	)
)

func init() {
	prometheus.MustRegister(
		DocumentOperationsTotal,
		DocumentOperationDuration,
		OutboxMessagesEnqueued,
		OutboxMessagesDelivered,
		OutboxDeliveryDuration,
		OutboxRetriesTotal,
		AccessChecksTotal,
		AccessCheckDuration,
		AccessCacheHitsTotal,
		TaskRuntimeTasksTotal,
		TaskRuntimeQueueDepth,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
