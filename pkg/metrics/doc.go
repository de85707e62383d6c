/*
Package metrics provides Prometheus metrics collection and exposition
for the document store, producer queue, access checker, and task
runtime. Metrics are exposed via an HTTP endpoint for scraping by
Prometheus servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Docstore:  operations, latency             │          │
	│  │  Outbox:    enqueued, delivered, retries    │          │
	│  │  Access:    checks, cache hits, latency     │          │
	│  │  TaskRt:    tasks dispatched, queue depth   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metrics Catalog

strata_document_operations_total{model, operation, status}:
  - Type: Counter
  - Total document store operations by model, operation and outcome

strata_document_operation_duration_seconds{model, operation}:
  - Type: Histogram
  - Document store operation duration

strata_outbox_messages_enqueued_total{topic, op}:
  - Type: Counter
  - Messages appended to the producer queue

strata_outbox_messages_delivered_total{topic, status}:
  - Type: Counter
  - Producer queue messages delivered, by outcome

strata_outbox_delivery_duration_seconds{topic}:
  - Type: Histogram
  - Time from dequeue to transport acknowledgement

strata_outbox_retries_total{topic}:
  - Type: Counter
  - Delivery retries

strata_access_checks_total{decision}:
  - Type: Counter
  - Access checks resolved, by decision (grant/deny/unknown)

strata_access_check_duration_seconds:
  - Type: Histogram
  - Time to resolve one access check

strata_access_cache_hits_total:
  - Type: Counter
  - Checks short-circuited by the decision cache

strata_taskrt_tasks_total{topic}:
  - Type: Counter
  - Tasks dispatched per topic

strata_taskrt_queue_depth{worker}:
  - Type: Gauge
  - Queued tasks per worker

# Usage

	timer := metrics.NewTimer()
	id, err := store.Create(ctx, "document", topic, unit)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.DocumentOperationsTotal.WithLabelValues("document", "create", status).Inc()
	timer.ObserveDurationVec(metrics.DocumentOperationDuration, "document", "create")

# Design Patterns

Package Init Registration:
  - All metrics registered in init()
  - MustRegister panics on duplicate registration

Label Discipline:
  - Labels are bounded enums (model name, operation, status, decision)
  - No object IDs or timestamps as labels

# See Also

  - Prometheus client library: https://github.com/prometheus/client_golang
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
