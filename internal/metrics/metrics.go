// Package metrics provides Prometheus metrics for hyperwatch.
// It tracks event intake, per-engine processing, filter decisions, alarm
// statuses and storage latencies to help find slow stages of the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "hyperwatch"
)

// Event metrics track the intake and transport of events.
var (
	// EventsReceivedTotal counts events received by the intake API.
	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Total number of events received by the intake API",
		},
		[]string{"event_type"},
	)

	// EventsPublishedTotal counts events published, by destination topic.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of events published to the message queue",
		},
		[]string{"topic"},
	)

	// EventIngestLatency measures time from API receipt to queue publish.
	EventIngestLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_ingest_latency_seconds",
			Help:      "Time from event receipt to queue publish in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// QueuePublishLatency measures time to publish a message to the queue.
	QueuePublishLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_publish_latency_seconds",
			Help:      "Time to publish a message to the queue in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		},
	)
)

// Engine metrics track each stage of the pipeline.
var (
	// EventsProcessedTotal counts events processed per engine and result.
	EventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Total number of events processed",
		},
		[]string{"engine", "result"}, // result: forward, drop, route, error
	)

	// EventProcessingLatency measures time to process a single event.
	EventProcessingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_processing_latency_seconds",
			Help:      "Time to process a single event in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"engine"},
	)

	// BeatsTotal counts configuration reloads.
	BeatsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "beats_total",
			Help:      "Total number of engine beats (configuration reloads)",
		},
		[]string{"engine", "status"}, // status: success, failure
	)

	// FilterDecisionsTotal counts terminal decisions of the filter engine.
	FilterDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_decisions_total",
			Help:      "Total number of pass and drop decisions of the filter engine",
		},
		[]string{"decision", "source"}, // source: rule, default
	)

	// FilterRulesLoaded tracks the size of the active rule set.
	FilterRulesLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "filter_rules_loaded",
			Help:      "Number of filter rules in the active configuration",
		},
	)

	// AlarmStatusTotal counts statuses computed by the alarm state machine.
	AlarmStatusTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarm_status_total",
			Help:      "Total number of alarm statuses computed",
		},
		[]string{"status"},
	)

	// EntityUpsertsTotal counts topology upserts.
	EntityUpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entity_upserts_total",
			Help:      "Total number of topology entity upserts",
		},
		[]string{"type", "status"},
	)

	// HistoryFlushSize tracks how many history entries each flush writes.
	HistoryFlushSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "history_flush_size",
			Help:      "Number of history entries written per flush",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
	)
)

// Notification metrics track alert delivery.
var (
	// AlertsNotifiedTotal counts alerts handed to the notifier.
	AlertsNotifiedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_notified_total",
			Help:      "Total number of alerts delivered to the notifier",
		},
		[]string{"event_type", "status"},
	)

	// NotificationLatency measures time from event timestamp to delivery.
	NotificationLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notification_latency_seconds",
			Help:      "Time from event timestamp to alert delivery in seconds",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
		},
	)
)

// Storage metrics track database and cache operations.
var (
	// StorageOperationLatency measures latency of storage operations.
	StorageOperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_latency_seconds",
			Help:      "Latency of storage operations in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"collection", "operation"},
	)

	// StorageOperationsTotal counts storage operations.
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operations_total",
			Help:      "Total number of storage operations",
		},
		[]string{"collection", "operation", "status"}, // status: success, failure
	)
)
