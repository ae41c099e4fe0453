// Package metrics exports worker/watchdog Prometheus metrics: named
// vectors registered against a dedicated registry rather than the global
// default one.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exports task-pipeline metrics in Prometheus format.
type Exporter struct {
	registry *prometheus.Registry

	tasksProcessed  *prometheus.CounterVec
	taskLatency     *prometheus.HistogramVec
	tasksRetried    *prometheus.CounterVec
	queueDepth      *prometheus.GaugeVec
	watchdogActions *prometheus.CounterVec
	checkoutsActive prometheus.Gauge
}

// New creates an Exporter with its own registry.
func New() *Exporter {
	registry := prometheus.NewRegistry()

	e := &Exporter{
		registry: registry,
		tasksProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "contentpipe",
				Subsystem: "worker",
				Name:      "tasks_processed_total",
				Help:      "Total number of tasks dispatched, by task_type and outcome",
			},
			[]string{"task_type", "status"},
		),
		taskLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "contentpipe",
				Subsystem: "worker",
				Name:      "task_latency_seconds",
				Help:      "Task handler latency in seconds, by task_type",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"task_type"},
		),
		tasksRetried: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "contentpipe",
				Subsystem: "worker",
				Name:      "tasks_retried_total",
				Help:      "Total number of tasks rescheduled for retry, by task_type",
			},
			[]string{"task_type"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "contentpipe",
				Subsystem: "queue",
				Name:      "depth",
				Help:      "Pending task count, by queue_name",
			},
			[]string{"queue_name"},
		),
		watchdogActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "contentpipe",
				Subsystem: "watchdog",
				Name:      "actions_total",
				Help:      "Rows touched per watchdog action type",
			},
			[]string{"action"},
		),
		checkoutsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "contentpipe",
				Subsystem: "checkout",
				Name:      "active",
				Help:      "Number of content rows currently checked out",
			},
		),
	}

	registry.MustRegister(
		e.tasksProcessed,
		e.taskLatency,
		e.tasksRetried,
		e.queueDepth,
		e.watchdogActions,
		e.checkoutsActive,
	)
	return e
}

// RecordTask records a dispatched task's outcome and handler latency.
func (e *Exporter) RecordTask(taskType string, success bool, latency time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	e.tasksProcessed.WithLabelValues(taskType, status).Inc()
	e.taskLatency.WithLabelValues(taskType).Observe(latency.Seconds())
}

// RecordRetry records a task being rescheduled for another attempt.
func (e *Exporter) RecordRetry(taskType string) {
	e.tasksRetried.WithLabelValues(taskType).Inc()
}

// SetQueueDepth reports the pending count for a queue partition.
func (e *Exporter) SetQueueDepth(queueName string, depth int64) {
	e.queueDepth.WithLabelValues(queueName).Set(float64(depth))
}

// RecordWatchdogAction records the row count touched by one watchdog action.
func (e *Exporter) RecordWatchdogAction(action string, rows int64) {
	if rows > 0 {
		e.watchdogActions.WithLabelValues(action).Add(float64(rows))
	}
}

// SetActiveCheckouts reports the current count of checked-out content rows.
func (e *Exporter) SetActiveCheckouts(count int64) {
	e.checkoutsActive.Set(float64(count))
}

// Handler returns the HTTP handler serving this exporter's /metrics.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
