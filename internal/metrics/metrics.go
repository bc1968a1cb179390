package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_events_published_total",
			Help: "Events handed to the event bus, by type and result",
		},
		[]string{"type", "result"},
	)

	HandlerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_handler_failures_total",
			Help: "Subscriber invocations that returned an error or panicked",
		},
		[]string{"handler"},
	)

	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notifier_handler_duration_seconds",
			Help:    "Subscriber invocation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"handler"},
	)

	PushSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_push_sent_total",
			Help: "Push messages sent to the provider, by result",
		},
		[]string{"result"}, // ok, permanent, error
	)

	ReceiptsChecked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_push_receipts_total",
			Help: "Provider receipts reconciled, by result",
		},
		[]string{"result"},
	)

	DeviceTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_device_state_transitions_total",
			Help: "Token health transitions, by target state",
		},
		[]string{"to"},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifier_ws_connections",
			Help: "Open websocket connections",
		},
	)

	WSMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_ws_messages_total",
			Help: "Socket events emitted, by socket event name",
		},
		[]string{"event"},
	)

	SweeperFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_sweeper_fired_total",
			Help: "Scheduled events processed by the sweeper, by result",
		},
		[]string{"result"}, // fired, retry, failed
	)

	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_job_runs_total",
			Help: "Maintenance job runs, by job and result",
		},
		[]string{"job", "result"},
	)
)

// RecordPublish counts a publish attempt.
func RecordPublish(eventType string, err error) {
	EventsPublished.WithLabelValues(eventType, result(err)).Inc()
}

// RecordHandler observes one subscriber invocation.
func RecordHandler(handler string, duration time.Duration, failed bool) {
	HandlerDuration.WithLabelValues(handler).Observe(duration.Seconds())
	if failed {
		HandlerFailures.WithLabelValues(handler).Inc()
	}
}

// RecordPush counts push send results.
func RecordPush(outcome string, n int) {
	PushSent.WithLabelValues(outcome).Add(float64(n))
}

// RecordReceipt counts a reconciled receipt.
func RecordReceipt(outcome string) {
	ReceiptsChecked.WithLabelValues(outcome).Inc()
}

// RecordTransition counts a device moving into state.
func RecordTransition(state string) {
	DeviceTransitions.WithLabelValues(state).Inc()
}

// RecordSweep counts a scheduled event outcome.
func RecordSweep(outcome string) {
	SweeperFired.WithLabelValues(outcome).Inc()
}

// RecordJob counts a maintenance job run.
func RecordJob(job string, err error) {
	JobRuns.WithLabelValues(job, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
