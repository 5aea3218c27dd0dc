// Package metrics provides Prometheus metrics for the focusync sync core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// No high-cardinality labels: session ids and correlation ids never
// appear as label values.

var (
	// Counters

	// EventsEnqueuedTotal counts events appended to the batch queue, by type.
	EventsEnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focusync_events_enqueued_total",
		Help: "Total number of events appended to the durable batch queue, by event type.",
	}, []string{"type"})

	// EventsFlushedTotal counts events confirmed delivered in a batch.
	EventsFlushedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "focusync_events_flushed_total",
		Help: "Total number of events removed from the queue after a successful batch send.",
	})

	// FlushFailuresTotal counts failed batch sends.
	FlushFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "focusync_flush_failures_total",
		Help: "Total number of batch sends that failed and left the queue unchanged.",
	})

	// InterruptionsRecordedTotal counts interruptions accepted by the filter.
	InterruptionsRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focusync_interruptions_recorded_total",
		Help: "Total number of interruptions recorded, by type.",
	}, []string{"type"})

	// InterruptionsDroppedTotal counts signals suppressed by the filter.
	InterruptionsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focusync_interruptions_dropped_total",
		Help: "Total number of interruption signals dropped, by reason (duplicate, capped, inactive).",
	}, []string{"reason"})

	// TransportReconnectsTotal counts channel reconnection attempts.
	TransportReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "focusync_transport_reconnects_total",
		Help: "Total number of channel reconnection attempts.",
	})

	// RetrySweepTotal counts retry-sweep item outcomes.
	RetrySweepTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focusync_retry_sweep_total",
		Help: "Total number of retry-sweep item outcomes (delivered, failed, abandoned).",
	}, []string{"outcome"})

	// Gauges

	// QueueDepth tracks the current durable queue length.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "focusync_queue_depth",
		Help: "Current number of unflushed events in the durable queue.",
	})

	// PendingSubmissions tracks the current pending-submission count.
	PendingSubmissions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "focusync_pending_submissions",
		Help: "Current number of content submissions awaiting retry.",
	})

	// TransportConnected reports channel state (1 connected, 0 otherwise).
	TransportConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "focusync_transport_connected",
		Help: "Whether a live channel to the sync server exists (synthetic mode reports 0).",
	})

	// SessionActive reports whether a focus session is running.
	SessionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "focusync_session_active",
		Help: "Whether a focus session is currently active.",
	})
)

// RecordEnqueued increments the enqueue counter for an event type.
func RecordEnqueued(eventType string) {
	EventsEnqueuedTotal.WithLabelValues(eventType).Inc()
}

// RecordFlushed adds n delivered events to the flushed counter.
func RecordFlushed(n int) {
	EventsFlushedTotal.Add(float64(n))
}

// RecordFlushFailure increments the flush failure counter.
func RecordFlushFailure() {
	FlushFailuresTotal.Inc()
}

// RecordInterruption increments the recorded counter for an interruption type.
func RecordInterruption(interruptionType string) {
	InterruptionsRecordedTotal.WithLabelValues(interruptionType).Inc()
}

// RecordDropped increments the dropped counter for a suppression reason.
func RecordDropped(reason string) {
	InterruptionsDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordReconnect increments the reconnect counter.
func RecordReconnect() {
	TransportReconnectsTotal.Inc()
}

// RecordSweepOutcome increments the sweep counter for an item outcome.
func RecordSweepOutcome(outcome string) {
	RetrySweepTotal.WithLabelValues(outcome).Inc()
}
