/*
Package metrics provides Prometheus instrumentation for bomtrack.

All collectors are package-level and registered once at init. The CLI
exposes them via Handler() on an optional listen address; library consumers
get them for free on whatever registry serves the default gatherer.

# Metrics

	bomtrack_events_total{type,outcome}      inbound events: accepted,
	                                         duplicate, rejected, malformed
	bomtrack_notifications_total{kind}       dispatched notifications
	bomtrack_push_connects_total             successful push connections
	bomtrack_push_retries_total              push reconnect attempts
	bomtrack_snapshot_fetches_total{status}  poll fetches: ok, error
	bomtrack_failovers_total                 push-to-poll switches
	bomtrack_active_transport{job_id,transport}  1 for the active transport

# Usage

	http.Handle("/metrics", metrics.Handler())

	metrics.EventsTotal.WithLabelValues("progress", "accepted").Inc()
	metrics.SetActiveTransport("job-123", "poll")
*/
package metrics
