package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Reconciler metrics
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bomtrack_events_total",
			Help: "Total number of inbound events by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bomtrack_notifications_total",
			Help: "Total number of notifications dispatched by kind",
		},
		[]string{"kind"},
	)

	// Push channel metrics
	PushConnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bomtrack_push_connects_total",
			Help: "Total number of successful push channel connections",
		},
	)

	PushRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bomtrack_push_retries_total",
			Help: "Total number of push channel reconnect attempts",
		},
	)

	// Poll channel metrics
	SnapshotFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bomtrack_snapshot_fetches_total",
			Help: "Total number of snapshot fetches by status",
		},
		[]string{"status"},
	)

	// Supervisor metrics
	FailoversTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bomtrack_failovers_total",
			Help: "Total number of push-to-poll failovers",
		},
	)

	ActiveTransport = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bomtrack_active_transport",
			Help: "Active transport per tracked job (1 = active)",
		},
		[]string{"job_id", "transport"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(EventsTotal)
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(PushConnectsTotal)
	prometheus.MustRegister(PushRetriesTotal)
	prometheus.MustRegister(SnapshotFetchesTotal)
	prometheus.MustRegister(FailoversTotal)
	prometheus.MustRegister(ActiveTransport)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetActiveTransport records which transport is active for a job
func SetActiveTransport(jobID, transport string) {
	for _, t := range []string{"push", "poll", "none"} {
		v := 0.0
		if t == transport {
			v = 1.0
		}
		ActiveTransport.WithLabelValues(jobID, t).Set(v)
	}
}
