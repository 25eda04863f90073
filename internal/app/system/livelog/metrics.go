// internal/app/system/livelog/metrics.go
package livelog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// recordsTotal counts record attempts by scope kind and outcome.
	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratalog_records_total",
		Help: "Log records offered to a scope, by scope kind and result (stored, duplicate)",
	}, []string{"kind", "result"})

	// sendFailures counts payloads a connection refused.
	sendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratalog_send_failures_total",
		Help: "Failed sends to live connections, by operation (fanout, replay)",
	}, []string{"op"})

	// replaysTotal counts replay payloads sent.
	replaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stratalog_replays_total",
		Help: "Replay payloads sent to newly attached connections",
	})

	// replaySize tracks records per replay payload.
	replaySize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stratalog_replay_records",
		Help:    "Number of records in each replay payload",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8), // 1 to ~16k
	})

	// scopesGauge tracks registered scopes by kind.
	scopesGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stratalog_scopes",
		Help: "Registered log scopes by kind (user, session)",
	}, []string{"kind"})

	// connectionsGauge tracks live connections attached to the router.
	connectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stratalog_connections",
		Help: "Live connections attached to the global scope",
	})

	// unresolvedTotal counts records whose identity named no scope.
	unresolvedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stratalog_unresolved_records_total",
		Help: "Records routed to the global scope because their identity named no scope",
	})
)
