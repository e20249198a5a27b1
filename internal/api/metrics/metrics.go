// Package metrics defines and registers the custom Prometheus metrics of the
// framez client API. It is the single source of truth for metric names,
// labels, and help strings.
//
// All collectors register with the default registry on package init through
// promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "framez"

// ── Session metrics ───────────────────────────────────────────────────────────

// AuthOperationsTotal counts session operations.
// Labels:
//   - operation: "register", "login" or "logout"
//   - result: "ok" or "error"
var AuthOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_operations_total",
		Help:      "Total number of session operations, by operation and result.",
	},
	[]string{"operation", "result"},
)

// ── Post metrics ──────────────────────────────────────────────────────────────

// PostsCreatedTotal counts posts created through the API.
// Label:
//   - with_image: "true" or "false"
var PostsCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "posts_created_total",
		Help:      "Total number of posts created, by whether an image was attached.",
	},
	[]string{"with_image"},
)

// PostsDeletedTotal counts posts deleted through the API.
var PostsDeletedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "posts_deleted_total",
		Help:      "Total number of posts deleted.",
	},
)

// ── Feed metrics ──────────────────────────────────────────────────────────────

// FeedStreamsActive tracks open live feed streams.
// Label:
//   - scope: "global" or "author"
var FeedStreamsActive = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "feed_streams_active",
		Help:      "Current number of open live feed streams.",
	},
	[]string{"scope"},
)

// FeedSnapshotsSentTotal counts feed snapshots pushed to live streams.
var FeedSnapshotsSentTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_snapshots_sent_total",
		Help:      "Total number of feed snapshots written to live streams.",
	},
)

// RefreshQueueDepth tracks pending refetch jobs in each dispatcher worker.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var RefreshQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "refresh_queue_depth",
		Help:      "Current number of feed refetches pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// ── Error metrics ─────────────────────────────────────────────────────────────

// APIErrorsTotal counts error responses.
// Label:
//   - status: HTTP status code class, e.g. "4xx" or "5xx"
var APIErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_errors_total",
		Help:      "Total number of error responses, by status class.",
	},
	[]string{"status"},
)

// Result maps an error to the "result" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
