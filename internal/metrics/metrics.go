// Package metrics holds the Prometheus collectors shared by the workflow,
// the agent tools and the HTTP server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "askdb"

var (
	// requestsTotal counts answered questions by branch.
	// Labels: node (Plot, Answer)
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "requests_total",
		Help:      "Total questions handled by branch",
	}, []string{"node"})

	// branchFailuresTotal counts branches that ended with a sentinel result.
	// Labels: node, kind (no_data, tool_failure, model_failure)
	branchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "branch_failures_total",
		Help:      "Total branch failures by branch and failure kind",
	}, []string{"node", "kind"})

	// requestLatencySeconds measures routing plus branch execution.
	// Labels: node
	requestLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "request_latency_seconds",
		Help:      "End-to-end question latency including routing",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"node"})

	// toolCallsTotal counts agent tool invocations.
	// Labels: tool, status (ok, error, fault)
	toolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "agent",
		Name:      "tool_calls_total",
		Help:      "Total agent tool calls by tool and status",
	}, []string{"tool", "status"})

	// databasesOpen tracks databases held by the server registry.
	databasesOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "server",
		Name:      "databases_open",
		Help:      "Uploaded databases currently registered",
	})

	// indexBuildSeconds measures proper-noun index rebuilds.
	indexBuildSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "nouns",
		Name:      "index_build_seconds",
		Help:      "Proper noun index build duration",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

// RecordRequest records one completed question.
func RecordRequest(node string, elapsed time.Duration) {
	requestsTotal.WithLabelValues(node).Inc()
	requestLatencySeconds.WithLabelValues(node).Observe(elapsed.Seconds())
}

// RecordBranchFailure records a branch that resolved to a sentinel.
func RecordBranchFailure(node, kind string) {
	branchFailuresTotal.WithLabelValues(node, kind).Inc()
}

// RecordToolCall records one tool invocation.
func RecordToolCall(tool, status string) {
	toolCallsTotal.WithLabelValues(tool, status).Inc()
}

func DatabaseOpened() { databasesOpen.Inc() }
func DatabaseClosed() { databasesOpen.Dec() }

// RecordIndexBuild records how long a proper-noun index rebuild took.
func RecordIndexBuild(elapsed time.Duration) {
	indexBuildSeconds.Observe(elapsed.Seconds())
}
