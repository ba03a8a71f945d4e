// Package metrics provides Prometheus metrics for the dirpull server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	connectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirpull_connections_total",
			Help: "Total number of accepted connections",
		},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirpull_active_connections",
			Help: "Connections currently served by a worker",
		},
	)

	queuedConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirpull_queued_connections",
			Help: "Accepted connections waiting for a free worker",
		},
	)

	acceptErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirpull_accept_errors_total",
			Help: "Total number of failed accepts",
		},
	)

	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirpull_commands_total",
			Help: "Total number of commands by verb",
		},
		[]string{"verb"},
	)

	bundleFilesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirpull_bundle_files_sent_total",
			Help: "Total number of files sent in directory bundles",
		},
	)

	bundleBytesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirpull_bundle_bytes_sent_total",
			Help: "Total file content bytes sent in directory bundles",
		},
	)

	bundlesAborted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirpull_bundles_aborted_total",
			Help: "Bundles whose connection was torn down mid-transfer",
		},
	)
)

func RecordAccept() {
	connectionsTotal.Inc()
}

func RecordAcceptError() {
	acceptErrorsTotal.Inc()
}

func SetQueued(n int) {
	queuedConnections.Set(float64(n))
}

// ConnectionStarted marks a worker picking up a connection and returns the
// matching completion callback.
func ConnectionStarted() func() {
	activeConnections.Inc()
	return activeConnections.Dec
}

func RecordCommand(verb string) {
	commandsTotal.WithLabelValues(verb).Inc()
}

func RecordBundleFile(size int64) {
	bundleFilesSent.Inc()
	bundleBytesSent.Add(float64(size))
}

func RecordBundleAborted() {
	bundlesAborted.Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
