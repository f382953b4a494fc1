// Package metrics defines prometheus metric types and provides convenience
// methods to add accounting to various parts of the pipeline.
//
// When defining new operations or metrics, these are helpful values to track:
//  - things coming into or go out of the system: requests, files, tests, api calls.
//  - the success or error status of any of the above.
//  - the distribution of processing latency.
package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesTotal counts frames crossing the bridge, by direction ("rx"
	// from the bus, "tx" to the bus).
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "touchbridge_frames_total",
			Help: "Frames crossing the bridge, by direction.",
		},
		[]string{"direction"})

	// FIFOOverflowTotal counts FIFO overflow events (spec §4.2's sticky
	// overflow flag, observed each time it is newly set).
	FIFOOverflowTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "touchbridge_fifo_overflow_total",
			Help: "Number of times a node's receive FIFO overflowed.",
		})

	// DiscoveryDurationHistogram tracks discovery latency, labeled by
	// stage. touchbridged observes each whole discovery run under the
	// "run" label; the individual stages are not timed separately.
	DiscoveryDurationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "touchbridge_discovery_duration_seconds",
			Help:    "Address-discovery stage latency distribution (seconds).",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"stage"})

	// DaemonClients tracks the number of TCP clients currently connected
	// to touchbridged.
	DaemonClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "touchbridge_daemon_clients",
			Help: "Number of TCP clients currently connected to touchbridged.",
		})

	// ClientErrorsTotal counts client-visible failures, by type. The
	// daemon records only "tlv" (a client payload that is not a valid
	// hex frame); timeouts and error responses are not counted.
	ClientErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "touchbridge_client_errors_total",
			Help: "Client-facing request failures, by type.",
		},
		[]string{"type"})
)

// init() prints a log message to let the user know that the package has been
// loaded and the metrics registered. The metrics are auto-registered, which
// means they are registered as soon as this package is loaded, and the exact
// time this occurs (and whether this occurs at all in a given context) can be
// opaque.
func init() {
	log.Println("Prometheus metrics in touchbridge.metrics are registered.")
}
