// Package metrics holds the prometheus collectors shared by faceauth packages.
// A CLI process is short-lived, so the registry is exported to a
// node-exporter textfile instead of being scraped.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry collects every faceauth metric. It is separate from the default
// registry so the textfile only contains faceauth series.
var Registry = prometheus.NewRegistry()

var (
	StreamsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "faceauth",
			Name:      "streams_live",
			Help:      "Camera streams currently held",
		},
	)

	StreamsAcquired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "faceauth",
			Name:      "streams_acquired_total",
			Help:      "Camera streams successfully acquired",
		},
	)

	StreamsReleased = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "faceauth",
			Name:      "streams_released_total",
			Help:      "Camera streams released",
		},
	)

	CaptureAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faceauth",
			Name:      "capture_attempts_total",
			Help:      "Face capture attempts by result",
		},
		[]string{"result"},
	)

	ModelLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faceauth",
			Name:      "model_loads_total",
			Help:      "Detector model loads by model and outcome",
		},
		[]string{"model", "outcome"},
	)

	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faceauth",
			Name:      "api_requests_total",
			Help:      "Auth API requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	DevServerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faceauth",
			Subsystem: "devserver",
			Name:      "requests_total",
			Help:      "Requests served by the development auth server",
		},
		[]string{"path", "status"},
	)
)

func init() {
	Registry.MustRegister(
		StreamsLive,
		StreamsAcquired,
		StreamsReleased,
		CaptureAttempts,
		ModelLoads,
		APIRequests,
		DevServerRequests,
	)
}

// Outcome labels a request or load as "ok" or "error".
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// StatusLabel renders an HTTP status code as a label value.
func StatusLabel(code int) string {
	return strconv.Itoa(code)
}

// WriteTextfile writes the registry in the node-exporter textfile format.
// An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, Registry)
}
