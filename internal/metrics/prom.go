package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "mcpgate_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "gateway"},
		},
		[]string{"date", "sha", "version"},
	)

	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpgate_requests_total",
			Help: "Number of bridged JSON-RPC requests",
		},
		[]string{"method", "outcome"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcpgate_request_duration_seconds",
			Help:    "Bridged request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	engineUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcpgate_engine_up",
			Help: "Whether the engine session is ready (1) or not (0)",
		},
	)

	engineRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mcpgate_engine_restarts_total",
			Help: "Number of engine process starts",
		},
	)

	notifications = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mcpgate_notifications_total",
			Help: "Engine notifications observed on the session stream",
		},
	)

	wsClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcpgate_ws_clients",
			Help: "Connected websocket subscribers",
		},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, requests, requestDuration, engineUp, engineRestarts, notifications, wsClients)
}

// SetBuildInfo sets the build info metric for the gateway.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// RecordRequest increments the request counter for a method/outcome pair.
func RecordRequest(method, outcome string) {
	requests.WithLabelValues(method, outcome).Inc()
}

// ObserveRequestDuration records the duration of a bridged request.
func ObserveRequestDuration(method string, d time.Duration) {
	requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// SetEngineUp records whether the engine session is ready.
func SetEngineUp(up bool) {
	if up {
		engineUp.Set(1)
		return
	}
	engineUp.Set(0)
}

// RecordEngineStart increments the engine start counter.
func RecordEngineStart() {
	engineRestarts.Inc()
}

// RecordNotification counts an engine notification.
func RecordNotification() {
	notifications.Inc()
}

// SetWSClients records the number of connected websocket subscribers.
func SetWSClients(n int) {
	wsClients.Set(float64(n))
}
