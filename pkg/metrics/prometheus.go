package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector implements Collector on a private registry
type PrometheusCollector struct {
	running          prometheus.Gauge
	stateTransitions *prometheus.CounterVec
	startDuration    *prometheus.HistogramVec
	stops            *prometheus.CounterVec
	mirrorCycles     *prometheus.CounterVec
	mirrorDuration   *prometheus.HistogramVec

	mutex    sync.Mutex
	observed bool
	last     bool

	registry *prometheus.Registry
}

func NewPrometheusCollector(namespace string) *PrometheusCollector {
	if namespace == "" {
		namespace = "mcservice"
	}

	pc := &PrometheusCollector{
		registry: prometheus.NewRegistry(),
	}

	pc.running = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_running",
			Help:      "Whether the game server process is running",
		},
	)

	pc.stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_state_transitions_total",
			Help:      "Total number of observed server state transitions",
		},
		[]string{"to_state"},
	)

	// servers take tens of seconds to boot
	pc.startDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "server_start_duration_seconds",
			Help:      "Time from spawn until the server reported readiness",
			Buckets:   []float64{1, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	pc.stops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_stops_total",
			Help:      "Total number of server stops by result",
		},
		[]string{"result"},
	)

	pc.mirrorCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_cycles_total",
			Help:      "Total number of working set mirror cycles",
		},
		[]string{"direction", "status"},
	)

	pc.mirrorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mirror_duration_seconds",
			Help:      "Duration of working set mirror cycles",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"direction"},
	)

	pc.registry.MustRegister(
		pc.running,
		pc.stateTransitions,
		pc.startDuration,
		pc.stops,
		pc.mirrorCycles,
		pc.mirrorDuration,
	)

	return pc
}

// ServerRunning sets the gauge; the first observation is not a transition
func (pc *PrometheusCollector) ServerRunning(running bool) {
	value := 0.0
	if running {
		value = 1
	}
	pc.running.Set(value)

	pc.mutex.Lock()
	defer pc.mutex.Unlock()

	if pc.observed && pc.last != running {
		pc.stateTransitions.WithLabelValues(stateLabel(running)).Inc()
	}
	pc.observed = true
	pc.last = running
}

func (pc *PrometheusCollector) ServerStartDuration(duration time.Duration, err error) {
	pc.startDuration.WithLabelValues(status(err)).Observe(duration.Seconds())
}

func (pc *PrometheusCollector) ServerStop(graceful bool) {
	result := "forced"
	if graceful {
		result = "graceful"
	}
	pc.stops.WithLabelValues(result).Inc()
}

func (pc *PrometheusCollector) MirrorCycle(direction string, duration time.Duration, err error) {
	pc.mirrorCycles.WithLabelValues(direction, status(err)).Inc()
	pc.mirrorDuration.WithLabelValues(direction).Observe(duration.Seconds())
}

// Registry returns the Prometheus registry for HTTP handler setup
func (pc *PrometheusCollector) Registry() *prometheus.Registry {
	return pc.registry
}

func (pc *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(pc.registry, promhttp.HandlerOpts{})
}

func stateLabel(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}

// Compile-time interface compliance check
var _ Collector = (*PrometheusCollector)(nil)
