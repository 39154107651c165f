package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scosock",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"daemon", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scosock",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"daemon", "method", "path", "status"},
	)
	scoSocketsOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scosock",
			Subsystem: "sco",
			Name:      "sockets_opened_total",
			Help:      "Sockets allocated.",
		},
	)
	scoSocketsFreed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scosock",
			Subsystem: "sco",
			Name:      "sockets_freed_total",
			Help:      "Sockets freed after close and release.",
		},
	)
	scoSocketsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scosock",
			Subsystem: "sco",
			Name:      "sockets_live",
			Help:      "Sockets currently registered.",
		},
	)
	scoTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scosock",
			Subsystem: "sco",
			Name:      "state_transitions_total",
			Help:      "Socket state transitions.",
		},
		[]string{"from", "to"},
	)
	scoConnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scosock",
			Subsystem: "sco",
			Name:      "connects_total",
			Help:      "Outbound connect attempts by immediate result.",
		},
		[]string{"result"},
	)
	scoIndications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scosock",
			Subsystem: "sco",
			Name:      "indications_total",
			Help:      "Inbound link handling results.",
		},
		[]string{"result"},
	)
	scoTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scosock",
			Subsystem: "sco",
			Name:      "timeouts_total",
			Help:      "Socket timers that expired.",
		},
		[]string{"phase"},
	)
	scoFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scosock",
			Subsystem: "sco",
			Name:      "frames_total",
			Help:      "Frames by direction and result.",
		},
		[]string{"direction", "result"},
	)
	scoBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scosock",
			Subsystem: "sco",
			Name:      "bytes_total",
			Help:      "Payload bytes carried.",
		},
		[]string{"direction"},
	)
	linkEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scosock",
			Subsystem: "link",
			Name:      "events_total",
			Help:      "Events dispatched by the link simulator.",
		},
		[]string{"kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			scoSocketsOpened, scoSocketsFreed, scoSocketsLive,
			scoTransitions, scoConnects, scoIndications, scoTimeouts,
			scoFrames, scoBytes,
			linkEvents,
		)
	})
}

func RecordHTTPRequest(daemon, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(daemon, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(daemon, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordSCOSocketOpened() {
	RegisterMetrics()
	scoSocketsOpened.Inc()
	scoSocketsLive.Inc()
}

func RecordSCOSocketFreed() {
	RegisterMetrics()
	scoSocketsFreed.Inc()
	scoSocketsLive.Dec()
}

func RecordSCOTransition(from, to string) {
	RegisterMetrics()
	scoTransitions.WithLabelValues(from, to).Inc()
}

func RecordSCOConnect(result string) {
	RegisterMetrics()
	scoConnects.WithLabelValues(result).Inc()
}

func RecordSCOIndication(result string) {
	RegisterMetrics()
	scoIndications.WithLabelValues(result).Inc()
}

func RecordSCOTimeout(phase string) {
	RegisterMetrics()
	scoTimeouts.WithLabelValues(phase).Inc()
}

// RecordSCOFrame counts one frame; bytes are added only for result "ok".
func RecordSCOFrame(direction string, bytes int, result string) {
	RegisterMetrics()
	scoFrames.WithLabelValues(direction, result).Inc()
	if result == "ok" {
		scoBytes.WithLabelValues(direction).Add(float64(bytes))
	}
}

func RecordLinkEvent(kind string) {
	RegisterMetrics()
	linkEvents.WithLabelValues(kind).Inc()
}
