package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the relay.
type Metrics struct {
	Sessions             prometheus.Gauge
	ChatRequests         *prometheus.CounterVec
	Fragments            *prometheus.CounterVec
	FrameDecodeErrors    *prometheus.CounterVec
	BackendErrors        *prometheus.CounterVec
	FirstFragmentLatency prometheus.Histogram
	WSMessages           *prometheus.CounterVec
}

// NewMetrics registers instruments on the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.DefaultRegisterer)
}

func NewMetricsWith(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Number of sessions held in memory.",
		}),
		ChatRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests by outcome.",
		}, []string{"outcome"}),
		Fragments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_total",
			Help:      "Text fragments streamed to clients by backend.",
		}, []string{"backend"}),
		FrameDecodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_decode_errors_total",
			Help:      "Backend frames that failed to decode and were skipped.",
		}, []string{"backend"}),
		BackendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Backend errors by backend and code.",
		}, []string{"backend", "code"}),
		FirstFragmentLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_fragment_latency_ms",
			Help:      "Latency from backend request to first streamed fragment in milliseconds.",
			Buckets:   []float64{50, 100, 200, 400, 800, 1500, 3000, 6000, 12000},
		}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Websocket messages by direction and status.",
		}, []string{"direction", "status"}),
	}
}

func (m *Metrics) ObserveFirstFragmentLatency(d time.Duration) {
	m.FirstFragmentLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
