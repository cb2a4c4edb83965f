package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the kiosk daemon.
type Metrics struct {
	ActiveCall       prometheus.Gauge
	CallEvents       *prometheus.CounterVec
	DialogueTurns    *prometheus.CounterVec
	Interruptions    prometheus.Counter
	UtterancesSpoken prometheus.Counter
	SpeechQueueDepth prometheus.Gauge
	ProviderErrors   *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
	TurnLatency      prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveCall: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_call",
			Help:      "1 while a call session is active, 0 otherwise.",
		}),
		CallEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_events_total",
			Help:      "Call lifecycle events by type.",
		}, []string{"event"}),
		DialogueTurns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_turns_total",
			Help:      "Dialogue turns submitted to the remote service, by input kind.",
		}, []string{"kind"}),
		Interruptions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interruptions_total",
			Help:      "Barge-in cancellations of queued or in-flight speech.",
		}),
		UtterancesSpoken: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_spoken_total",
			Help:      "System utterances whose playback completed or failed.",
		}),
		SpeechQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "speech_queue_depth",
			Help:      "Pending utterances waiting for playback.",
		}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Capability provider and remote service errors by source and code.",
		}, []string{"source", "code"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Display-surface websocket messages by direction and type.",
		}, []string{"direction", "type"}),
		TurnLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_ms",
			Help:      "Latency of one submit-input round trip in milliseconds.",
			Buckets:   []float64{50, 100, 200, 400, 700, 1200, 2000, 5000},
		}),
	}
}

func (m *Metrics) ObserveTurnLatency(d time.Duration) {
	m.TurnLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
