package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the client.
type Metrics struct {
	WSMessages        *prometheus.CounterVec
	CallEvents        *prometheus.CounterVec
	StateChanges      *prometheus.CounterVec
	ReconnectAttempts prometheus.Counter
	FragmentsPlayed   prometheus.Counter
	FragmentsSkipped  prometheus.Counter
	QueueDepth        prometheus.Gauge
	FirstAudioLatency prometheus.Histogram

	latency *LatencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		CallEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_events_total",
			Help:      "Call lifecycle events by type.",
		}, []string{"event"}),
		StateChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_state_changes_total",
			Help:      "Transport state transitions by target state.",
		}, []string{"state"}),
		ReconnectAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts scheduled after abnormal closures.",
		}),
		FragmentsPlayed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_fragments_played_total",
			Help:      "Audio fragments played to completion.",
		}),
		FragmentsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_fragments_skipped_total",
			Help:      "Audio fragments dropped after decode or playback errors.",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audio_queue_depth",
			Help:      "Audio fragments currently awaiting playback.",
		}),
		FirstAudioLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_audio_latency_ms",
			Help:      "Latency from user_speech send to first audio fragment in milliseconds.",
			Buckets:   []float64{100, 200, 300, 500, 700, 900, 1200, 2000, 4000},
		}),
		latency: NewLatencyWindow(256),
	}
}

func (m *Metrics) ObserveFirstAudioLatency(d time.Duration) {
	m.FirstAudioLatency.Observe(float64(d.Milliseconds()))
	m.latency.Observe(StageSendToFirstAudio, d)
}

// ObserveRoundTripStage records a display-only round-trip stage sample.
func (m *Metrics) ObserveRoundTripStage(stage string, d time.Duration) {
	m.latency.Observe(stage, d)
}

func (m *Metrics) SnapshotLatency() LatencySnapshot {
	return m.latency.Snapshot()
}

func (m *Metrics) ResetLatency() {
	m.latency.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
