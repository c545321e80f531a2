package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConsumerMetrics groups the Prometheus instruments of the stream
// consumer. Registered once at startup via NewConsumer(); passed by
// pointer wherever needed.
type ConsumerMetrics struct {
	EntriesClaimed         prometheus.Counter
	VariantsFailed         prometheus.Counter
	AnswersPersisted       prometheus.Counter
	NotificationsPublished *prometheus.CounterVec
	GenerationSeconds      prometheus.Histogram
}

// NewConsumer registers the consumer instruments with the given
// registerer. Using a custom registry (instead of
// prometheus.DefaultRegisterer) keeps tests isolated and avoids global
// state.
func NewConsumer(reg prometheus.Registerer) *ConsumerMetrics {
	m := &ConsumerMetrics{
		EntriesClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_entries_claimed_total",
			Help: "Total number of work-queue entries claimed and acknowledged.",
		}),
		VariantsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "generation_variants_failed_total",
			Help: "Total number of answer-variant generation calls that failed or timed out.",
		}),
		AnswersPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "answers_persisted_total",
			Help: "Total number of generated answers written to the database.",
		}),
		NotificationsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Total number of messages published to the pub/sub channel.",
		}, []string{"topic"}),
		GenerationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "generation_call_seconds",
			Help:    "Latency of individual generation-service calls.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}

	reg.MustRegister(
		m.EntriesClaimed,
		m.VariantsFailed,
		m.AnswersPersisted,
		m.NotificationsPublished,
		m.GenerationSeconds,
	)
	return m
}

// ObserveGeneration records one generation call outcome.
func (m *ConsumerMetrics) ObserveGeneration(elapsed time.Duration, err error) {
	m.GenerationSeconds.Observe(elapsed.Seconds())
	if err != nil {
		m.VariantsFailed.Inc()
	}
}

// GatewayMetrics groups the Prometheus instruments of the SSE gateway.
type GatewayMetrics struct {
	OpenConnections   *prometheus.GaugeVec
	EventsForwarded   *prometheus.CounterVec
	RejectedSubscribe prometheus.Counter
}

func NewGateway(reg prometheus.Registerer) *GatewayMetrics {
	m := &GatewayMetrics{
		OpenConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sse_open_connections",
			Help: "Currently open SSE connections per registry.",
		}, []string{"registry"}),
		EventsForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sse_events_forwarded_total",
			Help: "Total events forwarded to matching connections.",
		}, []string{"type"}),
		RejectedSubscribe: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sse_rejected_subscribes_total",
			Help: "Subscribe requests rejected with 400 before registration.",
		}),
	}

	reg.MustRegister(m.OpenConnections, m.EventsForwarded, m.RejectedSubscribe)
	return m
}
