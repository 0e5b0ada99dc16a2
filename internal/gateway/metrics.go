package gateway

import (
	"net/http"
	"time"

	"github.com/lhdbsbz/chatrelay/internal/llm"
	"github.com/lhdbsbz/chatrelay/internal/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the relay's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	connections     prometheus.Gauge
	messages        *prometheus.CounterVec
	broadcastFrames prometheus.Counter
	answers         *prometheus.CounterVec
	answerDuration  prometheus.Histogram
	ragAnswers      prometheus.Counter
	retrievedChunks prometheus.Counter

	handler http.Handler
}

// NewMetrics registers the relay collectors, plus Go runtime and process
// collectors, on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatrelay_connections",
			Help: "Number of open WebSocket connections.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatrelay_messages_received_total",
			Help: "Inbound client messages by payload kind.",
		}, []string{"kind"}),
		broadcastFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_broadcast_frames_total",
			Help: "User envelopes written to connections by broadcasts.",
		}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatrelay_answer_requests_total",
			Help: "Calls to the answering service by result.",
		}, []string{"result"}),
		answerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatrelay_answer_duration_seconds",
			Help:    "Latency of calls to the answering service.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		ragAnswers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_answer_rag_total",
			Help: "Answers grounded in retrieved documents.",
		}),
		retrievedChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_answer_retrieved_chunks_total",
			Help: "Document chunks the answering service reported retrieving.",
		}),
	}
	reg.MustRegister(
		m.connections,
		m.messages,
		m.broadcastFrames,
		m.answers,
		m.answerDuration,
		m.ragAnswers,
		m.retrievedChunks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.handler
}

func (m *Metrics) setConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}

func (m *Metrics) messageReceived(kind message.Kind) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) addBroadcastFrames(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.broadcastFrames.Add(float64(n))
}

func (m *Metrics) observeAnswer(ans *llm.Answer, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.answerDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.answers.WithLabelValues("error").Inc()
		return
	}
	m.answers.WithLabelValues("ok").Inc()
	if ans.UsedRAG {
		m.ragAnswers.Inc()
	}
	if ans.RetrievedChunks > 0 {
		m.retrievedChunks.Add(float64(ans.RetrievedChunks))
	}
}
