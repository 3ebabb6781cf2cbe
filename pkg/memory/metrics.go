package memory

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "dotrecall"
	metricsSubsystem = "memory"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	MessagesProcessed   *prometheus.CounterVec
	EntitiesExtracted   *prometheus.CounterVec
	ContactsCreated     prometheus.Counter
	SuggestionsEmitted  *prometheus.CounterVec
	ExtractionFailures  *prometheus.CounterVec
	PersistenceFailures prometheus.Counter
	WritesDropped       prometheus.Counter
	RecallQueries       *prometheus.CounterVec
	ProcessDuration     prometheus.Histogram
	WindowSize          prometheus.Gauge
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Labels: intent
		MessagesProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "messages_processed_total",
			Help:      "Messages run through the memory pipeline",
		}, []string{"intent"}),
		// Labels: type
		EntitiesExtracted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "entities_extracted_total",
			Help:      "Entities extracted from messages",
		}, []string{"type"}),
		ContactsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "contacts_created_total",
			Help:      "Contacts created on first mention",
		}),
		// Labels: type
		SuggestionsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "suggestions_emitted_total",
			Help:      "Proactive suggestions produced",
		}, []string{"type"}),
		// Labels: recognizer
		ExtractionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "extraction_failures_total",
			Help:      "Recognizer failures absorbed by the extractor",
		}, []string{"recognizer"}),
		PersistenceFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "persistence_failures_total",
			Help:      "Long-term store writes that failed",
		}),
		WritesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "writes_dropped_total",
			Help:      "Long-term writes dropped because the async queue was full",
		}),
		// Labels: query_type
		RecallQueries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "recall_queries_total",
			Help:      "Recall questions answered, by classified type",
		}, []string{"query_type"}),
		ProcessDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "process_duration_seconds",
			Help:      "Time spent in the message pipeline",
			Buckets:   prometheus.DefBuckets,
		}),
		WindowSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "window_messages",
			Help:      "Messages currently held in the short-term window",
		}),
	}
}

func (m *Metrics) observeTurn(res ProcessResult, created int, windowLen int, took time.Duration) {
	if m == nil {
		return
	}
	m.MessagesProcessed.WithLabelValues(res.Intent).Inc()
	for _, e := range res.Entities {
		m.EntitiesExtracted.WithLabelValues(string(e.Type)).Inc()
	}
	for _, s := range res.Suggestions {
		m.SuggestionsEmitted.WithLabelValues(string(s.Type)).Inc()
	}
	m.ContactsCreated.Add(float64(created))
	m.ProcessDuration.Observe(took.Seconds())
	m.WindowSize.Set(float64(windowLen))
}

func (m *Metrics) extractionFailed(recognizer string) {
	if m == nil {
		return
	}
	m.ExtractionFailures.WithLabelValues(recognizer).Inc()
}

func (m *Metrics) persistenceFailed() {
	if m == nil {
		return
	}
	m.PersistenceFailures.Inc()
}

func (m *Metrics) writeDropped() {
	if m == nil {
		return
	}
	m.WritesDropped.Inc()
}

func (m *Metrics) recallAnswered(queryType string) {
	if m == nil {
		return
	}
	m.RecallQueries.WithLabelValues(queryType).Inc()
}

func (m *Metrics) windowCleared() {
	if m == nil {
		return
	}
	m.WindowSize.Set(0)
}
