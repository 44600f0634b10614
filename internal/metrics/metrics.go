// Package metrics exposes the Prometheus instrumentation of the scoring
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	labelResult = "result"
	labelStatus = "status"
)

// Metrics is the instrumentation handle shared by the pipeline components.
type Metrics struct {
	sessionsAnalyzed *prometheus.CounterVec
	analysisLatency  prometheus.Histogram
	eventsIngested   prometheus.Counter
	capRejections    prometheus.Counter
	classifierCalls  *prometheus.CounterVec
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	httpRequests     *prometheus.CounterVec
}

// New registers the collectors with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors with reg; tests pass a fresh
// registry so repeated construction does not collide.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		sessionsAnalyzed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surveyguard",
			Name:      "sessions_analyzed_total",
			Help:      "Completed session analyses, labeled by verdict (bot, human, error)",
		}, []string{labelResult}),
		analysisLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "surveyguard",
			Name:      "analysis_latency_seconds",
			Help:      "End-to-end session analysis latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		eventsIngested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "surveyguard",
			Name:      "events_ingested_total",
			Help:      "Behavioral events accepted into the store",
		}),
		capRejections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "surveyguard",
			Name:      "event_cap_rejections_total",
			Help:      "Event batches rejected for exceeding the per-session cap",
		}),
		classifierCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surveyguard",
			Name:      "classifier_calls_total",
			Help:      "Text classifier calls, labeled by outcome (ok, error)",
		}, []string{labelStatus}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "surveyguard",
			Name:      "classifier_cache_hits_total",
			Help:      "Classifier results served from the content-hash cache",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "surveyguard",
			Name:      "classifier_cache_misses_total",
			Help:      "Classifier lookups that missed the cache",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surveyguard",
			Name:      "http_requests_total",
			Help:      "HTTP requests served, labeled by status class",
		}, []string{labelStatus}),
	}
}

// RecordAnalysis records one finished (or failed) session analysis.
func (m *Metrics) RecordAnalysis(result string, latency time.Duration) {
	m.sessionsAnalyzed.WithLabelValues(result).Inc()
	m.analysisLatency.Observe(latency.Seconds())
}

// RecordIngest records n accepted events.
func (m *Metrics) RecordIngest(n int) {
	m.eventsIngested.Add(float64(n))
}

// RecordCapRejection records a batch rejected at the event cap.
func (m *Metrics) RecordCapRejection() {
	m.capRejections.Inc()
}

// RecordClassifierCall records one classifier round trip.
func (m *Metrics) RecordClassifierCall(ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.classifierCalls.WithLabelValues(status).Inc()
}

// RecordCache records a cache lookup outcome.
func (m *Metrics) RecordCache(hit bool) {
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// RecordHTTP records a served request by status class ("2xx", "4xx", "5xx").
func (m *Metrics) RecordHTTP(statusClass string) {
	m.httpRequests.WithLabelValues(statusClass).Inc()
}
