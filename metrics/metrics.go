// Package metrics exposes Prometheus collectors for the workbench.
//
// Each component reports through a plain callback (validator.Observer,
// definition.TransitionObserver, artefact.Observer, the llm client observer),
// so packages below this one never import Prometheus. Metrics adapts those
// callbacks onto collectors registered in its own registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/workbench/artefact"
	"github.com/c360studio/workbench/definition"
	"github.com/c360studio/workbench/llm"
	"github.com/c360studio/workbench/validator"
)

const namespace = "workbench"

// Metrics holds every workbench collector.
type Metrics struct {
	registry *prometheus.Registry

	// Validations counts validator calls.
	// Labels: field, verdict (PASS, WEAK, CONFLICT, or "error")
	Validations *prometheus.CounterVec

	// ValidationSeconds measures validator latency, format retries included.
	ValidationSeconds *prometheus.HistogramVec

	// Transitions counts field status changes.
	// Labels: document, from, to
	Transitions *prometheus.CounterVec

	// Artefacts counts commit and accept attempts.
	// Labels: op (commit, accept), kind, outcome
	Artefacts *prometheus.CounterVec

	// LLMCalls counts completion calls after retries and fallback.
	// Labels: capability, provider, status (success, error)
	LLMCalls *prometheus.CounterVec

	// LLMSeconds measures completion latency.
	LLMSeconds *prometheus.HistogramVec

	// LLMTokens counts tokens by direction (prompt, completion).
	LLMTokens *prometheus.CounterVec

	// HTTPRequests counts API requests.
	// Labels: route, code
	HTTPRequests *prometheus.CounterVec

	// HTTPSeconds measures API latency by route.
	HTTPSeconds *prometheus.HistogramVec
}

// New creates the collectors in a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newWithRegistry(reg)
}

func newWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		Validations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "validator",
				Name:      "validations_total",
				Help:      "Field validations by field key and verdict",
			},
			[]string{"field", "verdict"},
		),

		ValidationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "validator",
				Name:      "validation_duration_seconds",
				Help:      "Field validation latency in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"verdict"},
		),

		Transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "definition",
				Name:      "transitions_total",
				Help:      "Field status transitions by document type",
			},
			[]string{"document", "from", "to"},
		),

		Artefacts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "artefact",
				Name:      "operations_total",
				Help:      "Artefact commits and accepts by kind and outcome",
			},
			[]string{"op", "kind", "outcome"},
		),

		LLMCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "llm",
				Name:      "calls_total",
				Help:      "LLM completion calls by capability, provider and status",
			},
			[]string{"capability", "provider", "status"},
		),

		LLMSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "llm",
				Name:      "call_duration_seconds",
				Help:      "LLM completion latency in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"capability"},
		),

		LLMTokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "llm",
				Name:      "tokens_total",
				Help:      "Tokens consumed by direction",
			},
			[]string{"direction"},
		),

		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "API requests by route and status code",
			},
			[]string{"route", "code"},
		),

		HTTPSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "API request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveValidation records one validator outcome.
func (m *Metrics) ObserveValidation(fieldKey string, verdict validator.Verdict, d time.Duration, err error) {
	label := string(verdict)
	if err != nil {
		label = "error"
	}
	m.Validations.WithLabelValues(fieldKey, label).Inc()
	m.ValidationSeconds.WithLabelValues(label).Observe(d.Seconds())
}

// ObserveTransition records one field status change.
func (m *Metrics) ObserveTransition(doc definition.DocumentType, from, to definition.Status) {
	m.Transitions.WithLabelValues(string(doc), string(from), string(to)).Inc()
}

// ObserveArtefact records one commit or accept attempt.
func (m *Metrics) ObserveArtefact(op string, kind artefact.Kind, outcome string) {
	m.Artefacts.WithLabelValues(op, string(kind), outcome).Inc()
}

// ObserveLLMCall records one completion call.
func (m *Metrics) ObserveLLMCall(s llm.CallStats) {
	status := "success"
	if s.Err != nil {
		status = "error"
	}
	provider := s.Provider
	if provider == "" {
		provider = "none"
	}
	m.LLMCalls.WithLabelValues(s.Capability, provider, status).Inc()
	m.LLMSeconds.WithLabelValues(s.Capability).Observe(s.Duration.Seconds())
	if s.Usage.PromptTokens > 0 {
		m.LLMTokens.WithLabelValues("prompt").Add(float64(s.Usage.PromptTokens))
	}
	if s.Usage.CompletionTokens > 0 {
		m.LLMTokens.WithLabelValues("completion").Add(float64(s.Usage.CompletionTokens))
	}
}

// statusRecorder captures the response code for the request counter.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware counts and times requests under a fixed route label.
func (m *Metrics) Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
		m.HTTPSeconds.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
