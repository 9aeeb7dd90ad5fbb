package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting pipeline metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Queries by strategy and outcome, plus end-to-end latency
//   - Language-model calls per backend, their latency and token usage
//   - Ensemble dispatch failures
//   - Retrieval tool calls (faq_lookup, semantic_search) and their latency
//   - Classification and evaluation distributions
//   - Notification delivery per sink
//
// Usage:
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.RecordQuery("combined", "answered", time.Since(start).Seconds())
type Metrics struct {
	// QueryCounter counts processed queries.
	// Labels: strategy (faq-lookup|semantic-search|combined|clarify), outcome
	QueryCounter *prometheus.CounterVec

	// QueryDuration measures end-to-end pipeline latency in seconds.
	// Labels: strategy
	QueryDuration *prometheus.HistogramVec

	// LLMRequestCounter counts backend calls.
	// Labels: backend, model, status (success|unavailable|timeout|rejected)
	LLMRequestCounter *prometheus.CounterVec

	// LLMRequestDuration measures backend call latency in seconds.
	// Labels: backend, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed tracks token consumption.
	// Labels: backend, model, type (input|output)
	LLMTokensUsed *prometheus.CounterVec

	// EnsembleFailures counts failed members of ensemble dispatches.
	// Labels: backend
	EnsembleFailures *prometheus.CounterVec

	// ToolCallCounter counts retrieval tool invocations.
	// Labels: tool, status (hit|miss|error)
	ToolCallCounter *prometheus.CounterVec

	// ToolCallDuration measures retrieval tool latency in seconds.
	// Labels: tool
	ToolCallDuration *prometheus.HistogramVec

	// ClassificationCounter counts classifier results.
	// Labels: category, strategy
	ClassificationCounter *prometheus.CounterVec

	// EvaluationScore records overall evaluation scores (0-10).
	EvaluationScore prometheus.Histogram

	// NotificationCounter counts notification deliveries.
	// Labels: sink, status (success|error)
	NotificationCounter *prometheus.CounterVec

	// ErrorCounter tracks errors by component and kind.
	// Labels: component (classifier|clarifier|evaluator|orchestrator|llm), kind
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates all pipeline metrics and registers them with reg.
// A nil reg creates unregistered collectors, which tests use to inspect
// values without touching the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QueryCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profileqa_queries_total",
				Help: "Total number of processed queries by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),

		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "profileqa_query_duration_seconds",
				Help:    "End-to-end query pipeline duration in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
			},
			[]string{"strategy"},
		),

		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profileqa_llm_requests_total",
				Help: "Total number of language-model backend calls by backend, model, and status",
			},
			[]string{"backend", "model", "status"},
		),

		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "profileqa_llm_request_duration_seconds",
				Help:    "Duration of language-model backend calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"backend", "model"},
		),

		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profileqa_llm_tokens_total",
				Help: "Total number of tokens used by backend, model, and type",
			},
			[]string{"backend", "model", "type"},
		),

		EnsembleFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profileqa_ensemble_failures_total",
				Help: "Ensemble members that failed or timed out",
			},
			[]string{"backend"},
		),

		ToolCallCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profileqa_tool_calls_total",
				Help: "Retrieval tool calls by tool and status",
			},
			[]string{"tool", "status"},
		),

		ToolCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "profileqa_tool_call_duration_seconds",
				Help:    "Retrieval tool latency in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"tool"},
		),

		ClassificationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profileqa_classifications_total",
				Help: "Query classifications by category and strategy",
			},
			[]string{"category", "strategy"},
		),

		EvaluationScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "profileqa_evaluation_score",
				Help:    "Overall weighted evaluation score of composed answers",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
			},
		),

		NotificationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profileqa_notifications_total",
				Help: "Notification deliveries by sink and status",
			},
			[]string{"sink", "status"},
		),

		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profileqa_errors_total",
				Help: "Errors by component and kind",
			},
			[]string{"component", "kind"},
		),
	}
}

// RecordQuery records a completed pipeline run. Safe on a nil receiver.
func (m *Metrics) RecordQuery(strategy, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.QueryCounter.WithLabelValues(strategy, outcome).Inc()
	m.QueryDuration.WithLabelValues(strategy).Observe(durationSeconds)
}

// RecordLLMRequest records a backend call with its token usage.
//
// Example:
//
//	metrics.RecordLLMRequest("openai", "gpt-4o-mini", "success", 1.2, 450, 120)
func (m *Metrics) RecordLLMRequest(backend, model, status string, durationSeconds float64, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.LLMRequestCounter.WithLabelValues(backend, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(backend, model).Observe(durationSeconds)
	if inputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(backend, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(backend, model, "output").Add(float64(outputTokens))
	}
}

// RecordEnsembleFailure counts one failed ensemble member.
func (m *Metrics) RecordEnsembleFailure(backend string) {
	if m == nil {
		return
	}
	m.EnsembleFailures.WithLabelValues(backend).Inc()
}

// RecordToolCall records a retrieval tool invocation.
func (m *Metrics) RecordToolCall(tool, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ToolCallCounter.WithLabelValues(tool, status).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(durationSeconds)
}

// RecordClassification records a classifier result.
func (m *Metrics) RecordClassification(category, strategy string) {
	if m == nil {
		return
	}
	m.ClassificationCounter.WithLabelValues(category, strategy).Inc()
}

// RecordEvaluation records an overall evaluation score.
func (m *Metrics) RecordEvaluation(score float64) {
	if m == nil {
		return
	}
	m.EvaluationScore.Observe(score)
}

// RecordNotification records a notification delivery attempt.
func (m *Metrics) RecordNotification(sink, status string) {
	if m == nil {
		return
	}
	m.NotificationCounter.WithLabelValues(sink, status).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, kind string) {
	if m == nil {
		return
	}
	m.ErrorCounter.WithLabelValues(component, kind).Inc()
}
