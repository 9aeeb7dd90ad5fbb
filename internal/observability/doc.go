// Package observability provides structured logging, Prometheus metrics and
// OpenTelemetry tracing for the query pipeline.
//
// # Logging
//
// Logger wraps slog with context correlation and secret redaction:
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	ctx = observability.AddQueryID(ctx, queryID)
//	logger.Info(ctx, "answer composed", "strategy", "combined")
//
// # Metrics
//
// Metrics are registered against an explicit prometheus.Registerer so that
// tests can use an isolated registry:
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.RecordToolCall("faq_lookup", "hit", 0.004)
//
// # Tracing
//
// NewTracer exports spans over OTLP/gRPC when an endpoint is configured and
// degrades to a no-op tracer otherwise.
package observability
