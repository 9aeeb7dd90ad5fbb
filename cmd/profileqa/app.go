package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/haasonsaas/profileqa/internal/clarify"
	"github.com/haasonsaas/profileqa/internal/classifier"
	"github.com/haasonsaas/profileqa/internal/config"
	"github.com/haasonsaas/profileqa/internal/evaluator"
	"github.com/haasonsaas/profileqa/internal/llm"
	"github.com/haasonsaas/profileqa/internal/llm/backends"
	"github.com/haasonsaas/profileqa/internal/notify"
	"github.com/haasonsaas/profileqa/internal/observability"
	"github.com/haasonsaas/profileqa/internal/orchestrator"
	"github.com/haasonsaas/profileqa/internal/retrieval"
	"github.com/haasonsaas/profileqa/internal/retrieval/faq"
	"github.com/haasonsaas/profileqa/internal/retrieval/semantic"
)

// app holds the runtime shared by commands. The gateway and stage
// components are always built; retrieval, notifications and the
// orchestrator only by pipeline.
type app struct {
	cfg      *config.Config
	logger   *observability.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
	tracer   *observability.Tracer

	gateway    *llm.Gateway
	classifier *classifier.Classifier
	clarifier  *clarify.Clarifier
	evaluator  *evaluator.Evaluator

	faq      *faq.Store
	searcher retrieval.Searcher
	notifier *notify.Manager
	orch     *orchestrator.Orchestrator

	closers []func(context.Context) error
}

// loadConfig reads the configuration at the resolved path.
func loadConfig(path string) (*config.Config, string, error) {
	path = resolveConfigPath(path)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, path, nil
}

func newLogger(cfg config.LoggingConfig) *observability.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:     cfg.Level,
		Format:    cfg.Format,
		Output:    os.Stderr,
		AddSource: cfg.AddSource,
	})
}

// newApp builds observability, the LLM gateway and the classifier,
// clarifier and evaluator stages.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: newLogger(cfg.Logging)}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = observability.NewMetrics(a.registry)

	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Attributes:     cfg.Tracing.Attributes,
		EnableInsecure: cfg.Tracing.Insecure,
	})
	a.tracer = tracer
	a.closers = append(a.closers, shutdown)

	gw, err := backends.NewGateway(ctx, cfg.LLM,
		llm.WithLogger(a.logger),
		llm.WithMetrics(a.metrics),
		llm.WithTracer(a.tracer),
	)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("failed to initialize llm gateway: %w", err)
	}
	a.gateway = gw

	a.classifier = classifier.New(gw, cfg.Classifier,
		classifier.WithLogger(a.logger),
		classifier.WithMetrics(a.metrics),
		classifier.WithTracer(a.tracer),
	)
	a.clarifier = clarify.New(gw, cfg.Clarifier,
		clarify.WithLogger(a.logger),
		clarify.WithMetrics(a.metrics),
	)
	a.evaluator = evaluator.New(gw, cfg.Evaluator,
		evaluator.WithLogger(a.logger),
		evaluator.WithMetrics(a.metrics),
		evaluator.WithTracer(a.tracer),
	)
	return a, nil
}

// pipeline opens the retrieval stores and notifier and assembles the
// orchestrator.
func (a *app) pipeline(ctx context.Context) error {
	store, err := faq.Open(ctx, a.cfg.Retrieval.FAQ, faq.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("failed to open faq store: %w", err)
	}
	a.faq = store
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })

	searcher, err := semantic.Open(ctx, a.cfg.Retrieval.Semantic)
	if err != nil {
		return fmt.Errorf("failed to open semantic search: %w", err)
	}
	a.searcher = searcher
	if c, ok := searcher.(io.Closer); ok {
		a.closers = append(a.closers, func(context.Context) error { return c.Close() })
	}

	mgr, err := notify.FromConfig(a.cfg.Notify,
		notify.WithLogger(a.logger),
		notify.WithMetrics(a.metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to configure notifications: %w", err)
	}
	a.notifier = mgr

	opts := []orchestrator.Option{
		orchestrator.WithLogger(a.logger),
		orchestrator.WithMetrics(a.metrics),
		orchestrator.WithTracer(a.tracer),
		orchestrator.WithFAQ(store),
		orchestrator.WithNotifier(mgr),
	}
	if searcher != nil {
		opts = append(opts, orchestrator.WithSearcher(searcher))
	}
	a.orch = orchestrator.New(a.gateway, a.classifier, a.clarifier, a.evaluator, a.cfg.Orchestrator, opts...)

	a.logger.Info(ctx, "pipeline ready",
		"backends", a.gateway.Backends(),
		"semantic_provider", a.cfg.Retrieval.Semantic.Provider,
		"faq_driver", a.cfg.Retrieval.FAQ.Driver,
		"notify_sinks", mgr.SinkNames(),
	)
	return nil
}

// Close waits for in-flight notifications and releases resources in
// reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	if a.orch != nil {
		a.orch.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
