package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/haasonsaas/profileqa/internal/observability"
)

const defaultCallTimeout = 30 * time.Second

// Gateway routes completion requests to named backends. Every call is bounded
// by a timeout and optionally rate limited. The gateway never retries.
type Gateway struct {
	backends       map[string]Backend
	defaultBackend string
	callTimeout    time.Duration
	timeouts       map[string]time.Duration
	limiters       map[string]*rate.Limiter
	pricing        Pricing
	countTokens    TokenCounter

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithCallTimeout sets the default per-call timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.callTimeout = d
		}
	}
}

// WithBackendTimeout overrides the call timeout for one backend.
func WithBackendTimeout(backend string, d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeouts[backend] = d
		}
	}
}

// WithRateLimit limits a backend to requestsPerMinute with a burst of one.
func WithRateLimit(backend string, requestsPerMinute int) Option {
	return func(g *Gateway) {
		if requestsPerMinute > 0 {
			g.limiters[backend] = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
		}
	}
}

// WithPricing sets the per-model price table used for cost accounting.
func WithPricing(p Pricing) Option {
	return func(g *Gateway) { g.pricing = p }
}

// WithTokenCounter replaces the tokenizer used when a backend reports no usage.
func WithTokenCounter(fn TokenCounter) Option {
	return func(g *Gateway) {
		if fn != nil {
			g.countTokens = fn
		}
	}
}

func WithLogger(l *observability.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func WithTracer(t *observability.Tracer) Option {
	return func(g *Gateway) { g.tracer = t }
}

// NewGateway builds a gateway over backends keyed by their Name.
// defaultBackend may be empty when exactly one backend is given.
func NewGateway(defaultBackend string, backends []Backend, opts ...Option) (*Gateway, error) {
	if len(backends) == 0 {
		return nil, errors.New("llm: at least one backend is required")
	}
	g := &Gateway{
		backends:    make(map[string]Backend, len(backends)),
		callTimeout: defaultCallTimeout,
		timeouts:    map[string]time.Duration{},
		limiters:    map[string]*rate.Limiter{},
		countTokens: CountTokens,
		logger:      observability.NopLogger(),
	}
	for _, b := range backends {
		if b == nil {
			continue
		}
		if _, dup := g.backends[b.Name()]; dup {
			return nil, fmt.Errorf("llm: duplicate backend %q", b.Name())
		}
		g.backends[b.Name()] = b
	}
	if defaultBackend == "" && len(g.backends) == 1 {
		for name := range g.backends {
			defaultBackend = name
		}
	}
	if _, ok := g.backends[defaultBackend]; !ok {
		return nil, fmt.Errorf("llm: default backend %q is not registered", defaultBackend)
	}
	g.defaultBackend = defaultBackend
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// DefaultBackend returns the ID used when a request names none.
func (g *Gateway) DefaultBackend() string { return g.defaultBackend }

// Backends returns the registered backend IDs in sorted order.
func (g *Gateway) Backends() []string {
	names := make([]string, 0, len(g.backends))
	for name := range g.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Backend returns a registered backend by ID.
func (g *Gateway) Backend(name string) (Backend, bool) {
	b, ok := g.backends[name]
	return b, ok
}

// Generate performs one blocking call against the selected backend.
// Failures are always *BackendError.
func (g *Gateway) Generate(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, NewBackendError("", "", errors.New("request is nil")).WithStatus(400)
	}
	name := req.Backend
	if name == "" {
		name = g.defaultBackend
	}
	backend, ok := g.backends[name]
	if !ok {
		be := NewBackendError(name, "", fmt.Errorf("backend %q is not configured", name))
		be.setReason(ReasonModelUnavailable)
		return nil, be
	}
	model := backend.Model()

	timeout := g.callTimeout
	if d, ok := g.timeouts[name]; ok {
		timeout = d
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	callCtx, span := g.tracer.TraceLLMRequest(callCtx, name, model)
	defer span.End()

	if limiter, ok := g.limiters[name]; ok {
		if err := limiter.Wait(callCtx); err != nil {
			// Wait fails only when the deadline would pass before a token frees up.
			be := NewBackendError(name, model, fmt.Errorf("waiting for rate limiter: %w", err))
			be.setReason(ReasonTimeout)
			g.recordFailure(callCtx, be, 0)
			g.tracer.RecordError(span, be)
			return nil, be
		}
	}

	start := time.Now()
	completion, err := g.invoke(callCtx, backend, req)
	latency := time.Since(start)
	if err != nil {
		be := g.toBackendError(callCtx, name, model, err)
		g.recordFailure(callCtx, be, latency)
		g.tracer.RecordError(span, be)
		return nil, be
	}

	usage := TokenUsage{Input: completion.InputTokens, Output: completion.OutputTokens}
	if usage.Input == 0 && usage.Output == 0 {
		usage = g.estimateUsage(req, completion.Text)
	}
	resp := &Response{
		Text:    completion.Text,
		Backend: name,
		Model:   model,
		Tokens:  &usage,
		Latency: latency,
	}
	if cost, ok := g.pricing.Cost(model, usage); ok {
		resp.Cost = &cost
	}

	g.metrics.RecordLLMRequest(name, model, "success", latency.Seconds(), usage.Input, usage.Output)
	g.tracer.SetAttributes(span, "llm.tokens.input", usage.Input, "llm.tokens.output", usage.Output)
	g.logger.Debug(ctx, "llm call completed",
		"backend", name,
		"model", model,
		"latency_ms", latency.Milliseconds(),
		"tokens", usage.Total(),
	)
	return resp, nil
}

// invoke shields the gateway from backend panics.
func (g *Gateway) invoke(ctx context.Context, backend Backend, req *Request) (completion *Completion, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend panic: %v", r)
		}
	}()
	completion, err = backend.Complete(ctx, req)
	if err == nil && completion == nil {
		err = errors.New("backend returned no completion")
	}
	return completion, err
}

func (g *Gateway) toBackendError(ctx context.Context, name, model string, err error) *BackendError {
	be, ok := AsBackendError(err)
	if !ok {
		be = NewBackendError(name, model, err)
	}
	if be.Backend == "" {
		be.Backend = name
	}
	if be.Model == "" {
		be.Model = model
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		be.setReason(ReasonTimeout)
	}
	return be
}

func (g *Gateway) recordFailure(ctx context.Context, be *BackendError, latency time.Duration) {
	g.metrics.RecordLLMRequest(be.Backend, be.Model, string(be.Kind), latency.Seconds(), 0, 0)
	g.metrics.RecordError("llm", string(be.Reason))
	g.logger.Warn(ctx, "llm call failed",
		"backend", be.Backend,
		"model", be.Model,
		"kind", be.Kind,
		"reason", be.Reason,
		"error", be,
	)
}

func (g *Gateway) estimateUsage(req *Request, output string) TokenUsage {
	input := 0
	for _, m := range req.Messages {
		input += g.countTokens(m.Content)
	}
	return TokenUsage{Input: input, Output: g.countTokens(output), Estimated: true}
}
