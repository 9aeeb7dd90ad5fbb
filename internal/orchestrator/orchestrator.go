// Package orchestrator routes profile questions through classification,
// retrieval, answer synthesis, evaluation and notification.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/profileqa/internal/clarify"
	"github.com/haasonsaas/profileqa/internal/classifier"
	"github.com/haasonsaas/profileqa/internal/config"
	"github.com/haasonsaas/profileqa/internal/evaluator"
	"github.com/haasonsaas/profileqa/internal/llm"
	"github.com/haasonsaas/profileqa/internal/notify"
	"github.com/haasonsaas/profileqa/internal/observability"
	"github.com/haasonsaas/profileqa/internal/retrieval"
)

// Generator is the part of the LLM gateway used for answer synthesis.
type Generator interface {
	Generate(ctx context.Context, req *llm.Request) (*llm.Response, error)
}

// Classifier assigns a strategy to a query.
type Classifier interface {
	Classify(ctx context.Context, query string, qctx classifier.QueryContext) classifier.Classification
}

// Clarifier produces follow-up questions for vague queries.
type Clarifier interface {
	Generate(ctx context.Context, query string, qctx classifier.QueryContext) clarify.Set
}

// Evaluator scores composed answers.
type Evaluator interface {
	Evaluate(ctx context.Context, query, answer, evidence string, md evaluator.Metadata) evaluator.Result
	Threshold() float64
}

// categoryLister is implemented by FAQ stores that can list their topics.
type categoryLister interface {
	Categories(ctx context.Context) ([]string, error)
}

// Tool names reported in ComposedAnswer.ToolsUsed and Failure.
const (
	ToolFAQ      = evaluator.ToolFAQ
	ToolSemantic = evaluator.ToolSemantic
	ToolCombined = "combined_search"
	ToolLLM      = "llm"
)

const answerSystemPrompt = "Eres un asistente profesional que responde preguntas sobre el perfil profesional y el CV de un candidato. Responde en el idioma de la consulta, con precisión y sin inventar datos que no estén en el contexto."

// Orchestrator runs the question pipeline. It is safe for concurrent use.
type Orchestrator struct {
	gen        Generator
	classifier Classifier
	clarifier  Clarifier
	evaluator  Evaluator
	faq        retrieval.FAQLookup
	semantic   retrieval.Searcher
	notifier   notify.Notifier

	cfgMu sync.RWMutex
	cfg   config.OrchestratorConfig

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	pending sync.WaitGroup

	mu      sync.Mutex
	session sessionStats
	queries []LogEntry
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l *observability.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithTracer(t *observability.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithFAQ sets the structured FAQ collaborator.
func WithFAQ(f retrieval.FAQLookup) Option {
	return func(o *Orchestrator) { o.faq = f }
}

// WithSearcher sets the semantic search collaborator. Without one, semantic
// search always returns no passages.
func WithSearcher(s retrieval.Searcher) Option {
	return func(o *Orchestrator) { o.semantic = s }
}

// WithNotifier sets where important queries are reported.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// New creates an Orchestrator. Zero values in cfg fall back to defaults.
func New(gen Generator, cls Classifier, clar Clarifier, eval Evaluator, cfg config.OrchestratorConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gen:        gen,
		classifier: cls,
		clarifier:  clar,
		evaluator:  eval,
		cfg:        withDefaults(cfg),
		logger:     observability.NopLogger(),
		session:    newSessionStats(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func withDefaults(cfg config.OrchestratorConfig) config.OrchestratorConfig {
	def := config.Default().Orchestrator
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.FAQLimit <= 0 {
		cfg.FAQLimit = def.FAQLimit
	}
	if cfg.MergeLimit <= 0 {
		cfg.MergeLimit = def.MergeLimit
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = def.ToolTimeout
	}
	if cfg.WidenFactor < 1 {
		cfg.WidenFactor = def.WidenFactor
	}
	if cfg.QualityFloor <= 0 {
		cfg.QualityFloor = def.QualityFloor
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = def.NotifyTimeout
	}
	if cfg.AnswerTemperature == 0 {
		cfg.AnswerTemperature = def.AnswerTemperature
	}
	if cfg.AnswerMaxTokens <= 0 {
		cfg.AnswerMaxTokens = def.AnswerMaxTokens
	}
	if cfg.QueryLogSize <= 0 {
		cfg.QueryLogSize = def.QueryLogSize
	}
	return cfg
}

// UpdateConfig swaps the tunables used by subsequent queries. Queries in
// flight may observe either version.
func (o *Orchestrator) UpdateConfig(cfg config.OrchestratorConfig) {
	cfg = withDefaults(cfg)
	o.cfgMu.Lock()
	o.cfg = cfg
	o.cfgMu.Unlock()
	o.logger.Info(context.Background(), "orchestrator config updated",
		"merge_strategy", cfg.MergeStrategy,
		"similarity_threshold", cfg.SimilarityThreshold,
		"quality_floor", cfg.QualityFloor,
	)
}

func (o *Orchestrator) conf() config.OrchestratorConfig {
	o.cfgMu.RLock()
	defer o.cfgMu.RUnlock()
	return o.cfg
}

// Process answers q. It always returns a Result and never panics; every
// collaborator failure is folded into the Result.
func (o *Orchestrator) Process(ctx context.Context, q Query) (res *Result) {
	start := time.Now()
	queryID := uuid.NewString()
	ctx = observability.AddQueryID(ctx, queryID)
	if q.Context.SessionID != "" {
		ctx = observability.AddSessionID(ctx, q.Context.SessionID)
	}
	ctx, span := o.tracer.TraceQuery(ctx, queryID)
	defer span.End()

	res = &Result{QueryID: queryID, Timestamp: start}
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			o.tracer.RecordError(span, err)
			o.metrics.RecordError("orchestrator", "panic")
			o.logger.Error(ctx, "query processing panicked", "error", err)
			res.Kind = KindToolFailed
			res.Failure = &Failure{Tool: "orchestrator", Message: err.Error()}
			res.Answer = ComposedAnswer{Text: toolErrorText("orchestrator"), Strategy: res.Answer.Strategy, ToolsUsed: []string{}}
		}
		res.Duration = time.Since(start)
		o.finish(ctx, q, res)
		o.tracer.SetAttributes(span,
			"strategy", res.Answer.Strategy,
			"outcome", string(res.Kind),
		)
	}()

	cctx, cancel := context.WithTimeout(ctx, o.conf().ToolTimeout)
	res.Classification = o.classifier.Classify(cctx, q.Text, q.Context)
	cancel()
	strategy := res.Classification.Strategy
	res.Answer.Strategy = strategy.String()
	o.logger.Info(ctx, "processing query",
		"strategy", strategy,
		"category", res.Classification.Category,
		"confidence", res.Classification.Confidence,
	)

	if strategy == classifier.StrategyClarify {
		o.clarify(ctx, q, res)
		return res
	}

	o.answer(ctx, q, strategy, res)
	o.evaluate(ctx, q, res)
	o.maybeNotify(ctx, q, res)
	return res
}

func (o *Orchestrator) clarify(ctx context.Context, q Query, res *Result) {
	cctx, cancel := context.WithTimeout(ctx, o.conf().ToolTimeout)
	defer cancel()
	set := o.clarifier.Generate(cctx, q.Text, q.Context)
	res.Kind = KindNeedsClarification
	res.ClarificationSet = &set
	res.Answer.Text = clarificationText(set)
	res.Answer.ToolsUsed = []string{}
}

// answer runs the retrieval path for strategy and synthesizes the reply.
func (o *Orchestrator) answer(ctx context.Context, q Query, strategy classifier.Strategy, res *Result) {
	passages, tools, source, err := o.retrieve(ctx, q.Text, strategy)
	res.Answer.ToolsUsed = tools
	if err != nil {
		o.toolFailed(ctx, res, err)
		return
	}

	if len(passages) == 0 {
		var retried []string
		passages, retried, err = o.widened(ctx, q.Text)
		res.Answer.ToolsUsed = mergeTools(tools, retried)
		if err != nil {
			o.logger.Warn(ctx, "widened retry failed", "error", err)
		}
		if len(passages) == 0 {
			res.Kind = KindNoResults
			res.Suggestions = o.suggestions(ctx)
			res.Answer.Text = noResultsText(source, res.Suggestions)
			return
		}
		strategy = classifier.StrategyCombined
	}

	res.Answer.Context = buildContext(strategy, passages)
	res.Answer.ContextLength = len([]rune(res.Answer.Context))
	o.synthesize(ctx, q, res)
}

func (o *Orchestrator) synthesize(ctx context.Context, q Query, res *Result) {
	gctx, cancel := context.WithTimeout(ctx, o.conf().ToolTimeout)
	defer cancel()
	resp, err := o.gen.Generate(gctx, &llm.Request{
		Messages: []llm.Message{
			llm.System(answerSystemPrompt),
			llm.User(answerPrompt(q.Text, res.Answer.Context, q.Preferences.DetailLevel)),
		},
		Temperature: o.conf().AnswerTemperature,
		MaxTokens:   o.conf().AnswerMaxTokens,
		Backend:     o.conf().Backend,
	})
	if err == nil && resp == nil {
		err = errors.New("empty response")
	}
	if err != nil {
		o.metrics.RecordError("orchestrator", string(llm.KindOf(err)))
		o.logger.Warn(ctx, "answer synthesis failed", "error", err)
		res.Kind = KindToolFailed
		res.Failure = &Failure{Tool: ToolLLM, Message: err.Error()}
		res.Answer.Text = degradedText(res.Answer.Context)
		return
	}
	res.Kind = KindAnswered
	res.Answer.Text = resp.Text
	res.Answer.Backend = resp.Backend
	res.Answer.Model = resp.Model
	res.Answer.Tokens = resp.Tokens
	res.Answer.Cost = resp.Cost
}

func (o *Orchestrator) toolFailed(ctx context.Context, res *Result, err error) {
	tool := ToolCombined
	var te *ToolError
	if errors.As(err, &te) {
		tool = te.Tool
	}
	o.metrics.RecordError("orchestrator", "tool_"+tool)
	o.logger.Warn(ctx, "retrieval tool failed", "tool", tool, "error", err)
	res.Kind = KindToolFailed
	res.Failure = &Failure{Tool: tool, Message: err.Error()}
	res.Answer.Text = toolErrorText(tool)
}

func (o *Orchestrator) evaluate(ctx context.Context, q Query, res *Result) {
	ectx, cancel := context.WithTimeout(ctx, o.conf().ToolTimeout)
	defer cancel()
	ev := o.evaluator.Evaluate(ectx, q.Text, res.Answer.Text, res.Answer.Context, evaluator.Metadata{
		ToolsUsed: res.Answer.ToolsUsed,
		Strategy:  res.Answer.Strategy,
	})
	res.Evaluation = &ev
}

// maybeNotify reports low-quality or complex queries without blocking the
// caller. Delivery failures are only logged.
func (o *Orchestrator) maybeNotify(ctx context.Context, q Query, res *Result) {
	if o.notifier == nil || o.conf().DisableNotifications || res.Evaluation == nil {
		return
	}
	overall := res.Evaluation.Overall()
	lowScore := overall < o.conf().QualityFloor
	important := lowScore ||
		!res.Evaluation.IsHighQuality(o.evaluator.Threshold()) ||
		res.Classification.Complexity == classifier.ComplexityHigh
	if !important {
		return
	}

	priority := notify.PriorityNormal
	if lowScore {
		priority = notify.PriorityHigh
	}
	event := notify.Event{
		Title:    "Consulta CV Importante",
		Message:  fmt.Sprintf("Consulta importante procesada: %s\n%s", truncate(q.Text, 100), res.Evaluation.Summary()),
		Priority: priority,
		Type:     "query",
		Query: &notify.QuerySummary{
			Query:     q.Text,
			Answer:    res.Answer.Text,
			Strategy:  res.Answer.Strategy,
			ToolsUsed: res.Answer.ToolsUsed,
			Score:     overall,
		},
	}

	o.mu.Lock()
	o.session.Notifications++
	o.mu.Unlock()

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.conf().NotifyTimeout)
	o.pending.Add(1)
	go func() {
		defer o.pending.Done()
		defer cancel()
		if !o.notifier.Notify(nctx, event) {
			o.logger.Warn(nctx, "important query notification not delivered", "score", overall)
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (o *Orchestrator) Wait() {
	o.pending.Wait()
}

func (o *Orchestrator) suggestions(ctx context.Context) []string {
	if lister, ok := o.faq.(categoryLister); ok {
		cctx, cancel := context.WithTimeout(ctx, o.conf().ToolTimeout)
		defer cancel()
		cats, err := lister.Categories(cctx)
		if err != nil {
			o.logger.Debug(ctx, "listing faq categories failed", "error", err)
		} else if len(cats) > 0 {
			if len(cats) > maxSuggestions {
				cats = cats[:maxSuggestions]
			}
			return cats
		}
	}
	return append([]string(nil), defaultSuggestions...)
}
