// Package classifier assigns a category, confidence and answering strategy
// to incoming profile queries.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/profileqa/internal/config"
	"github.com/haasonsaas/profileqa/internal/llm"
	"github.com/haasonsaas/profileqa/internal/llm/structured"
	"github.com/haasonsaas/profileqa/internal/observability"
	"github.com/haasonsaas/profileqa/internal/textutil"
)

// Generator is the part of the LLM gateway the pipeline stages call.
type Generator interface {
	Generate(ctx context.Context, req *llm.Request) (*llm.Response, error)
}

const systemPrompt = "You are an expert classifier of questions about a professional CV."

const instruction = `Classify the following question about a professional profile.

Categories:
- BASIC: contact details, location, education and other general facts
- TECHNICAL: technologies, tools and architectures
- EXPERIENCE: roles, employers and career history
- PROJECTS: details of specific projects
- COMPLEX: questions that span several of the above

Recommended tools:
- FAQ: structured FAQ lookup for direct facts
- RAG: semantic search over the CV documents
- COMBINED: both sources
- CLARIFY: the question is too vague to answer

Reply with only a JSON object:
{"category": "...", "confidence": 0-100, "recommended_tool": "...", "reasoning": "...", "search_terms": ["..."], "expected_complexity": "LOW|MEDIUM|HIGH"}

Question: %s`

var (
	interrogatives = []string{"qué", "cuál", "cómo", "dime", "what", "which", "how", "tell me"}
	contactStems   = []string{"contacto", "email", "correo", "teléfono", "nombre", "edad", "ubicación", "estudios", "universidad"}
	// English contact words are short enough to start unrelated words
	// ("age" in "agentes"), so they only match whole tokens.
	contactWords     = []string{"contact", "contacts", "phone", "name", "age", "location", "education", "university"}
	semanticKeywords = []string{"proyecto", "experiencia", "tecnología", "arquitectura", "implementación", "desarrollo", "project", "experience", "technology", "architecture", "implementation", "development"}
	projectKeywords  = []string{"proyecto", "project"}
	techKeywords     = []string{"tecnología", "arquitectura", "technology", "architecture"}
	conjunctions     = []string{"y", "también", "and", "also", "as well as"}
)

// Classifier classifies queries with a model call followed by fixed
// business rules. It is safe for concurrent use.
type Classifier struct {
	gen         Generator
	backend     string
	temperature float64
	maxTokens   int

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	mu    sync.Mutex
	stats Stats
}

// Option configures a Classifier.
type Option func(*Classifier)

func WithLogger(l *observability.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Classifier) { c.metrics = m }
}

func WithTracer(t *observability.Tracer) Option {
	return func(c *Classifier) { c.tracer = t }
}

// New creates a classifier that calls gen with the settings in cfg.
func New(gen Generator, cfg config.ClassifierConfig, opts ...Option) *Classifier {
	c := &Classifier{
		gen:         gen,
		backend:     cfg.Backend,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      observability.NopLogger(),
		stats:       newStats(),
	}
	if c.temperature == 0 {
		c.temperature = 0.3
	}
	if c.maxTokens == 0 {
		c.maxTokens = 500
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rawClassification struct {
	Category           string             `json:"category"`
	Confidence         *structured.Number `json:"confidence"`
	RecommendedTool    string             `json:"recommended_tool"`
	Reasoning          string             `json:"reasoning"`
	SearchTerms        []string           `json:"search_terms"`
	ExpectedComplexity string             `json:"expected_complexity"`
}

// Classify returns a classification for query. It never fails: gateway and
// parse errors yield Default(query) before the business rules run.
func (c *Classifier) Classify(ctx context.Context, query string, qctx QueryContext) Classification {
	ctx, span := c.tracer.Start(ctx, "classifier.classify")
	defer span.End()
	start := time.Now()

	cls, err := c.modelClassification(ctx, query)
	if err != nil {
		c.tracer.RecordError(span, err)
		c.metrics.RecordError("classifier", errorKind(err))
		c.logger.Warn(ctx, "classification fell back to default", "error", err)
		cls = Default(query)
	}

	cls = ApplyRules(cls, query, qctx)
	c.record(cls, err == nil)
	c.metrics.RecordClassification(cls.Category.String(), cls.Strategy.String())
	c.tracer.SetAttributes(span,
		"category", cls.Category.String(),
		"strategy", cls.Strategy.String(),
		"confidence", cls.Confidence,
	)
	c.logger.Debug(ctx, "query classified",
		"category", cls.Category,
		"strategy", cls.Strategy,
		"confidence", cls.Confidence,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return cls
}

// ClassifyBatch classifies queries in order with an empty context.
func (c *Classifier) ClassifyBatch(ctx context.Context, queries []string) []Classification {
	out := make([]Classification, 0, len(queries))
	for _, q := range queries {
		out = append(out, c.Classify(ctx, q, QueryContext{}))
	}
	return out
}

func (c *Classifier) modelClassification(ctx context.Context, query string) (Classification, error) {
	resp, err := c.gen.Generate(ctx, &llm.Request{
		Messages: []llm.Message{
			llm.System(systemPrompt),
			llm.User(fmt.Sprintf(instruction, query)),
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Backend:     c.backend,
	})
	if err != nil {
		return Classification{}, fmt.Errorf("classify: %w", err)
	}

	raw, err := structured.Parse(resp.Text, rawClassification{})
	if err != nil {
		return Classification{}, fmt.Errorf("classify: %w", err)
	}
	return fromRaw(raw, query)
}

// fromRaw fills missing fields with the defaults and clamps confidence.
func fromRaw(raw rawClassification, query string) (Classification, error) {
	def := Default(query)
	cls := Classification{
		Category:    def.Category,
		Confidence:  clamp(raw.Confidence.Float(def.Confidence), 0, 100),
		Strategy:    def.Strategy,
		Reasoning:   strings.TrimSpace(raw.Reasoning),
		SearchTerms: raw.SearchTerms,
		Complexity:  def.Complexity,
	}
	var errs []error
	if raw.Category != "" {
		v, err := ParseCategory(raw.Category)
		errs = append(errs, err)
		if err == nil {
			cls.Category = v
		}
	}
	if raw.RecommendedTool != "" {
		v, err := ParseStrategy(raw.RecommendedTool)
		errs = append(errs, err)
		if err == nil {
			cls.Strategy = v
		}
	}
	if raw.ExpectedComplexity != "" {
		v, err := ParseComplexity(raw.ExpectedComplexity)
		errs = append(errs, err)
		if err == nil {
			cls.Complexity = v
		}
	}
	if err := errors.Join(errs...); err != nil {
		return Classification{}, fmt.Errorf("classify: %w", err)
	}
	if len(cls.SearchTerms) == 0 {
		cls.SearchTerms = []string{query}
	}
	return NewClassification(cls)
}

// ApplyRules adjusts a classification with the deterministic business rules,
// in order. Each rule only overrides fields; none loops.
func ApplyRules(cls Classification, query string, qctx QueryContext) Classification {
	words := textutil.WordCount(query)

	if words <= 3 || textutil.HasWord(query, interrogatives) {
		if cls.Confidence < 70 {
			cls.Strategy = StrategyClarify
			cls.Reasoning = appendReason(cls.Reasoning, "query too vague, needs clarification")
		}
	}

	if isContactQuery(query) {
		cls.Category = CategoryGeneralInfo
		cls.Strategy = StrategyFAQ
	}

	if _, ok := textutil.MatchPrefix(query, semanticKeywords); ok {
		cls.Strategy = StrategySemantic
		if _, ok := textutil.MatchPrefix(query, projectKeywords); ok {
			cls.Category = CategoryProjectDetail
		} else if _, ok := textutil.MatchPrefix(query, techKeywords); ok {
			cls.Category = CategoryTechnical
		}
	}

	if qctx.PreviousQueries > 0 {
		cls.Confidence = min(100, cls.Confidence+10)
	}

	if words > 15 || textutil.HasWord(query, conjunctions) {
		cls.Strategy = StrategyCombined
		cls.Complexity = ComplexityHigh
	}
	return cls
}

func isContactQuery(query string) bool {
	if _, ok := textutil.MatchPrefix(query, contactStems); ok {
		return true
	}
	return textutil.HasWord(query, contactWords)
}

func appendReason(reasoning, note string) string {
	if reasoning == "" {
		return note
	}
	return reasoning + " (" + note + ")"
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}

func errorKind(err error) string {
	var pe *structured.ParseError
	if errors.As(err, &pe) {
		return "parse"
	}
	if be, ok := llm.AsBackendError(err); ok {
		return string(be.Kind)
	}
	return "invalid"
}
