// Package evaluator scores composed answers against a weighted rubric.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/haasonsaas/profileqa/internal/config"
	"github.com/haasonsaas/profileqa/internal/llm"
	"github.com/haasonsaas/profileqa/internal/llm/structured"
	"github.com/haasonsaas/profileqa/internal/observability"
	"github.com/haasonsaas/profileqa/internal/textutil"
)

// Tool names recognized in Metadata.ToolsUsed.
const (
	ToolFAQ      = "faq_lookup"
	ToolSemantic = "semantic_search"
)

// Notes appended by the validation rules.
const (
	WeaknessShort      = "Respuesta muy breve"
	WeaknessIrrelevant = "Baja relevancia con la consulta"
	StrengthContext    = "Respuesta basada en contexto específico"
	StrengthCombined   = "Búsqueda combinada utilizada"
)

const (
	DefaultHighQualityThreshold = 7.0

	shortAnswerWords   = 20
	shortAnswerCap     = 6.0
	minOverlap         = 0.3
	lowRelevanceCap    = 5.0
	contextMinLength   = 100
	bonus              = 0.5
	maxVariance        = 2.0
	confidencePenalty  = 20.0
	confidenceFloor    = 30.0
	maxPromptContext   = 3000
	missingScore       = 5.0
	missingConfidence  = 50.0
	fallbackScore      = 6.0
	fallbackConfidence = 60.0
)

const systemPrompt = "You are an expert evaluator of answers about a professional CV."

const instruction = `Evaluate the answer to a question about a professional profile.
Score each criterion from 0 to 10:
- precision: information is correct and supported by the context
- completeness: the answer is complete and detailed
- relevance: the answer addresses the question
- clarity: the answer is easy to understand
- professionalism: the tone is appropriate

Reply with only a JSON object:
{"scores": {"precision": 0, "completeness": 0, "relevance": 0, "clarity": 0, "professionalism": 0}, "confidence": 0-100, "strengths": ["..."], "weaknesses": ["..."], "suggestions": ["..."]}

Question: %s

Answer: %s

Context: %s`

// Metadata describes how an answer was produced.
type Metadata struct {
	ToolsUsed []string `json:"tools_used,omitempty"`
	Strategy  string   `json:"strategy,omitempty"`
}

func (m Metadata) usedTool(name string) bool {
	for _, t := range m.ToolsUsed {
		if t == name {
			return true
		}
	}
	return false
}

// Result is the evaluation of one answer.
type Result struct {
	Scores      Scores   `json:"scores"`
	Confidence  float64  `json:"confidence"`
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
	Suggestions []string `json:"suggestions"`
	// Fallback is set when the rubric could not be obtained from the model.
	Fallback bool `json:"fallback,omitempty"`
}

// Overall is the weighted overall score.
func (r Result) Overall() float64 { return r.Scores.Overall() }

// IsHighQuality reports Overall() >= threshold.
func (r Result) IsHighQuality(threshold float64) bool {
	return r.Overall() >= threshold
}

// Grade buckets the overall score as excellent, good, regular or poor.
func (r Result) Grade() string {
	switch score := r.Overall(); {
	case score >= 8.5:
		return "excellent"
	case score >= 7.0:
		return "good"
	case score >= 5.0:
		return "regular"
	default:
		return "poor"
	}
}

var gradeLabels = map[string]string{
	"excellent": "Excelente",
	"good":      "Buena",
	"regular":   "Regular",
	"poor":      "Deficiente",
}

// Summary is a one-line description of the evaluation.
func (r Result) Summary() string {
	return fmt.Sprintf("Calidad: %s (Score: %.1f/10, Confianza: %.0f%%)", gradeLabels[r.Grade()], r.Overall(), r.Confidence)
}

// Fallback is the conservative evaluation used when the rubric is unavailable.
func Fallback() Result {
	return Result{
		Scores: Scores{
			Precision: fallbackScore, Completeness: fallbackScore, Relevance: fallbackScore,
			Clarity: fallbackScore, Professionalism: fallbackScore,
		},
		Confidence:  fallbackConfidence,
		Strengths:   []string{"Response provided"},
		Weaknesses:  []string{"Unable to properly evaluate"},
		Suggestions: []string{"Improve evaluation system"},
		Fallback:    true,
	}
}

// Generator is the part of the LLM gateway the evaluator calls.
type Generator interface {
	Generate(ctx context.Context, req *llm.Request) (*llm.Response, error)
}

// Evaluator scores answers. It is safe for concurrent use.
type Evaluator struct {
	gen         Generator
	backend     string
	temperature float64
	maxTokens   int
	threshold   float64

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	mu    sync.Mutex
	stats Stats
}

type Option func(*Evaluator)

func WithLogger(l *observability.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

func WithTracer(t *observability.Tracer) Option {
	return func(e *Evaluator) { e.tracer = t }
}

// New creates an evaluator that calls gen with the settings in cfg.
func New(gen Generator, cfg config.EvaluatorConfig, opts ...Option) *Evaluator {
	e := &Evaluator{
		gen:         gen,
		backend:     cfg.Backend,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		threshold:   cfg.HighQualityThreshold,
		logger:      observability.NopLogger(),
		stats:       newStats(),
	}
	if e.temperature == 0 {
		e.temperature = 0.2
	}
	if e.maxTokens == 0 {
		e.maxTokens = 800
	}
	if e.threshold == 0 {
		e.threshold = DefaultHighQualityThreshold
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Threshold is the overall score counted as high quality.
func (e *Evaluator) Threshold() float64 { return e.threshold }

type rawScores struct {
	Precision       *structured.Number `json:"precision"`
	Completeness    *structured.Number `json:"completeness"`
	Relevance       *structured.Number `json:"relevance"`
	Clarity         *structured.Number `json:"clarity"`
	Professionalism *structured.Number `json:"professionalism"`
}

type rawEvaluation struct {
	Scores      rawScores          `json:"scores"`
	Confidence  *structured.Number `json:"confidence"`
	Strengths   []string           `json:"strengths"`
	Weaknesses  []string           `json:"weaknesses"`
	Suggestions []string           `json:"suggestions"`
}

// Evaluate scores answer for query. It never fails: when the rubric cannot be
// obtained the Fallback evaluation is used. The validation rules always run.
func (e *Evaluator) Evaluate(ctx context.Context, query, answer, evidence string, md Metadata) Result {
	ctx, span := e.tracer.Start(ctx, "evaluator.evaluate")
	defer span.End()

	res, err := e.rubric(ctx, query, answer, evidence)
	if err != nil {
		e.tracer.RecordError(span, err)
		e.metrics.RecordError("evaluator", errorKind(err))
		e.logger.Warn(ctx, "evaluation fell back to default", "error", err)
		res = Fallback()
	}
	res = ApplyRules(res, query, answer, evidence, md)

	e.record(res, err == nil)
	e.metrics.RecordEvaluation(res.Overall())
	e.tracer.SetAttributes(span, "overall", res.Overall(), "confidence", res.Confidence, "fallback", res.Fallback)
	return res
}

func (e *Evaluator) rubric(ctx context.Context, query, answer, evidence string) (Result, error) {
	prompt := fmt.Sprintf(instruction, query, answer, textutil.Truncate(evidence, maxPromptContext))
	resp, err := e.gen.Generate(ctx, &llm.Request{
		Messages:    []llm.Message{llm.System(systemPrompt), llm.User(prompt)},
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
		Backend:     e.backend,
	})
	if err != nil {
		return Result{}, fmt.Errorf("evaluate: %w", err)
	}
	raw, err := structured.Parse(resp.Text, rawEvaluation{})
	if err != nil {
		return Result{}, fmt.Errorf("evaluate: %w", err)
	}
	return fromRaw(raw)
}

func fromRaw(raw rawEvaluation) (Result, error) {
	score := func(n *structured.Number) float64 {
		return clamp(n.Float(missingScore), minScore, maxScore)
	}
	scores, err := NewScores(Scores{
		Precision:       score(raw.Scores.Precision),
		Completeness:    score(raw.Scores.Completeness),
		Relevance:       score(raw.Scores.Relevance),
		Clarity:         score(raw.Scores.Clarity),
		Professionalism: score(raw.Scores.Professionalism),
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Scores:      scores,
		Confidence:  clamp(raw.Confidence.Float(missingConfidence), 0, 100),
		Strengths:   nonNil(raw.Strengths),
		Weaknesses:  nonNil(raw.Weaknesses),
		Suggestions: nonNil(raw.Suggestions),
	}, nil
}

// ApplyRules runs the validation rules in order. Notes are never duplicated,
// so applying the rules twice gives the same result.
func ApplyRules(r Result, query, answer, evidence string, md Metadata) Result {
	r.Strengths = append([]string(nil), r.Strengths...)
	r.Weaknesses = append([]string(nil), r.Weaknesses...)

	if textutil.WordCount(answer) < shortAnswerWords {
		r.Scores.Completeness = min(r.Scores.Completeness, shortAnswerCap)
		r.Weaknesses = addNote(r.Weaknesses, WeaknessShort)
	}

	if textutil.Overlap(query, answer) < minOverlap {
		r.Scores.Relevance = min(r.Scores.Relevance, lowRelevanceCap)
		r.Weaknesses = addNote(r.Weaknesses, WeaknessIrrelevant)
	}

	if len(evidence) > contextMinLength {
		r.Scores.Precision = min(maxScore, r.Scores.Precision+bonus)
		r.Strengths = addNote(r.Strengths, StrengthContext)
	}

	if md.usedTool(ToolFAQ) && md.usedTool(ToolSemantic) {
		r.Scores.Completeness = min(maxScore, r.Scores.Completeness+bonus)
		r.Strengths = addNote(r.Strengths, StrengthCombined)
	}

	if r.Scores.Variance() > maxVariance {
		r.Confidence = max(confidenceFloor, r.Confidence-confidencePenalty)
	}
	return r
}

func addNote(notes []string, note string) []string {
	for _, n := range notes {
		if n == note {
			return notes
		}
	}
	return append(notes, note)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
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

// Critique is the outcome of SelfCritique.
type Critique struct {
	OverallScore    float64        `json:"overall_score"`
	HighQuality     bool           `json:"is_high_quality"`
	Summary         string         `json:"critique"`
	Tools           ToolsInsight   `json:"tools_effectiveness"`
	Quality         QualityInsight `json:"response_quality"`
	Context         ContextInsight `json:"context_impact"`
	Recommendations []string       `json:"recommendations"`
	Evaluation      Result         `json:"evaluation"`
}

type ToolsInsight struct {
	ToolsUsed          []string `json:"tools_used"`
	EffectivenessScore float64  `json:"effectiveness_score"`
	Recommendation     string   `json:"recommendation"`
}

type QualityInsight struct {
	OverallQuality string    `json:"overall_quality"`
	Strongest      Criterion `json:"strongest_aspect"`
	Weakest        Criterion `json:"weakest_aspect"`
}

type ContextInsight struct {
	ContextQuality     string `json:"context_quality"`
	PrecisionImpact    string `json:"precision_impact"`
	CompletenessImpact string `json:"completeness_impact"`
}

// SelfCritique evaluates a prior answer once and derives insights from the
// resulting scores without further model calls.
func (e *Evaluator) SelfCritique(ctx context.Context, query, answer string, toolsUsed []string, contextQuality string) Critique {
	if contextQuality == "" {
		contextQuality = "unknown"
	}
	res := e.Evaluate(ctx, query, answer, "", Metadata{ToolsUsed: toolsUsed})
	return Critique{
		OverallScore: res.Overall(),
		HighQuality:  res.IsHighQuality(e.threshold),
		Summary:      res.Summary(),
		Tools: ToolsInsight{
			ToolsUsed:          nonNil(toolsUsed),
			EffectivenessScore: res.Scores.Precision,
			Recommendation:     pick(res.Scores.Precision >= 7.5, "optimal", "needs_improvement"),
		},
		Quality: QualityInsight{
			OverallQuality: pick(res.IsHighQuality(e.threshold), "high", "moderate"),
			Strongest:      res.Scores.Strongest(),
			Weakest:        res.Scores.Weakest(),
		},
		Context: ContextInsight{
			ContextQuality:     contextQuality,
			PrecisionImpact:    pick(res.Scores.Precision >= 7.0, "positive", "negative"),
			CompletenessImpact: pick(res.Scores.Completeness >= 7.0, "positive", "negative"),
		},
		Recommendations: Recommendations(res, toolsUsed),
		Evaluation:      res,
	}
}

// Recommendations lists improvements implied by the scores and tool usage.
func Recommendations(r Result, toolsUsed []string) []string {
	out := []string{}
	if r.Scores.Precision < 7.0 {
		out = append(out, "Mejorar precisión usando más contexto específico")
	}
	if r.Scores.Completeness < 7.0 {
		out = append(out, "Proporcionar respuestas más detalladas")
	}
	if r.Scores.Relevance < 7.0 {
		out = append(out, "Mejorar relevancia enfocándose en palabras clave de la consulta")
	}
	if len(toolsUsed) == 1 {
		out = append(out, "Considerar usar múltiples herramientas para respuestas más completas")
	}
	return out
}

func pick(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}
