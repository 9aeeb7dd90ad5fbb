// Package clarify generates clarifying questions for vague profile queries.
package clarify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/haasonsaas/profileqa/internal/classifier"
	"github.com/haasonsaas/profileqa/internal/config"
	"github.com/haasonsaas/profileqa/internal/llm"
	"github.com/haasonsaas/profileqa/internal/llm/structured"
	"github.com/haasonsaas/profileqa/internal/observability"
	"github.com/haasonsaas/profileqa/internal/textutil"
)

const (
	// MaxQuestions is the size of a full clarification set.
	MaxQuestions = 3

	minQuestionLen = 15
	maxQuestionLen = 200
	minLineLen     = 10
)

const systemPrompt = "You are an expert at writing clarifying questions about questions on a professional CV."

const instruction = `The following question about a professional profile is ambiguous.
Write up to three short clarifying questions, in the language of the question,
that would help give a precise answer.

Reply with only a JSON object: {"questions": ["...", "...", "..."]}

Question: %s`

// topicQuestions are added in order when the query mentions the topic.
var topicQuestions = []struct {
	keywords []string
	question string
}{
	{[]string{"proyecto", "project"}, "¿Te interesa algún proyecto específico o tipo de industria?"},
	{[]string{"tecnología", "technology"}, "¿Buscas información sobre tecnologías específicas o arquitectura general?"},
	{[]string{"experiencia", "experience"}, "¿Prefieres información sobre roles específicos o experiencia general?"},
}

// Fallbacks are the generic questions used to fill a set.
var Fallbacks = []string{
	"¿Podrías ser más específico sobre qué aspecto te interesa más?",
	"¿Buscas información técnica detallada o un resumen general?",
	"¿Hay algún período de tiempo o proyecto específico que te interese?",
}

// Set is an ordered list of at most MaxQuestions distinct questions.
type Set struct {
	Questions []string `json:"questions"`
	// Generated counts the leading questions that came from the model.
	Generated int `json:"generated"`
}

// Len returns the number of questions.
func (s Set) Len() int { return len(s.Questions) }

// Generator is the part of the LLM gateway the clarifier calls.
type Generator interface {
	Generate(ctx context.Context, req *llm.Request) (*llm.Response, error)
}

// Clarifier produces clarification sets. It is safe for concurrent use.
type Clarifier struct {
	gen         Generator
	backend     string
	temperature float64
	maxTokens   int
	schema      *structured.Schema

	logger  *observability.Logger
	metrics *observability.Metrics

	mu    sync.Mutex
	stats Stats
}

type Option func(*Clarifier)

func WithLogger(l *observability.Logger) Option {
	return func(c *Clarifier) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Clarifier) { c.metrics = m }
}

type questionsPayload struct {
	Questions []string `json:"questions" jsonschema:"required"`
}

// New creates a clarifier that calls gen with the settings in cfg.
func New(gen Generator, cfg config.ClarifierConfig, opts ...Option) *Clarifier {
	c := &Clarifier{
		gen:         gen,
		backend:     cfg.Backend,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      observability.NopLogger(),
	}
	if c.temperature == 0 {
		c.temperature = 0.7
	}
	if c.maxTokens == 0 {
		c.maxTokens = 400
	}
	if schema, err := structured.SchemaFor(questionsPayload{}); err == nil {
		c.schema = schema
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate returns up to MaxQuestions clarifying questions for query.
// A non-empty query always yields exactly MaxQuestions questions; gateway
// failures degrade to Fallbacks. An empty query yields an empty set.
func (c *Clarifier) Generate(ctx context.Context, query string, qctx classifier.QueryContext) Set {
	if strings.TrimSpace(query) == "" {
		return Set{Questions: []string{}}
	}

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
		c.logger.Warn(ctx, "clarification generation failed", "error", err, "session_id", qctx.SessionID)
		c.metrics.RecordError("clarifier", string(llm.KindOf(err)))
		set := Set{Questions: append([]string(nil), Fallbacks...)}
		c.record(set, false)
		return set
	}

	candidates := c.parse(ctx, resp.Text)
	valid := Validate(candidates)
	set := Set{Questions: Fill(valid, query), Generated: len(valid)}
	c.record(set, true)
	return set
}

func (c *Clarifier) parse(ctx context.Context, text string) []string {
	var payload questionsPayload
	err := structured.DecodeValidated(text, c.schema, &payload)
	if err == nil {
		return payload.Questions
	}
	c.logger.Debug(ctx, "clarification output is not structured, extracting lines", "error", err)
	return ExtractQuestions(text)
}

// ExtractQuestions returns lines of free text that look like questions, with
// leading enumeration removed.
func ExtractQuestions(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasSuffix(line, "?") || utf8.RuneCountInString(line) <= minLineLen {
			continue
		}
		line = strings.TrimSpace(strings.TrimLeft(line, "0123456789.-*•) "))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Validate trims candidates, appends a missing "?", drops those outside the
// length bounds and duplicates, and keeps at most MaxQuestions.
func Validate(candidates []string) []string {
	out := make([]string, 0, MaxQuestions)
	for _, q := range candidates {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if !strings.HasSuffix(q, "?") {
			q += "?"
		}
		n := utf8.RuneCountInString(q)
		if n < minQuestionLen || n > maxQuestionLen {
			continue
		}
		if contains(out, q) {
			continue
		}
		out = append(out, q)
		if len(out) == MaxQuestions {
			break
		}
	}
	return out
}

// Fill tops questions up to MaxQuestions with topic questions matched in
// query and then the generic fallbacks.
func Fill(questions []string, query string) []string {
	out := append(make([]string, 0, MaxQuestions), questions...)
	add := func(q string) {
		if len(out) < MaxQuestions && !contains(out, q) {
			out = append(out, q)
		}
	}
	for _, topic := range topicQuestions {
		if _, ok := textutil.MatchPrefix(query, topic.keywords); ok {
			add(topic.question)
		}
	}
	for _, q := range Fallbacks {
		add(q)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
