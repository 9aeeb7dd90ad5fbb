package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/haasonsaas/profileqa/internal/observability"
)

// Criterion picks one response from a non-empty list of successes.
type Criterion func(successes []*Response) *Response

// CriterionLongest picks the response with the most characters; ties keep dispatch order.
func CriterionLongest(successes []*Response) *Response {
	best := successes[0]
	for _, r := range successes[1:] {
		if len([]rune(r.Text)) > len([]rune(best.Text)) {
			best = r
		}
	}
	return best
}

// CriterionMostTokens picks the response with the most output tokens.
func CriterionMostTokens(successes []*Response) *Response {
	output := func(r *Response) int {
		if r.Tokens == nil {
			return 0
		}
		return r.Tokens.Output
	}
	best := successes[0]
	for _, r := range successes[1:] {
		if output(r) > output(best) {
			best = r
		}
	}
	return best
}

// CriterionFirst picks the first success in dispatch order.
func CriterionFirst(successes []*Response) *Response {
	return successes[0]
}

// CriterionByName resolves longest, most_tokens or first.
func CriterionByName(name string) (Criterion, error) {
	switch name {
	case "", "longest":
		return CriterionLongest, nil
	case "most_tokens":
		return CriterionMostTokens, nil
	case "first":
		return CriterionFirst, nil
	}
	return nil, fmt.Errorf("llm: unknown selection criterion %q", name)
}

// ErrNoSuccesses is returned by Select when every member failed.
var ErrNoSuccesses = errors.New("llm: no successful responses")

// MemberResult is the outcome of one ensemble member. Exactly one of
// Response and Err is set.
type MemberResult struct {
	Backend  string    `json:"backend"`
	Response *Response `json:"response,omitempty"`
	Err      error     `json:"-"`
}

// EnsembleResult holds member outcomes in dispatch order.
type EnsembleResult struct {
	Results  []MemberResult `json:"results"`
	Failures int            `json:"failures"`
}

// Successes returns the successful responses in dispatch order.
func (r *EnsembleResult) Successes() []*Response {
	out := make([]*Response, 0, len(r.Results))
	for _, m := range r.Results {
		if m.Err == nil && m.Response != nil {
			out = append(out, m.Response)
		}
	}
	return out
}

// CallOptions carries the sampling parameters shared by every member.
type CallOptions struct {
	Temperature float64
	MaxTokens   int
}

// Ensemble dispatches one prompt to several backends at once.
type Ensemble struct {
	gateway  *Gateway
	members  []string
	combiner string
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewEnsemble builds an ensemble over members. combiner is the backend used by
// Combine; empty means the gateway default.
func NewEnsemble(g *Gateway, members []string, combiner string) (*Ensemble, error) {
	if g == nil {
		return nil, errors.New("llm: ensemble requires a gateway")
	}
	if len(members) == 0 {
		members = g.Backends()
	}
	for _, m := range members {
		if _, ok := g.backends[m]; !ok {
			return nil, fmt.Errorf("llm: ensemble member %q is not registered", m)
		}
	}
	if combiner == "" {
		combiner = g.defaultBackend
	}
	if _, ok := g.backends[combiner]; !ok {
		return nil, fmt.Errorf("llm: combiner %q is not registered", combiner)
	}
	return &Ensemble{
		gateway:  g,
		members:  append([]string(nil), members...),
		combiner: combiner,
		logger:   g.logger,
		metrics:  g.metrics,
	}, nil
}

// Members returns the member backend IDs in dispatch order.
func (e *Ensemble) Members() []string {
	return append([]string(nil), e.members...)
}

// Generate sends messages to every member concurrently. Each member gets its
// own timeout from the gateway; one member failing never cancels the others.
func (e *Ensemble) Generate(ctx context.Context, messages []Message, opts CallOptions) *EnsembleResult {
	result := &EnsembleResult{Results: make([]MemberResult, len(e.members))}

	var wg sync.WaitGroup
	for i, name := range e.members {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			req := &Request{
				Messages:    messages,
				Temperature: opts.Temperature,
				MaxTokens:   opts.MaxTokens,
				Backend:     name,
			}
			resp, err := e.gateway.Generate(ctx, req)
			result.Results[i] = MemberResult{Backend: name, Response: resp, Err: err}
		}(i, name)
	}
	wg.Wait()

	for _, m := range result.Results {
		if m.Err != nil {
			result.Failures++
			e.metrics.RecordEnsembleFailure(m.Backend)
		}
	}
	e.logger.Info(ctx, "ensemble dispatch completed",
		"members", len(e.members),
		"failures", result.Failures,
	)
	return result
}

// Select applies criterion to successes. A nil criterion means longest.
func (e *Ensemble) Select(successes []*Response, criterion Criterion) (*Response, error) {
	if len(successes) == 0 {
		return nil, ErrNoSuccesses
	}
	if criterion == nil {
		criterion = CriterionLongest
	}
	return criterion(successes), nil
}

const combineInstruction = "You merge several candidate answers to the same question into one answer. " +
	"Keep every fact the candidates agree on, resolve conflicts in favor of the most specific candidate, " +
	"and do not add information that none of them contain."

// Combine synthesizes successes into one text. Zero responses give "" and
// one response is returned as is. When the combiner call fails the first
// success is returned unchanged.
func (e *Ensemble) Combine(ctx context.Context, successes []*Response) string {
	switch len(successes) {
	case 0:
		return ""
	case 1:
		return successes[0].Text
	}

	parts := make([]string, 0, len(successes))
	for _, r := range successes {
		parts = append(parts, fmt.Sprintf("Response from %s (%s):\n%s", r.Backend, r.Model, r.Text))
	}
	resp, err := e.gateway.Generate(ctx, &Request{
		Messages: []Message{
			System(combineInstruction),
			User(strings.Join(parts, "\n\n---\n\n")),
		},
		Temperature: 0.3,
		Backend:     e.combiner,
	})
	if err != nil {
		e.logger.Warn(ctx, "ensemble combine failed, using first response", "combiner", e.combiner, "error", err)
		return successes[0].Text
	}
	return resp.Text
}
