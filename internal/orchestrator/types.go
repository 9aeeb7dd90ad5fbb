package orchestrator

import (
	"fmt"
	"time"

	"github.com/haasonsaas/profileqa/internal/clarify"
	"github.com/haasonsaas/profileqa/internal/classifier"
	"github.com/haasonsaas/profileqa/internal/evaluator"
	"github.com/haasonsaas/profileqa/internal/llm"
)

// Query is one user question with its conversational context.
type Query struct {
	Text        string                  `json:"query"`
	Context     classifier.QueryContext `json:"context,omitempty"`
	Preferences Preferences             `json:"preferences,omitempty"`
}

// Preferences tune how the answer is written.
type Preferences struct {
	// DetailLevel is a free-form hint such as "resumen" or "detallado".
	DetailLevel string `json:"detail_level,omitempty"`
}

// Kind is the outcome of processing a query.
type Kind string

const (
	KindAnswered           Kind = "answered"
	KindNoResults          Kind = "no_results"
	KindNeedsClarification Kind = "needs_clarification"
	KindToolFailed         Kind = "tool_failed"
)

// ComposedAnswer is the text returned to the user and how it was produced.
type ComposedAnswer struct {
	Text          string          `json:"response"`
	Strategy      string          `json:"strategy"`
	ToolsUsed     []string        `json:"tools_used"`
	ContextLength int             `json:"context_length"`
	Backend       string          `json:"backend,omitempty"`
	Model         string          `json:"model,omitempty"`
	Tokens        *llm.TokenUsage `json:"tokens,omitempty"`
	Cost          *float64        `json:"cost,omitempty"`
	Context       string          `json:"-"`
}

// Failure describes the collaborator that failed.
type Failure struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
}

// Result is the single outcome of Process.
type Result struct {
	QueryID          string                    `json:"query_id"`
	Kind             Kind                      `json:"kind"`
	Answer           ComposedAnswer            `json:"answer"`
	ClarificationSet *clarify.Set              `json:"clarification,omitempty"`
	Classification   classifier.Classification `json:"classification"`
	Evaluation       *evaluator.Result         `json:"evaluation,omitempty"`
	Failure          *Failure                  `json:"failure,omitempty"`
	Suggestions      []string                  `json:"suggestions,omitempty"`
	Duration         time.Duration             `json:"duration"`
	Timestamp        time.Time                 `json:"timestamp"`
}

// ToolError wraps an error returned by a retrieval or generation tool.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }
