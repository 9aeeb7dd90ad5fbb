// Package llm is the gateway between the query pipeline and language-model
// backends. It offers a single-backend call and a concurrent ensemble over
// several backends, with typed errors, token accounting and per-call timeouts.
package llm

import (
	"context"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a completion request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Request is a completion request routed through the Gateway.
type Request struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`

	// Backend selects a configured backend by ID. Empty uses the default.
	Backend string `json:"backend,omitempty"`
}

// SplitSystem separates system messages from the conversation, joining
// multiple system messages with blank lines.
func (r *Request) SplitSystem() (string, []Message) {
	var system string
	rest := make([]Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

// TokenUsage reports input and output tokens for one call.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`

	// Estimated is true when the backend reported no usage and counts were
	// computed locally.
	Estimated bool `json:"estimated,omitempty"`
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int { return u.Input + u.Output }

// Response is the result of a successful gateway call.
type Response struct {
	Text    string        `json:"text"`
	Backend string        `json:"backend"`
	Model   string        `json:"model"`
	Tokens  *TokenUsage   `json:"tokens,omitempty"`
	Cost    *float64      `json:"cost,omitempty"`
	Latency time.Duration `json:"latency"`
}

// Completion is what a Backend returns. Zero token counts mean the backend
// did not report usage.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Backend is a single language-model service.
//
// Implementations must honor ctx cancellation and must not retry on their own.
// Errors should be *BackendError; anything else is classified by the gateway.
type Backend interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req *Request) (*Completion, error)
}
