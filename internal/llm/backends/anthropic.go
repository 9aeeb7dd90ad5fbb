package backends

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/profileqa/internal/llm"
)

const anthropicDefaultMaxTokens = 1024

// AnthropicConfig configures the Anthropic Messages backend.
type AnthropicConfig struct {
	Name    string
	APIKey  string
	BaseURL string
	Model   string
}

// Anthropic calls the Messages API. System messages are sent through the
// dedicated system field rather than the conversation.
type Anthropic struct {
	name   string
	model  string
	client anthropic.Client
}

func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	if cfg.Name == "" {
		cfg.Name = "anthropic"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-latest"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Anthropic{name: cfg.Name, model: cfg.Model, client: anthropic.NewClient(opts...)}, nil
}

func (b *Anthropic) Name() string  { return b.name }
func (b *Anthropic) Model() string { return b.model }

func (b *Anthropic) Complete(ctx context.Context, req *llm.Request) (*llm.Completion, error) {
	system, conversation := req.SplitSystem()

	messages := make([]anthropic.MessageParam, 0, len(conversation))
	for _, m := range conversation {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == llm.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(b.model),
		Messages:    messages,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(req.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return nil, b.wrapError(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &llm.Completion{
		Text:         text.String(),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func (b *Anthropic) wrapError(err error) error {
	be := llm.NewBackendError(b.name, b.model, err)

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return be
	}
	be = be.WithStatus(apiErr.StatusCode).WithRequestID(apiErr.RequestID)

	var payload anthropicErrorPayload
	if raw := apiErr.RawJSON(); raw != "" && json.Unmarshal([]byte(raw), &payload) == nil {
		if payload.Error.Message != "" {
			be = be.WithMessage(payload.Error.Message)
		}
		if payload.Error.Type != "" {
			be = be.WithCode(payload.Error.Type)
		}
		if payload.RequestID != "" {
			be = be.WithRequestID(payload.RequestID)
		}
	}
	return be
}
