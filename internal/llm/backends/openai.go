// Package backends implements llm.Backend for the hosted and local model
// services profileqa can talk to.
package backends

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/profileqa/internal/llm"
)

// OpenAIConfig configures an OpenAI or OpenAI-compatible backend.
type OpenAIConfig struct {
	// Name is the backend ID. Defaults to "openai".
	Name   string
	APIKey string
	// BaseURL points at a compatible endpoint such as DeepSeek, Groq or Ollama's /v1.
	BaseURL string
	Model   string
}

// OpenAI calls the chat completions API.
type OpenAI struct {
	name   string
	model  string
	client *openai.Client
}

// NewOpenAI creates an OpenAI backend. An API key is required unless BaseURL
// points at a compatible endpoint.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("openai: api key is required")
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &OpenAI{
		name:   cfg.Name,
		model:  cfg.Model,
		client: openai.NewClientWithConfig(clientCfg),
	}, nil
}

func (b *OpenAI) Name() string  { return b.name }
func (b *OpenAI) Model() string { return b.model }

// Complete sends one non-streaming chat completion.
func (b *OpenAI) Complete(ctx context.Context, req *llm.Request) (*llm.Completion, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	chatReq := openai.ChatCompletionRequest{
		Model:       b.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	resp, err := b.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, b.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, llm.NewBackendError(b.name, b.model, errors.New("response has no choices"))
	}
	return &llm.Completion{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (b *OpenAI) wrapError(err error) error {
	be := llm.NewBackendError(b.name, b.model, err)

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		be = be.WithStatus(apiErr.HTTPStatusCode).WithMessage(apiErr.Message)
		if code := fmt.Sprint(apiErr.Code); apiErr.Code != nil && code != "" {
			be = be.WithCode(code)
		} else if apiErr.Type != "" {
			be = be.WithCode(apiErr.Type)
		}
		return be
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return be.WithStatus(reqErr.HTTPStatusCode)
	}
	return be
}
