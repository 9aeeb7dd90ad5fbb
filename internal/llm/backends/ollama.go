package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/profileqa/internal/llm"
)

// OllamaConfig configures a local Ollama server.
type OllamaConfig struct {
	Name    string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Ollama calls the native /api/chat endpoint without streaming.
type Ollama struct {
	name    string
	model   string
	baseURL string
	client  *http.Client
}

func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("ollama: model is required")
	}
	if cfg.Name == "" {
		cfg.Name = "ollama"
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Ollama{
		name:    cfg.Name,
		model:   strings.TrimSpace(cfg.Model),
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (b *Ollama) Name() string  { return b.name }
func (b *Ollama) Model() string { return b.model }

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error"`
}

func (b *Ollama) Complete(ctx context.Context, req *llm.Request) (*llm.Completion, error) {
	payload := ollamaChatRequest{
		Model:   b.model,
		Stream:  false,
		Options: map[string]any{"temperature": req.Temperature},
	}
	if req.MaxTokens > 0 {
		payload.Options["num_predict"] = req.MaxTokens
	}
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, ollamaMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, llm.NewBackendError(b.name, b.model, fmt.Errorf("marshal request: %w", err)).WithStatus(http.StatusBadRequest)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, llm.NewBackendError(b.name, b.model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, llm.NewBackendError(b.name, b.model, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, llm.NewBackendError(b.name, b.model, fmt.Errorf("read response: %w", err))
	}

	var decoded ollamaChatResponse
	_ = json.Unmarshal(raw, &decoded)

	if resp.StatusCode >= http.StatusBadRequest {
		msg := decoded.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, llm.NewBackendError(b.name, b.model, fmt.Errorf("ollama status %d: %s", resp.StatusCode, msg)).
			WithStatus(resp.StatusCode).
			WithMessage(msg)
	}
	if decoded.Error != "" {
		return nil, llm.NewBackendError(b.name, b.model, errors.New(decoded.Error))
	}

	return &llm.Completion{
		Text:         decoded.Message.Content,
		InputTokens:  decoded.PromptEvalCount,
		OutputTokens: decoded.EvalCount,
	}, nil
}
