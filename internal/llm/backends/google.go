package backends

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/haasonsaas/profileqa/internal/llm"
)

// GoogleConfig configures the Gemini backend.
type GoogleConfig struct {
	Name    string
	APIKey  string
	BaseURL string
	Model   string
}

// Google calls Gemini through the Gen AI SDK.
type Google struct {
	name   string
	model  string
	client *genai.Client
}

func NewGoogle(ctx context.Context, cfg GoogleConfig) (*Google, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("google: api key is required")
	}
	if cfg.Name == "" {
		cfg.Name = "google"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("google: failed to create client: %w", err)
	}
	return &Google{name: cfg.Name, model: cfg.Model, client: client}, nil
}

func (b *Google) Name() string  { return b.name }
func (b *Google) Model() string { return b.model }

func (b *Google) Complete(ctx context.Context, req *llm.Request) (*llm.Completion, error) {
	system, conversation := req.SplitSystem()

	contents := make([]*genai.Content, 0, len(conversation))
	for _, m := range conversation {
		role := genai.RoleUser
		if m.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: m.Content}}})
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if req.MaxTokens > 0 {
		// #nosec G115 -- bounded by min
		config.MaxOutputTokens = int32(min(req.MaxTokens, math.MaxInt32))
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, config)
	if err != nil {
		return nil, b.wrapError(err)
	}

	out := &llm.Completion{Text: resp.Text()}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

// wrapError maps Gemini errors by their status text, since the SDK surfaces
// gRPC-style codes in the message.
func (b *Google) wrapError(err error) error {
	be := llm.NewBackendError(b.name, b.model, err)
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthenticated"):
		be = be.WithStatus(http.StatusUnauthorized)
	case strings.Contains(msg, "403") || strings.Contains(msg, "permission denied"):
		be = be.WithStatus(http.StatusForbidden)
	case strings.Contains(msg, "404") || strings.Contains(msg, "not found"):
		be = be.WithStatus(http.StatusNotFound)
	case strings.Contains(msg, "429") || strings.Contains(msg, "resource exhausted"):
		be = be.WithStatus(http.StatusTooManyRequests)
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid argument"):
		be = be.WithStatus(http.StatusBadRequest)
	case strings.Contains(msg, "504") || strings.Contains(msg, "deadline"):
		be = be.WithStatus(http.StatusGatewayTimeout)
	case strings.Contains(msg, "500"):
		be = be.WithStatus(http.StatusInternalServerError)
	case strings.Contains(msg, "503"):
		be = be.WithStatus(http.StatusServiceUnavailable)
	}
	return be
}
