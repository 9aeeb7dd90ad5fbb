package backends

import (
	"context"
	"fmt"
	"sort"

	"github.com/haasonsaas/profileqa/internal/config"
	"github.com/haasonsaas/profileqa/internal/llm"
)

// Build creates one backend per configured entry, ordered by ID.
func Build(ctx context.Context, cfg config.LLMConfig) ([]llm.Backend, error) {
	ids := make([]string, 0, len(cfg.Backends))
	for id := range cfg.Backends {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]llm.Backend, 0, len(ids))
	for _, id := range ids {
		b, err := buildOne(ctx, id, cfg.Backends[id])
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", id, err)
		}
		out = append(out, b)
	}
	return out, nil
}

func buildOne(ctx context.Context, id string, bc config.LLMBackendConfig) (llm.Backend, error) {
	switch bc.Type {
	case "openai":
		return NewOpenAI(OpenAIConfig{Name: id, APIKey: bc.APIKey, BaseURL: bc.BaseURL, Model: bc.Model})
	case "anthropic":
		return NewAnthropic(AnthropicConfig{Name: id, APIKey: bc.APIKey, BaseURL: bc.BaseURL, Model: bc.Model})
	case "google":
		return NewGoogle(ctx, GoogleConfig{Name: id, APIKey: bc.APIKey, BaseURL: bc.BaseURL, Model: bc.Model})
	case "bedrock":
		return NewBedrock(ctx, BedrockConfig{
			Name:            id,
			Region:          bc.Region,
			Model:           bc.Model,
			AccessKeyID:     bc.AccessKeyID,
			SecretAccessKey: bc.SecretAccessKey,
			SessionToken:    bc.SessionToken,
		})
	case "ollama":
		return NewOllama(OllamaConfig{Name: id, BaseURL: bc.BaseURL, Model: bc.Model, Timeout: bc.Timeout})
	default:
		return nil, fmt.Errorf("unknown backend type %q", bc.Type)
	}
}

// NewGateway builds every configured backend and a gateway over them with
// timeouts, rate limits and pricing taken from cfg. Extra options are applied last.
func NewGateway(ctx context.Context, cfg config.LLMConfig, extra ...llm.Option) (*llm.Gateway, error) {
	built, err := Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return llm.NewGateway(cfg.DefaultBackend, built, append(GatewayOptions(cfg), extra...)...)
}

// GatewayOptions translates configuration into gateway options.
func GatewayOptions(cfg config.LLMConfig) []llm.Option {
	opts := []llm.Option{llm.WithCallTimeout(cfg.CallTimeout)}
	for id, bc := range cfg.Backends {
		if bc.Timeout > 0 {
			opts = append(opts, llm.WithBackendTimeout(id, bc.Timeout))
		}
		if bc.RequestsPerMinute > 0 {
			opts = append(opts, llm.WithRateLimit(id, bc.RequestsPerMinute))
		}
	}
	if len(cfg.Pricing) > 0 {
		pricing := make(llm.Pricing, len(cfg.Pricing))
		for model, p := range cfg.Pricing {
			pricing[model] = llm.Price{InputPerMillion: p.InputPerMillion, OutputPerMillion: p.OutputPerMillion}
		}
		opts = append(opts, llm.WithPricing(pricing))
	}
	return opts
}
