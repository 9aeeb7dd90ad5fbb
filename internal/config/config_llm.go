package config

import (
	"fmt"
	"strings"
	"time"
)

// LLMConfig configures the language-model gateway.
type LLMConfig struct {
	// DefaultBackend names the backend used when a request selects none.
	DefaultBackend string `yaml:"default_backend"`

	// Backends maps backend IDs to their settings.
	Backends map[string]LLMBackendConfig `yaml:"backends"`

	// Ensemble lists backend IDs dispatched concurrently by ensemble calls.
	Ensemble []string `yaml:"ensemble"`

	// Combiner is the backend that synthesizes ensemble answers. Defaults to DefaultBackend.
	Combiner string `yaml:"combiner"`

	// SelectCriterion picks among ensemble answers: longest, most_tokens, first.
	SelectCriterion string `yaml:"select_criterion"`

	// CallTimeout bounds every single backend call.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// Pricing maps model IDs to USD prices per million tokens.
	Pricing map[string]ModelPrice `yaml:"pricing"`
}

// LLMBackendConfig configures one completion backend.
type LLMBackendConfig struct {
	// Type is one of openai, anthropic, google, bedrock, ollama.
	// Defaults to the backend ID when that ID is a known type.
	Type string `yaml:"type"`

	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Bedrock only.
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`

	// Timeout overrides llm.call_timeout for this backend.
	Timeout time.Duration `yaml:"timeout"`

	// RequestsPerMinute enables a client-side rate limit when > 0.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// ModelPrice is the cost of a model in USD per million tokens.
type ModelPrice struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// BackendTypes lists the backend implementations that can be configured.
var BackendTypes = []string{"openai", "anthropic", "google", "bedrock", "ollama"}

func isBackendType(name string) bool {
	for _, t := range BackendTypes {
		if t == name {
			return true
		}
	}
	return false
}

func applyLLMDefaults(cfg *LLMConfig) {
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.SelectCriterion == "" {
		cfg.SelectCriterion = "longest"
	}
	for id, backend := range cfg.Backends {
		if backend.Type == "" && isBackendType(strings.ToLower(id)) {
			backend.Type = strings.ToLower(id)
		}
		cfg.Backends[id] = backend
	}
	if cfg.DefaultBackend == "" && len(cfg.Backends) == 1 {
		for id := range cfg.Backends {
			cfg.DefaultBackend = id
		}
	}
	if cfg.Combiner == "" {
		cfg.Combiner = cfg.DefaultBackend
	}
}

func (c LLMConfig) validate() []error {
	var errs []error
	if c.CallTimeout < 0 {
		errs = append(errs, fmt.Errorf("llm.call_timeout must not be negative"))
	}
	if len(c.Backends) == 0 {
		return errs
	}
	if _, ok := c.Backends[c.DefaultBackend]; !ok {
		errs = append(errs, fmt.Errorf("llm.default_backend %q is not configured", c.DefaultBackend))
	}
	if c.Combiner != "" {
		if _, ok := c.Backends[c.Combiner]; !ok {
			errs = append(errs, fmt.Errorf("llm.combiner %q is not configured", c.Combiner))
		}
	}
	for _, id := range c.Ensemble {
		if _, ok := c.Backends[id]; !ok {
			errs = append(errs, fmt.Errorf("llm.ensemble references unknown backend %q", id))
		}
	}
	for id, backend := range c.Backends {
		if !isBackendType(backend.Type) {
			errs = append(errs, fmt.Errorf("llm.backends.%s.type %q must be one of %s", id, backend.Type, strings.Join(BackendTypes, ", ")))
		}
		if backend.RequestsPerMinute < 0 {
			errs = append(errs, fmt.Errorf("llm.backends.%s.requests_per_minute must not be negative", id))
		}
	}
	switch c.SelectCriterion {
	case "longest", "most_tokens", "first":
	default:
		errs = append(errs, fmt.Errorf("llm.select_criterion %q must be longest, most_tokens or first", c.SelectCriterion))
	}
	return errs
}
