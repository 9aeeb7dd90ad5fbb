package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the main configuration structure for profileqa.
type Config struct {
	Version      int                `yaml:"version"`
	LLM          LLMConfig          `yaml:"llm"`
	Classifier   ClassifierConfig   `yaml:"classifier"`
	Clarifier    ClarifierConfig    `yaml:"clarifier"`
	Evaluator    EvaluatorConfig    `yaml:"evaluator"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Notify       NotifyConfig       `yaml:"notify"`
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Tracing      TracingConfig      `yaml:"tracing"`
}

// Load reads, decodes, defaults and validates the configuration file.
// Supported formats are YAML, JSON/JSON5 and TOML, chosen by file extension.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied and no backends.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	applyLLMDefaults(&cfg.LLM)
	applyPipelineDefaults(cfg)
	applyRetrievalDefaults(&cfg.Retrieval)
	applyNotifyDefaults(&cfg.Notify)

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = "/metrics"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 120 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "profileqa"
	}
}

// Validate reports every configuration problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if err := ValidateVersion(c.Version); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, c.LLM.validate()...)
	errs = append(errs, c.validatePipeline()...)
	errs = append(errs, c.Retrieval.validate()...)

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format))
	}
	switch c.Notify.Email.TLS {
	case "mandatory", "opportunistic", "none":
	default:
		errs = append(errs, fmt.Errorf("notify.email.tls must be mandatory, opportunistic or none, got %q", c.Notify.Email.TLS))
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("tracing.sampling_rate must be within [0,1]"))
	}

	return errors.Join(errs...)
}
