package config

import (
	"fmt"
	"time"
)

// ClassifierConfig configures the query classifier's model call.
type ClassifierConfig struct {
	Backend     string  `yaml:"backend"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// ClarifierConfig configures the clarification generator's model call.
type ClarifierConfig struct {
	Backend     string  `yaml:"backend"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// EvaluatorConfig configures the response evaluator.
type EvaluatorConfig struct {
	Backend     string  `yaml:"backend"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// HighQualityThreshold is the overall score counted as high quality.
	HighQualityThreshold float64 `yaml:"high_quality_threshold"`
}

// OrchestratorConfig configures strategy execution.
type OrchestratorConfig struct {
	// TopK is the semantic search depth for single-source queries.
	TopK int `yaml:"top_k"`

	// FAQLimit is the FAQ lookup limit for single-source queries.
	FAQLimit int `yaml:"faq_limit"`

	// MergeStrategy is relevance, type_grouped or round_robin.
	MergeStrategy string `yaml:"merge_strategy"`

	// MergeLimit caps merged passages for the relevance strategy.
	MergeLimit int `yaml:"merge_limit"`

	// ToolTimeout bounds each retrieval collaborator call.
	ToolTimeout time.Duration `yaml:"tool_timeout"`

	// SimilarityThreshold is the minimum shared-scale score kept after merging.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// WidenFactor multiplies retrieval budgets on the widened retry.
	WidenFactor int `yaml:"widen_factor"`

	// WidenRelax lowers SimilarityThreshold on the widened retry.
	WidenRelax float64 `yaml:"widen_relax"`

	// QualityFloor triggers a notification when the overall score is below it.
	QualityFloor float64 `yaml:"quality_floor"`

	// DisableNotifications turns off post-processing notifications.
	DisableNotifications bool `yaml:"disable_notifications"`

	// NotifyTimeout bounds the detached notification call.
	NotifyTimeout time.Duration `yaml:"notify_timeout"`

	// Backend, AnswerTemperature and AnswerMaxTokens configure answer synthesis.
	Backend           string  `yaml:"backend"`
	AnswerTemperature float64 `yaml:"answer_temperature"`
	AnswerMaxTokens   int     `yaml:"answer_max_tokens"`

	// QueryLogSize is the number of recent queries kept for reporting.
	QueryLogSize int `yaml:"query_log_size"`
}

// MergeStrategies lists the accepted merge strategy names.
var MergeStrategies = []string{"relevance", "type_grouped", "round_robin"}

func applyPipelineDefaults(cfg *Config) {
	if cfg.Classifier.Temperature == 0 {
		cfg.Classifier.Temperature = 0.3
	}
	if cfg.Classifier.MaxTokens == 0 {
		cfg.Classifier.MaxTokens = 500
	}
	if cfg.Clarifier.Temperature == 0 {
		cfg.Clarifier.Temperature = 0.7
	}
	if cfg.Clarifier.MaxTokens == 0 {
		cfg.Clarifier.MaxTokens = 400
	}
	if cfg.Evaluator.Temperature == 0 {
		cfg.Evaluator.Temperature = 0.2
	}
	if cfg.Evaluator.MaxTokens == 0 {
		cfg.Evaluator.MaxTokens = 800
	}
	if cfg.Evaluator.HighQualityThreshold == 0 {
		cfg.Evaluator.HighQualityThreshold = 7.0
	}

	o := &cfg.Orchestrator
	if o.TopK == 0 {
		o.TopK = 5
	}
	if o.FAQLimit == 0 {
		o.FAQLimit = 3
	}
	if o.MergeStrategy == "" {
		o.MergeStrategy = "relevance"
	}
	if o.MergeLimit == 0 {
		o.MergeLimit = 3
	}
	if o.ToolTimeout == 0 {
		o.ToolTimeout = 10 * time.Second
	}
	if o.SimilarityThreshold == 0 {
		o.SimilarityThreshold = 0.3
	}
	if o.WidenFactor == 0 {
		o.WidenFactor = 2
	}
	if o.WidenRelax == 0 {
		o.WidenRelax = 0.2
	}
	if o.QualityFloor == 0 {
		o.QualityFloor = 5.0
	}
	if o.NotifyTimeout == 0 {
		o.NotifyTimeout = 10 * time.Second
	}
	if o.AnswerTemperature == 0 {
		o.AnswerTemperature = 0.7
	}
	if o.AnswerMaxTokens == 0 {
		o.AnswerMaxTokens = 1000
	}
	if o.QueryLogSize == 0 {
		o.QueryLogSize = 100
	}
}

func (c *Config) validatePipeline() []error {
	var errs []error
	checkTemp := func(name string, v float64) {
		if v < 0 || v > 2 {
			errs = append(errs, fmt.Errorf("%s.temperature must be within [0,2], got %v", name, v))
		}
	}
	checkTemp("classifier", c.Classifier.Temperature)
	checkTemp("clarifier", c.Clarifier.Temperature)
	checkTemp("evaluator", c.Evaluator.Temperature)

	if c.Evaluator.HighQualityThreshold < 0 || c.Evaluator.HighQualityThreshold > 10 {
		errs = append(errs, fmt.Errorf("evaluator.high_quality_threshold must be within [0,10]"))
	}

	o := c.Orchestrator
	valid := false
	for _, name := range MergeStrategies {
		if o.MergeStrategy == name {
			valid = true
		}
	}
	if !valid {
		errs = append(errs, fmt.Errorf("orchestrator.merge_strategy %q must be relevance, type_grouped or round_robin", o.MergeStrategy))
	}
	if o.TopK < 1 || o.FAQLimit < 1 {
		errs = append(errs, fmt.Errorf("orchestrator.top_k and orchestrator.faq_limit must be positive"))
	}
	if o.SimilarityThreshold < 0 || o.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("orchestrator.similarity_threshold must be within [0,1]"))
	}
	if o.WidenFactor < 1 {
		errs = append(errs, fmt.Errorf("orchestrator.widen_factor must be at least 1"))
	}
	if o.QualityFloor < 0 || o.QualityFloor > 10 {
		errs = append(errs, fmt.Errorf("orchestrator.quality_floor must be within [0,10]"))
	}

	for _, ref := range []struct{ field, id string }{
		{"classifier.backend", c.Classifier.Backend},
		{"clarifier.backend", c.Clarifier.Backend},
		{"evaluator.backend", c.Evaluator.Backend},
		{"orchestrator.backend", o.Backend},
	} {
		if ref.id == "" {
			continue
		}
		if _, ok := c.LLM.Backends[ref.id]; !ok {
			errs = append(errs, fmt.Errorf("%s %q is not configured under llm.backends", ref.field, ref.id))
		}
	}
	return errs
}
