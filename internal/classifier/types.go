package classifier

import (
	"fmt"
	"strings"
)

// Category is the subject area of a query.
type Category string

const (
	CategoryGeneralInfo   Category = "general-info"
	CategoryTechnical     Category = "technical"
	CategoryExperience    Category = "experience"
	CategoryProjectDetail Category = "project-detail"
	CategoryMultiFaceted  Category = "multi-faceted"
)

// Categories lists every category in reporting order.
var Categories = []Category{
	CategoryGeneralInfo, CategoryTechnical, CategoryExperience,
	CategoryProjectDetail, CategoryMultiFaceted,
}

var categoryAliases = map[string]Category{
	"basic":    CategoryGeneralInfo,
	"general":  CategoryGeneralInfo,
	"projects": CategoryProjectDetail,
	"project":  CategoryProjectDetail,
	"complex":  CategoryMultiFaceted,
}

func (c Category) String() string { return string(c) }

// ParseCategory accepts canonical names and the upper-case model labels
// (BASIC, TECHNICAL, EXPERIENCE, PROJECTS, COMPLEX).
func ParseCategory(s string) (Category, error) {
	key := normalizeLabel(s)
	for _, c := range Categories {
		if key == string(c) {
			return c, nil
		}
	}
	if c, ok := categoryAliases[key]; ok {
		return c, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

func (c Category) MarshalText() ([]byte, error) { return []byte(c), nil }

func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Strategy is the answering path chosen for a query.
type Strategy string

const (
	StrategyFAQ      Strategy = "faq-lookup"
	StrategySemantic Strategy = "semantic-search"
	StrategyCombined Strategy = "combined"
	StrategyClarify  Strategy = "clarify"
)

// Strategies lists every strategy in reporting order.
var Strategies = []Strategy{StrategyFAQ, StrategySemantic, StrategyCombined, StrategyClarify}

var strategyAliases = map[string]Strategy{
	"faq":      StrategyFAQ,
	"rag":      StrategySemantic,
	"semantic": StrategySemantic,
}

func (s Strategy) String() string { return string(s) }

// ParseStrategy accepts canonical names and the model labels FAQ, RAG,
// COMBINED and CLARIFY.
func ParseStrategy(s string) (Strategy, error) {
	key := normalizeLabel(s)
	for _, st := range Strategies {
		if key == string(st) {
			return st, nil
		}
	}
	if st, ok := strategyAliases[key]; ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

func (s Strategy) MarshalText() ([]byte, error) { return []byte(s), nil }

func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Complexity is the expected effort to answer a query.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

func (c Complexity) String() string { return string(c) }

// ParseComplexity accepts low, medium and high in any case.
func ParseComplexity(s string) (Complexity, error) {
	switch normalizeLabel(s) {
	case "low":
		return ComplexityLow, nil
	case "medium":
		return ComplexityMedium, nil
	case "high":
		return ComplexityHigh, nil
	}
	return "", fmt.Errorf("unknown complexity %q", s)
}

func (c Complexity) MarshalText() ([]byte, error) { return []byte(c), nil }

func (c *Complexity) UnmarshalText(text []byte) error {
	parsed, err := ParseComplexity(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "_", "-")
}

// ValidationError reports a Classification built with an out-of-range field.
type ValidationError struct {
	Field string
	Value any
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid classification %s %v: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Classification is the classifier's verdict for one query.
type Classification struct {
	Category    Category   `json:"category"`
	Confidence  float64    `json:"confidence"`
	Strategy    Strategy   `json:"recommended_strategy"`
	Reasoning   string     `json:"reasoning"`
	SearchTerms []string   `json:"search_terms"`
	Complexity  Complexity `json:"expected_complexity"`
}

// NewClassification validates c before returning it.
func NewClassification(c Classification) (Classification, error) {
	if c.Confidence < 0 || c.Confidence > 100 {
		return Classification{}, &ValidationError{
			Field: "confidence", Value: c.Confidence,
			Err: fmt.Errorf("must be within [0,100]"),
		}
	}
	if _, err := ParseCategory(string(c.Category)); err != nil {
		return Classification{}, &ValidationError{Field: "category", Value: c.Category, Err: err}
	}
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		return Classification{}, &ValidationError{Field: "strategy", Value: c.Strategy, Err: err}
	}
	if _, err := ParseComplexity(string(c.Complexity)); err != nil {
		return Classification{}, &ValidationError{Field: "complexity", Value: c.Complexity, Err: err}
	}
	return c, nil
}

// Default is the classification used whenever the model output is unusable.
func Default(query string) Classification {
	return Classification{
		Category:    CategoryMultiFaceted,
		Confidence:  50,
		Strategy:    StrategyCombined,
		Reasoning:   "Default classification due to processing error",
		SearchTerms: []string{query},
		Complexity:  ComplexityMedium,
	}
}

// IsHighConfidence reports confidence >= threshold.
func (c Classification) IsHighConfidence(threshold float64) bool {
	return c.Confidence >= threshold
}

// NeedsClarification reports whether the strategy is clarify, confidence is
// below 60 or complexity is high.
func (c Classification) NeedsClarification() bool {
	return c.Strategy == StrategyClarify || c.Confidence < 60 || c.Complexity == ComplexityHigh
}

// QueryContext carries prior-turn information about a query.
type QueryContext struct {
	PreviousQueries int               `json:"previous_queries,omitempty"`
	SessionID       string            `json:"session_id,omitempty"`
	Values          map[string]string `json:"values,omitempty"`
}
