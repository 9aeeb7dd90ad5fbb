package evaluator

import (
	"encoding/json"
	"fmt"
	"math"
)

// Criterion names one of the five scored dimensions.
type Criterion string

const (
	Precision       Criterion = "precision"
	Completeness    Criterion = "completeness"
	Relevance       Criterion = "relevance"
	Clarity         Criterion = "clarity"
	Professionalism Criterion = "professionalism"
)

// Criteria lists the criteria in weight order.
var Criteria = []Criterion{Precision, Completeness, Relevance, Clarity, Professionalism}

// Weights of each criterion in the overall score. They sum to 1.
var Weights = map[Criterion]float64{
	Precision:       0.30,
	Completeness:    0.25,
	Relevance:       0.20,
	Clarity:         0.15,
	Professionalism: 0.10,
}

const (
	minScore = 0.0
	maxScore = 10.0
)

// ValidationError reports a score or confidence outside its range.
type ValidationError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid evaluation %s %v: must be within [%v,%v]", e.Field, e.Value, e.Min, e.Max)
}

// Scores holds the five sub-scores, each in [0,10].
type Scores struct {
	Precision       float64 `json:"precision"`
	Completeness    float64 `json:"completeness"`
	Relevance       float64 `json:"relevance"`
	Clarity         float64 `json:"clarity"`
	Professionalism float64 `json:"professionalism"`
}

// NewScores rejects any sub-score outside [0,10].
func NewScores(s Scores) (Scores, error) {
	for _, c := range Criteria {
		v := s.Get(c)
		if math.IsNaN(v) || v < minScore || v > maxScore {
			return Scores{}, &ValidationError{Field: string(c), Value: v, Min: minScore, Max: maxScore}
		}
	}
	return s, nil
}

// Get returns the score for c.
func (s Scores) Get(c Criterion) float64 {
	switch c {
	case Precision:
		return s.Precision
	case Completeness:
		return s.Completeness
	case Relevance:
		return s.Relevance
	case Clarity:
		return s.Clarity
	case Professionalism:
		return s.Professionalism
	}
	return 0
}

// Overall is the weighted sum of the sub-scores.
func (s Scores) Overall() float64 {
	total := 0.0
	for _, c := range Criteria {
		total += Weights[c] * s.Get(c)
	}
	return total
}

// Variance is the mean squared distance of the sub-scores from Overall.
func (s Scores) Variance() float64 {
	overall := s.Overall()
	sum := 0.0
	for _, c := range Criteria {
		d := s.Get(c) - overall
		sum += d * d
	}
	return sum / float64(len(Criteria))
}

// Strongest returns the highest scoring criterion; ties go to the earlier one.
func (s Scores) Strongest() Criterion {
	best := Criteria[0]
	for _, c := range Criteria[1:] {
		if s.Get(c) > s.Get(best) {
			best = c
		}
	}
	return best
}

// Weakest returns the lowest scoring criterion; ties go to the earlier one.
func (s Scores) Weakest() Criterion {
	worst := Criteria[0]
	for _, c := range Criteria[1:] {
		if s.Get(c) < s.Get(worst) {
			worst = c
		}
	}
	return worst
}

// MarshalJSON adds the overall score to the encoded sub-scores.
func (s Scores) MarshalJSON() ([]byte, error) {
	type plain Scores
	return json.Marshal(struct {
		plain
		Overall float64 `json:"overall_score"`
	}{plain(s), s.Overall()})
}
