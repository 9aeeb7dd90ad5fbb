package clarify

import (
	"github.com/haasonsaas/profileqa/internal/classifier"
	"github.com/haasonsaas/profileqa/internal/textutil"
)

// Urgency ranks how badly a query needs clarification.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

func (u Urgency) rank() int {
	switch u {
	case UrgencyHigh:
		return 2
	case UrgencyMedium:
		return 1
	}
	return 0
}

// Reason is one triggered clarification rule.
type Reason struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Penalty int    `json:"penalty"`
}

// Analysis is the advisory result of NeedsClarification.
type Analysis struct {
	Needed     bool     `json:"needs_clarification"`
	Confidence int      `json:"confidence"`
	Reasons    []Reason `json:"reasons"`
	Urgency    Urgency  `json:"urgency"`
}

var (
	vagueWords = []string{"qué", "cuál", "cómo", "dime", "información", "algo", "todo"}
	topicWords = []string{"proyecto", "experiencia", "tecnología", "educación", "contacto"}
)

const lowClassificationConfidence = 60

// NeedsClarification analyzes query and an optional classification without
// calling any backend. Reasons are returned in rule order.
func NeedsClarification(query string, cls *classifier.Classification) Analysis {
	a := Analysis{Confidence: 100, Reasons: []Reason{}, Urgency: UrgencyLow}
	apply := func(r Reason, urgency Urgency) {
		a.Needed = true
		a.Confidence -= r.Penalty
		a.Reasons = append(a.Reasons, r)
		if urgency.rank() > a.Urgency.rank() {
			a.Urgency = urgency
		}
	}

	if textutil.WordCount(query) <= 3 {
		apply(Reason{Code: "short_query", Message: "Consulta muy breve", Penalty: 30}, UrgencyHigh)
	}

	vague := 0
	for _, w := range vagueWords {
		if textutil.HasWord(query, []string{w}) {
			vague++
		}
	}
	if vague >= 2 {
		apply(Reason{Code: "vague_words", Message: "Contiene palabras vagas", Penalty: 20}, UrgencyLow)
	}

	topics := 0
	for _, topic := range topicWords {
		if _, ok := textutil.MatchPrefix(query, []string{topic}); ok {
			topics++
		}
	}
	if topics >= 3 {
		apply(Reason{Code: "multiple_topics", Message: "Múltiples temas en una consulta", Penalty: 15}, UrgencyMedium)
	}

	if cls != nil && cls.Confidence < lowClassificationConfidence {
		apply(Reason{Code: "low_confidence", Message: "Clasificación de baja confianza", Penalty: 25}, UrgencyLow)
	}

	a.Confidence = max(0, a.Confidence)
	return a
}
