package orchestrator

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/profileqa/internal/clarify"
	"github.com/haasonsaas/profileqa/internal/classifier"
	"github.com/haasonsaas/profileqa/internal/retrieval"
)

const (
	maxSemanticContext = 5
	maxSuggestions     = 5
	degradedExcerpt    = 200
)

var defaultSuggestions = []string{
	"tecnologías y herramientas",
	"experiencia profesional",
	"proyectos destacados",
	"certificaciones",
	"formación académica",
}

// buildContext renders passages as model context for strategy.
func buildContext(strategy classifier.Strategy, passages []retrieval.Passage) string {
	switch strategy {
	case classifier.StrategyFAQ:
		return faqContext(passages)
	case classifier.StrategySemantic:
		return semanticContext(passages)
	}
	faq, semantic := retrieval.Split(passages)
	var b strings.Builder
	if len(faq) > 0 {
		b.WriteString("=== INFORMACIÓN GENERAL ===\n")
		b.WriteString(faqContext(faq))
	}
	if len(semantic) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("=== INFORMACIÓN DETALLADA ===\n")
		b.WriteString(semanticContext(semantic))
	}
	return b.String()
}

func faqContext(passages []retrieval.Passage) string {
	var b strings.Builder
	for _, p := range passages {
		fmt.Fprintf(&b, "P: %s\nR: %s\n\n", p.Question, p.Content)
	}
	return b.String()
}

func semanticContext(passages []retrieval.Passage) string {
	if len(passages) > maxSemanticContext {
		passages = passages[:maxSemanticContext]
	}
	var b strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&b, "[Fuente %d - %s (relevancia: %.2f)]:\n%s\n\n", i+1, p.Source, p.Score, p.Content)
	}
	return b.String()
}

func answerPrompt(query, context, detailLevel string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Consulta: %s\n\nContexto disponible:\n%s\n\n", query, context)
	if detailLevel != "" {
		fmt.Fprintf(&b, "Nivel de detalle preferido: %s\n\n", detailLevel)
	}
	b.WriteString("Por favor, proporciona una respuesta completa y profesional basada en el contexto disponible. ")
	b.WriteString("Si el contexto no es suficiente para responder completamente, indícalo claramente.")
	return b.String()
}

func clarificationText(set clarify.Set) string {
	var b strings.Builder
	b.WriteString("Para poder ayudarte mejor, me gustaría hacer algunas preguntas de aclaración:\n")
	for i, q := range set.Questions {
		fmt.Fprintf(&b, "\n%d. %s", i+1, q)
	}
	return b.String()
}

func noResultsText(source string, suggestions []string) string {
	text := fmt.Sprintf("No encontré información específica para tu consulta en %s. "+
		"¿Podrías reformular la pregunta o ser más específico sobre qué aspecto te interesa?", source)
	if len(suggestions) > 0 {
		text += "\n\nPuedo ayudarte con temas como: " + strings.Join(suggestions, ", ") + "."
	}
	return text
}

func toolErrorText(tool string) string {
	return fmt.Sprintf("Disculpa, he tenido dificultades técnicas con la herramienta %s. "+
		"Intentemos con un enfoque diferente o intenta reformular tu consulta.", tool)
}

func degradedText(context string) string {
	return "He encontrado información relevante pero tengo dificultades técnicas para procesarla completamente. " +
		"Contexto disponible: " + truncate(context, degradedExcerpt) + "..."
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
