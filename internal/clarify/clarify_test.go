package clarify

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/haasonsaas/profileqa/internal/classifier"
	"github.com/haasonsaas/profileqa/internal/config"
	"github.com/haasonsaas/profileqa/internal/llm"
)

type fakeGen struct {
	text string
	err  error
	last *llm.Request
}

func (f *fakeGen) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.text}, nil
}

func assertWellFormed(t *testing.T, set Set) {
	t.Helper()
	if set.Len() < 1 || set.Len() > MaxQuestions {
		t.Fatalf("set has %d questions: %q", set.Len(), set.Questions)
	}
	seen := map[string]bool{}
	for _, q := range set.Questions {
		if !strings.HasSuffix(q, "?") {
			t.Errorf("question %q does not end in ?", q)
		}
		if n := utf8.RuneCountInString(q); n < minQuestionLen || n > maxQuestionLen {
			t.Errorf("question %q has length %d", q, n)
		}
		if seen[q] {
			t.Errorf("duplicate question %q", q)
		}
		seen[q] = true
	}
}

func TestGenerate_StructuredOutput(t *testing.T) {
	gen := &fakeGen{text: `{"questions": ["¿Qué proyecto te interesa más?", "¿Te interesa el backend o el frontend?", "¿Buscas experiencia reciente?"]}`}
	c := New(gen, config.ClarifierConfig{})

	set := c.Generate(context.Background(), "qué sabes", classifier.QueryContext{})
	want := []string{"¿Qué proyecto te interesa más?", "¿Te interesa el backend o el frontend?", "¿Buscas experiencia reciente?"}
	if !reflect.DeepEqual(set.Questions, want) {
		t.Fatalf("questions = %q, want %q", set.Questions, want)
	}
	if set.Generated != 3 {
		t.Fatalf("generated = %d, want 3", set.Generated)
	}
	if gen.last.Temperature != 0.7 || gen.last.MaxTokens != 400 {
		t.Fatalf("request temperature=%v max_tokens=%d", gen.last.Temperature, gen.last.MaxTokens)
	}
}

func TestGenerate_FreeTextLines(t *testing.T) {
	gen := &fakeGen{text: "Here are some questions:\n1. ¿Qué tecnología te interesa más?\n- ¿Buscas detalles de un proyecto concreto?\n* ok?\nThanks."}
	c := New(gen, config.ClarifierConfig{})

	set := c.Generate(context.Background(), "háblame de tecnología", classifier.QueryContext{})
	want := []string{
		"¿Qué tecnología te interesa más?",
		"¿Buscas detalles de un proyecto concreto?",
		"¿Buscas información sobre tecnologías específicas o arquitectura general?",
	}
	if !reflect.DeepEqual(set.Questions, want) {
		t.Fatalf("questions = %q, want %q", set.Questions, want)
	}
	if set.Generated != 2 {
		t.Fatalf("generated = %d, want 2", set.Generated)
	}
}

func TestGenerate_AlwaysThreeWellFormed(t *testing.T) {
	replies := []struct {
		name string
		gen  *fakeGen
	}{
		{"empty object", &fakeGen{text: `{}`}},
		{"empty questions", &fakeGen{text: `{"questions": []}`}},
		{"wrong type", &fakeGen{text: `{"questions": "why?"}`}},
		{"empty text", &fakeGen{text: ""}},
		{"junk questions", &fakeGen{text: `{"questions": ["", "?", "short?", "` + strings.Repeat("a", 250) + `"]}`}},
		{"duplicates", &fakeGen{text: `{"questions": ["¿Qué proyecto te interesa más?", "¿Qué proyecto te interesa más?"]}`}},
		{"gateway error", &fakeGen{err: errors.New("down")}},
	}
	queries := []string{"qué sabes", "x", "proyectos y experiencia", "¿Podrías ser más específico sobre qué aspecto te interesa más?"}
	for _, tt := range replies {
		for _, q := range queries {
			t.Run(tt.name+"/"+q, func(t *testing.T) {
				c := New(tt.gen, config.ClarifierConfig{})
				set := c.Generate(context.Background(), q, classifier.QueryContext{})
				if set.Len() != MaxQuestions {
					t.Fatalf("got %d questions, want %d: %q", set.Len(), MaxQuestions, set.Questions)
				}
				assertWellFormed(t, set)
			})
		}
	}
}

func TestGenerate_GatewayFailureUsesFallbacks(t *testing.T) {
	c := New(&fakeGen{err: errors.New("down")}, config.ClarifierConfig{})
	set := c.Generate(context.Background(), "proyectos", classifier.QueryContext{})
	if !reflect.DeepEqual(set.Questions, Fallbacks) {
		t.Fatalf("questions = %q, want fallbacks", set.Questions)
	}
	if s := c.Stats(); s.Failed != 1 || s.Successful != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestGenerate_EmptyQuery(t *testing.T) {
	gen := &fakeGen{text: `{"questions": ["¿Qué proyecto te interesa más?"]}`}
	c := New(gen, config.ClarifierConfig{})
	if set := c.Generate(context.Background(), "   ", classifier.QueryContext{}); set.Len() != 0 {
		t.Fatalf("empty query produced %q", set.Questions)
	}
	if gen.last != nil {
		t.Fatal("empty query must not call the gateway")
	}
}

func TestValidate(t *testing.T) {
	got := Validate([]string{
		"  ¿Cuál es tu rol favorito  ",
		"¿Cuál es tu rol favorito?",
		"tiny?",
		strings.Repeat("b", 200) + "?",
		"¿Qué stack usas en producción?",
		"¿Qué bases de datos prefieres?",
		"¿Una cuarta pregunta válida?",
	})
	want := []string{"¿Cuál es tu rol favorito?", "¿Qué stack usas en producción?", "¿Qué bases de datos prefieres?"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Validate() = %q, want %q", got, want)
	}
}

func TestFill_TopicOrder(t *testing.T) {
	got := Fill(nil, "experiencia con tecnologías en proyectos")
	want := []string{
		"¿Te interesa algún proyecto específico o tipo de industria?",
		"¿Buscas información sobre tecnologías específicas o arquitectura general?",
		"¿Prefieres información sobre roles específicos o experiencia general?",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Fill() = %q, want %q", got, want)
	}

	got = Fill([]string{Fallbacks[0]}, "nothing special here")
	if !reflect.DeepEqual(got, Fallbacks) {
		t.Fatalf("Fill() = %q, want fallbacks without duplicates", got)
	}
}

func TestNeedsClarification(t *testing.T) {
	low := classifier.Default("q")
	low.Confidence = 40
	high := classifier.Default("q")
	high.Confidence = 90

	tests := []struct {
		name       string
		query      string
		cls        *classifier.Classification
		needed     bool
		confidence int
		codes      []string
		urgency    Urgency
	}{
		{"clear query", "Describe your most recent backend role in detail", &high, false, 100, nil, UrgencyLow},
		{"short", "qué sabes", nil, true, 70, []string{"short_query"}, UrgencyHigh},
		{"vague words", "dime algo sobre tu perfil profesional completo", nil, true, 80, []string{"vague_words"}, UrgencyLow},
		{"many topics", "Quiero saber de tu experiencia, proyectos y tecnologías usadas", nil, true, 85, []string{"multiple_topics"}, UrgencyMedium},
		{"low classification", "Describe your most recent backend role in detail", &low, true, 75, []string{"low_confidence"}, UrgencyLow},
		{"penalties stack", "qué algo todo", &low, true, 25, []string{"short_query", "vague_words", "low_confidence"}, UrgencyHigh},
		{"short keeps high urgency", "proyecto experiencia tecnología", nil, true, 55, []string{"short_query", "multiple_topics"}, UrgencyHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NeedsClarification(tt.query, tt.cls)
			if a.Needed != tt.needed || a.Confidence != tt.confidence || a.Urgency != tt.urgency {
				t.Fatalf("analysis = %+v, want needed=%v confidence=%d urgency=%s", a, tt.needed, tt.confidence, tt.urgency)
			}
			var codes []string
			for _, r := range a.Reasons {
				codes = append(codes, r.Code)
			}
			if !reflect.DeepEqual(codes, tt.codes) {
				t.Fatalf("reasons = %v, want %v", codes, tt.codes)
			}
			if again := NeedsClarification(tt.query, tt.cls); !reflect.DeepEqual(a, again) {
				t.Fatal("NeedsClarification is not deterministic")
			}
		})
	}
}

func TestStatsAverage(t *testing.T) {
	gen := &fakeGen{text: `{"questions": ["¿Qué proyecto te interesa más?"]}`}
	c := New(gen, config.ClarifierConfig{})
	c.Generate(context.Background(), "qué sabes", classifier.QueryContext{})
	c.Generate(context.Background(), "qué más", classifier.QueryContext{})

	s := c.Stats()
	if s.Total != 2 || s.Successful != 2 || s.AverageQuestions != 3 || s.SuccessRate != 100 {
		t.Fatalf("stats = %+v", s)
	}
	c.ResetStats()
	if s := c.Stats(); s.Total != 0 {
		t.Fatalf("stats after reset = %+v", s)
	}
}
