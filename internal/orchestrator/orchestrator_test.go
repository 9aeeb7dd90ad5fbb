package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/profileqa/internal/clarify"
	"github.com/haasonsaas/profileqa/internal/classifier"
	"github.com/haasonsaas/profileqa/internal/config"
	"github.com/haasonsaas/profileqa/internal/evaluator"
	"github.com/haasonsaas/profileqa/internal/llm"
	"github.com/haasonsaas/profileqa/internal/notify"
	"github.com/haasonsaas/profileqa/internal/observability"
	"github.com/haasonsaas/profileqa/internal/retrieval"
)

type fakeGen struct {
	mu      sync.Mutex
	err     error
	prompts []string
}

func (f *fakeGen) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, req.Messages[len(req.Messages)-1].Content)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: "respuesta sintetizada", Backend: "fake", Model: "fake-1"}, nil
}

type fakeClassifier struct {
	cls      classifier.Classification
	panic    bool
	deadline time.Time
}

func (f *fakeClassifier) Classify(ctx context.Context, query string, qctx classifier.QueryContext) classifier.Classification {
	if f.panic {
		panic("boom")
	}
	f.deadline, _ = ctx.Deadline()
	return f.cls
}

type fakeClarifier struct{ calls int }

func (f *fakeClarifier) Generate(ctx context.Context, query string, qctx classifier.QueryContext) clarify.Set {
	f.calls++
	return clarify.Set{Questions: []string{"¿Qué proyecto?", "¿Qué periodo?"}, Generated: 2}
}

type fakeEvaluator struct {
	mu    sync.Mutex
	score float64
	calls int
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, query, answer, evidence string, md evaluator.Metadata) evaluator.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	s := f.score
	return evaluator.Result{
		Scores:     evaluator.Scores{Precision: s, Completeness: s, Relevance: s, Clarity: s, Professionalism: s},
		Confidence: 80,
	}
}

func (f *fakeEvaluator) Threshold() float64 { return evaluator.DefaultHighQualityThreshold }

type fakeFAQ struct {
	mu         sync.Mutex
	hits       []retrieval.Passage
	minLimit   int
	err        error
	limits     []int
	categories []string
}

func (f *fakeFAQ) Lookup(ctx context.Context, query, category string, limit int) ([]retrieval.Passage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	if limit < f.minLimit {
		return []retrieval.Passage{}, nil
	}
	return f.hits, nil
}

func (f *fakeFAQ) Categories(ctx context.Context) ([]string, error) {
	return f.categories, nil
}

type fakeSearcher struct {
	mu    sync.Mutex
	hits  []retrieval.Passage
	err   error
	block bool
	topKs []int
}

func (f *fakeSearcher) Search(ctx context.Context, query string, topK int, typeFilter string) ([]retrieval.Passage, error) {
	f.mu.Lock()
	f.topKs = append(f.topKs, topK)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (f *fakeNotifier) Notify(ctx context.Context, e notify.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return true
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

var (
	faqHit = retrieval.Passage{
		ID: "1", Question: "¿Qué tecnologías domina?", Content: "Go, Kubernetes y AWS",
		Source: "faq:tecnologias", Score: 0.9, Kind: retrieval.KindFAQ,
	}
	semHit = retrieval.Passage{
		ID: "project-banking", Content: "Plataforma de banca digital", Source: "cv.pdf",
		Score: 0.8, Kind: retrieval.KindSemantic,
	}
)

func classification(strategy classifier.Strategy) classifier.Classification {
	return classifier.Classification{
		Category:   classifier.CategoryTechnical,
		Confidence: 90,
		Strategy:   strategy,
		Complexity: classifier.ComplexityLow,
	}
}

type harness struct {
	gen      *fakeGen
	cls      *fakeClassifier
	clar     *fakeClarifier
	eval     *fakeEvaluator
	faq      *fakeFAQ
	search   *fakeSearcher
	notifier *fakeNotifier
}

func newHarness(strategy classifier.Strategy) *harness {
	return &harness{
		gen:      &fakeGen{},
		cls:      &fakeClassifier{cls: classification(strategy)},
		clar:     &fakeClarifier{},
		eval:     &fakeEvaluator{score: 8},
		faq:      &fakeFAQ{hits: []retrieval.Passage{faqHit}},
		search:   &fakeSearcher{hits: []retrieval.Passage{semHit}},
		notifier: &fakeNotifier{},
	}
}

func (h *harness) build(cfg config.OrchestratorConfig, opts ...Option) *Orchestrator {
	opts = append([]Option{WithFAQ(h.faq), WithSearcher(h.search), WithNotifier(h.notifier)}, opts...)
	return New(h.gen, h.cls, h.clar, h.eval, cfg, opts...)
}

func defaultConfig() config.OrchestratorConfig {
	return config.Default().Orchestrator
}

func TestProcess_Strategies(t *testing.T) {
	tests := []struct {
		name        string
		strategy    classifier.Strategy
		wantTools   []string
		wantContext []string
	}{
		{
			name:        "faq lookup",
			strategy:    classifier.StrategyFAQ,
			wantTools:   []string{ToolFAQ},
			wantContext: []string{"P: ¿Qué tecnologías domina?\nR: Go, Kubernetes y AWS"},
		},
		{
			name:        "semantic search",
			strategy:    classifier.StrategySemantic,
			wantTools:   []string{ToolSemantic},
			wantContext: []string{"[Fuente 1 - cv.pdf (relevancia: 0.80)]:\nPlataforma de banca digital"},
		},
		{
			name:        "combined",
			strategy:    classifier.StrategyCombined,
			wantTools:   []string{ToolFAQ, ToolSemantic},
			wantContext: []string{"=== INFORMACIÓN GENERAL ===", "=== INFORMACIÓN DETALLADA ==="},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(tt.strategy)
			o := h.build(defaultConfig())

			res := o.Process(context.Background(), Query{Text: "¿Qué tecnologías usa?"})
			o.Wait()

			if res.Kind != KindAnswered {
				t.Fatalf("Kind = %s, want answered (failure %+v)", res.Kind, res.Failure)
			}
			if res.Answer.Text != "respuesta sintetizada" || res.Answer.Backend != "fake" {
				t.Fatalf("unexpected answer %+v", res.Answer)
			}
			if strings.Join(res.Answer.ToolsUsed, ",") != strings.Join(tt.wantTools, ",") {
				t.Fatalf("ToolsUsed = %v, want %v", res.Answer.ToolsUsed, tt.wantTools)
			}
			for _, want := range tt.wantContext {
				if !strings.Contains(res.Answer.Context, want) {
					t.Fatalf("context %q missing %q", res.Answer.Context, want)
				}
			}
			if res.Answer.ContextLength == 0 || res.Evaluation == nil {
				t.Fatalf("expected context length and evaluation, got %+v", res)
			}
			if res.QueryID == "" || res.Answer.Strategy != tt.strategy.String() {
				t.Fatalf("unexpected metadata %+v", res)
			}
			if !strings.Contains(h.gen.prompts[0], "Consulta: ¿Qué tecnologías usa?") {
				t.Fatalf("prompt = %q", h.gen.prompts[0])
			}
		})
	}
}

func TestProcess_CombinedBudgets(t *testing.T) {
	h := newHarness(classifier.StrategyCombined)
	cfg := defaultConfig()
	cfg.TopK = 5
	cfg.FAQLimit = 1
	o := h.build(cfg)

	o.Process(context.Background(), Query{Text: "kubernetes"})

	if len(h.faq.limits) != 1 || h.faq.limits[0] != 1 {
		t.Fatalf("faq limits = %v, want [1]", h.faq.limits)
	}
	if len(h.search.topKs) != 1 || h.search.topKs[0] != 2 {
		t.Fatalf("semantic topK = %v, want [2]", h.search.topKs)
	}
}

func TestProcess_Clarify(t *testing.T) {
	h := newHarness(classifier.StrategyClarify)
	o := h.build(defaultConfig())

	res := o.Process(context.Background(), Query{Text: "dime"})

	if res.Kind != KindNeedsClarification || res.ClarificationSet == nil || res.ClarificationSet.Len() != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Evaluation != nil || h.eval.calls != 0 {
		t.Fatal("clarifications must not be evaluated")
	}
	if !strings.HasPrefix(res.Answer.Text, "Para poder ayudarte mejor") || !strings.Contains(res.Answer.Text, "2. ¿Qué periodo?") {
		t.Fatalf("text = %q", res.Answer.Text)
	}
	if len(h.faq.limits) != 0 || len(h.search.topKs) != 0 {
		t.Fatal("clarify must not call retrieval")
	}
}

func TestProcess_ClassifierBoundedByToolTimeout(t *testing.T) {
	h := newHarness(classifier.StrategyFAQ)
	cfg := defaultConfig()
	cfg.ToolTimeout = time.Minute
	before := time.Now()
	h.build(cfg).Process(context.Background(), Query{Text: "¿Qué tecnologías domina?"})

	if h.cls.deadline.IsZero() {
		t.Fatal("classifier ran without a deadline")
	}
	if h.cls.deadline.After(time.Now().Add(cfg.ToolTimeout)) || h.cls.deadline.Before(before) {
		t.Fatalf("classifier deadline = %v, want within tool timeout", h.cls.deadline)
	}
}

func TestProcess_WidenedRetry(t *testing.T) {
	t.Run("faq miss recovered by wider budget", func(t *testing.T) {
		h := newHarness(classifier.StrategyFAQ)
		h.faq.minLimit = 6
		h.search.hits = nil
		o := h.build(defaultConfig())

		res := o.Process(context.Background(), Query{Text: "certificaciones"})

		if res.Kind != KindAnswered {
			t.Fatalf("Kind = %s, want answered", res.Kind)
		}
		if got := h.faq.limits; len(got) != 2 || got[0] != 3 || got[1] != 6 {
			t.Fatalf("faq limits = %v, want [3 6]", got)
		}
		if got := h.search.topKs; len(got) != 1 || got[0] != 10 {
			t.Fatalf("semantic topK = %v, want [10]", got)
		}
		if strings.Join(res.Answer.ToolsUsed, ",") != "faq_lookup,semantic_search" {
			t.Fatalf("ToolsUsed = %v", res.Answer.ToolsUsed)
		}
		if !strings.Contains(res.Answer.Context, "=== INFORMACIÓN GENERAL ===") {
			t.Fatalf("expected combined context, got %q", res.Answer.Context)
		}
	})

	t.Run("relaxed threshold admits weak passages", func(t *testing.T) {
		h := newHarness(classifier.StrategyCombined)
		weak := semHit
		weak.Score = 0.2
		h.faq.hits = nil
		h.search.hits = []retrieval.Passage{weak}
		cfg := defaultConfig()
		cfg.SimilarityThreshold = 0.3
		cfg.WidenRelax = 0.2
		o := h.build(cfg)

		res := o.Process(context.Background(), Query{Text: "banca"})

		if res.Kind != KindAnswered {
			t.Fatalf("Kind = %s, want answered", res.Kind)
		}
		if len(h.search.topKs) != 2 {
			t.Fatalf("expected one retry, got calls %v", h.search.topKs)
		}
	})
}

func TestProcess_NoResults(t *testing.T) {
	tests := []struct {
		name       string
		categories []string
		want       []string
	}{
		{"faq categories", []string{"tecnologias", "idiomas"}, []string{"tecnologias", "idiomas"}},
		{"fixed list", nil, defaultSuggestions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(classifier.StrategySemantic)
			h.faq.hits = nil
			h.faq.categories = tt.categories
			h.search.hits = nil
			o := h.build(defaultConfig())

			res := o.Process(context.Background(), Query{Text: "astronomía"})
			o.Wait()

			if res.Kind != KindNoResults {
				t.Fatalf("Kind = %s, want no_results", res.Kind)
			}
			if strings.Join(res.Suggestions, "|") != strings.Join(tt.want, "|") {
				t.Fatalf("Suggestions = %v, want %v", res.Suggestions, tt.want)
			}
			if !strings.Contains(res.Answer.Text, "No encontré información específica") ||
				!strings.Contains(res.Answer.Text, "reformular") {
				t.Fatalf("text = %q", res.Answer.Text)
			}
			if res.Evaluation == nil {
				t.Fatal("no-results answers are evaluated")
			}
			if len(h.gen.prompts) != 0 {
				t.Fatal("no synthesis expected without context")
			}
		})
	}
}

func TestProcess_ToolFailures(t *testing.T) {
	t.Run("faq error", func(t *testing.T) {
		h := newHarness(classifier.StrategyFAQ)
		h.faq.err = errors.New("database is locked")
		o := h.build(defaultConfig())

		res := o.Process(context.Background(), Query{Text: "estudios"})

		if res.Kind != KindToolFailed || res.Failure == nil || res.Failure.Tool != ToolFAQ {
			t.Fatalf("unexpected result %+v", res)
		}
		if !strings.Contains(res.Answer.Text, "herramienta faq_lookup") {
			t.Fatalf("text = %q", res.Answer.Text)
		}
		if !strings.Contains(res.Failure.Message, "database is locked") {
			t.Fatalf("failure message = %q", res.Failure.Message)
		}
		if res.Evaluation == nil {
			t.Fatal("tool failures are evaluated")
		}
	})

	t.Run("combined survives one source failing", func(t *testing.T) {
		h := newHarness(classifier.StrategyCombined)
		h.search.err = errors.New("milvus down")
		o := h.build(defaultConfig())

		res := o.Process(context.Background(), Query{Text: "tecnologías"})

		if res.Kind != KindAnswered {
			t.Fatalf("Kind = %s, want answered", res.Kind)
		}
	})

	t.Run("combined fails when both sources fail", func(t *testing.T) {
		h := newHarness(classifier.StrategyCombined)
		h.faq.err = errors.New("db down")
		h.search.err = errors.New("milvus down")
		o := h.build(defaultConfig())

		res := o.Process(context.Background(), Query{Text: "tecnologías"})

		if res.Kind != KindToolFailed || res.Failure.Tool != ToolCombined {
			t.Fatalf("unexpected result %+v", res)
		}
	})

	t.Run("tool timeout", func(t *testing.T) {
		h := newHarness(classifier.StrategySemantic)
		h.search.block = true
		cfg := defaultConfig()
		cfg.ToolTimeout = 20 * time.Millisecond
		o := h.build(cfg)

		res := o.Process(context.Background(), Query{Text: "proyectos"})

		if res.Kind != KindToolFailed || res.Failure.Tool != ToolSemantic {
			t.Fatalf("unexpected result %+v", res)
		}
		if !strings.Contains(res.Failure.Message, context.DeadlineExceeded.Error()) {
			t.Fatalf("failure message = %q", res.Failure.Message)
		}
	})

	t.Run("synthesis failure degrades with excerpt", func(t *testing.T) {
		h := newHarness(classifier.StrategyFAQ)
		h.gen.err = llm.NewBackendError("openai", "gpt-4o-mini", errors.New("503"))
		o := h.build(defaultConfig())

		res := o.Process(context.Background(), Query{Text: "tecnologías"})

		if res.Kind != KindToolFailed || res.Failure.Tool != ToolLLM {
			t.Fatalf("unexpected result %+v", res)
		}
		if !strings.Contains(res.Answer.Text, "Contexto disponible: P: ¿Qué tecnologías domina?") {
			t.Fatalf("text = %q", res.Answer.Text)
		}
	})
}

func TestProcess_RecoversFromPanic(t *testing.T) {
	h := newHarness(classifier.StrategyFAQ)
	h.cls.panic = true
	o := h.build(defaultConfig())

	res := o.Process(context.Background(), Query{Text: "hola"})

	if res == nil || res.Kind != KindToolFailed || res.Failure.Tool != "orchestrator" {
		t.Fatalf("unexpected result %+v", res)
	}
	if o.SessionStats().Failed != 1 {
		t.Fatal("panic must count as a failed query")
	}
}

func TestProcess_Notifications(t *testing.T) {
	tests := []struct {
		name       string
		score      float64
		complexity classifier.Complexity
		disabled   bool
		want       int
		priority   notify.Priority
	}{
		{"high quality simple query", 8, classifier.ComplexityLow, false, 0, ""},
		{"below quality floor", 3, classifier.ComplexityLow, false, 1, notify.PriorityHigh},
		{"not high quality", 6, classifier.ComplexityLow, false, 1, notify.PriorityNormal},
		{"high complexity", 9, classifier.ComplexityHigh, false, 1, notify.PriorityNormal},
		{"disabled", 3, classifier.ComplexityHigh, true, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(classifier.StrategyFAQ)
			h.eval.score = tt.score
			h.cls.cls.Complexity = tt.complexity
			cfg := defaultConfig()
			cfg.DisableNotifications = tt.disabled
			o := h.build(cfg)

			o.Process(context.Background(), Query{Text: "arquitectura de microservicios en banca"})
			o.Wait()

			if got := h.notifier.count(); got != tt.want {
				t.Fatalf("notifications = %d, want %d", got, tt.want)
			}
			if tt.want == 0 {
				return
			}
			e := h.notifier.events[0]
			if e.Title != "Consulta CV Importante" || e.Priority != tt.priority || e.Type != "query" {
				t.Fatalf("unexpected event %+v", e)
			}
			if !strings.HasPrefix(e.Message, "Consulta importante procesada: arquitectura") {
				t.Fatalf("message = %q", e.Message)
			}
			if e.Query == nil || e.Query.Query != "arquitectura de microservicios en banca" || e.Query.Answer == "" {
				t.Fatalf("query summary = %+v", e.Query)
			}
			if len(e.Query.ToolsUsed) != 1 || e.Query.ToolsUsed[0] != ToolFAQ {
				t.Fatalf("summary tools = %v", e.Query.ToolsUsed)
			}
			if o.SessionStats().Notifications != 1 {
				t.Fatal("expected notification to be counted")
			}
		})
	}
}

func TestProcess_NotificationOutlivesRequest(t *testing.T) {
	h := newHarness(classifier.StrategyFAQ)
	h.eval.score = 2
	o := h.build(defaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	o.Process(ctx, Query{Text: "hola"})
	cancel()
	o.Wait()

	if h.notifier.count() != 1 {
		t.Fatal("notification must not depend on the request context")
	}
}

func TestStatsAndSummary(t *testing.T) {
	h := newHarness(classifier.StrategyFAQ)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	cfg := defaultConfig()
	cfg.QueryLogSize = 2
	o := h.build(cfg, WithMetrics(metrics))

	o.Process(context.Background(), Query{Text: "primera consulta sobre tecnologías"})
	h.cls.cls = classification(classifier.StrategyClarify)
	o.Process(context.Background(), Query{Text: "segunda"})
	h.cls.cls = classification(classifier.StrategySemantic)
	h.search.err = errors.New("down")
	o.Process(context.Background(), Query{Text: "tercera"})
	o.Wait()

	s := o.SessionStats()
	if s.Total != 3 || s.Successful != 2 || s.Failed != 1 {
		t.Fatalf("unexpected counters %+v", s)
	}
	if s.FAQSearches != 1 || s.SemanticSearch != 1 || s.Clarifications != 1 || s.ToolFailures != 1 {
		t.Fatalf("unexpected strategy counters %+v", s)
	}

	recent := o.RecentQueries(0)
	if len(recent) != 2 || recent[0].Query != "segunda" || recent[1].Outcome != KindToolFailed {
		t.Fatalf("query log = %+v", recent)
	}
	if recent[0].Score != nil {
		t.Fatal("clarifications carry no score")
	}

	if got := testutil.ToFloat64(metrics.QueryCounter.WithLabelValues("faq-lookup", "answered")); got != 1 {
		t.Fatalf("answered faq queries = %v", got)
	}
	if got := testutil.ToFloat64(metrics.ToolCallCounter.WithLabelValues(ToolSemantic, "error")); got != 1 {
		t.Fatalf("semantic tool errors = %v", got)
	}

	report := o.SummaryReport()
	for _, want := range []string{"Resumen de Actividad del Agente CV", "Consultas totales: 3", "- segunda... (Score: n/a)", "- tercera... (Score: 8.0)"} {
		if !strings.Contains(report, want) {
			t.Fatalf("report %q missing %q", report, want)
		}
	}

	st := o.Stats()
	if st.Session.Total != 3 || st.Classifier != nil {
		t.Fatalf("unexpected stats %+v", st)
	}

	o.ResetStats()
	if o.SessionStats().Total != 0 || len(o.RecentQueries(0)) != 0 {
		t.Fatal("ResetStats did not clear state")
	}
}

func TestStats_NestsStageStats(t *testing.T) {
	gen := &fakeGen{}
	cls := classifier.New(gen, config.ClassifierConfig{})
	clar := clarify.New(gen, config.ClarifierConfig{})
	eval := evaluator.New(gen, config.EvaluatorConfig{})
	o := New(gen, cls, clar, eval, defaultConfig())

	st := o.Stats()
	if st.Classifier == nil || st.Evaluator == nil || st.Clarifier == nil {
		t.Fatalf("expected nested stage stats, got %+v", st)
	}
}

func TestBuildContext(t *testing.T) {
	var many []retrieval.Passage
	for i := 0; i < 7; i++ {
		many = append(many, semHit)
	}
	got := buildContext(classifier.StrategySemantic, many)
	if strings.Count(got, "[Fuente") != maxSemanticContext {
		t.Fatalf("expected %d sources, got %q", maxSemanticContext, got)
	}

	onlySemantic := buildContext(classifier.StrategyCombined, []retrieval.Passage{semHit})
	if strings.Contains(onlySemantic, "INFORMACIÓN GENERAL") {
		t.Fatalf("empty FAQ section rendered: %q", onlySemantic)
	}

	if got := truncate("ñandú", 2); got != "ña" {
		t.Fatalf("truncate = %q", got)
	}
	if got := degradedText(strings.Repeat("x", 300)); !strings.HasSuffix(got, strings.Repeat("x", 200)+"...") {
		t.Fatalf("degraded text = %q", got)
	}
}

func TestToolError(t *testing.T) {
	base := errors.New("boom")
	err := error(&ToolError{Tool: ToolFAQ, Err: base})
	if !errors.Is(err, base) || err.Error() != "faq_lookup: boom" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestUpdateConfig(t *testing.T) {
	h := newHarness(classifier.StrategyFAQ)
	o := h.build(defaultConfig())

	cfg := defaultConfig()
	cfg.FAQLimit = 7
	cfg.QueryLogSize = 0
	o.UpdateConfig(cfg)
	o.Process(context.Background(), Query{Text: "idiomas"})

	if len(h.faq.limits) != 1 || h.faq.limits[0] != 7 {
		t.Fatalf("faq limits = %v, want [7]", h.faq.limits)
	}
	if o.conf().QueryLogSize != config.Default().Orchestrator.QueryLogSize {
		t.Fatal("zero values must fall back to defaults")
	}
}
