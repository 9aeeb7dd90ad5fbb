package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haasonsaas/profileqa/internal/clarify"
	"github.com/haasonsaas/profileqa/internal/classifier"
	"github.com/haasonsaas/profileqa/internal/config"
	"github.com/haasonsaas/profileqa/internal/evaluator"
	"github.com/haasonsaas/profileqa/internal/notify"
	"github.com/haasonsaas/profileqa/internal/observability"
	"github.com/haasonsaas/profileqa/internal/orchestrator"
)

type fakeProcessor struct {
	got orchestrator.Query
	ctx context.Context
}

func (f *fakeProcessor) Process(ctx context.Context, q orchestrator.Query) *orchestrator.Result {
	f.got = q
	f.ctx = ctx
	return &orchestrator.Result{
		QueryID:        "q-1",
		Kind:           orchestrator.KindAnswered,
		Classification: classifier.Default(q.Text),
		Answer:         orchestrator.ComposedAnswer{Text: "hola", Strategy: "faq-lookup", ToolsUsed: []string{"faq_lookup"}},
	}
}

func (f *fakeProcessor) Stats() orchestrator.Stats {
	return orchestrator.Stats{Session: orchestrator.SessionStats{Total: 4}}
}

type fakeNotifier struct {
	events []notify.Event
	ok     bool
}

func (f *fakeNotifier) Notify(ctx context.Context, e notify.Event) bool {
	f.events = append(f.events, e)
	return f.ok
}

type fakeCritic struct {
	query, answer, quality string
	tools                  []string
}

func (f *fakeCritic) SelfCritique(ctx context.Context, query, answer string, toolsUsed []string, contextQuality string) evaluator.Critique {
	f.query, f.answer, f.tools, f.quality = query, answer, toolsUsed, contextQuality
	return evaluator.Critique{OverallScore: 7.5, HighQuality: true, Summary: "Respuesta sólida", Recommendations: []string{}}
}

type fakeClarifier struct {
	got classifier.QueryContext
}

func (f *fakeClarifier) Generate(ctx context.Context, query string, qctx classifier.QueryContext) clarify.Set {
	f.got = qctx
	return clarify.Set{Questions: []string{"¿Qué proyecto?"}}
}

type fakeClassifier struct {
	confidence float64
}

func (f *fakeClassifier) Classify(ctx context.Context, query string, qctx classifier.QueryContext) classifier.Classification {
	cls := classifier.Default(query)
	cls.Confidence = f.confidence
	return cls
}

func newTestServer(proc Processor, opts ...Option) http.Handler {
	return New(proc, config.ServerConfig{}, opts...).Handler()
}

func TestChat(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{"valid", `{"query":"¿Qué tecnologías?","context":{"session_id":"s-1"},"preferences":{"detail_level":"resumen"}}`, http.StatusOK, ""},
		{"empty query", `{"query":"   "}`, http.StatusBadRequest, "query is required"},
		{"malformed", `{"query":`, http.StatusBadRequest, "invalid request body"},
		{"unknown field", `{"question":"hola"}`, http.StatusBadRequest, "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &fakeProcessor{}
			h := newTestServer(proc)

			req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantError != "" {
				if !strings.Contains(rec.Body.String(), tt.wantError) {
					t.Fatalf("body = %s, want error %q", rec.Body.String(), tt.wantError)
				}
				return
			}

			var res orchestrator.Result
			if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if res.Kind != orchestrator.KindAnswered || res.Answer.Text != "hola" {
				t.Fatalf("unexpected result %+v", res)
			}
			if proc.got.Context.SessionID != "s-1" || proc.got.Preferences.DetailLevel != "resumen" {
				t.Fatalf("query not forwarded: %+v", proc.got)
			}
			if observability.GetRequestID(proc.ctx) == "" {
				t.Fatal("request id missing from context")
			}
		})
	}
}

func TestChat_SessionHeader(t *testing.T) {
	proc := &fakeProcessor{}
	h := newTestServer(proc)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"query":"hola"}`))
	req.Header.Set("X-Session-ID", "from-header")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if proc.got.Context.SessionID != "from-header" {
		t.Fatalf("session id = %q", proc.got.Context.SessionID)
	}
}

func TestRequestID(t *testing.T) {
	h := newTestServer(&fakeProcessor{})

	t.Run("assigned", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Header().Get(requestIDHeader) == "" {
			t.Fatal("expected a generated request id")
		}
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set(requestIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if got := rec.Header().Get(requestIDHeader); got != "abc-123" {
			t.Fatalf("request id = %q", got)
		}
	})
}

func TestStats(t *testing.T) {
	notifier := notify.NewManager(nil)
	h := newTestServer(&fakeProcessor{}, WithNotifier(notifier))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Orchestrator struct {
			Session struct {
				Total int `json:"total_queries"`
			} `json:"session"`
		} `json:"orchestrator"`
		Notifications *notify.Stats `json:"notifications"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Orchestrator.Session.Total != 4 || body.Notifications == nil {
		t.Fatalf("unexpected stats %s", rec.Body.String())
	}
}

func TestNotifyTest(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		h := newTestServer(&fakeProcessor{})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/notify/test", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		n := &fakeNotifier{ok: true}
		h := newTestServer(&fakeProcessor{}, WithNotifier(n))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/notify/test", nil))

		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"delivered":true`) {
			t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
		}
		if len(n.events) != 1 || n.events[0].Type != "test" || n.events[0].Priority != notify.PriorityNormal {
			t.Fatalf("unexpected events %+v", n.events)
		}
	})

	t.Run("custom event", func(t *testing.T) {
		n := &fakeNotifier{}
		h := newTestServer(&fakeProcessor{}, WithNotifier(n))
		body := `{"message":"m","title":"t","priority":"high"}`
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/notify/test", strings.NewReader(body)))

		if !strings.Contains(rec.Body.String(), `"delivered":false`) {
			t.Fatalf("body = %s", rec.Body.String())
		}
		if e := n.events[0]; e.Message != "m" || e.Title != "t" || e.Priority != notify.PriorityHigh {
			t.Fatalf("unexpected event %+v", e)
		}
	})
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		critic     bool
		body       string
		wantStatus int
		wantError  string
	}{
		{"valid", true, `{"query":"¿Qué sabe de Go?","answer":"Cinco años con Go.","tools_used":["faq_lookup"],"context_quality":"good"}`, http.StatusOK, ""},
		{"missing answer", true, `{"query":"¿Qué sabe de Go?"}`, http.StatusBadRequest, "query and answer are required"},
		{"unknown field", true, `{"query":"q","answer":"a","score":9}`, http.StatusBadRequest, "invalid request body"},
		{"not configured", false, `{"query":"q","answer":"a"}`, http.StatusServiceUnavailable, "evaluation is not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			critic := &fakeCritic{}
			var opts []Option
			if tt.critic {
				opts = append(opts, WithCritic(critic))
			}
			h := newTestServer(&fakeProcessor{}, opts...)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/evaluate", strings.NewReader(tt.body)))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantError != "" {
				if !strings.Contains(rec.Body.String(), tt.wantError) {
					t.Fatalf("body = %s, want error %q", rec.Body.String(), tt.wantError)
				}
				return
			}

			var got evaluator.Critique
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.OverallScore != 7.5 || !got.HighQuality || got.Summary != "Respuesta sólida" {
				t.Fatalf("unexpected critique %+v", got)
			}
			if critic.answer != "Cinco años con Go." || critic.quality != "good" || len(critic.tools) != 1 || critic.tools[0] != "faq_lookup" {
				t.Fatalf("request not forwarded: %+v", critic)
			}
		})
	}
}

func TestClarify(t *testing.T) {
	type response struct {
		Analysis       clarify.Analysis           `json:"analysis"`
		Classification *classifier.Classification `json:"classification"`
		Clarification  clarify.Set                `json:"clarification"`
	}
	post := func(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, response) {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/v1/clarify", strings.NewReader(body))
		req.Header.Set("X-Session-ID", "s-9")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		var resp response
		if rec.Code == http.StatusOK {
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
		}
		return rec, resp
	}

	t.Run("not configured", func(t *testing.T) {
		rec, _ := post(t, newTestServer(&fakeProcessor{}), `{"query":"dime"}`)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("empty query", func(t *testing.T) {
		rec, _ := post(t, newTestServer(&fakeProcessor{}, WithClarifier(&fakeClarifier{}, nil)), `{"query":" "}`)
		if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "query is required") {
			t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("short query without classifier", func(t *testing.T) {
		clar := &fakeClarifier{}
		rec, resp := post(t, newTestServer(&fakeProcessor{}, WithClarifier(clar, nil)), `{"query":"hola"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
		}
		if !resp.Analysis.Needed || resp.Analysis.Confidence != 70 || resp.Analysis.Urgency != clarify.UrgencyHigh {
			t.Fatalf("unexpected analysis %+v", resp.Analysis)
		}
		if resp.Classification != nil {
			t.Fatalf("classification = %+v, want none", resp.Classification)
		}
		if resp.Clarification.Len() != 1 || clar.got.SessionID != "s-9" {
			t.Fatalf("unexpected clarification %+v (session %q)", resp.Clarification, clar.got.SessionID)
		}
	})

	t.Run("low confidence classification", func(t *testing.T) {
		h := newTestServer(&fakeProcessor{}, WithClarifier(&fakeClarifier{}, &fakeClassifier{confidence: 40}))
		_, resp := post(t, h, `{"query":"Cuéntame sobre tu trabajo con sistemas distribuidos en producción"}`)
		if resp.Classification == nil || resp.Classification.Confidence != 40 {
			t.Fatalf("classification = %+v", resp.Classification)
		}
		if len(resp.Analysis.Reasons) != 1 || resp.Analysis.Reasons[0].Code != "low_confidence" {
			t.Fatalf("unexpected reasons %+v", resp.Analysis.Reasons)
		}
	})
}

func TestHealthzAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	metrics.RecordQuery("combined", "answered", 0.5)
	h := newTestServer(&fakeProcessor{}, WithGatherer(reg))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != `{"status":"ok"}` {
		t.Fatalf("healthz = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "profileqa_queries_total") {
		t.Fatalf("metrics = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/chat", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /v1/chat status = %d", rec.Code)
	}
}

func TestServe_Shutdown(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := New(&fakeProcessor{}, config.ServerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, listener) }()

	url := "http://" + listener.Addr().String() + "/healthz"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server not reachable: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
