package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/profileqa/internal/observability"
)

func fixedCounter(n int) TokenCounter {
	return func(text string) int {
		if text == "" {
			return 0
		}
		return n
	}
}

func TestGatewayGenerate(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	backend := &fakeBackend{name: "openai", model: "gpt-4o-mini", text: "hola", in: 100, out: 20}

	g, err := NewGateway("", []Backend{backend},
		WithMetrics(metrics),
		WithPricing(Pricing{"gpt-4o-mini": {InputPerMillion: 1, OutputPerMillion: 2}}),
	)
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}

	resp, err := g.Generate(context.Background(), &Request{
		Messages:    []Message{System("s"), User("q")},
		Temperature: 0.3,
		MaxTokens:   500,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Text != "hola" || resp.Backend != "openai" || resp.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Tokens == nil || resp.Tokens.Input != 100 || resp.Tokens.Output != 20 || resp.Tokens.Estimated {
		t.Fatalf("tokens = %+v", resp.Tokens)
	}
	wantCost := 100*1/1e6 + 20*2/1e6
	if resp.Cost == nil || *resp.Cost != wantCost {
		t.Fatalf("cost = %v, want %v", resp.Cost, wantCost)
	}
	if backend.last.Temperature != 0.3 || backend.last.MaxTokens != 500 {
		t.Fatalf("request not forwarded: %+v", backend.last)
	}
	if got := testutil.ToFloat64(metrics.LLMRequestCounter.WithLabelValues("openai", "gpt-4o-mini", "success")); got != 1 {
		t.Fatalf("success counter = %v, want 1", got)
	}
}

func TestGatewayEstimatesTokensWhenUnreported(t *testing.T) {
	backend := &fakeBackend{name: "ollama", model: "llama3", text: "respuesta"}
	g, err := NewGateway("ollama", []Backend{backend}, WithTokenCounter(fixedCounter(7)))
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	resp, err := g.Generate(context.Background(), &Request{Messages: []Message{System("a"), User("b")}})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !resp.Tokens.Estimated || resp.Tokens.Input != 14 || resp.Tokens.Output != 7 {
		t.Fatalf("tokens = %+v", resp.Tokens)
	}
	if resp.Cost != nil {
		t.Fatalf("unpriced model should have no cost")
	}
}

func TestGatewayErrors(t *testing.T) {
	tests := []struct {
		name    string
		backend *fakeBackend
		timeout time.Duration
		want    error
	}{
		{
			name:    "timeout",
			backend: &fakeBackend{name: "slow", model: "m", delay: time.Second},
			timeout: 20 * time.Millisecond,
			want:    ErrTimeout,
		},
		{
			name:    "rejected",
			backend: &fakeBackend{name: "auth", model: "m", err: NewBackendError("auth", "m", errors.New("bad")).WithStatus(401)},
			want:    ErrRejected,
		},
		{
			name:    "raw error classified",
			backend: &fakeBackend{name: "down", model: "m", err: errors.New("503 service unavailable")},
			want:    ErrUnavailable,
		},
		{
			name:    "panic",
			backend: &fakeBackend{name: "panicky", model: "m", panics: true},
			want:    ErrUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGateway("", []Backend{tt.backend}, WithCallTimeout(tt.timeout))
			if err != nil {
				t.Fatalf("NewGateway() error = %v", err)
			}
			_, err = g.Generate(context.Background(), &Request{Messages: []Message{User("q")}})
			if !errors.Is(err, tt.want) {
				t.Fatalf("Generate() error = %v, want %v", err, tt.want)
			}
			be, ok := AsBackendError(err)
			if !ok || be.Backend != tt.backend.name {
				t.Fatalf("expected BackendError for %s, got %v", tt.backend.name, err)
			}
			if tt.backend.calls.Load() != 1 {
				t.Fatalf("backend called %d times, gateway must not retry", tt.backend.calls.Load())
			}
		})
	}
}

func TestGatewayUnknownBackend(t *testing.T) {
	g, err := NewGateway("", []Backend{&fakeBackend{name: "openai", model: "m", text: "x"}})
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	_, err = g.Generate(context.Background(), &Request{Backend: "bedrock"})
	if !errors.Is(err, ErrUnavailable) || !strings.Contains(err.Error(), "bedrock") {
		t.Fatalf("Generate() error = %v", err)
	}
}

func TestNewGatewayValidation(t *testing.T) {
	a := &fakeBackend{name: "a"}
	b := &fakeBackend{name: "b"}
	if _, err := NewGateway("", nil); err == nil {
		t.Error("expected error without backends")
	}
	if _, err := NewGateway("", []Backend{a, b}); err == nil {
		t.Error("expected error when default is ambiguous")
	}
	if _, err := NewGateway("a", []Backend{a, &fakeBackend{name: "a"}}); err == nil {
		t.Error("expected duplicate backend error")
	}
	g, err := NewGateway("b", []Backend{a, b})
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	if got := g.Backends(); len(got) != 2 || got[0] != "a" {
		t.Errorf("Backends() = %v", got)
	}
}

func TestGatewayRateLimitRespectsContext(t *testing.T) {
	backend := &fakeBackend{name: "openai", model: "m", text: "ok", in: 1, out: 1}
	g, err := NewGateway("", []Backend{backend}, WithRateLimit("openai", 1))
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	if _, err := g.Generate(context.Background(), &Request{}); err != nil {
		t.Fatalf("first call should consume the burst: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Generate(ctx, &Request{})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("second call error = %v, want timeout", err)
	}
	if backend.calls.Load() != 1 {
		t.Fatalf("rate-limited call reached the backend")
	}
}

func TestEstimateTokens(t *testing.T) {
	if EstimateTokens("") != 0 || EstimateTokens("ab") != 1 || EstimateTokens("abcdefgh") != 2 {
		t.Fatal("unexpected estimates")
	}
}
