package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/profileqa/internal/classifier"
	"github.com/haasonsaas/profileqa/internal/evaluator"
	"github.com/haasonsaas/profileqa/internal/orchestrator"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"serve", "ask", "classify", "evaluate", "ensemble", "mcp", "faq", "models", "config", "version"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv(configEnv, "")
	if got := resolveConfigPath(""); got != defaultConfigName {
		t.Fatalf("resolveConfigPath(\"\") = %q", got)
	}
	if got := resolveConfigPath("custom.yaml"); got != "custom.yaml" {
		t.Fatalf("explicit path = %q", got)
	}

	t.Setenv(configEnv, "/etc/profileqa.toml")
	if got := resolveConfigPath(defaultConfigName); got != "/etc/profileqa.toml" {
		t.Fatalf("env path = %q", got)
	}
	if got := resolveConfigPath("custom.yaml"); got != "custom.yaml" {
		t.Fatalf("explicit path should win over env, got %q", got)
	}
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "profileqa.yaml")
	data := `
version: 1
llm:
  backends:
    openai:
      api_key: sk-test
      model: gpt-4o-mini
retrieval:
  faq:
    driver: sqlite
    dsn: ` + filepath.Join(dir, "faq.db") + `
  semantic:
    provider: none
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigCommands(t *testing.T) {
	path := writeTestConfig(t)

	out, err := execute(t, "config", "validate", "--config", path)
	if err != nil {
		t.Fatalf("config validate error = %v", err)
	}
	if !strings.Contains(out, "is valid") || !strings.Contains(out, "default openai") {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = execute(t, "config", "schema")
	if err != nil {
		t.Fatalf("config schema error = %v", err)
	}
	if !strings.Contains(out, "orchestrator") {
		t.Fatalf("schema missing orchestrator section")
	}

	if _, err := execute(t, "config", "validate", "--config", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestModelsCommand(t *testing.T) {
	out, err := execute(t, "models", "--config", writeTestConfig(t))
	if err != nil {
		t.Fatalf("models error = %v", err)
	}
	if !strings.Contains(out, "openai *") || !strings.Contains(out, "gpt-4o-mini") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestFAQCommands(t *testing.T) {
	path := writeTestConfig(t)

	out, err := execute(t, "faq", "add", "--config", path,
		"--question", "¿Habla alemán?", "--answer", "Nivel básico.", "--category", "idiomas")
	if err != nil {
		t.Fatalf("faq add error = %v", err)
	}
	if !strings.Contains(out, "Added FAQ entry") {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = execute(t, "faq", "list", "--config", path, "--category", "idiomas")
	if err != nil {
		t.Fatalf("faq list error = %v", err)
	}
	if !strings.Contains(out, "¿Habla alemán?") {
		t.Fatalf("entry not listed: %q", out)
	}

	out, err = execute(t, "faq", "categories", "--config", path)
	if err != nil {
		t.Fatalf("faq categories error = %v", err)
	}
	if !strings.Contains(out, "idiomas") {
		t.Fatalf("category not listed: %q", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "profileqa dev") {
		t.Fatalf("version output = %q", out)
	}
}

type fakeProcessor struct {
	queries []orchestrator.Query
}

func (f *fakeProcessor) Process(ctx context.Context, q orchestrator.Query) *orchestrator.Result {
	f.queries = append(f.queries, q)
	eval := evaluator.Result{Scores: evaluator.Scores{Precision: 8, Completeness: 8, Relevance: 8, Clarity: 8, Professionalism: 8}}
	return &orchestrator.Result{
		Kind:           orchestrator.KindAnswered,
		Classification: classifier.Default(q.Text),
		Answer:         orchestrator.ComposedAnswer{Text: "respuesta: " + q.Text, Strategy: "combined", ToolsUsed: []string{"faq_lookup", "semantic_search"}},
		Evaluation:     &eval,
	}
}

func (f *fakeProcessor) SummaryReport() string { return "Resumen de Actividad" }

type sliceReader struct {
	lines []string
}

func (r *sliceReader) ReadLine() (string, error) {
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	return line, nil
}

func TestAskLoop(t *testing.T) {
	tests := []struct {
		name        string
		lines       []string
		wantQueries []string
		wantOut     []string
	}{
		{
			name:        "answers until eof",
			lines:       []string{"¿Qué sabe de Go?", "", "  ¿Y de Rust?  "},
			wantQueries: []string{"¿Qué sabe de Go?", "¿Y de Rust?"},
			wantOut:     []string{"respuesta: ¿Qué sabe de Go?", "strategy=combined", "tools=faq_lookup,semantic_search", "score=8.0 (good)"},
		},
		{
			name:        "stops on exit word",
			lines:       []string{"hola", "SALIR", "ignorada"},
			wantQueries: []string{"hola"},
		},
		{
			name:    "summary command",
			lines:   []string{"/resumen"},
			wantOut: []string{"Resumen de Actividad"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &fakeProcessor{}
			var out bytes.Buffer
			err := askLoop(context.Background(), proc, &sliceReader{lines: tt.lines}, &out, askOptions{sessionID: "s-1"})
			if err != nil {
				t.Fatalf("askLoop() error = %v", err)
			}
			if len(proc.queries) != len(tt.wantQueries) {
				t.Fatalf("got %d queries, want %d", len(proc.queries), len(tt.wantQueries))
			}
			for i, q := range proc.queries {
				if q.Text != tt.wantQueries[i] || q.Context.SessionID != "s-1" {
					t.Fatalf("query %d = %+v", i, q)
				}
			}
			for _, w := range tt.wantOut {
				if !strings.Contains(out.String(), w) {
					t.Fatalf("output %q missing %q", out.String(), w)
				}
			}
		})
	}
}

func TestWriteResult_NoResultsShowsSuggestions(t *testing.T) {
	var out bytes.Buffer
	res := &orchestrator.Result{
		Kind:        orchestrator.KindNoResults,
		Answer:      orchestrator.ComposedAnswer{Text: "No encontré información."},
		Suggestions: []string{"experiencia profesional", "certificaciones"},
	}
	if err := writeResult(&out, res, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Sugerencias: experiencia profesional, certificaciones") {
		t.Fatalf("output = %q", out.String())
	}
}
