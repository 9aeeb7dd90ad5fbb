package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/haasonsaas/profileqa/internal/classifier"
	"github.com/haasonsaas/profileqa/internal/evaluator"
	"github.com/haasonsaas/profileqa/internal/llm"
	"github.com/haasonsaas/profileqa/internal/orchestrator"
)

// =============================================================================
// Ask Command Handler
// =============================================================================

type askOptions struct {
	sessionID   string
	detailLevel string
	jsonOutput  bool
}

// processor is the part of the orchestrator the ask loop needs.
type processor interface {
	Process(ctx context.Context, q orchestrator.Query) *orchestrator.Result
	SummaryReport() string
}

// lineReader yields one input line at a time. *term.Terminal satisfies it.
type lineReader interface {
	ReadLine() (string, error)
}

type scannerReader struct{ s *bufio.Scanner }

func (r scannerReader) ReadLine() (string, error) {
	if r.s.Scan() {
		return r.s.Text(), nil
	}
	if err := r.s.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

var exitWords = map[string]bool{"salir": true, "exit": true, "quit": true}

func runAsk(cmd *cobra.Command, configPath string, args []string, opts askOptions) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	if err := a.pipeline(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(args) > 0 {
		res := a.orch.Process(ctx, opts.query(strings.Join(args, " ")))
		return writeResult(out, res, opts.jsonOutput)
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return askLoop(ctx, a.orch, scannerReader{bufio.NewScanner(cmd.InOrStdin())}, out, opts)
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enable raw terminal: %w", err)
	}
	defer term.Restore(fd, state) //nolint:errcheck

	// Raw mode garbles interleaved log lines.
	a.logger.SetLevel("error")

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, "> ")
	fmt.Fprintln(t, "Pregunta sobre el perfil profesional. Escribe /resumen para ver la actividad o salir para terminar.")
	return askLoop(ctx, a.orch, t, t, opts)
}

// askLoop answers one question per line until EOF, an exit word or
// context cancellation. "/resumen" prints the activity summary.
func askLoop(ctx context.Context, proc processor, in lineReader, out io.Writer, opts askOptions) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := in.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case exitWords[strings.ToLower(line)]:
			return nil
		case line == "/resumen":
			fmt.Fprintln(out, proc.SummaryReport())
			continue
		}
		if err := writeResult(out, proc.Process(ctx, opts.query(line)), opts.jsonOutput); err != nil {
			return err
		}
	}
}

func (o askOptions) query(text string) orchestrator.Query {
	return orchestrator.Query{
		Text:        text,
		Context:     classifier.QueryContext{SessionID: o.sessionID},
		Preferences: orchestrator.Preferences{DetailLevel: o.detailLevel},
	}
}

// writeResult prints the answer followed by a one-line trailer with the
// strategy, tools and quality score.
func writeResult(w io.Writer, res *orchestrator.Result, asJSON bool) error {
	if asJSON {
		return printJSON(w, res)
	}
	fmt.Fprintln(w, res.Answer.Text)
	if res.Kind == orchestrator.KindNoResults && len(res.Suggestions) > 0 {
		fmt.Fprintf(w, "Sugerencias: %s\n", strings.Join(res.Suggestions, ", "))
	}

	trailer := []string{"kind=" + string(res.Kind)}
	if res.Answer.Strategy != "" {
		trailer = append(trailer, "strategy="+res.Answer.Strategy)
	}
	if len(res.Answer.ToolsUsed) > 0 {
		trailer = append(trailer, "tools="+strings.Join(res.Answer.ToolsUsed, ","))
	}
	if res.Evaluation != nil {
		trailer = append(trailer, fmt.Sprintf("score=%.1f (%s)", res.Evaluation.Overall(), res.Evaluation.Grade()))
	}
	fmt.Fprintf(w, "[%s]\n\n", strings.Join(trailer, " "))
	return nil
}

// =============================================================================
// Classify / Evaluate / Ensemble Command Handlers
// =============================================================================

func runClassify(cmd *cobra.Command, configPath string, questions []string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if len(questions) == 1 {
		return printJSON(cmd.OutOrStdout(), a.classifier.Classify(cmd.Context(), questions[0], classifier.QueryContext{}))
	}
	return printJSON(cmd.OutOrStdout(), a.classifier.ClassifyBatch(cmd.Context(), questions))
}

type evaluateOptions struct {
	evidence string
	tools    []string
	strategy string
	critique bool
}

func runEvaluate(cmd *cobra.Command, configPath, question, answer string, opts evaluateOptions) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if opts.critique {
		quality := "sin contexto"
		if strings.TrimSpace(opts.evidence) != "" {
			quality = "con contexto"
		}
		return printJSON(cmd.OutOrStdout(), a.evaluator.SelfCritique(cmd.Context(), question, answer, opts.tools, quality))
	}
	res := a.evaluator.Evaluate(cmd.Context(), question, answer, opts.evidence, evaluator.Metadata{
		ToolsUsed: opts.tools,
		Strategy:  opts.strategy,
	})
	return printJSON(cmd.OutOrStdout(), struct {
		evaluator.Result
		Overall     float64 `json:"overall"`
		Grade       string  `json:"grade"`
		HighQuality bool    `json:"is_high_quality"`
	}{res, res.Overall(), res.Grade(), res.IsHighQuality(a.evaluator.Threshold())})
}

type ensembleOptions struct {
	members     []string
	combiner    string
	criterion   string
	combine     bool
	temperature float64
	maxTokens   int
}

type ensembleOutput struct {
	Members  []ensembleMember `json:"members"`
	Failures int              `json:"failures"`
	Selected *llm.Response    `json:"selected,omitempty"`
	Combined string           `json:"combined,omitempty"`
}

type ensembleMember struct {
	Backend  string        `json:"backend"`
	Response *llm.Response `json:"response,omitempty"`
	Error    string        `json:"error,omitempty"`
}

func runEnsemble(cmd *cobra.Command, configPath, prompt string, opts ensembleOptions) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	members := opts.members
	if len(members) == 0 {
		members = cfg.LLM.Ensemble
	}
	combiner := opts.combiner
	if combiner == "" {
		combiner = cfg.LLM.Combiner
	}
	criterionName := opts.criterion
	if criterionName == "" {
		criterionName = cfg.LLM.SelectCriterion
	}
	criterion, err := llm.CriterionByName(criterionName)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	ens, err := llm.NewEnsemble(a.gateway, members, combiner)
	if err != nil {
		return err
	}
	res := ens.Generate(cmd.Context(), []llm.Message{llm.User(prompt)}, llm.CallOptions{
		Temperature: opts.temperature,
		MaxTokens:   opts.maxTokens,
	})

	out := ensembleOutput{Failures: res.Failures}
	for _, m := range res.Results {
		em := ensembleMember{Backend: m.Backend, Response: m.Response}
		if m.Err != nil {
			em.Error = m.Err.Error()
		}
		out.Members = append(out.Members, em)
	}
	successes := res.Successes()
	if opts.combine {
		out.Combined = ens.Combine(cmd.Context(), successes)
	} else if len(successes) > 0 {
		out.Selected, _ = ens.Select(successes, criterion)
	}
	if err := printJSON(cmd.OutOrStdout(), out); err != nil {
		return err
	}
	if len(successes) == 0 {
		return llm.ErrNoSuccesses
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
