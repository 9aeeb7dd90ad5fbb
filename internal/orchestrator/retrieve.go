package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/haasonsaas/profileqa/internal/classifier"
	"github.com/haasonsaas/profileqa/internal/retrieval"
)

// Source labels used in the no-results text.
const (
	sourceFAQ      = "las preguntas frecuentes"
	sourceSemantic = "los documentos del perfil"
	sourceAll      = "las fuentes disponibles"
)

// retrieve runs the retrieval path for strategy. It returns the passages,
// the tools that were called and a source label for user-facing text.
func (o *Orchestrator) retrieve(ctx context.Context, query string, strategy classifier.Strategy) ([]retrieval.Passage, []string, string, error) {
	switch strategy {
	case classifier.StrategyFAQ:
		p, err := o.lookupFAQ(ctx, query, o.conf().FAQLimit)
		return p, o.called(true, false), sourceFAQ, err
	case classifier.StrategySemantic:
		p, err := o.search(ctx, query, o.conf().TopK)
		return p, o.called(false, true), sourceSemantic, err
	default:
		p, tools, err := o.combined(ctx, query, half(o.conf().FAQLimit), half(o.conf().TopK), o.conf().SimilarityThreshold)
		return p, tools, sourceAll, err
	}
}

// widened is the single retry after an empty result: a combined search with
// larger budgets and a relaxed score floor.
func (o *Orchestrator) widened(ctx context.Context, query string) ([]retrieval.Passage, []string, error) {
	threshold := o.conf().SimilarityThreshold - o.conf().WidenRelax
	if threshold < 0 {
		threshold = 0
	}
	o.logger.Debug(ctx, "retrying with widened search", "factor", o.conf().WidenFactor, "threshold", threshold)
	return o.combined(ctx, query, o.conf().FAQLimit*o.conf().WidenFactor, o.conf().TopK*o.conf().WidenFactor, threshold)
}

// combined queries both sources concurrently and merges the results. It
// fails only when every called source fails.
func (o *Orchestrator) combined(ctx context.Context, query string, faqLimit, topK int, threshold float64) ([]retrieval.Passage, []string, error) {
	var (
		wg               sync.WaitGroup
		faqHits, semHits []retrieval.Passage
		faqErr, semErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		faqHits, faqErr = o.lookupFAQ(ctx, query, faqLimit)
	}()
	go func() {
		defer wg.Done()
		semHits, semErr = o.search(ctx, query, topK)
	}()
	wg.Wait()

	tools := o.called(true, true)
	faqOK := o.faq == nil || faqErr == nil
	semOK := o.semantic == nil || semErr == nil
	if !faqOK && !semOK {
		return nil, tools, &ToolError{Tool: ToolCombined, Err: errors.Join(faqErr, semErr)}
	}
	if faqErr != nil {
		o.logger.Warn(ctx, "faq lookup failed, continuing with semantic results", "error", faqErr)
	}
	if semErr != nil {
		o.logger.Warn(ctx, "semantic search failed, continuing with faq results", "error", semErr)
	}

	cfg := o.conf()
	merged := retrieval.Merge(retrieval.ParseMergeStrategy(cfg.MergeStrategy), faqHits, semHits, cfg.MergeLimit)
	return retrieval.Above(merged, threshold), tools, nil
}

func (o *Orchestrator) lookupFAQ(ctx context.Context, query string, limit int) ([]retrieval.Passage, error) {
	if o.faq == nil {
		return []retrieval.Passage{}, nil
	}
	return o.callTool(ctx, ToolFAQ, func(ctx context.Context) ([]retrieval.Passage, error) {
		return o.faq.Lookup(ctx, query, "", limit)
	})
}

func (o *Orchestrator) search(ctx context.Context, query string, topK int) ([]retrieval.Passage, error) {
	if o.semantic == nil {
		return []retrieval.Passage{}, nil
	}
	return o.callTool(ctx, ToolSemantic, func(ctx context.Context) ([]retrieval.Passage, error) {
		return o.semantic.Search(ctx, query, topK, "")
	})
}

// callTool runs fn under the tool timeout with tracing and metrics, and
// normalizes the returned scores.
func (o *Orchestrator) callTool(ctx context.Context, tool string, fn func(context.Context) ([]retrieval.Passage, error)) ([]retrieval.Passage, error) {
	ctx, span := o.tracer.TraceToolCall(ctx, tool)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, o.conf().ToolTimeout)
	defer cancel()

	start := time.Now()
	passages, err := fn(ctx)
	elapsed := time.Since(start)
	if err != nil {
		o.tracer.RecordError(span, err)
		o.metrics.RecordToolCall(tool, "error", elapsed.Seconds())
		return nil, &ToolError{Tool: tool, Err: err}
	}

	status := "hit"
	if len(passages) == 0 {
		status = "miss"
	}
	o.metrics.RecordToolCall(tool, status, elapsed.Seconds())
	o.tracer.SetAttributes(span, "results", len(passages))
	return retrieval.Normalize(passages), nil
}

// called lists the tools that are configured among those requested.
func (o *Orchestrator) called(faq, semantic bool) []string {
	tools := []string{}
	if faq && o.faq != nil {
		tools = append(tools, ToolFAQ)
	}
	if semantic && o.semantic != nil {
		tools = append(tools, ToolSemantic)
	}
	return tools
}

func half(n int) int {
	if n/2 < 1 {
		return 1
	}
	return n / 2
}

func mergeTools(a, b []string) []string {
	out := append([]string{}, a...)
	for _, t := range b {
		found := false
		for _, have := range out {
			if have == t {
				found = true
				break
			}
		}
		if !found {
			out = append(out, t)
		}
	}
	return out
}
