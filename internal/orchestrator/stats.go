package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/profileqa/internal/clarify"
	"github.com/haasonsaas/profileqa/internal/classifier"
	"github.com/haasonsaas/profileqa/internal/evaluator"
)

// LogEntry is one processed query in the recent-query log.
type LogEntry struct {
	QueryID   string        `json:"query_id"`
	Query     string        `json:"query"`
	Strategy  string        `json:"strategy"`
	Outcome   Kind          `json:"outcome"`
	Score     *float64      `json:"score,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

type sessionStats struct {
	Total             int
	Successful        int
	Failed            int
	FAQSearches       int
	SemanticSearches  int
	CombinedSearches  int
	Clarifications    int
	NoResults         int
	ToolFailures      int
	Notifications     int
	totalResponseTime time.Duration
	Started           time.Time
}

func newSessionStats() sessionStats {
	return sessionStats{Started: time.Now()}
}

// SessionStats is a snapshot of orchestrator activity.
type SessionStats struct {
	Total           int       `json:"total_queries"`
	Successful      int       `json:"successful_queries"`
	Failed          int       `json:"failed_queries"`
	FAQSearches     int       `json:"faq_searches"`
	SemanticSearch  int       `json:"semantic_searches"`
	Combined        int       `json:"combined_searches"`
	Clarifications  int       `json:"clarifications"`
	NoResults       int       `json:"no_results"`
	ToolFailures    int       `json:"tool_failures"`
	Notifications   int       `json:"notifications_sent"`
	AverageResponse float64   `json:"average_response_time_seconds"`
	SuccessRate     float64   `json:"success_rate"`
	Started         time.Time `json:"session_start"`
	Uptime          float64   `json:"uptime_seconds"`
}

// Stats nests the stage statistics under the session counters.
type Stats struct {
	Session    SessionStats      `json:"session"`
	Classifier *classifier.Stats `json:"classifier,omitempty"`
	Evaluator  *evaluator.Stats  `json:"evaluator,omitempty"`
	Clarifier  *clarify.Stats    `json:"clarifier,omitempty"`
}

// finish records res in the session counters, the query log and metrics.
func (o *Orchestrator) finish(ctx context.Context, q Query, res *Result) {
	entry := LogEntry{
		QueryID:   res.QueryID,
		Query:     q.Text,
		Strategy:  res.Answer.Strategy,
		Outcome:   res.Kind,
		Duration:  res.Duration,
		Timestamp: res.Timestamp,
	}
	if res.Evaluation != nil {
		score := res.Evaluation.Overall()
		entry.Score = &score
	}

	logSize := o.conf().QueryLogSize
	o.mu.Lock()
	s := &o.session
	s.Total++
	s.totalResponseTime += res.Duration
	if res.Kind == KindToolFailed {
		s.Failed++
		s.ToolFailures++
	} else {
		s.Successful++
	}
	switch classifier.Strategy(res.Answer.Strategy) {
	case classifier.StrategyFAQ:
		s.FAQSearches++
	case classifier.StrategySemantic:
		s.SemanticSearches++
	case classifier.StrategyCombined:
		s.CombinedSearches++
	}
	switch res.Kind {
	case KindNeedsClarification:
		s.Clarifications++
	case KindNoResults:
		s.NoResults++
	}
	o.queries = append(o.queries, entry)
	if len(o.queries) > logSize {
		o.queries = append([]LogEntry(nil), o.queries[len(o.queries)-logSize:]...)
	}
	o.mu.Unlock()

	o.metrics.RecordQuery(res.Answer.Strategy, string(res.Kind), res.Duration.Seconds())
	o.logger.Info(ctx, "query processed",
		"outcome", res.Kind,
		"strategy", res.Answer.Strategy,
		"tools", strings.Join(res.Answer.ToolsUsed, ","),
		"duration_ms", res.Duration.Milliseconds(),
	)
}

// SessionStats returns a copy of the session counters.
func (o *Orchestrator) SessionStats() SessionStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session
	out := SessionStats{
		Total:          s.Total,
		Successful:     s.Successful,
		Failed:         s.Failed,
		FAQSearches:    s.FAQSearches,
		SemanticSearch: s.SemanticSearches,
		Combined:       s.CombinedSearches,
		Clarifications: s.Clarifications,
		NoResults:      s.NoResults,
		ToolFailures:   s.ToolFailures,
		Notifications:  s.Notifications,
		Started:        s.Started,
		Uptime:         time.Since(s.Started).Seconds(),
	}
	if s.Total > 0 {
		out.AverageResponse = s.totalResponseTime.Seconds() / float64(s.Total)
		out.SuccessRate = float64(s.Successful) / float64(s.Total) * 100
	}
	return out
}

// Stats returns the session counters plus the stats of every stage that
// reports them.
func (o *Orchestrator) Stats() Stats {
	st := Stats{Session: o.SessionStats()}
	if c, ok := o.classifier.(interface{ Stats() classifier.Stats }); ok {
		s := c.Stats()
		st.Classifier = &s
	}
	if e, ok := o.evaluator.(interface{ Stats() evaluator.Stats }); ok {
		s := e.Stats()
		st.Evaluator = &s
	}
	if c, ok := o.clarifier.(interface{ Stats() clarify.Stats }); ok {
		s := c.Stats()
		st.Clarifier = &s
	}
	return st
}

// RecentQueries returns up to n of the most recent log entries, newest last.
// n <= 0 returns the whole log.
func (o *Orchestrator) RecentQueries(n int) []LogEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	q := o.queries
	if n > 0 && len(q) > n {
		q = q[len(q)-n:]
	}
	return append([]LogEntry(nil), q...)
}

// ResetStats clears the session counters and the query log.
func (o *Orchestrator) ResetStats() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.session = newSessionStats()
	o.queries = nil
}

// SummaryReport formats the session counters and the five most recent
// queries for the periodic summary notification.
func (o *Orchestrator) SummaryReport() string {
	s := o.SessionStats()
	var b strings.Builder
	b.WriteString("Resumen de Actividad del Agente CV\n\n")
	fmt.Fprintf(&b, "Consultas totales: %d\n", s.Total)
	fmt.Fprintf(&b, "Consultas exitosas: %d\n", s.Successful)
	fmt.Fprintf(&b, "Tiempo promedio de respuesta: %.2fs\n", s.AverageResponse)
	fmt.Fprintf(&b, "Aclaraciones: %d, sin resultados: %d, fallos: %d\n", s.Clarifications, s.NoResults, s.ToolFailures)

	recent := o.RecentQueries(5)
	if len(recent) > 0 {
		b.WriteString("\nConsultas recientes:\n")
		for _, e := range recent {
			score := "n/a"
			if e.Score != nil {
				score = fmt.Sprintf("%.1f", *e.Score)
			}
			fmt.Fprintf(&b, "- %s... (Score: %s)\n", truncate(e.Query, 50), score)
		}
	}
	return b.String()
}
