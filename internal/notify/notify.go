// Package notify delivers best-effort notifications to chat and push sinks.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haasonsaas/profileqa/internal/config"
	"github.com/haasonsaas/profileqa/internal/observability"
)

// Priority of an event. Sinks map it onto their own levels.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ParsePriority maps a name to a Priority, defaulting to normal.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityLow, PriorityHigh:
		return Priority(s)
	default:
		return PriorityNormal
	}
}

// Event is one notification.
type Event struct {
	Message  string   `json:"message"`
	Title    string   `json:"title"`
	Priority Priority `json:"priority"`
	// Type groups events in stats: query, summary, test or custom.
	Type string `json:"type,omitempty"`
	// Query is set on query events. Sinks that render rich content use it.
	Query *QuerySummary `json:"query,omitempty"`
}

// QuerySummary describes the answered query behind an event.
type QuerySummary struct {
	Query     string   `json:"query"`
	Answer    string   `json:"answer"`
	Strategy  string   `json:"strategy,omitempty"`
	ToolsUsed []string `json:"tools_used,omitempty"`
	Score     float64  `json:"score"`
}

// Notifier delivers events. Notify reports whether delivery succeeded
// anywhere and never returns an error.
type Notifier interface {
	Notify(ctx context.Context, e Event) bool
}

// Sink is a single delivery channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, e Event) error
}

// DefaultLogSize is the number of delivery records the Manager keeps.
const DefaultLogSize = 100

// LogEntry records one Notify call.
type LogEntry struct {
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Delivered bool      `json:"delivered"`
	Sinks     []string  `json:"sinks"`
	Timestamp time.Time `json:"timestamp"`
}

// SinkStats counts deliveries for one sink.
type SinkStats struct {
	Sent   int    `json:"sent"`
	Failed int    `json:"failed"`
	Last   string `json:"last_error,omitempty"`
}

// Stats summarizes Manager activity.
type Stats struct {
	Total       int                  `json:"total_notifications"`
	Successful  int                  `json:"successful_notifications"`
	Failed      int                  `json:"failed_notifications"`
	SuccessRate float64              `json:"success_rate"`
	Types       map[string]int       `json:"notification_types"`
	Sinks       map[string]SinkStats `json:"sinks"`
	Last        *time.Time           `json:"last_notification,omitempty"`
}

// Manager fans events out to every configured sink. It is safe for
// concurrent use.
type Manager struct {
	sinks   []Sink
	timeout time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	log      []LogEntry
	logSize  int
	counters map[string]*SinkStats
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(l *observability.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithTimeout bounds each sink delivery.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogSize sets how many delivery records are kept.
func WithLogSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.logSize = n
		}
	}
}

// NewManager creates a Manager over sinks. With no sinks Notify only logs.
func NewManager(sinks []Sink, opts ...Option) *Manager {
	m := &Manager{
		sinks:    sinks,
		timeout:  10 * time.Second,
		logger:   observability.NopLogger(),
		logSize:  DefaultLogSize,
		counters: make(map[string]*SinkStats),
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, s := range sinks {
		m.counters[s.Name()] = &SinkStats{}
	}
	return m
}

// FromConfig builds a Manager with a sink for every configured channel.
func FromConfig(cfg config.NotifyConfig, opts ...Option) (*Manager, error) {
	var sinks []Sink
	if cfg.Slack.WebhookURL != "" || (cfg.Slack.Token != "" && cfg.Slack.Channel != "") {
		sinks = append(sinks, NewSlack(cfg.Slack))
	}
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		s, err := NewTelegram(cfg.Telegram)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.Discord.Token != "" && cfg.Discord.ChannelID != "" {
		s, err := NewDiscord(cfg.Discord)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.Pushover.Token != "" && cfg.Pushover.User != "" {
		sinks = append(sinks, NewPushover(cfg.Pushover, nil))
	}
	if cfg.Email.Host != "" && cfg.Email.From != "" && len(cfg.Email.To) > 0 {
		s, err := NewEmail(cfg.Email)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	opts = append([]Option{WithTimeout(cfg.Timeout)}, opts...)
	return NewManager(sinks, opts...), nil
}

// SinkNames lists the configured sinks.
func (m *Manager) SinkNames() []string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name()
	}
	return names
}

// Notify sends e to every sink concurrently and reports whether at least
// one delivery succeeded.
func (m *Manager) Notify(ctx context.Context, e Event) bool {
	if e.Priority == "" {
		e.Priority = PriorityNormal
	}
	if e.Type == "" {
		e.Type = "custom"
	}
	if len(m.sinks) == 0 {
		m.logger.Debug(ctx, "notification dropped, no sinks configured", "title", e.Title)
		return false
	}

	errs := make([]error, len(m.sinks))
	var wg sync.WaitGroup
	for i, s := range m.sinks {
		wg.Add(1)
		go func(i int, s Sink) {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()
			errs[i] = s.Send(sctx, e)
		}(i, s)
	}
	wg.Wait()

	entry := LogEntry{Type: e.Type, Title: e.Title, Timestamp: time.Now()}
	m.mu.Lock()
	for i, s := range m.sinks {
		c := m.counters[s.Name()]
		if errs[i] != nil {
			c.Failed++
			c.Last = errs[i].Error()
			m.metrics.RecordNotification(s.Name(), "error")
			continue
		}
		c.Sent++
		entry.Delivered = true
		entry.Sinks = append(entry.Sinks, s.Name())
		m.metrics.RecordNotification(s.Name(), "success")
	}
	m.log = append(m.log, entry)
	if len(m.log) > m.logSize {
		m.log = append([]LogEntry(nil), m.log[len(m.log)-m.logSize:]...)
	}
	m.mu.Unlock()

	for i, s := range m.sinks {
		if errs[i] != nil {
			m.logger.Warn(ctx, "notification delivery failed", "sink", s.Name(), "title", e.Title, "error", errs[i])
		}
	}
	return entry.Delivered
}

// Log returns a copy of the recent delivery records, oldest first.
func (m *Manager) Log() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LogEntry(nil), m.log...)
}

// ClearLog drops the delivery records.
func (m *Manager) ClearLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = nil
}

// Stats summarizes the delivery records and per-sink counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Stats{Types: map[string]int{}, Sinks: map[string]SinkStats{}}
	for _, e := range m.log {
		st.Total++
		if e.Delivered {
			st.Successful++
		} else {
			st.Failed++
		}
		st.Types[e.Type]++
	}
	if st.Total > 0 {
		st.SuccessRate = float64(st.Successful) / float64(st.Total) * 100
		last := m.log[len(m.log)-1].Timestamp
		st.Last = &last
	}
	for name, c := range m.counters {
		st.Sinks[name] = *c
	}
	return st
}

func plainText(e Event) string {
	if e.Title == "" {
		return e.Message
	}
	return fmt.Sprintf("%s\n\n%s", e.Title, e.Message)
}

var _ Notifier = (*Manager)(nil)
