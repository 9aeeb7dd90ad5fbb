// Package faq implements the structured FAQ store over database/sql.
//
// Three drivers are supported: "sqlite" (modernc.org/sqlite, pure Go),
// "sqlite3" (github.com/mattn/go-sqlite3) and "postgres" (github.com/lib/pq).
// Queries are written with ? placeholders and rebound for postgres.
package faq

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver
	_ "modernc.org/sqlite"          // Pure-Go SQLite driver

	"github.com/haasonsaas/profileqa/internal/config"
	"github.com/haasonsaas/profileqa/internal/observability"
	"github.com/haasonsaas/profileqa/internal/retrieval"
	"github.com/haasonsaas/profileqa/internal/textutil"
)

const (
	// DefaultLimit is used when Lookup is called without a limit.
	DefaultLimit = 5
	// DefaultCategory is assigned to entries added without one.
	DefaultCategory = "general"

	maxLookupTerms = 5
	minTermRunes   = 4
	anonymous      = "anonymous"
)

// ErrNotFound is returned by Get when no active entry has the id.
var ErrNotFound = errors.New("faq entry not found")

// Entry is one stored question and answer.
type Entry struct {
	ID       int64    `json:"id"`
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

// QueryCount is an entry and how often lookups returned it.
type QueryCount struct {
	Question string `json:"question"`
	Count    int    `json:"count"`
}

// RecentQuery is one recorded lookup.
type RecentQuery struct {
	Query string `json:"query"`
	At    string `json:"timestamp"`
}

// Analytics summarizes recorded lookups.
type Analytics struct {
	TotalQueries int           `json:"total_queries"`
	Popular      []QueryCount  `json:"popular_faqs"`
	Recent       []RecentQuery `json:"recent_queries"`
}

// Store is a FAQ store backed by a SQL database. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	driver string
	logger *observability.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for analytics warnings.
func WithLogger(l *observability.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New wraps an open database. driver selects the SQL dialect.
func New(db *sql.DB, driver string, opts ...Option) *Store {
	s := &Store{db: db, driver: driver, logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to the configured database, creates the schema and seeds it
// when enabled.
func Open(ctx context.Context, cfg config.FAQConfig, opts ...Option) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if strings.HasPrefix(cfg.Driver, "sqlite") && strings.Contains(cfg.DSN, ":memory:") {
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxIdleTime(2 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := New(db, cfg.Driver, opts...)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if cfg.SeedEnabled() {
		if _, err := s.Seed(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	return rebindDollar(query)
}

func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Migrate creates the faqs and faq_analytics tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == "postgres" {
		id = "BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS faqs (
			id ` + id + `,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT 'general',
			tags TEXT NOT NULL DEFAULT '[]',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS faq_analytics (
			id ` + id + `,
			faq_id BIGINT REFERENCES faqs(id),
			query TEXT,
			session TEXT,
			ts TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		"CREATE INDEX IF NOT EXISTS idx_faqs_category ON faqs(category)",
		"CREATE INDEX IF NOT EXISTS idx_faqs_question ON faqs(question)",
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate faq schema: %w", err)
		}
	}
	return nil
}

// Seed inserts SeedEntries when the faqs table is empty and returns the
// number of inserted rows.
func (s *Store) Seed(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM faqs").Scan(&count); err != nil {
		return 0, fmt.Errorf("count faqs: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Warn(ctx, "seed rollback failed", "error", err)
		}
	}()

	insert := s.rebind("INSERT INTO faqs (question, answer, category, tags) VALUES (?, ?, ?, ?)")
	for _, e := range SeedEntries {
		tags, err := json.Marshal(e.Tags)
		if err != nil {
			return 0, fmt.Errorf("marshal tags: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insert, e.Question, e.Answer, e.Category, string(tags)); err != nil {
			return 0, fmt.Errorf("seed faq: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	s.logger.Info(ctx, "seeded faq store", "entries", len(SeedEntries))
	return len(SeedEntries), nil
}

type row struct {
	Entry
	rank int
}

// Lookup returns active entries matching query, best first. Matching is
// done with LIKE against the whole query, then against its individual
// terms when the whole query matches nothing. Each passage's Score is its
// confidence in [0,1]. A miss returns an empty slice and a nil error.
func (s *Store) Lookup(ctx context.Context, query, category string, limit int) ([]retrieval.Passage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []retrieval.Passage{}, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.match(ctx, query, category, limit)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		seen := make(map[int64]bool)
		for _, term := range lookupTerms(query) {
			hits, err := s.match(ctx, term, category, limit)
			if err != nil {
				return nil, err
			}
			for _, h := range hits {
				if !seen[h.ID] && len(rows) < limit {
					seen[h.ID] = true
					rows = append(rows, h)
				}
			}
			if len(rows) >= limit {
				break
			}
		}
	}

	passages := make([]retrieval.Passage, 0, len(rows))
	for _, r := range rows {
		passages = append(passages, retrieval.Passage{
			ID:       strconv.FormatInt(r.ID, 10),
			Content:  r.Answer,
			Question: r.Question,
			Source:   "faq:" + r.Category,
			Score:    Confidence(query, r.Question, r.Answer),
			Kind:     retrieval.KindFAQ,
			Category: r.Category,
		})
	}
	retrieval.SortByScore(passages)

	for _, r := range rows {
		s.recordAnalytics(ctx, r.ID, query)
	}
	return passages, nil
}

func (s *Store) match(ctx context.Context, text, category string, limit int) ([]row, error) {
	pattern := "%" + escapeLike(strings.ToLower(text)) + "%"
	q := `SELECT id, question, answer, category, tags,
		CASE
			WHEN LOWER(question) LIKE ? ESCAPE '\' THEN 10
			WHEN LOWER(answer) LIKE ? ESCAPE '\' THEN 5
			WHEN LOWER(tags) LIKE ? ESCAPE '\' THEN 3
			ELSE 1
		END AS relevance
		FROM faqs
		WHERE is_active = ?
		AND (LOWER(question) LIKE ? ESCAPE '\' OR LOWER(answer) LIKE ? ESCAPE '\' OR LOWER(tags) LIKE ? ESCAPE '\')`
	args := []any{pattern, pattern, pattern, true, pattern, pattern, pattern}
	if category != "" {
		q += " AND category = ?"
		args = append(args, category)
	}
	q += " ORDER BY relevance DESC, id ASC LIMIT ?"
	args = append(args, limit)

	rs, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("faq lookup: %w", err)
	}
	defer rs.Close()

	var out []row
	for rs.Next() {
		var r row
		var tags string
		if err := rs.Scan(&r.ID, &r.Question, &r.Answer, &r.Category, &tags, &r.rank); err != nil {
			return nil, fmt.Errorf("scan faq: %w", err)
		}
		r.Tags = decodeTags(tags)
		out = append(out, r)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("faq lookup: %w", err)
	}
	return out, nil
}

func (s *Store) recordAnalytics(ctx context.Context, id int64, query string) {
	session := observability.GetSessionID(ctx)
	if session == "" {
		session = anonymous
	}
	_, err := s.db.ExecContext(ctx,
		s.rebind("INSERT INTO faq_analytics (faq_id, query, session) VALUES (?, ?, ?)"),
		id, query, session)
	if err != nil {
		s.logger.Warn(ctx, "failed to record faq analytics", "faq_id", id, "error", err)
	}
}

// Confidence scores how well query matches an entry, in [0,1].
func Confidence(query, question, answer string) float64 {
	q := strings.TrimSpace(textutil.Fold(query))
	if q == "" {
		return 0
	}
	fq := textutil.Fold(question)
	fa := textutil.Fold(answer)

	score := 0.0
	if strings.Contains(fq, q) {
		score += 0.8
	}
	if strings.Contains(fa, q) {
		score += 0.6
	}
	score += textutil.Overlap(query, question) * 0.4
	score += textutil.Overlap(query, answer) * 0.3
	if score > 1 {
		score = 1
	}
	return score
}

func lookupTerms(query string) []string {
	var terms []string
	seen := make(map[string]bool)
	for _, w := range textutil.Words(strings.ToLower(query)) {
		if len([]rune(w)) < minTermRunes || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
		if len(terms) == maxLookupTerms {
			break
		}
	}
	return terms
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func decodeTags(raw string) []string {
	var tags []string
	if raw == "" || json.Unmarshal([]byte(raw), &tags) != nil {
		return []string{}
	}
	return tags
}

// Categories lists the distinct categories of active entries.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	rs, err := s.db.QueryContext(ctx,
		s.rebind("SELECT DISTINCT category FROM faqs WHERE is_active = ? ORDER BY category"), true)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rs.Close()

	var out []string
	for rs.Next() {
		var c string
		if err := rs.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rs.Err()
}

// List returns active entries ordered by id, optionally filtered by category.
func (s *Store) List(ctx context.Context, category string) ([]Entry, error) {
	q := "SELECT id, question, answer, category, tags FROM faqs WHERE is_active = ?"
	args := []any{true}
	if category != "" {
		q += " AND category = ?"
		args = append(args, category)
	}
	q += " ORDER BY id"

	rs, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list faqs: %w", err)
	}
	defer rs.Close()

	var out []Entry
	for rs.Next() {
		var e Entry
		var tags string
		if err := rs.Scan(&e.ID, &e.Question, &e.Answer, &e.Category, &tags); err != nil {
			return nil, fmt.Errorf("scan faq: %w", err)
		}
		e.Tags = decodeTags(tags)
		out = append(out, e)
	}
	return out, rs.Err()
}

// Get returns the active entry with id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*Entry, error) {
	var e Entry
	var tags string
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT id, question, answer, category, tags FROM faqs WHERE id = ? AND is_active = ?"),
		id, true).Scan(&e.ID, &e.Question, &e.Answer, &e.Category, &tags)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get faq %d: %w", id, err)
	}
	e.Tags = decodeTags(tags)
	return &e, nil
}

// Add stores a new entry and returns its id.
func (s *Store) Add(ctx context.Context, e Entry) (int64, error) {
	if strings.TrimSpace(e.Question) == "" || strings.TrimSpace(e.Answer) == "" {
		return 0, fmt.Errorf("question and answer are required")
	}
	if e.Category == "" {
		e.Category = DefaultCategory
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	tags, err := json.Marshal(e.Tags)
	if err != nil {
		return 0, fmt.Errorf("marshal tags: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		s.rebind("INSERT INTO faqs (question, answer, category, tags) VALUES (?, ?, ?, ?) RETURNING id"),
		e.Question, e.Answer, e.Category, string(tags)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("add faq: %w", err)
	}
	s.logger.Info(ctx, "added faq", "id", id, "category", e.Category)
	return id, nil
}

// AnalyticsSummary reports lookup totals, the five most returned entries and
// the ten most recent lookups.
func (s *Store) AnalyticsSummary(ctx context.Context) (*Analytics, error) {
	out := &Analytics{Popular: []QueryCount{}, Recent: []RecentQuery{}}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM faq_analytics").Scan(&out.TotalQueries); err != nil {
		return nil, fmt.Errorf("count analytics: %w", err)
	}

	rs, err := s.db.QueryContext(ctx, `SELECT f.question, COUNT(*) AS query_count
		FROM faq_analytics a
		JOIN faqs f ON a.faq_id = f.id
		GROUP BY f.id, f.question
		ORDER BY query_count DESC
		LIMIT 5`)
	if err != nil {
		return nil, fmt.Errorf("popular faqs: %w", err)
	}
	for rs.Next() {
		var qc QueryCount
		if err := rs.Scan(&qc.Question, &qc.Count); err != nil {
			rs.Close()
			return nil, fmt.Errorf("scan popular faq: %w", err)
		}
		out.Popular = append(out.Popular, qc)
	}
	rs.Close()

	rs, err = s.db.QueryContext(ctx, "SELECT query, ts FROM faq_analytics ORDER BY ts DESC, id DESC LIMIT 10")
	if err != nil {
		return nil, fmt.Errorf("recent queries: %w", err)
	}
	defer rs.Close()
	for rs.Next() {
		var rq RecentQuery
		if err := rs.Scan(&rq.Query, &rq.At); err != nil {
			return nil, fmt.Errorf("scan recent query: %w", err)
		}
		out.Recent = append(out.Recent, rq)
	}
	return out, rs.Err()
}

var _ retrieval.FAQLookup = (*Store)(nil)
