package faq

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/haasonsaas/profileqa/internal/observability"
	"github.com/haasonsaas/profileqa/internal/retrieval"
)

var faqColumns = []string{"id", "question", "answer", "category", "tags", "relevance"}

func setupMockDB(t *testing.T, driver string) (*sql.DB, sqlmock.Sqlmock, *Store) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock, New(db, driver)
}

func TestStore_Lookup(t *testing.T) {
	_, mock, store := setupMockDB(t, "sqlite")

	mock.ExpectQuery("SELECT id, question, answer, category, tags").
		WithArgs("%certificaciones%", "%certificaciones%", "%certificaciones%", true,
			"%certificaciones%", "%certificaciones%", "%certificaciones%", 3).
		WillReturnRows(sqlmock.NewRows(faqColumns).
			AddRow(int64(1), "¿Cuáles son mis principales tecnologías?", "Java y certificaciones varias", "tecnologias", `["java"]`, 5).
			AddRow(int64(4), "¿Qué certificaciones tengo?", "Poseo certificaciones como AWS", "certificaciones", `["aws"]`, 10))
	mock.ExpectExec("INSERT INTO faq_analytics").
		WithArgs(int64(1), "certificaciones", "session-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO faq_analytics").
		WithArgs(int64(4), "certificaciones", "session-1").
		WillReturnResult(sqlmock.NewResult(2, 1))

	ctx := observability.AddSessionID(context.Background(), "session-1")
	got, err := store.Lookup(ctx, "certificaciones", "", 3)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(got))
	}
	if got[0].ID != "4" || got[0].Score != 1 {
		t.Fatalf("best passage = %+v, want id 4 with confidence 1", got[0])
	}
	if got[1].Score >= got[0].Score {
		t.Fatalf("passages not sorted by confidence: %v, %v", got[0].Score, got[1].Score)
	}
	for _, p := range got {
		if p.Kind != retrieval.KindFAQ || p.Score < 0 || p.Score > 1 {
			t.Fatalf("bad passage %+v", p)
		}
	}
	if got[0].Source != "faq:certificaciones" || got[0].Question != "¿Qué certificaciones tengo?" {
		t.Fatalf("unexpected passage metadata: %+v", got[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStore_LookupFallsBackToTerms(t *testing.T) {
	_, mock, store := setupMockDB(t, "sqlite")

	mock.ExpectQuery("SELECT id, question, answer, category, tags").
		WillReturnRows(sqlmock.NewRows(faqColumns))
	mock.ExpectQuery("SELECT id, question, answer, category, tags").
		WithArgs("%banca%", "%banca%", "%banca%", true, "%banca%", "%banca%", "%banca%", 5).
		WillReturnRows(sqlmock.NewRows(faqColumns).
			AddRow(int64(6), "¿Qué proyectos destacados he liderado?", "Plataforma de banca digital", "proyectos", `[]`, 5))
	mock.ExpectQuery("SELECT id, question, answer, category, tags").
		WithArgs("%digital%", "%digital%", "%digital%", true, "%digital%", "%digital%", "%digital%", 5).
		WillReturnRows(sqlmock.NewRows(faqColumns).
			AddRow(int64(6), "¿Qué proyectos destacados he liderado?", "Plataforma de banca digital", "proyectos", `[]`, 5).
			AddRow(int64(3), "¿En qué sectores he trabajado?", "Banca digital y pagos", "industria", `not json`, 5))
	mock.ExpectExec("INSERT INTO faq_analytics").WithArgs(int64(6), "banca digital xyz", "anonymous").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO faq_analytics").WithArgs(int64(3), "banca digital xyz", "anonymous").
		WillReturnResult(sqlmock.NewResult(2, 1))

	got, err := store.Lookup(context.Background(), "banca digital xyz", "", 0)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 deduplicated passages, got %d", len(got))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStore_LookupMiss(t *testing.T) {
	_, mock, store := setupMockDB(t, "sqlite")

	mock.ExpectQuery("SELECT id, question, answer, category, tags").
		WillReturnRows(sqlmock.NewRows(faqColumns))
	mock.ExpectQuery("SELECT id, question, answer, category, tags").
		WillReturnRows(sqlmock.NewRows(faqColumns))

	got, err := store.Lookup(context.Background(), "astronomía", "", 3)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStore_LookupEdgeCases(t *testing.T) {
	t.Run("empty query does not touch the database", func(t *testing.T) {
		_, mock, store := setupMockDB(t, "sqlite")
		got, err := store.Lookup(context.Background(), "   ", "", 3)
		if err != nil || len(got) != 0 {
			t.Fatalf("Lookup() = %v, %v", got, err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unexpected calls: %v", err)
		}
	})

	t.Run("database error", func(t *testing.T) {
		_, mock, store := setupMockDB(t, "sqlite")
		mock.ExpectQuery("SELECT id, question").WillReturnError(errors.New("connection refused"))
		_, err := store.Lookup(context.Background(), "aws", "", 3)
		if err == nil || !strings.Contains(err.Error(), "faq lookup") {
			t.Fatalf("expected wrapped lookup error, got %v", err)
		}
	})

	t.Run("analytics failure is not fatal", func(t *testing.T) {
		_, mock, store := setupMockDB(t, "sqlite")
		mock.ExpectQuery("SELECT id, question").
			WillReturnRows(sqlmock.NewRows(faqColumns).
				AddRow(int64(2), "¿Cuántos años de experiencia tengo?", "Más de 10 años", "experiencia", `[]`, 10))
		mock.ExpectExec("INSERT INTO faq_analytics").WillReturnError(errors.New("database is locked"))
		got, err := store.Lookup(context.Background(), "experiencia", "", 3)
		if err != nil || len(got) != 1 {
			t.Fatalf("Lookup() = %v, %v", got, err)
		}
	})

	t.Run("category filter and escaping", func(t *testing.T) {
		_, mock, store := setupMockDB(t, "sqlite")
		mock.ExpectQuery("AND category = \\?").
			WithArgs(`%100\%%`, `%100\%%`, `%100\%%`, true, `%100\%%`, `%100\%%`, `%100\%%`, "idiomas", 2).
			WillReturnRows(sqlmock.NewRows(faqColumns))
		_, err := store.Lookup(context.Background(), "100%", "idiomas", 2)
		if err != nil {
			t.Fatalf("Lookup() error = %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	})
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		question string
		answer   string
		want     float64
	}{
		{"capped at one", "certificaciones", "¿Qué certificaciones tengo?", "Poseo certificaciones como AWS", 1},
		{"empty query", "", "anything", "anything", 0},
		{"answer words only", "aws kubernetes", "¿Cuáles son mis principales tecnologías?", "Java, AWS, Docker, Kubernetes.", 0.3},
		{"partial answer words", "python rust", "¿Cuáles son mis principales tecnologías?", "Java/Spring Boot, Python, React", 0.15},
		{"no match", "astronomía", "¿Qué idiomas hablo?", "Español e inglés", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Confidence(tt.query, tt.question, tt.answer)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("Confidence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStore_Seed(t *testing.T) {
	t.Run("empty table", func(t *testing.T) {
		_, mock, store := setupMockDB(t, "sqlite")
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM faqs").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectBegin()
		for range SeedEntries {
			mock.ExpectExec("INSERT INTO faqs").WillReturnResult(sqlmock.NewResult(1, 1))
		}
		mock.ExpectCommit()

		n, err := store.Seed(context.Background())
		if err != nil || n != len(SeedEntries) {
			t.Fatalf("Seed() = %d, %v", n, err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	})

	t.Run("existing rows", func(t *testing.T) {
		_, mock, store := setupMockDB(t, "sqlite")
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM faqs").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
		n, err := store.Seed(context.Background())
		if err != nil || n != 0 {
			t.Fatalf("Seed() = %d, %v", n, err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	})

	t.Run("insert failure rolls back", func(t *testing.T) {
		_, mock, store := setupMockDB(t, "sqlite")
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM faqs").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO faqs").WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()
		if _, err := store.Seed(context.Background()); err == nil {
			t.Fatal("expected seed error")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	})
}

func TestStore_Migrate(t *testing.T) {
	for _, tt := range []struct{ driver, idType string }{
		{"sqlite", "AUTOINCREMENT"},
		{"postgres", "BIGSERIAL"},
	} {
		t.Run(tt.driver, func(t *testing.T) {
			_, mock, store := setupMockDB(t, tt.driver)
			mock.ExpectExec("CREATE TABLE IF NOT EXISTS faqs .*" + tt.idType).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("CREATE TABLE IF NOT EXISTS faq_analytics").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("CREATE INDEX").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("CREATE INDEX").WillReturnResult(sqlmock.NewResult(0, 0))
			if err := store.Migrate(context.Background()); err != nil {
				t.Fatalf("Migrate() error = %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestStore_GetPostgresPlaceholders(t *testing.T) {
	_, mock, store := setupMockDB(t, "postgres")

	mock.ExpectQuery(`WHERE id = \$1 AND is_active = \$2`).
		WithArgs(int64(9), true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "question", "answer", "category", "tags"}).
			AddRow(int64(9), "¿Qué idiomas hablo?", "Español", "idiomas", `["idiomas"]`))
	mock.ExpectQuery(`WHERE id = \$1 AND is_active = \$2`).
		WithArgs(int64(99), true).
		WillReturnError(sql.ErrNoRows)

	e, err := store.Get(context.Background(), 9)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if e.Category != "idiomas" || len(e.Tags) != 1 {
		t.Fatalf("unexpected entry %+v", e)
	}
	if _, err := store.Get(context.Background(), 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRebindDollar(t *testing.T) {
	got := rebindDollar("SELECT * FROM faqs WHERE a = ? AND b = ? LIMIT ?")
	want := "SELECT * FROM faqs WHERE a = $1 AND b = $2 LIMIT $3"
	if got != want {
		t.Fatalf("rebindDollar = %q, want %q", got, want)
	}
}

func TestStore_Add(t *testing.T) {
	_, mock, store := setupMockDB(t, "sqlite")

	mock.ExpectQuery("INSERT INTO faqs .* RETURNING id").
		WithArgs("¿Dónde vivo?", "En Madrid.", DefaultCategory, "[]").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	id, err := store.Add(context.Background(), Entry{Question: "¿Dónde vivo?", Answer: "En Madrid."})
	if err != nil || id != 11 {
		t.Fatalf("Add() = %d, %v", id, err)
	}
	if _, err := store.Add(context.Background(), Entry{Question: "only question"}); err == nil {
		t.Fatal("expected validation error for missing answer")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStore_CategoriesAndAnalytics(t *testing.T) {
	_, mock, store := setupMockDB(t, "sqlite")

	mock.ExpectQuery("SELECT DISTINCT category").WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"category"}).AddRow("educacion").AddRow("idiomas"))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM faq_analytics").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery("SELECT f.question, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"question", "query_count"}).AddRow("¿Qué idiomas hablo?", 5))
	mock.ExpectQuery("SELECT query, ts FROM faq_analytics").
		WillReturnRows(sqlmock.NewRows([]string{"query", "ts"}).AddRow("idiomas", "2026-01-02 10:00:00"))

	cats, err := store.Categories(context.Background())
	if err != nil || len(cats) != 2 || cats[0] != "educacion" {
		t.Fatalf("Categories() = %v, %v", cats, err)
	}

	a, err := store.AnalyticsSummary(context.Background())
	if err != nil {
		t.Fatalf("AnalyticsSummary() error = %v", err)
	}
	if a.TotalQueries != 7 || len(a.Popular) != 1 || a.Popular[0].Count != 5 || len(a.Recent) != 1 {
		t.Fatalf("unexpected analytics %+v", a)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSeedEntries(t *testing.T) {
	if len(SeedEntries) != 10 {
		t.Fatalf("expected 10 seed entries, got %d", len(SeedEntries))
	}
	for _, e := range SeedEntries {
		if e.Question == "" || e.Answer == "" || e.Category == "" || len(e.Tags) == 0 {
			t.Fatalf("incomplete seed entry %+v", e)
		}
	}
}
