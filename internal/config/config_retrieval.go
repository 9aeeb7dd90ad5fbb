package config

import (
	"fmt"
	"strings"
)

// RetrievalConfig configures the two retrieval collaborators.
type RetrievalConfig struct {
	FAQ      FAQConfig      `yaml:"faq"`
	Semantic SemanticConfig `yaml:"semantic"`
}

// FAQConfig configures the SQL-backed FAQ store.
type FAQConfig struct {
	// Driver is sqlite (modernc), sqlite3 (cgo) or postgres.
	Driver string `yaml:"driver"`
	// DSN is the data source name. Defaults to an in-memory sqlite database.
	DSN string `yaml:"dsn"`
	// Seed loads the built-in FAQ entries when the table is empty.
	Seed *bool `yaml:"seed"`
	// MaxOpenConns bounds the connection pool.
	MaxOpenConns int `yaml:"max_open_conns"`
}

// SemanticConfig configures semantic search over the profile corpus.
type SemanticConfig struct {
	// Provider is memory, milvus or none.
	Provider string `yaml:"provider"`
	// CorpusPath is a JSON or YAML list of passages loaded by the memory provider.
	CorpusPath string `yaml:"corpus_path"`
	// Threshold is the minimum similarity a hit needs. Zero uses the
	// provider default.
	Threshold float64         `yaml:"threshold"`
	Milvus    MilvusConfig    `yaml:"milvus"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// MilvusConfig configures the Milvus vector collection.
type MilvusConfig struct {
	Address     string `yaml:"address"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	Database    string `yaml:"database"`
	Collection  string `yaml:"collection"`
	VectorField string `yaml:"vector_field"`
	TextField   string `yaml:"text_field"`
	SourceField string `yaml:"source_field"`
	TypeField   string `yaml:"type_field"`
}

// EmbeddingConfig configures the OpenAI-compatible embedder used by milvus search.
type EmbeddingConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// SeedEnabled reports whether the built-in FAQ entries should be loaded.
func (c FAQConfig) SeedEnabled() bool {
	return c.Seed == nil || *c.Seed
}

func applyRetrievalDefaults(cfg *RetrievalConfig) {
	if cfg.FAQ.Driver == "" {
		cfg.FAQ.Driver = "sqlite"
	}
	if cfg.FAQ.DSN == "" && strings.HasPrefix(cfg.FAQ.Driver, "sqlite") {
		cfg.FAQ.DSN = "file::memory:?cache=shared"
	}
	if cfg.FAQ.MaxOpenConns == 0 {
		cfg.FAQ.MaxOpenConns = 10
	}
	if cfg.Semantic.Provider == "" {
		cfg.Semantic.Provider = "memory"
	}
	m := &cfg.Semantic.Milvus
	if m.Address == "" {
		m.Address = "localhost:19530"
	}
	if m.Collection == "" {
		m.Collection = "profile_passages"
	}
	if m.VectorField == "" {
		m.VectorField = "embedding"
	}
	if m.TextField == "" {
		m.TextField = "text"
	}
	if m.SourceField == "" {
		m.SourceField = "source"
	}
	if m.TypeField == "" {
		m.TypeField = "doc_type"
	}
	if cfg.Semantic.Embedding.Model == "" {
		cfg.Semantic.Embedding.Model = "text-embedding-3-small"
	}
}

func (c RetrievalConfig) validate() []error {
	var errs []error
	switch c.FAQ.Driver {
	case "sqlite", "sqlite3", "postgres":
	default:
		errs = append(errs, fmt.Errorf("retrieval.faq.driver %q must be sqlite, sqlite3 or postgres", c.FAQ.Driver))
	}
	if c.FAQ.DSN == "" {
		errs = append(errs, fmt.Errorf("retrieval.faq.dsn is required for driver %s", c.FAQ.Driver))
	}
	switch c.Semantic.Provider {
	case "memory", "none":
	case "milvus":
		if c.Semantic.Embedding.APIKey == "" && c.Semantic.Embedding.BaseURL == "" {
			errs = append(errs, fmt.Errorf("retrieval.semantic.embedding needs api_key or base_url for milvus"))
		}
	default:
		errs = append(errs, fmt.Errorf("retrieval.semantic.provider %q must be memory, milvus or none", c.Semantic.Provider))
	}
	if c.Semantic.Threshold < 0 || c.Semantic.Threshold > 1 {
		errs = append(errs, fmt.Errorf("retrieval.semantic.threshold must be within [0,1]"))
	}
	return errs
}
