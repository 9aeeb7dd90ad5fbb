package semantic

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/haasonsaas/profileqa/internal/config"
	"github.com/haasonsaas/profileqa/internal/retrieval"
)

// DefaultMilvusThreshold is the minimum cosine similarity kept by Milvus.
const DefaultMilvusThreshold = 0.7

// Hit is one vector search result.
type Hit struct {
	ID      string
	Content string
	Source  string
	Type    string
	Score   float64
}

// Index runs a vector query against a collection.
type Index interface {
	Search(ctx context.Context, vector []float32, topK int, expr string) ([]Hit, error)
	Close() error
}

// Milvus searches a Milvus collection with embedded queries.
type Milvus struct {
	index     Index
	embedder  Embedder
	threshold float64
	typeField string
}

// NewMilvus creates a searcher. A threshold of zero uses DefaultMilvusThreshold.
func NewMilvus(index Index, embedder Embedder, threshold float64, typeField string) *Milvus {
	if threshold <= 0 {
		threshold = DefaultMilvusThreshold
	}
	if typeField == "" {
		typeField = "doc_type"
	}
	return &Milvus{index: index, embedder: embedder, threshold: threshold, typeField: typeField}
}

// Search embeds query and returns up to topK hits above the threshold.
func (m *Milvus) Search(ctx context.Context, query string, topK int, typeFilter string) ([]retrieval.Passage, error) {
	out := []retrieval.Passage{}
	if strings.TrimSpace(query) == "" {
		return out, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	vector, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := m.index.Search(ctx, vector, topK, m.filterExpr(typeFilter))
	if err != nil {
		return nil, err
	}
	for _, h := range hits {
		if h.Score < m.threshold {
			continue
		}
		out = append(out, retrieval.Passage{
			ID:       h.ID,
			Content:  h.Content,
			Source:   h.Source,
			Score:    h.Score,
			Kind:     retrieval.KindSemantic,
			Category: h.Type,
		})
	}
	retrieval.SortByScore(out)
	return out, nil
}

func (m *Milvus) filterExpr(typeFilter string) string {
	if typeFilter == "" {
		return ""
	}
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(typeFilter)
	return fmt.Sprintf(`%s == "%s"`, m.typeField, escaped)
}

// Close releases the index connection.
func (m *Milvus) Close() error {
	return m.index.Close()
}

// MilvusIndex is an Index backed by the Milvus Go SDK.
type MilvusIndex struct {
	client client.Client
	cfg    config.MilvusConfig
}

// DialMilvus connects to the configured Milvus server.
func DialMilvus(ctx context.Context, cfg config.MilvusConfig) (*MilvusIndex, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus %s: %w", cfg.Address, err)
	}
	return &MilvusIndex{client: c, cfg: cfg}, nil
}

// Search runs a cosine similarity search over the configured vector field.
func (x *MilvusIndex) Search(ctx context.Context, vector []float32, topK int, expr string) ([]Hit, error) {
	sp, err := entity.NewIndexFlatSearchParam()
	if err != nil {
		return nil, fmt.Errorf("milvus search params: %w", err)
	}
	fields := []string{x.cfg.TextField, x.cfg.SourceField, x.cfg.TypeField}
	results, err := x.client.Search(ctx, x.cfg.Collection, nil, expr, fields,
		[]entity.Vector{entity.FloatVector(vector)}, x.cfg.VectorField, entity.COSINE, topK, sp)
	if err != nil {
		return nil, fmt.Errorf("milvus search: %w", err)
	}

	var hits []Hit
	for _, r := range results {
		for i := 0; i < r.ResultCount && i < len(r.Scores); i++ {
			h := Hit{
				Score:   float64(r.Scores[i]),
				Content: columnString(r.Fields, x.cfg.TextField, i),
				Source:  columnString(r.Fields, x.cfg.SourceField, i),
				Type:    columnString(r.Fields, x.cfg.TypeField, i),
			}
			if r.IDs != nil {
				if id, err := r.IDs.Get(i); err == nil {
					h.ID = fmt.Sprint(id)
				}
			}
			hits = append(hits, h)
		}
	}
	return hits, nil
}

// Close closes the client connection.
func (x *MilvusIndex) Close() error {
	return x.client.Close()
}

func columnString(fields client.ResultSet, name string, i int) string {
	col := fields.GetColumn(name)
	if col == nil {
		return ""
	}
	s, err := col.GetAsString(i)
	if err != nil {
		return ""
	}
	return s
}

// Open builds the configured searcher. The "none" provider returns nil.
// Searchers holding connections implement io.Closer.
func Open(ctx context.Context, cfg config.SemanticConfig) (retrieval.Searcher, error) {
	switch cfg.Provider {
	case "none":
		return nil, nil
	case "milvus":
		embedder, err := NewOpenAIEmbedder(cfg.Embedding)
		if err != nil {
			return nil, err
		}
		index, err := DialMilvus(ctx, cfg.Milvus)
		if err != nil {
			return nil, err
		}
		return NewMilvus(index, embedder, cfg.Threshold, cfg.Milvus.TypeField), nil
	default:
		m, err := LoadMemory(cfg.CorpusPath, cfg.Threshold)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

var (
	_ retrieval.Searcher = (*Milvus)(nil)
	_ io.Closer          = (*Milvus)(nil)
	_ Index              = (*MilvusIndex)(nil)
)
