// Package semantic implements semantic search over the profile corpus,
// either in process or against a Milvus collection.
package semantic

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/profileqa/internal/retrieval"
	"github.com/haasonsaas/profileqa/internal/textutil"
)

const (
	// DefaultTopK is used when Search is called without a positive topK.
	DefaultTopK = 5
	// DefaultMemoryThreshold is the minimum term cosine kept by Memory.
	DefaultMemoryThreshold = 0.1
)

//go:embed corpus.yaml
var defaultCorpus []byte

// Document is one passage of the corpus file.
type Document struct {
	ID      string `yaml:"id" json:"id"`
	Content string `yaml:"content" json:"content"`
	Source  string `yaml:"source" json:"source"`
	Type    string `yaml:"type" json:"type"`
}

type indexed struct {
	doc    Document
	vector map[string]float64
	norm   float64
}

// Memory ranks an in-process corpus by cosine similarity of term counts.
type Memory struct {
	docs      []indexed
	threshold float64
}

// NewMemory indexes docs. A threshold of zero uses DefaultMemoryThreshold.
func NewMemory(docs []Document, threshold float64) *Memory {
	if threshold <= 0 {
		threshold = DefaultMemoryThreshold
	}
	m := &Memory{threshold: threshold, docs: make([]indexed, 0, len(docs))}
	for i, d := range docs {
		if strings.TrimSpace(d.Content) == "" {
			continue
		}
		if d.ID == "" {
			d.ID = "doc-" + strconv.Itoa(i+1)
		}
		if d.Source == "" {
			d.Source = "corpus"
		}
		vec := termVector(d.Content)
		m.docs = append(m.docs, indexed{doc: d, vector: vec, norm: norm(vec)})
	}
	return m
}

// ParseCorpus decodes a YAML (or JSON) list of documents.
func ParseCorpus(data []byte) ([]Document, error) {
	var docs []Document
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse corpus: %w", err)
	}
	return docs, nil
}

// LoadMemory builds a Memory from the corpus file at path, or from the
// built-in profile corpus when path is empty.
func LoadMemory(path string, threshold float64) (*Memory, error) {
	data := defaultCorpus
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read corpus: %w", err)
		}
		data = b
	}
	docs, err := ParseCorpus(data)
	if err != nil {
		return nil, err
	}
	return NewMemory(docs, threshold), nil
}

// Len reports the number of indexed documents.
func (m *Memory) Len() int {
	return len(m.docs)
}

// Search returns up to topK documents whose similarity to query clears the
// threshold, best first. A non-empty typeFilter keeps only documents of
// that type.
func (m *Memory) Search(ctx context.Context, query string, topK int, typeFilter string) ([]retrieval.Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	out := []retrieval.Passage{}
	q := termVector(query)
	qn := norm(q)
	if qn == 0 {
		return out, nil
	}

	for _, d := range m.docs {
		if typeFilter != "" && !strings.EqualFold(d.doc.Type, typeFilter) {
			continue
		}
		if d.norm == 0 {
			continue
		}
		dot := 0.0
		for term, w := range q {
			dot += w * d.vector[term]
		}
		score := dot / (qn * d.norm)
		if score < m.threshold {
			continue
		}
		out = append(out, retrieval.Passage{
			ID:       d.doc.ID,
			Content:  d.doc.Content,
			Source:   d.doc.Source,
			Score:    score,
			Kind:     retrieval.KindSemantic,
			Category: d.doc.Type,
		})
	}
	retrieval.SortByScore(out)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func termVector(text string) map[string]float64 {
	vec := make(map[string]float64)
	for _, t := range textutil.Tokens(text) {
		if len([]rune(t)) < 3 || stopwords[t] {
			continue
		}
		vec[t]++
	}
	return vec
}

func norm(vec map[string]float64) float64 {
	sum := 0.0
	for _, w := range vec {
		sum += w * w
	}
	return math.Sqrt(sum)
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "what": true, "are": true, "you": true, "your": true,
	"que": true, "los": true, "las": true, "del": true, "por": true, "con": true, "una": true, "para": true,
	"como": true, "mis": true, "tus": true, "sus": true, "tengo": true, "tienes": true, "cual": true, "cuales": true,
}

var _ retrieval.Searcher = (*Memory)(nil)
