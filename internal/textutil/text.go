// Package textutil holds the text normalization shared by the classifier,
// clarifier, evaluator and retrieval stores.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var lower = cases.Lower(language.Und)

// Fold lower-cases s and strips diacritics, so "Tecnología" becomes "tecnologia".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return lower.String(folded)
}

// Words splits s on whitespace and trims surrounding punctuation from each
// token. Empty tokens are dropped. Case is preserved.
func Words(s string) []string {
	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Tokens returns the folded words of s.
func Tokens(s string) []string {
	return Words(Fold(s))
}

// MatchPrefix returns the first keyword that starts a token of text, so
// "proyecto" matches "proyectos" but "age" does not match "manage".
// Matching is folded on both sides.
func MatchPrefix(text string, keywords []string) (string, bool) {
	tokens := Tokens(text)
	for _, k := range keywords {
		fk := Fold(k)
		for _, t := range tokens {
			if strings.HasPrefix(t, fk) {
				return k, true
			}
		}
	}
	return "", false
}

// HasWord reports whether any folded token of text equals a folded word.
// Multi-word entries match as a phrase on token boundaries.
func HasWord(text string, words []string) bool {
	joined := " " + strings.Join(Tokens(text), " ") + " "
	for _, w := range words {
		phrase := " " + strings.Join(Tokens(w), " ") + " "
		if strings.TrimSpace(phrase) == "" {
			continue
		}
		if strings.Contains(joined, phrase) {
			return true
		}
	}
	return false
}

// WordCount counts whitespace separated tokens.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// Overlap returns the share of distinct query tokens that also appear in text.
// It returns 0 when the query has no tokens.
func Overlap(query, text string) float64 {
	q := Set(Tokens(query))
	if len(q) == 0 {
		return 0
	}
	t := Set(Tokens(text))
	hits := 0
	for w := range q {
		if _, ok := t[w]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(q))
}

// Set builds a membership set from tokens.
func Set(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		out[t] = struct{}{}
	}
	return out
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
