// Package structured extracts JSON objects from language-model output.
//
// Parsing happens in two stages and never loops: a strict decode of the whole
// text, then a lenient JSON5 decode of the first balanced object found in it.
// Callers keep a typed default for when both stages fail.
package structured

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
)

// Stage names the parse step that failed.
type Stage string

const (
	StageEmpty   Stage = "empty"
	StageExtract Stage = "extract"
	StageLenient Stage = "lenient"
	StageDecode  Stage = "decode"
	StageSchema  Stage = "schema"
)

// ParseError reports why model output could not be turned into a value.
type ParseError struct {
	Stage Stage
	// Excerpt is the beginning of the offending text.
	Excerpt string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("structured %s: cannot parse %q", e.Stage, e.Excerpt)
	}
	return fmt.Sprintf("structured %s: %v (input %q)", e.Stage, e.Err, e.Excerpt)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ErrNoObject is wrapped when the text contains no balanced {...} span.
var ErrNoObject = errors.New("no JSON object found")

const excerptLen = 80

func newParseError(stage Stage, text string, err error) *ParseError {
	return &ParseError{Stage: stage, Excerpt: excerpt(text), Err: err}
}

func excerpt(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= excerptLen {
		return text
	}
	return string([]rune(text)[:excerptLen]) + "..."
}

// Extract returns a generic JSON object decoded from text.
func Extract(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, newParseError(StageEmpty, text, nil)
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil && obj != nil {
		return obj, nil
	}

	span, ok := FirstObject(trimmed)
	if !ok {
		return nil, newParseError(StageExtract, text, ErrNoObject)
	}
	obj = nil
	if err := json5.Unmarshal([]byte(span), &obj); err != nil {
		return nil, newParseError(StageLenient, span, err)
	}
	if obj == nil {
		return nil, newParseError(StageLenient, span, ErrNoObject)
	}
	return obj, nil
}

// Decode extracts an object from text and decodes it into out.
func Decode(text string, out any) error {
	return DecodeValidated(text, nil, out)
}

// DecodeValidated is Decode with an optional schema check before decoding.
func DecodeValidated(text string, schema *Schema, out any) error {
	obj, err := Extract(text)
	if err != nil {
		return err
	}
	if schema != nil {
		if err := schema.Validate(obj); err != nil {
			return newParseError(StageSchema, text, err)
		}
	}
	payload, err := json.Marshal(obj)
	if err != nil {
		return newParseError(StageDecode, text, err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return newParseError(StageDecode, text, err)
	}
	return nil
}

// Parse decodes text into a T. On failure it returns fallback and a *ParseError.
func Parse[T any](text string, fallback T) (T, error) {
	var out T
	if err := Decode(text, &out); err != nil {
		return fallback, err
	}
	return out, nil
}

// FirstObject returns the first balanced {...} span in text. Braces inside
// string literals are ignored; both quote styles are recognized.
func FirstObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	var quote byte
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// Number decodes a JSON number that models sometimes quote, such as "85".
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal([]byte(s), &f); err != nil {
		return fmt.Errorf("number %q: %w", s, err)
	}
	*n = Number(f)
	return nil
}

// Float returns n as a float64, or def when n is nil.
func (n *Number) Float(def float64) float64 {
	if n == nil {
		return def
	}
	return float64(*n)
}
