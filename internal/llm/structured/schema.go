package structured

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema validates decoded model output against a JSON Schema.
type Schema struct {
	name     string
	compiled *jsonschema.Schema
}

var schemaCache sync.Map

// SchemaFor reflects a JSON Schema from the struct type of v and compiles it.
// Extra properties are allowed so chatty models still validate.
func SchemaFor(v any) (*Schema, error) {
	t := reflect.TypeOf(v)
	if cached, ok := schemaCache.Load(t); ok {
		return cached.(*Schema), nil
	}

	r := &invopop.Reflector{
		Anonymous:                  true,
		DoNotReference:             true,
		AllowAdditionalProperties:  true,
		RequiredFromJSONSchemaTags: true,
	}
	raw, err := json.Marshal(r.Reflect(v))
	if err != nil {
		return nil, fmt.Errorf("encode schema for %s: %w", t, err)
	}
	name := t.Name()
	if t.Kind() == reflect.Pointer {
		name = t.Elem().Name()
	}
	s, err := CompileSchema(name+".schema.json", string(raw))
	if err != nil {
		return nil, err
	}
	schemaCache.Store(t, s)
	return s, nil
}

// CompileSchema compiles a JSON Schema document.
func CompileSchema(name, doc string) (*Schema, error) {
	compiled, err := jsonschema.CompileString(name, doc)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, compiled: compiled}, nil
}

// Validate checks v after normalizing it through a JSON round trip.
func (s *Schema) Validate(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := s.compiled.Validate(decoded); err != nil {
		return fmt.Errorf("payload does not match %s: %w", s.name, err)
	}
	return nil
}
