package config

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

var (
	schemaOnce sync.Once
	schemaJSON []byte
	schemaErr  error
)

// JSONSchema returns the JSON Schema describing the config file, keyed by
// the same names the YAML decoder accepts.
func JSONSchema() ([]byte, error) {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			FieldNameTag:               "yaml",
			AllowAdditionalProperties:  false,
			RequiredFromJSONSchemaTags: true,
		}
		schema := r.Reflect(&Config{})
		schema.Title = "profileqa configuration"
		schemaJSON, schemaErr = json.MarshalIndent(schema, "", "  ")
	})
	return schemaJSON, schemaErr
}
