package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// includeKey lists files merged underneath the including file.
const includeKey = "$include"

// LoadRaw reads path into a generic map. Environment variables are expanded
// and $include entries are merged in order before the file's own keys.
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	return loadFile(path, map[string]bool{})
}

func loadFile(path string, visiting map[string]bool) (map[string]any, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if visiting[abs] {
		return nil, fmt.Errorf("config include cycle at %s", abs)
	}
	visiting[abs] = true
	defer delete(visiting, abs)

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	raw, err := parseRaw([]byte(os.ExpandEnv(string(data))), filepath.Ext(abs))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}

	includes, err := popIncludes(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}

	out := map[string]any{}
	for _, inc := range includes {
		inc = strings.TrimSpace(inc)
		if inc == "" {
			continue
		}
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(abs), inc)
		}
		child, err := loadFile(inc, visiting)
		if err != nil {
			return nil, err
		}
		out = mergeMaps(out, child)
	}
	return mergeMaps(out, raw), nil
}

func parseRaw(data []byte, ext string) (map[string]any, error) {
	raw := map[string]any{}
	switch strings.ToLower(ext) {
	case ".json", ".json5":
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, err
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&raw); err != nil && err != io.EOF {
			return nil, err
		}
		if err := dec.Decode(&struct{}{}); err != io.EOF {
			return nil, fmt.Errorf("expected a single YAML document")
		}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func popIncludes(raw map[string]any) ([]string, error) {
	val, ok := raw[includeKey]
	if !ok {
		return nil, nil
	}
	delete(raw, includeKey)

	switch v := val.(type) {
	case string:
		return []string{v}, nil
	case []any:
		paths := make([]string, 0, len(v))
		for _, entry := range v {
			s, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("%s entries must be strings", includeKey)
			}
			paths = append(paths, s)
		}
		return paths, nil
	default:
		return nil, fmt.Errorf("%s must be a string or a list of strings", includeKey)
	}
}

// mergeMaps merges src into dst recursively; src wins on scalar conflicts.
func mergeMaps(dst, src map[string]any) map[string]any {
	for key, value := range src {
		if sub, ok := value.(map[string]any); ok {
			if existing, ok := dst[key].(map[string]any); ok {
				dst[key] = mergeMaps(existing, sub)
				continue
			}
		}
		dst[key] = value
	}
	return dst
}

// decodeRawConfig round-trips raw through YAML so unknown keys are rejected
// regardless of the source format.
func decodeRawConfig(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(payload))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
