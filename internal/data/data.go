// Package data loads operator-supplied structured mappings from literal
// strings or file references.
package data

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const filePrefix = "file://"

// Load parses input as a JSON or YAML mapping. An empty input yields an
// empty mapping; a "file://" input reads the referenced file first.
func Load(input string) (map[string]any, error) {
	if strings.TrimSpace(input) == "" {
		return map[string]any{}, nil
	}

	raw := []byte(input)
	if strings.HasPrefix(input, filePrefix) {
		path := strings.TrimPrefix(input, filePrefix)
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("open data file %q: %w", path, err)
		}
		raw = content
	}

	return parse(raw)
}

func parse(raw []byte) (map[string]any, error) {
	// JSON first: the common case, and it rejects non-objects cheaply.
	var viaJSON map[string]any
	if err := json.Unmarshal(raw, &viaJSON); err == nil {
		return viaJSON, nil
	}

	var viaYAML any
	if err := yaml.Unmarshal(raw, &viaYAML); err != nil {
		return nil, fmt.Errorf("parse data as JSON or YAML: %w", err)
	}
	mapping, ok := viaYAML.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected data to be a mapping, got %T", viaYAML)
	}
	return mapping, nil
}
