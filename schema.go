package genflow

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/jsonschema-go/jsonschema"
)

// GenerateSchema is a helper function to help generate the schema definition for
// ToolDeclaration.Parameters or ClientConfig.ResponseSchema from a Go type.
func GenerateSchema[T any]() (*jsonschema.Schema, error) {
	schema, err := jsonschema.For[T](&jsonschema.ForOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for type: %w", err)
	}
	// Set additionalProperties to false (disallow additional properties)
	if schema.AdditionalProperties == nil {
		schema.AdditionalProperties = &jsonschema.Schema{Not: &jsonschema.Schema{}}
	}
	return schema, nil
}

// schemaNameMaps are keywords whose value is a map keyed by user-chosen names
// rather than by keywords.
var schemaNameMaps = []string{"properties", "patternProperties", "$defs", "definitions", "dependentSchemas"}

// schemaToMap converts a schema into its JSON object form with every keyword in
// strip removed at any depth. A nil schema yields a nil map.
func schemaToMap(s *jsonschema.Schema, strip []string) (map[string]any, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("schema is not a JSON object: %w", err)
	}
	stripKeywords(m, strip)
	return m, nil
}

func stripKeywords(m map[string]any, strip []string) {
	for k, v := range m {
		if slices.Contains(strip, k) {
			delete(m, k)
			continue
		}
		if slices.Contains(schemaNameMaps, k) {
			if named, ok := v.(map[string]any); ok {
				for _, sub := range named {
					stripValue(sub, strip)
				}
			}
			continue
		}
		stripValue(v, strip)
	}
}

func stripValue(v any, strip []string) {
	switch t := v.(type) {
	case map[string]any:
		stripKeywords(t, strip)
	case []any:
		for _, e := range t {
			stripValue(e, strip)
		}
	}
}
