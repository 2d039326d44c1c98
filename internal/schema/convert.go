package schema

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Normalizer rewrites raw tool schemas. It is the seam for replacing the
// built-in dialect rules.
type Normalizer interface {
	Normalize(raw any) any
}

// NormalizerFunc adapts a function to Normalizer.
type NormalizerFunc func(raw any) any

// Normalize implements Normalizer.
func (f NormalizerFunc) Normalize(raw any) any { return f(raw) }

// Default returns the built-in normalizer.
func Default() Normalizer {
	return NormalizerFunc(Normalize)
}

// ToJSONSchema converts a normalized tree into a typed jsonschema.Schema.
func ToJSONSchema(node any) (*jsonschema.Schema, error) {
	if _, ok := node.(map[string]any); !ok {
		return nil, fmt.Errorf("convert schema: expected a mapping, got %T", node)
	}

	data, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	return &s, nil
}

// FromJSONSchema converts a typed schema into the map form Normalize expects.
func FromJSONSchema(s *jsonschema.Schema) (map[string]any, error) {
	if s == nil {
		return map[string]any{}, nil
	}

	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	return out, nil
}
