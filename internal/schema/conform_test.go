package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConforms(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		path   string
		reason string
	}{
		{
			name:   "not a mapping",
			input:  []any{},
			reason: "expected a mapping, got []interface {}",
		},
		{
			name:   "variant keyword",
			input:  map[string]any{"oneOf": []any{}},
			reason: `keyword "oneOf" is not allowed`,
		},
		{
			name:   "unsupported type",
			input:  map[string]any{"type": "null"},
			reason: "unsupported type null",
		},
		{
			name:   "format on wrong kind",
			input:  map[string]any{"type": "string", "format": "int64"},
			reason: `format int64 is not valid for type "string"`,
		},
		{
			name:   "format outside integer formats on number",
			input:  map[string]any{"type": "number", "format": "double"},
			reason: `format double is not valid for type "number"`,
		},
		{
			name:   "array without items",
			input:  map[string]any{"type": "array"},
			reason: "array node has no items",
		},
		{
			name:   "untyped properties",
			input:  map[string]any{"properties": map[string]any{"a": map[string]any{}}},
			reason: "node with properties has no type",
		},
		{
			name: "nested violation",
			input: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"a/b": map[string]any{"type": "array", "items": map[string]any{"default": 1}},
				},
			},
			path:   "/properties/a~1b/items",
			reason: `keyword "default" is not allowed`,
		},
		{
			name: "required not declared",
			input: map[string]any{
				"type":       "object",
				"properties": map[string]any{"a": map[string]any{"type": "string"}},
				"required":   []string{"b"},
			},
			reason: `required name "b" is not a declared property`,
		},
		{
			name:   "list items",
			input:  map[string]any{"type": "array", "items": []any{}},
			reason: "items must be a single mapping",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Conforms(tt.input)
			require.Error(t, err)

			confErr, ok := errors.AsType[*ConformanceError](err)
			require.True(t, ok)
			assert.Equal(t, tt.path, confErr.Path)
			assert.Equal(t, tt.reason, confErr.Reason)
		})
	}
}

func TestConforms_Accepts(t *testing.T) {
	require.NoError(t, Conforms(map[string]any{}))
	require.NoError(t, Conforms(map[string]any{
		"type":        "object",
		"description": "Run a query",
		"properties": map[string]any{
			"sql":   map[string]any{"type": "string", "minLength": 1.0},
			"limit": map[string]any{"type": "integer", "format": "int32", "nullable": true},
			"tags":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []any{"sql"},
	}))
}

func TestConformanceError_Message(t *testing.T) {
	err := &ConformanceError{Reason: "boom"}
	assert.Equal(t, "schema does not conform at /: boom", err.Error())

	err = &ConformanceError{Path: "/items", Reason: "boom"}
	assert.Equal(t, "schema does not conform at /items: boom", err.Error())
}
