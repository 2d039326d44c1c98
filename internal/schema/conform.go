package schema

import (
	"fmt"
	"slices"
	"strings"
)

// dialectKeywords are the only keys a normalized node may carry.
var dialectKeywords = map[string]bool{
	"type":          true,
	"nullable":      true,
	"title":         true,
	"description":   true,
	"properties":    true,
	"required":      true,
	"items":         true,
	"format":        true,
	"enum":          true,
	"pattern":       true,
	"minimum":       true,
	"maximum":       true,
	"minLength":     true,
	"maxLength":     true,
	"minItems":      true,
	"maxItems":      true,
	"minProperties": true,
	"maxProperties": true,
}

// ConformanceError describes the first dialect violation found by Conforms.
type ConformanceError struct {
	// Path is a slash-separated location such as "/properties/sql/items".
	Path   string
	Reason string
}

func (e *ConformanceError) Error() string {
	path := e.Path
	if path == "" {
		path = "/"
	}

	return fmt.Sprintf("schema does not conform at %s: %s", path, e.Reason)
}

// Conforms reports whether schema is already in the restricted dialect.
// Normalize output always conforms.
func Conforms(schema any) error {
	node, ok := schema.(map[string]any)
	if !ok {
		return &ConformanceError{Reason: fmt.Sprintf("expected a mapping, got %T", schema)}
	}

	return conforms(node, "")
}

func conforms(node map[string]any, path string) error {
	fail := func(format string, args ...any) error {
		return &ConformanceError{Path: path, Reason: fmt.Sprintf(format, args...)}
	}

	for _, key := range sortedKeys(node) {
		if !dialectKeywords[key] {
			return fail("keyword %q is not allowed", key)
		}
	}

	kind, hasType := node["type"]
	if hasType {
		s, ok := kind.(string)
		if !ok || !supportedKinds[s] {
			return fail("unsupported type %v", kind)
		}
	}

	if format, ok := node["format"]; ok {
		s, _ := format.(string)
		k, _ := kind.(string)

		if !slices.Contains(formatsByKind[k], s) {
			return fail("format %v is not valid for type %q", format, k)
		}
	}

	var properties map[string]any

	if raw, ok := node["properties"]; ok {
		properties, ok = raw.(map[string]any)
		if !ok {
			return fail("properties must be a mapping")
		}

		if len(properties) > 0 && !hasType {
			return fail("node with properties has no type")
		}

		for _, name := range sortedKeys(properties) {
			child, ok := properties[name].(map[string]any)
			if !ok {
				return fail("property %q is not a mapping", name)
			}

			if err := conforms(child, path+"/properties/"+escapePointer(name)); err != nil {
				return err
			}
		}
	}

	if raw, ok := node["required"]; ok {
		names, ok := raw.([]string)
		if !ok {
			names = stringList(raw)
		}

		for _, name := range names {
			if _, declared := properties[name]; !declared {
				return fail("required name %q is not a declared property", name)
			}
		}
	}

	raw, hasItems := node["items"]
	if kind == "array" && !hasItems {
		return fail("array node has no items")
	}

	if hasItems {
		items, ok := raw.(map[string]any)
		if !ok {
			return fail("items must be a single mapping")
		}

		if err := conforms(items, path+"/items"); err != nil {
			return err
		}
	}

	return nil
}

// escapePointer applies JSON Pointer escaping to a property name.
func escapePointer(name string) string {
	return strings.NewReplacer("~", "~0", "/", "~1").Replace(name)
}
