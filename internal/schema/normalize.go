package schema

import (
	"encoding/json"
	"slices"
	"strings"
)

const (
	// maxDepth bounds recursion so self-referential Go maps terminate.
	maxDepth = 32

	variantSeparator = " | "

	commaSeparatedNote = "(comma-separated values)"

	// HeterogeneousItemsDescription replaces list-form items.
	HeterogeneousItemsDescription = "Item object (heterogeneous item schemas are not supported)"
)

// variantKeywords in the order their variants are folded into a node.
var variantKeywords = [...]string{"oneOf", "anyOf", "allOf"}

var supportedKinds = map[string]bool{
	"object":  true,
	"array":   true,
	"string":  true,
	"integer": true,
	"number":  true,
	"boolean": true,
}

// formatsByKind lists the format values each kind may carry.
var formatsByKind = map[string][]string{
	"string":  {"enum", "date-time"},
	"integer": {"int32", "int64"},
	"number":  {"int32", "int64"},
}

// numericKeywords are scalar constraints copied when their value is a number.
var numericKeywords = [...]string{
	"minimum",
	"maximum",
	"minLength",
	"maxLength",
	"minItems",
	"maxItems",
	"minProperties",
	"maxProperties",
}

// Normalize rewrites schema into the restricted dialect.
//
// A non-mapping input is returned unchanged. The input is never modified.
func Normalize(schema any) any {
	node, ok := schema.(map[string]any)
	if !ok {
		return schema
	}

	return ensureItems(normalizeNode(node, 0))
}

func normalizeNode(node map[string]any, depth int) map[string]any {
	src := canonicalize(node)

	if depth >= maxDepth {
		return truncate(src)
	}

	out := make(map[string]any)

	typ, nullable := normalizeType(src["type"])
	if typ != "" {
		out["type"] = typ
	}

	if nullable || src["nullable"] == true {
		out["nullable"] = true
	}

	if title, ok := src["title"].(string); ok && title != "" {
		out["title"] = title
	}

	switch items := src["items"].(type) {
	case map[string]any:
		out["items"] = ensureItems(normalizeNode(items, depth+1))
	case []any:
		out["items"] = map[string]any{
			"type":        "object",
			"description": HeterogeneousItemsDescription,
		}
	}

	if format, ok := src["format"].(string); ok && format != "" {
		out["format"] = format
	}

	if enum := enumValues(src["enum"]); enum != nil {
		out["enum"] = enum
	}

	copyConstraints(src, out)

	var (
		descriptions []string
		required     = stringList(src["required"])
		properties   map[string]any
		merges       []map[string]any
	)

	if description, ok := src["description"].(string); ok && description != "" {
		descriptions = append(descriptions, description)
	}

	if raw, ok := src["properties"].(map[string]any); ok {
		properties, merges = normalizeProperties(raw, depth)
	}

	for _, keyword := range variantKeywords {
		if variants, ok := src[keyword].([]any); ok {
			merges = append(merges, mergeVariants(variants, depth))
		}
	}

	for _, merged := range merges {
		if merged == nil {
			continue
		}

		if props, ok := merged["properties"].(map[string]any); ok {
			if properties == nil {
				properties = make(map[string]any, len(props))
			}

			addMissing(properties, props)
		}

		required = append(required, stringList(merged["required"])...)

		if description, ok := merged["description"].(string); ok && description != "" {
			descriptions = append(descriptions, description)
		}

		for _, key := range [...]string{"type", "format", "items", "enum", "nullable"} {
			if _, has := out[key]; has {
				continue
			}

			if value, ok := merged[key]; ok {
				out[key] = value
			}
		}
	}

	if properties != nil {
		out["properties"] = properties

		if len(properties) > 0 {
			if _, typed := out["type"]; !typed {
				out["type"] = "object"
			}
		}
	}

	if required = filterRequired(required, properties); len(required) > 0 {
		out["required"] = required
	}

	if len(descriptions) > 0 {
		out["description"] = strings.Join(descriptions, variantSeparator)
	}

	if format, ok := out["format"].(string); ok {
		kind, _ := out["type"].(string)
		if !slices.Contains(formatsByKind[kind], format) {
			delete(out, "format")
		}
	}

	return out
}

// normalizeProperties normalizes each property schema. Variant lists found
// directly under properties are merged and returned for the caller to fold
// into the enclosing node.
func normalizeProperties(raw map[string]any, depth int) (map[string]any, []map[string]any) {
	properties := make(map[string]any, len(raw))

	var merges []map[string]any

	for _, name := range sortedKeys(raw) {
		switch value := raw[name].(type) {
		case []any:
			if slices.Contains(variantKeywords[:], CanonicalKey(name)) {
				merges = append(merges, mergeVariants(value, depth))
			}
		case map[string]any:
			properties[name] = normalizeProperty(value, depth+1)
		}
	}

	return properties, merges
}

// normalizeProperty applies the array fallback: an array property whose items
// the planner could not represent is exposed as a comma-separated string.
func normalizeProperty(node map[string]any, depth int) map[string]any {
	out := normalizeNode(node, depth)

	if out["type"] != "array" || representableItems(out["items"]) {
		return out
	}

	description, _ := out["description"].(string)

	return map[string]any{
		"type":        "string",
		"description": strings.TrimSpace(description + " " + commaSeparatedNote),
	}
}

// ensureItems gives an array node outside a property position a generic item
// schema when it has none, so every array in the output carries items.
func ensureItems(node map[string]any) map[string]any {
	if node["type"] != "array" {
		return node
	}

	if _, ok := node["items"].(map[string]any); !ok {
		node["items"] = map[string]any{"type": "object"}
	}

	return node
}

func representableItems(items any) bool {
	node, ok := items.(map[string]any)
	if !ok {
		return false
	}

	kind, _ := node["type"].(string)

	return kind != "" && kind != "array"
}

// normalizeType maps a type keyword to a single supported kind. For a list of
// types the first supported entry wins; a listed "null" marks the node nullable.
func normalizeType(v any) (string, bool) {
	var candidates []string

	switch t := v.(type) {
	case string:
		candidates = []string{t}
	default:
		candidates = stringList(t)
	}

	var (
		kind     string
		nullable bool
	)

	for _, candidate := range candidates {
		candidate = strings.ToLower(candidate)

		switch {
		case candidate == "null":
			nullable = true
		case kind == "" && supportedKinds[candidate]:
			kind = candidate
		}
	}

	return kind, nullable
}

// truncate keeps only the scalar shape of a node past the depth limit.
func truncate(src map[string]any) map[string]any {
	out := make(map[string]any, 2)

	if kind, _ := normalizeType(src["type"]); kind != "" && kind != "array" {
		out["type"] = kind
	}

	if description, ok := src["description"].(string); ok && description != "" {
		out["description"] = description
	}

	return out
}

func enumValues(v any) []any {
	switch values := v.(type) {
	case []any:
		return slices.Clone(values)
	case []string:
		out := make([]any, len(values))
		for i, s := range values {
			out[i] = s
		}

		return out
	default:
		return nil
	}
}

func copyConstraints(src, out map[string]any) {
	for _, keyword := range numericKeywords {
		if isNumber(src[keyword]) {
			out[keyword] = src[keyword]
		}
	}

	if pattern, ok := src["pattern"].(string); ok && pattern != "" {
		out["pattern"] = pattern
	}
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		return true
	default:
		return false
	}
}

// filterRequired drops duplicates and names that are not declared properties.
func filterRequired(required []string, properties map[string]any) []string {
	out := make([]string, 0, len(required))

	for _, name := range required {
		if _, declared := properties[name]; !declared || slices.Contains(out, name) {
			continue
		}

		out = append(out, name)
	}

	return out
}

func addMissing(dst, src map[string]any) {
	for _, name := range sortedKeys(src) {
		if _, exists := dst[name]; !exists {
			dst[name] = src[name]
		}
	}
}
