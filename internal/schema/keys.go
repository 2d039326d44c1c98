package schema

import (
	"maps"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// CanonicalKey converts a schema keyword to JSON Schema camelCase.
//
// Servers written against snake_case schema models emit keys such as any_of or
// min_items; they are matched as anyOf and minItems. Keys starting with '$' are
// returned unchanged.
func CanonicalKey(key string) string {
	if strings.HasPrefix(key, "$") || !strings.Contains(key, "_") {
		return key
	}

	parts := strings.Split(key, "_")

	var b strings.Builder

	b.Grow(len(key))
	b.WriteString(parts[0])

	for _, part := range parts[1:] {
		if part == "" {
			continue
		}

		r, size := utf8.DecodeRuneInString(part)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(part[size:])
	}

	return b.String()
}

// canonicalize returns a copy of node with canonical keyword keys.
// When two keys collide, the one already in canonical form wins.
func canonicalize(node map[string]any) map[string]any {
	out := make(map[string]any, len(node))

	for _, key := range slices.Sorted(maps.Keys(node)) {
		canonical := CanonicalKey(key)
		if _, taken := out[canonical]; taken && key != canonical {
			continue
		}

		out[canonical] = node[key]
	}

	return out
}

// stringList extracts the strings of a JSON list, skipping other values.
func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return slices.Clone(list)
	case []any:
		out := make([]string, 0, len(list))

		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}

		return out
	default:
		return nil
	}
}
