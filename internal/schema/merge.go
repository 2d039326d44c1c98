package schema

import (
	"maps"
	"slices"
	"strings"
)

// mergeVariants flattens a oneOf/anyOf/allOf list into a single node.
//
// Each variant is normalized first. Properties are unioned with the first
// definition of a name winning, required is the intersection across variants,
// and non-empty descriptions are joined with " | ". When no variant declares
// properties the first typed variant supplies type, format, items and enum.
// Non-mapping variants are ignored; an empty list yields nil.
func mergeVariants(variants []any, depth int) map[string]any {
	var (
		properties   = make(map[string]any)
		required     []string
		descriptions []string
		fallback     map[string]any
		nullable     bool
		count        int
	)

	for _, variant := range variants {
		raw, ok := variant.(map[string]any)
		if !ok {
			continue
		}

		node := normalizeNode(raw, depth)
		count++

		if props, ok := node["properties"].(map[string]any); ok {
			addMissing(properties, props)
		}

		names := stringList(node["required"])
		if count == 1 {
			required = names
		} else {
			required = intersect(required, names)
		}

		if description, ok := node["description"].(string); ok && description != "" {
			descriptions = append(descriptions, description)
		}

		if node["nullable"] == true {
			nullable = true
		}

		if _, typed := node["type"]; typed && fallback == nil {
			fallback = node
		}
	}

	if count == 0 {
		return nil
	}

	out := make(map[string]any)

	if len(properties) > 0 {
		out["type"] = "object"
		out["properties"] = properties

		if len(required) > 0 {
			out["required"] = required
		}
	} else if fallback != nil {
		for _, key := range [...]string{"type", "format", "items", "enum"} {
			if value, ok := fallback[key]; ok {
				out[key] = value
			}
		}
	}

	if nullable {
		out["nullable"] = true
	}

	if len(descriptions) > 0 {
		out["description"] = strings.Join(descriptions, variantSeparator)
	}

	return out
}

func intersect(a, b []string) []string {
	out := make([]string, 0, min(len(a), len(b)))

	for _, name := range a {
		if slices.Contains(b, name) && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}

	return out
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
