// Package schema rewrites tool parameter schemas into the restricted dialect
// accepted by function-calling planners.
//
// The dialect keeps a small subset of JSON Schema: the kinds object, array,
// string, integer, number and boolean; object nodes with properties and
// required; array nodes with a single items schema; and a few scalar
// constraints. Alternatives (oneOf, anyOf, allOf) are flattened by merging
// their variants, since the target cannot express them.
//
// Normalize is a pure function over map[string]any trees as produced by
// encoding/json. It never panics on odd input and is idempotent:
//
//	out := schema.Normalize(raw)
//	reflect.DeepEqual(schema.Normalize(out), out) // true
//
// Consumers that want a typed tree can convert the result with ToJSONSchema.
package schema
