// Package tools keeps the set of tools a server exposes and invokes them.
//
// The Registry discovers tools with tools/list, normalizes each input schema
// through an injected schema.Normalizer, and replaces its stored set only
// after a complete listing succeeds. The Dispatcher looks a tool up in the
// Registry and calls it with tools/call, unwrapping the text result.
package tools
