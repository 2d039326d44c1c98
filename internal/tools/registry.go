package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagiedev/mcpstdio/internal/errors"
	"github.com/wagiedev/mcpstdio/internal/protocol"
	"github.com/wagiedev/mcpstdio/internal/schema"
)

// Caller sends a request over an established session.
// *protocol.Session satisfies it.
type Caller interface {
	Call(ctx context.Context, method string, params any, timeout time.Duration) (*protocol.Response, error)
}

// Descriptor describes one discovered tool. It is not modified after
// discovery.
type Descriptor struct {
	Name        string
	Title       string
	Description string
	// RawSchema is the input schema exactly as the server sent it.
	RawSchema any
	// Schema is RawSchema after normalization.
	Schema      map[string]any
	Annotations *mcp.ToolAnnotations
}

// JSONSchema returns the normalized schema as a typed jsonschema.Schema.
func (d *Descriptor) JSONSchema() (*jsonschema.Schema, error) {
	return schema.ToJSONSchema(d.Schema)
}

// Registry holds the tools discovered from one session.
type Registry struct {
	log        *slog.Logger
	caller     Caller
	normalizer schema.Normalizer
	timeout    time.Duration

	mu     sync.RWMutex
	tools  []*Descriptor
	byName map[string]*Descriptor
	// generation counts Invalidate calls; a Discover that started in an
	// older generation must not publish its result.
	generation uint64

	stale atomic.Bool
}

// NewRegistry creates an empty registry. A nil normalizer selects
// schema.Default. timeout bounds each tools/list page; zero means no limit.
func NewRegistry(log *slog.Logger, caller Caller, normalizer schema.Normalizer, timeout time.Duration) *Registry {
	if normalizer == nil {
		normalizer = schema.Default()
	}

	return &Registry{
		log:        log.With("component", "registry"),
		caller:     caller,
		normalizer: normalizer,
		timeout:    timeout,
		byName:     make(map[string]*Descriptor),
	}
}

// Discover lists the server's tools, following pagination, and replaces the
// stored set. On failure the previous set is kept and a *errors.DiscoveryError
// is returned. A listing overtaken by Invalidate is discarded and reported as
// errors.ErrSessionNotReady.
func (r *Registry) Discover(ctx context.Context) ([]*Descriptor, error) {
	r.mu.RLock()
	generation := r.generation
	r.mu.RUnlock()

	var (
		listed  []*Descriptor
		byName  = make(map[string]*Descriptor)
		cursor  string
		cursors = make(map[string]bool)
		pages   int
	)

	for {
		page, err := r.listPage(ctx, cursor)
		if err != nil {
			return nil, &errors.DiscoveryError{Err: err}
		}

		pages++

		for _, tool := range page.Tools {
			if tool == nil || tool.Name == "" {
				r.log.Warn("Skipping tool without a name")

				continue
			}

			if _, dup := byName[tool.Name]; dup {
				r.log.Warn("Duplicate tool name, keeping the first", "tool", tool.Name)

				continue
			}

			desc, err := r.describe(tool)
			if err != nil {
				return nil, &errors.DiscoveryError{Err: err}
			}

			byName[desc.Name] = desc
			listed = append(listed, desc)
		}

		if page.NextCursor == "" {
			break
		}

		if cursors[page.NextCursor] {
			return nil, &errors.DiscoveryError{Err: fmt.Errorf("tools/list cursor %q repeated", page.NextCursor)}
		}

		cursors[page.NextCursor] = true
		cursor = page.NextCursor
	}

	r.mu.Lock()
	if r.generation != generation {
		r.mu.Unlock()
		r.log.Debug("Discarding tools listed before the set was invalidated", "count", len(listed))

		return nil, &errors.DiscoveryError{
			Err: fmt.Errorf("%w: tool set invalidated during discovery", errors.ErrSessionNotReady),
		}
	}

	r.tools = listed
	r.byName = byName
	r.mu.Unlock()

	r.stale.Store(false)

	r.log.Info("Discovered tools", "count", len(listed), "pages", pages)

	return r.Tools(), nil
}

// listPage fetches one tools/list page.
func (r *Registry) listPage(ctx context.Context, cursor string) (*mcp.ListToolsResult, error) {
	resp, err := r.caller.Call(ctx, "tools/list", &mcp.ListToolsParams{Cursor: cursor}, r.timeout)
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}

	var page mcp.ListToolsResult
	if err := resp.Decode(&page); err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}

	return &page, nil
}

// describe builds a descriptor, normalizing the tool's input schema.
func (r *Registry) describe(tool *mcp.Tool) (*Descriptor, error) {
	raw, err := plainSchema(tool.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("tool %q: %w", tool.Name, err)
	}

	if raw == nil {
		raw = map[string]any{"type": "object"}
	}

	normalized, ok := r.normalizer.Normalize(raw).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("tool %q: input schema is not an object", tool.Name)
	}

	if err := schema.Conforms(normalized); err != nil {
		r.log.Debug("Normalized schema outside the dialect", "tool", tool.Name, "error", err)
	}

	return &Descriptor{
		Name:        tool.Name,
		Title:       tool.Title,
		Description: tool.Description,
		RawSchema:   raw,
		Schema:      normalized,
		Annotations: tool.Annotations,
	}, nil
}

// plainSchema converts a decoded schema value into plain JSON values.
func plainSchema(v any) (any, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return s, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal input schema: %w", err)
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode input schema: %w", err)
	}

	return out, nil
}

// Lookup returns the descriptor for name, or an error matching
// errors.ErrUnknownTool.
func (r *Registry) Lookup(name string) (*Descriptor, error) {
	r.mu.RLock()
	desc, ok := r.byName[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownTool, name)
	}

	return desc, nil
}

// Tools returns the discovered tools in server order.
func (r *Registry) Tools() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Descriptor, len(r.tools))
	copy(out, r.tools)

	return out
}

// Invalidate discards every discovered tool, including the result of any
// Discover still in flight.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.tools = nil
	r.byName = make(map[string]*Descriptor)
	r.generation++
	r.mu.Unlock()

	r.log.Debug("Tool set discarded")
}

// MarkStale records that the server's tool list changed.
func (r *Registry) MarkStale() {
	if !r.stale.Swap(true) {
		r.log.Info("Server tool list changed")
	}
}

// Stale reports whether the tool list changed since the last Discover.
func (r *Registry) Stale() bool {
	return r.stale.Load()
}
