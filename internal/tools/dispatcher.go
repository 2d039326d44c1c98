package tools

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagiedev/mcpstdio/internal/errors"
)

// EmptyResultMessage is returned when a tool result carries no text.
const EmptyResultMessage = "Tool returned no content."

// Content is one item of a tool result.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// Result is the unwrapped tools/call result envelope.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Text returns the first text item, or EmptyResultMessage.
func (r *Result) Text() string {
	for _, item := range r.Content {
		if item.Type == "text" {
			return item.Text
		}
	}

	return EmptyResultMessage
}

// errorText joins every text item of a failed result.
func (r *Result) errorText() string {
	var parts []string

	for _, item := range r.Content {
		if item.Type == "text" && item.Text != "" {
			parts = append(parts, item.Text)
		}
	}

	if len(parts) == 0 {
		return "tool reported an error without a message"
	}

	return strings.Join(parts, "\n")
}

// Dispatcher invokes discovered tools.
type Dispatcher struct {
	log      *slog.Logger
	caller   Caller
	registry *Registry
	timeout  time.Duration
}

// NewDispatcher creates a dispatcher. timeout bounds each tools/call;
// zero means no limit.
func NewDispatcher(log *slog.Logger, caller Caller, registry *Registry, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		log:      log.With("component", "dispatcher"),
		caller:   caller,
		registry: registry,
		timeout:  timeout,
	}
}

// Call invokes the named tool and returns the whole result envelope.
//
// An unregistered name fails with errors.ErrUnknownTool before anything is
// sent. A JSON-RPC error reply or a result flagged isError fails with
// *errors.ToolExecutionError. Calls are never retried.
func (d *Dispatcher) Call(ctx context.Context, name string, arguments map[string]any) (*Result, error) {
	if _, err := d.registry.Lookup(name); err != nil {
		return nil, err
	}

	if arguments == nil {
		arguments = map[string]any{}
	}

	params := &mcp.CallToolParams{Name: name, Arguments: arguments}

	start := time.Now()

	resp, err := d.caller.Call(ctx, "tools/call", params, d.timeout)
	if err != nil {
		if rpcErr, ok := stderrors.AsType[*errors.RPCError](err); ok {
			return nil, &errors.ToolExecutionError{Tool: name, Code: rpcErr.Code, Message: rpcErr.Message}
		}

		return nil, fmt.Errorf("call tool %q: %w", name, err)
	}

	var result Result
	if err := resp.Decode(&result); err != nil {
		return nil, fmt.Errorf("call tool %q: %w", name, err)
	}

	d.log.Debug("Tool call finished",
		"tool", name,
		"duration", time.Since(start),
		"items", len(result.Content),
		"is_error", result.IsError,
	)

	if result.IsError {
		return nil, &errors.ToolExecutionError{Tool: name, Message: result.errorText()}
	}

	return &result, nil
}

// CallTool invokes the named tool and returns its first text item.
func (d *Dispatcher) CallTool(ctx context.Context, name string, arguments map[string]any) (string, error) {
	result, err := d.Call(ctx, name, arguments)
	if err != nil {
		return "", err
	}

	return result.Text(), nil
}
