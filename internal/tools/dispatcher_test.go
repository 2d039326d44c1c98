package tools

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/wagiedev/mcpstdio/internal/errors"
)

// newTestDispatcher discovers run-sql, then answers tools/call with onCall.
func newTestDispatcher(t *testing.T, onCall func(params *mcp.CallToolParams) (any, error)) (*Dispatcher, *fakeCaller) {
	t.Helper()

	caller := &fakeCaller{handler: func(method string, params any) (any, error) {
		switch method {
		case "tools/list":
			return listing(runSQLTool())(method, params)
		case "tools/call":
			p, ok := params.(*mcp.CallToolParams)
			if !ok {
				return nil, fmt.Errorf("unexpected params %T", params)
			}

			return onCall(p)
		default:
			return nil, fmt.Errorf("unexpected method %s", method)
		}
	}}

	registry := NewRegistry(slog.Default(), caller, nil, 0)

	_, err := registry.Discover(context.Background())
	require.NoError(t, err)

	return NewDispatcher(slog.Default(), caller, registry, 30*time.Second), caller
}

func textResult(items ...map[string]any) map[string]any {
	content := make([]any, len(items))
	for i, item := range items {
		content[i] = item
	}

	return map[string]any{"content": content}
}

func TestDispatcher_CallToolReturnsFirstText(t *testing.T) {
	dispatcher, caller := newTestDispatcher(t, func(p *mcp.CallToolParams) (any, error) {
		return textResult(
			map[string]any{"type": "image", "data": "iVBORw0KGgo=", "mimeType": "image/png"},
			map[string]any{"type": "text", "text": "ID,NAME\n1,ACME"},
			map[string]any{"type": "text", "text": "second"},
		), nil
	})

	text, err := dispatcher.CallTool(context.Background(), "run-sql", map[string]any{"sql": "select * from customers"})
	require.NoError(t, err)
	require.Equal(t, "ID,NAME\n1,ACME", text)

	calls := caller.recorded()
	last := calls[len(calls)-1]
	require.Equal(t, "tools/call", last.method)
	require.Equal(t, 30*time.Second, last.timeout)

	params, ok := last.params.(*mcp.CallToolParams)
	require.True(t, ok)
	require.Equal(t, "run-sql", params.Name)
	require.Equal(t, map[string]any{"sql": "select * from customers"}, params.Arguments)
}

func TestDispatcher_EmptyResult(t *testing.T) {
	tests := []struct {
		name   string
		result any
	}{
		{name: "empty content", result: map[string]any{"content": []any{}}},
		{name: "absent content", result: map[string]any{}},
		{name: "no text items", result: textResult(map[string]any{"type": "image", "data": "AA=="})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dispatcher, _ := newTestDispatcher(t, func(*mcp.CallToolParams) (any, error) {
				return tt.result, nil
			})

			text, err := dispatcher.CallTool(context.Background(), "run-sql", nil)
			require.NoError(t, err)
			require.Equal(t, EmptyResultMessage, text)
		})
	}
}

func TestDispatcher_NilArgumentsSentAsObject(t *testing.T) {
	var got any

	dispatcher, _ := newTestDispatcher(t, func(p *mcp.CallToolParams) (any, error) {
		got = p.Arguments

		return textResult(map[string]any{"type": "text", "text": "ok"}), nil
	})

	_, err := dispatcher.CallTool(context.Background(), "run-sql", nil)
	require.NoError(t, err)
	require.Equal(t, map[string]any{}, got)
}

func TestDispatcher_UnknownToolSendsNothing(t *testing.T) {
	dispatcher, caller := newTestDispatcher(t, func(*mcp.CallToolParams) (any, error) {
		return nil, stderrors.New("must not be called")
	})

	before := len(caller.recorded())

	_, err := dispatcher.CallTool(context.Background(), "drop-database", nil)
	require.ErrorIs(t, err, errors.ErrUnknownTool)
	require.Len(t, caller.recorded(), before)
}

func TestDispatcher_RPCErrorBecomesToolExecutionError(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t, func(*mcp.CallToolParams) (any, error) {
		return nil, &errors.RPCError{Code: -32000, Message: "ORA-00942: table or view does not exist"}
	})

	_, err := dispatcher.CallTool(context.Background(), "run-sql", map[string]any{"sql": "select 1 from nope"})

	toolErr, ok := stderrors.AsType[*errors.ToolExecutionError](err)
	require.True(t, ok)
	require.Equal(t, "run-sql", toolErr.Tool)
	require.Equal(t, -32000, toolErr.Code)
	require.Equal(t, "ORA-00942: table or view does not exist", toolErr.Message)
}

func TestDispatcher_IsErrorResult(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t, func(*mcp.CallToolParams) (any, error) {
		return map[string]any{
			"content": []any{
				map[string]any{"type": "text", "text": "Not connected."},
				map[string]any{"type": "text", "text": "Use connect first."},
			},
			"isError": true,
		}, nil
	})

	_, err := dispatcher.CallTool(context.Background(), "run-sql", map[string]any{"sql": "select 1 from dual"})

	toolErr, ok := stderrors.AsType[*errors.ToolExecutionError](err)
	require.True(t, ok)
	require.Equal(t, "Not connected.\nUse connect first.", toolErr.Message)
	require.Zero(t, toolErr.Code)
}

func TestDispatcher_IsErrorWithoutText(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t, func(*mcp.CallToolParams) (any, error) {
		return map[string]any{"isError": true}, nil
	})

	_, err := dispatcher.CallTool(context.Background(), "run-sql", nil)

	toolErr, ok := stderrors.AsType[*errors.ToolExecutionError](err)
	require.True(t, ok)
	require.NotEmpty(t, toolErr.Message)
}

func TestDispatcher_TransportErrorsPassThrough(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   error
	}{
		{name: "timeout", err: &errors.TimeoutError{Method: "tools/call", ID: 3, Timeout: time.Second}, is: errors.ErrToolCallTimeout},
		{name: "transport closed", err: &errors.ProcessError{ExitCode: 1}, is: errors.ErrTransportClosed},
		{name: "session not ready", err: errors.ErrSessionNotReady, is: errors.ErrSessionNotReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dispatcher, _ := newTestDispatcher(t, func(*mcp.CallToolParams) (any, error) {
				return nil, tt.err
			})

			_, err := dispatcher.CallTool(context.Background(), "run-sql", nil)
			require.ErrorIs(t, err, tt.is)

			_, isToolErr := stderrors.AsType[*errors.ToolExecutionError](err)
			require.False(t, isToolErr)
		})
	}
}

func TestDispatcher_CallReturnsEnvelope(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t, func(*mcp.CallToolParams) (any, error) {
		return textResult(
			map[string]any{"type": "text", "text": "a"},
			map[string]any{"type": "image", "data": "AA==", "mimeType": "image/png"},
		), nil
	})

	result, err := dispatcher.Call(context.Background(), "run-sql", nil)
	require.NoError(t, err)
	require.Len(t, result.Content, 2)
	require.Equal(t, "image/png", result.Content[1].MIMEType)
	require.Equal(t, "a", result.Text())
}
