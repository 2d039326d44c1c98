package mcptest

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

func TestServerCallTool(t *testing.T) {
	server := NewServer("demo", "1.0.0")
	server.AddTool(
		NewTool("echo", "echoes text", SimpleSchema(map[string]string{"text": "string"})),
		func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, err := ParseArguments(req)
			if err != nil {
				return nil, err
			}

			text, _ := args["text"].(string)

			return TextResult("echo: " + text), nil
		},
	)
	server.AddTool(
		NewTool("fails", "always fails", nil),
		func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return nil, errors.New("boom")
		},
	)
	server.AddTool(
		NewTool("rejects", "always rejects", nil),
		func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return nil, &Error{Code: -32000, Message: "rejected"}
		},
	)

	require.Equal(t, "demo", server.Name())
	require.Equal(t, "1.0.0", server.Version())

	result, err := server.CallTool(context.Background(), "echo", []byte(`{"text":"hello"}`))
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"content": []map[string]any{{"type": "text", "text": "echo: hello"}},
	}, result)

	result, err = server.CallTool(context.Background(), "fails", nil)
	require.NoError(t, err)
	require.Equal(t, true, result["isError"])

	_, err = server.CallTool(context.Background(), "rejects", nil)

	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, -32000, rpcErr.Code)

	_, err = server.CallTool(context.Background(), "missing", nil)
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, CodeInvalidParams, rpcErr.Code)
}

func TestServerToolOrder(t *testing.T) {
	server := NewServer("demo", "1.0.0")
	handler := func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) { return TextResult(""), nil }

	server.AddTool(NewTool("b", "", nil), handler)
	server.AddTool(NewTool("a", "", nil), handler)
	server.AddTool(NewTool("c", "", nil), handler)
	server.AddTool(NewTool("a", "replaced", nil), handler)
	server.RemoveTool("c")
	server.RemoveTool("never-added")

	tools := server.ListTools()
	require.Len(t, tools, 2)
	require.Equal(t, "b", tools[0].Name)
	require.Equal(t, "a", tools[1].Name)
	require.Equal(t, "replaced", tools[1].Description)
}

func TestWireResult(t *testing.T) {
	t.Run("nil result returns empty content", func(t *testing.T) {
		require.Equal(t, map[string]any{
			"content": []map[string]any{},
		}, wireResult(nil))
	})

	t.Run("mixed content is converted to wire maps", func(t *testing.T) {
		result := &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: "hello"},
				&mcp.ImageContent{Data: []byte("img"), MIMEType: "image/png"},
				&mcp.AudioContent{Data: []byte("aud"), MIMEType: "audio/wav"},
				&mcp.ResourceLink{URI: "file:///a.txt", Name: "a.txt"},
				&mcp.EmbeddedResource{
					Resource: &mcp.ResourceContents{
						URI:      "file:///b.txt",
						MIMEType: "text/plain",
						Text:     "body",
					},
				},
			},
			IsError: true,
		}

		got := wireResult(result)
		content, ok := got["content"].([]map[string]any)
		require.True(t, ok)
		require.Len(t, content, 5)
		require.Equal(t, true, got["isError"])
		require.Equal(t, "text", content[0]["type"])
		require.Equal(t, "hello", content[0]["text"])
		require.Equal(t, "image", content[1]["type"])
		require.Equal(t, "audio", content[2]["type"])
		require.Equal(t, "resource_link", content[3]["type"])
		require.Equal(t, "resource", content[4]["type"])
	})
}

func TestSimpleSchema(t *testing.T) {
	schema := SimpleSchema(map[string]string{
		"name":   "string",
		"active": "bool",
		"scores": "[]float64",
	})

	require.Equal(t, "object", schema.Type)
	require.Equal(t, []string{"active", "name", "scores"}, schema.Required)
	require.Equal(t, "string", schema.Properties["name"].Type)
	require.Equal(t, "boolean", schema.Properties["active"].Type)
	require.Equal(t, "array", schema.Properties["scores"].Type)
	require.Equal(t, "number", schema.Properties["scores"].Items.Type)
}

func TestGoTypeToJSONSchema(t *testing.T) {
	tests := []struct {
		goType    string
		wantType  string
		wantItems string
	}{
		{goType: "string", wantType: "string"},
		{goType: "int64", wantType: "integer"},
		{goType: "float32", wantType: "number"},
		{goType: "boolean", wantType: "boolean"},
		{goType: "map[string]any", wantType: "object"},
		{goType: "[]int", wantType: "array", wantItems: "integer"},
		{goType: "[]", wantType: "string"},
		{goType: "customType", wantType: "string"},
	}

	for _, tt := range tests {
		t.Run(tt.goType, func(t *testing.T) {
			got := goTypeToJSONSchema(tt.goType)

			require.Equal(t, tt.wantType, got.Type)

			if tt.wantItems != "" {
				require.NotNil(t, got.Items)
				require.Equal(t, tt.wantItems, got.Items.Type)
			}
		})
	}
}

func TestResultHelpers(t *testing.T) {
	text := TextResult("ok")
	require.False(t, text.IsError)
	require.Len(t, text.Content, 1)

	failed := ErrorResult("failed")
	require.True(t, failed.IsError)
	require.Len(t, failed.Content, 1)

	image := ImageResult([]byte("bin"), "image/png")
	require.False(t, image.IsError)
	require.Len(t, image.Content, 1)
}

func TestParseArguments(t *testing.T) {
	t.Run("nil request and empty args return empty map", func(t *testing.T) {
		args, err := ParseArguments(nil)
		require.NoError(t, err)
		require.Empty(t, args)

		args, err = ParseArguments(&mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{}})
		require.NoError(t, err)
		require.Empty(t, args)

		args, err = ParseArguments(&mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: []byte(`null`)}})
		require.NoError(t, err)
		require.NotNil(t, args)
	})

	t.Run("valid arguments are parsed", func(t *testing.T) {
		req := &mcp.CallToolRequest{
			Params: &mcp.CallToolParamsRaw{
				Arguments: []byte(`{"sql":"select 1 from dual","limit":3}`),
			},
		}

		args, err := ParseArguments(req)
		require.NoError(t, err)
		require.Equal(t, "select 1 from dual", args["sql"])
		require.Equal(t, float64(3), args["limit"])
	})

	t.Run("invalid json returns wrapped error", func(t *testing.T) {
		req := &mcp.CallToolRequest{
			Params: &mcp.CallToolParamsRaw{
				Arguments: []byte(`{"sql":`),
			},
		}

		args, err := ParseArguments(req)
		require.Error(t, err)
		require.Nil(t, args)
		require.Contains(t, err.Error(), "failed to unmarshal arguments")
	})
}

func TestSelectedTable(t *testing.T) {
	tests := []struct {
		sql   string
		table string
		ok    bool
	}{
		{sql: "select * from customers", table: "CUSTOMERS", ok: true},
		{sql: "  SELECT id FROM orders;", table: "ORDERS", ok: true},
		{sql: "select 1", ok: false},
		{sql: "delete from customers", ok: false},
		{sql: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			table, ok := selectedTable(tt.sql)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.table, table)
		})
	}
}
