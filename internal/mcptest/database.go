package mcptest

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool names served by NewDatabaseServer.
const (
	ToolListConnections   = "list-connections"
	ToolConnect           = "connect"
	ToolDisconnect        = "disconnect"
	ToolRunSQL            = "run-sql"
	ToolSchemaInformation = "schema-information"
	ToolPrintEnv          = "print-env"
	ToolSlowQuery         = "slow-query"
	ToolExportReport      = "export-report"
	ToolPingClient        = "ping-client"
	ToolRefreshCatalog    = "refresh-catalog"
)

// database is the state behind the fixture tools.
type database struct {
	mu          sync.Mutex
	connections []string
	current     string
	tables      map[string][]string
}

// NewDatabaseServer returns a server whose tools imitate a SQL command-line
// tool exposed over MCP. Its schemas include the shapes that trip up strict
// function-calling consumers: a variant list placed inside properties,
// array parameters without usable items, and type lists.
func NewDatabaseServer(opts ...Option) *Server {
	s := NewServer("mcptest-db", "1.0.0", opts...)

	db := &database{
		connections: []string{"ADMIN@FREEPDB1", "SALES@FREEPDB1"},
		tables: map[string][]string{
			"CUSTOMERS": {"ID", "NAME", "REGION"},
			"ORDERS":    {"ID", "CUSTOMER_ID", "TOTAL", "PLACED_AT"},
		},
	}

	s.AddTool(NewTool(ToolListConnections, "Lists the saved database connections", &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{},
	}), db.listConnections)

	s.AddTool(NewTool(ToolConnect, "Opens a saved connection", SimpleSchema(map[string]string{
		"connection_name": "string",
	})), db.connect)

	s.AddTool(NewTool(ToolDisconnect, "Closes the current connection", nil), db.disconnect)

	s.AddTool(&mcp.Tool{
		Name:        ToolRunSQL,
		Title:       "Run SQL",
		Description: "Runs a SQL statement on the current connection and returns CSV",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sql": map[string]any{"type": "string", "description": "The SQL statement to run"},
				"oneOf": []any{
					map[string]any{
						"properties": map[string]any{
							"max_rows": map[string]any{"type": "integer", "format": "int32", "description": "Row limit"},
						},
					},
					map[string]any{
						"properties": map[string]any{
							"fetch_all": map[string]any{"type": "boolean"},
						},
					},
				},
			},
			"required": []any{"sql"},
			"$schema":  "http://json-schema.org/draft-07/schema#",
		},
		Annotations: &mcp.ToolAnnotations{Title: "Run SQL"},
	}, db.runSQL)

	s.AddTool(NewTool(ToolSchemaInformation, "Describes the tables of the current connection", map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}), db.schemaInformation)

	s.AddTool(NewTool(ToolPrintEnv, "Prints an environment variable of the server process", SimpleSchema(map[string]string{
		"name": "string",
	})), printEnv)

	s.AddTool(NewTool(ToolSlowQuery, "Runs a query that takes the given number of milliseconds", SimpleSchema(map[string]string{
		"millis": "int",
	})), slowQuery)

	s.AddTool(NewTool(ToolExportReport, "Exports query results to a report file", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"columns": map[string]any{
				"type":        "array",
				"description": "Columns to include",
			},
			"format": map[string]any{
				"type":    []any{"string", "null"},
				"enum":    []any{"csv", "json"},
				"default": "csv",
			},
			"since": map[string]any{
				"type":   "string",
				"format": "date-time",
			},
			"destination": map[string]any{
				"anyOf": []any{
					map[string]any{
						"type":       "object",
						"properties": map[string]any{"path": map[string]any{"type": "string"}},
						"required":   []any{"path"},
					},
					map[string]any{
						"type":       "object",
						"properties": map[string]any{"bucket": map[string]any{"type": "string"}},
						"required":   []any{"bucket"},
					},
				},
			},
		},
		"examples": []any{map[string]any{"columns": []any{"ID"}}},
		"$defs":    map[string]any{"unused": map[string]any{"type": "string"}},
	}), exportReport)

	s.AddTool(NewTool(ToolPingClient, "Pings the client and reports the round trip", nil),
		func(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			start := time.Now()
			if err := s.PingClient(ctx); err != nil {
				return nil, fmt.Errorf("ping client: %w", err)
			}

			return TextResult(fmt.Sprintf("pong after %s", time.Since(start).Round(time.Millisecond))), nil
		})

	s.AddTool(NewTool(ToolRefreshCatalog, "Reloads the tool catalog", nil),
		func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			s.AddTool(NewTool(ToolDisconnect, "Closes the current connection", nil), db.disconnect)

			return TextResult("catalog refreshed"), nil
		})

	return s
}

func (db *database) listConnections(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	return TextResult(strings.Join(db.connections, "\n")), nil
}

func (db *database) connect(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := ParseArguments(req)
	if err != nil {
		return nil, err
	}

	name, _ := args["connection_name"].(string)

	db.mu.Lock()
	defer db.mu.Unlock()

	if !slices.Contains(db.connections, name) {
		return ErrorResult(fmt.Sprintf("Connection %q does not exist.", name)), nil
	}

	db.current = name

	return TextResult("Connected to " + name), nil
}

func (db *database) disconnect(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.current == "" {
		return ErrorResult("Not connected."), nil
	}

	name := db.current
	db.current = ""

	return TextResult("Disconnected from " + name), nil
}

func (db *database) runSQL(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := ParseArguments(req)
	if err != nil {
		return nil, err
	}

	sql, _ := args["sql"].(string)
	if strings.TrimSpace(sql) == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "sql is required"}
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.current == "" {
		return ErrorResult("Not connected. Use the connect tool first."), nil
	}

	table, ok := selectedTable(sql)
	if !ok {
		return TextResult("Statement executed."), nil
	}

	columns, exists := db.tables[table]
	if !exists {
		return nil, &Error{Code: -32000, Message: "ORA-00942: table or view does not exist"}
	}

	return TextResult(strings.Join(columns, ",") + "\n"), nil
}

// selectedTable returns the table of a "select ... from <table>" statement.
func selectedTable(sql string) (string, bool) {
	fields := strings.Fields(strings.ToUpper(strings.TrimSuffix(strings.TrimSpace(sql), ";")))
	if len(fields) == 0 || fields[0] != "SELECT" {
		return "", false
	}

	i := slices.Index(fields, "FROM")
	if i < 0 || i+1 >= len(fields) {
		return "", false
	}

	return fields[i+1], true
}

func (db *database) schemaInformation(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.current == "" {
		return ErrorResult("Not connected."), nil
	}

	var b strings.Builder

	for _, table := range slices.Sorted(maps.Keys(db.tables)) {
		fmt.Fprintf(&b, "%s(%s)\n", table, strings.Join(db.tables[table], ", "))
	}

	return TextResult(b.String()), nil
}

func printEnv(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := ParseArguments(req)
	if err != nil {
		return nil, err
	}

	name, _ := args["name"].(string)

	value, ok := os.LookupEnv(name)
	if !ok {
		return ErrorResult(name + " is not set"), nil
	}

	return TextResult(value), nil
}

func slowQuery(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := ParseArguments(req)
	if err != nil {
		return nil, err
	}

	millis, _ := args["millis"].(float64)

	select {
	case <-time.After(time.Duration(millis) * time.Millisecond):
		return TextResult(fmt.Sprintf("query finished after %dms", int(millis))), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func exportReport(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := ParseArguments(req)
	if err != nil {
		return nil, err
	}

	columns, _ := args["columns"].(string)
	if columns == "" {
		columns = "*"
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "exported " + columns},
			&mcp.ImageContent{Data: []byte("chart"), MIMEType: "image/png"},
		},
	}, nil
}
