package mcptest

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	jsonrpcVersion = "2.0"

	// maxLineSize bounds one incoming message.
	maxLineSize = 1024 * 1024

	// LatestProtocolVersion is offered when the client asks for a version
	// the server does not know.
	LatestProtocolVersion = "2025-06-18"
)

// knownProtocolVersions are echoed back when a client requests them.
var knownProtocolVersions = []string{"2024-11-05", "2025-03-26", LatestProtocolVersion}

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Error is a JSON-RPC error. A tool handler that returns an *Error gets an
// error reply instead of an isError result.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// ExitError is returned by Serve when the server was told to exit after a
// number of tool calls.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("server exiting with code %d", e.Code)
}

// wireMessage is any JSON-RPC message in either direction.
type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Servers log to a discard logger by default.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithProtocolVersion makes the server offer version regardless of what the
// client requests.
func WithProtocolVersion(version string) Option {
	return func(s *Server) { s.protocolVersion = version }
}

// WithPageSize splits tools/list into pages of n tools.
func WithPageSize(n int) Option {
	return func(s *Server) { s.pageSize = n }
}

// WithBanner writes line to the output before serving, the way some
// servers print a startup banner on stdout.
func WithBanner(line string) Option {
	return func(s *Server) { s.banner = line }
}

// WithExitAfterCalls makes Serve return an *ExitError with code when the
// n-th tools/call arrives, leaving every received call unanswered.
func WithExitAfterCalls(n, code int) Option {
	return func(s *Server) {
		s.exitAfterCalls = n
		s.exitCode = code
	}
}

// WithInstructions sets the instructions returned from initialize.
func WithInstructions(text string) Option {
	return func(s *Server) { s.instructions = text }
}

// Server is a line-oriented MCP server with a tool registry.
type Server struct {
	log          *slog.Logger
	name         string
	version      string
	instructions string

	protocolVersion string
	pageSize        int
	banner          string
	exitAfterCalls  int
	exitCode        int

	mu    sync.RWMutex
	tools map[string]*registeredTool
	order []string

	writeMu sync.Mutex
	out     io.Writer

	inFlightMu sync.Mutex
	inFlight   map[string]context.CancelFunc

	pendingMu sync.Mutex
	pending   map[string]chan *wireMessage

	calls       atomic.Int32
	nextID      atomic.Int64
	initialized atomic.Bool
}

// registeredTool holds tool metadata and handler.
type registeredTool struct {
	tool    *mcp.Tool
	handler mcp.ToolHandler
}

// NewServer creates a server with no tools.
func NewServer(name, version string, opts ...Option) *Server {
	s := &Server{
		log:      slog.New(slog.DiscardHandler),
		name:     name,
		version:  version,
		tools:    make(map[string]*registeredTool, 8),
		inFlight: make(map[string]context.CancelFunc),
		pending:  make(map[string]chan *wireMessage),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.log = s.log.With("component", "mcptest", "server", name)

	return s
}

// Name returns the server name.
func (s *Server) Name() string {
	return s.name
}

// Version returns the server version.
func (s *Server) Version() string {
	return s.version
}

// AddTool registers a tool, replacing any tool with the same name. Clients
// of a running server are told the list changed.
func (s *Server) AddTool(tool *mcp.Tool, handler mcp.ToolHandler) {
	s.mu.Lock()

	if _, exists := s.tools[tool.Name]; !exists {
		s.order = append(s.order, tool.Name)
	}

	s.tools[tool.Name] = &registeredTool{tool: tool, handler: handler}
	s.mu.Unlock()

	s.toolsChanged()
}

// RemoveTool unregisters a tool.
func (s *Server) RemoveTool(name string) {
	s.mu.Lock()

	if _, exists := s.tools[name]; !exists {
		s.mu.Unlock()

		return
	}

	delete(s.tools, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	s.mu.Unlock()

	s.toolsChanged()
}

func (s *Server) toolsChanged() {
	if !s.initialized.Load() {
		return
	}

	if err := s.notify("notifications/tools/list_changed", nil); err != nil {
		s.log.Debug("Could not announce tool change", "error", err)
	}
}

// ListTools returns every registered tool in registration order.
func (s *Server) ListTools() []*mcp.Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*mcp.Tool, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tools[name].tool)
	}

	return out
}

// CallTool executes a tool by name and returns the wire result.
//
// A Go error from the handler becomes an isError result; an *Error is
// returned to the caller unchanged.
func (s *Server) CallTool(ctx context.Context, name string, arguments json.RawMessage) (map[string]any, error) {
	s.mu.RLock()
	t, exists := s.tools[name]
	s.mu.RUnlock()

	if !exists {
		return nil, &Error{Code: CodeInvalidParams, Message: "Unknown tool: " + name}
	}

	req := &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{
			Name:      name,
			Arguments: arguments,
		},
	}

	result, err := t.handler(ctx, req)
	if err != nil {
		if rpcErr, ok := stderrors.AsType[*Error](err); ok {
			return nil, rpcErr
		}

		return wireResult(ErrorResult("Tool execution failed: " + err.Error())), nil
	}

	return wireResult(result), nil
}

// Serve reads requests from r and writes replies to w until r ends.
//
// Tool calls run concurrently and are answered in completion order. When r
// ends, running calls are cancelled and Serve waits for them.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.writeMu.Lock()
	s.out = w
	s.writeMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup

	defer func() {
		cancel()
		wg.Wait()
	}()

	if s.banner != "" {
		if err := s.writeLine([]byte(s.banner)); err != nil {
			return err
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg wireMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			s.log.Warn("Unparseable message", "error", err)
			s.replyError(json.RawMessage("null"), CodeParseError, "Parse error")

			continue
		}

		switch {
		case msg.Method == "" && len(msg.ID) > 0:
			s.handleResponse(&msg)
		case len(msg.ID) == 0:
			s.handleNotification(&msg)
		case msg.Method == "tools/call":
			if n := int(s.calls.Add(1)); s.exitAfterCalls > 0 && n >= s.exitAfterCalls {
				s.log.Info("Exiting with calls in flight", "calls", n, "code", s.exitCode)

				return &ExitError{Code: s.exitCode}
			}

			// Tracked before the handler starts so an immediate cancellation is not lost.
			callCtx, untrack := s.track(ctx, msg.ID)

			wg.Go(func() {
				defer untrack()

				s.handleCall(callCtx, &msg)
			})
		default:
			s.handleRequest(&msg)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read requests: %w", err)
	}

	return nil
}

// handleRequest answers every request except tools/call.
func (s *Server) handleRequest(msg *wireMessage) {
	switch msg.Method {
	case "initialize":
		s.handleInitialize(msg)
	case "ping":
		s.reply(msg.ID, map[string]any{})
	case "tools/list":
		s.handleListTools(msg)
	default:
		s.replyError(msg.ID, CodeMethodNotFound, "Method not found: "+msg.Method)
	}
}

func (s *Server) handleInitialize(msg *wireMessage) {
	var params mcp.InitializeParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			s.replyError(msg.ID, CodeInvalidParams, "invalid initialize params: "+err.Error())

			return
		}
	}

	version := s.protocolVersion
	if version == "" {
		version = LatestProtocolVersion
		if slices.Contains(knownProtocolVersions, params.ProtocolVersion) {
			version = params.ProtocolVersion
		}
	}

	attrs := []any{"requested", params.ProtocolVersion, "offered", version}
	if params.ClientInfo != nil {
		attrs = append(attrs, "client", params.ClientInfo.Name)
	}

	s.log.Info("Initialize", attrs...)

	s.reply(msg.ID, &mcp.InitializeResult{
		ProtocolVersion: version,
		ServerInfo:      &mcp.Implementation{Name: s.name, Version: s.version},
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: true},
		},
		Instructions: s.instructions,
	})
}

func (s *Server) handleListTools(msg *wireMessage) {
	var params mcp.ListToolsParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			s.replyError(msg.ID, CodeInvalidParams, "invalid tools/list params: "+err.Error())

			return
		}
	}

	tools := s.ListTools()

	start := 0

	if params.Cursor != "" {
		n, err := strconv.Atoi(params.Cursor)
		if err != nil || n < 0 || n > len(tools) {
			s.replyError(msg.ID, CodeInvalidParams, "invalid cursor: "+params.Cursor)

			return
		}

		start = n
	}

	end := len(tools)
	if s.pageSize > 0 {
		end = min(start+s.pageSize, len(tools))
	}

	result := &mcp.ListToolsResult{Tools: tools[start:end]}
	if end < len(tools) {
		result.NextCursor = strconv.Itoa(end)
	}

	s.reply(msg.ID, result)
}

// track registers a cancellable context for an in-flight call.
func (s *Server) track(ctx context.Context, id json.RawMessage) (context.Context, func()) {
	key := string(id)
	callCtx, cancel := context.WithCancel(ctx)

	s.inFlightMu.Lock()
	s.inFlight[key] = cancel
	s.inFlightMu.Unlock()

	return callCtx, func() {
		s.inFlightMu.Lock()
		delete(s.inFlight, key)
		s.inFlightMu.Unlock()

		cancel()
	}
}

// handleCall runs one tool call. Cancelled calls get no reply.
func (s *Server) handleCall(callCtx context.Context, msg *wireMessage) {
	var params mcp.CallToolParamsRaw
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.replyError(msg.ID, CodeInvalidParams, "invalid tools/call params: "+err.Error())

		return
	}

	key := string(msg.ID)

	s.log.Debug("Tool call", "id", key, "tool", params.Name)

	result, err := s.CallTool(callCtx, params.Name, params.Arguments)

	if callCtx.Err() != nil {
		s.log.Debug("Tool call cancelled", "id", key, "tool", params.Name)

		return
	}

	if err != nil {
		rpcErr, ok := stderrors.AsType[*Error](err)
		if !ok {
			rpcErr = &Error{Code: CodeInternalError, Message: err.Error()}
		}

		s.replyError(msg.ID, rpcErr.Code, rpcErr.Message)

		return
	}

	s.reply(msg.ID, result)
}

func (s *Server) handleNotification(msg *wireMessage) {
	switch msg.Method {
	case "notifications/initialized":
		s.initialized.Store(true)

		if err := s.Log("info", "ready"); err != nil {
			s.log.Debug("Could not send log notification", "error", err)
		}
	case "notifications/cancelled":
		var params struct {
			RequestID json.RawMessage `json:"requestId"`
			Reason    string          `json:"reason"`
		}

		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return
		}

		s.inFlightMu.Lock()
		cancel, ok := s.inFlight[string(params.RequestID)]
		s.inFlightMu.Unlock()

		if ok {
			s.log.Debug("Client cancelled call", "id", string(params.RequestID), "reason", params.Reason)
			cancel()
		}
	default:
		s.log.Debug("Ignoring notification", "method", msg.Method)
	}
}

// handleResponse delivers a client reply to a server-initiated request.
func (s *Server) handleResponse(msg *wireMessage) {
	key := string(msg.ID)

	s.pendingMu.Lock()
	ch, ok := s.pending[key]
	delete(s.pending, key)
	s.pendingMu.Unlock()

	if !ok {
		s.log.Warn("Unexpected response", "id", key)

		return
	}

	ch <- msg
}

// PingClient sends a ping request to the client and waits for the reply.
func (s *Server) PingClient(ctx context.Context) error {
	id := fmt.Sprintf(`"srv-%d"`, s.nextID.Add(1))
	ch := make(chan *wireMessage, 1)

	s.pendingMu.Lock()
	s.pending[id] = ch
	s.pendingMu.Unlock()

	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	if err := s.write(&wireMessage{JSONRPC: jsonrpcVersion, ID: json.RawMessage(id), Method: "ping"}); err != nil {
		return err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Log sends a notifications/message to the client.
func (s *Server) Log(level mcp.LoggingLevel, data any) error {
	return s.notify("notifications/message", map[string]any{
		"level":  level,
		"logger": s.name,
		"data":   data,
	})
}

func (s *Server) notify(method string, params any) error {
	msg := &wireMessage{JSONRPC: jsonrpcVersion, Method: method}

	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", method, err)
		}

		msg.Params = data
	}

	return s.write(msg)
}

func (s *Server) reply(id json.RawMessage, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		s.replyError(id, CodeInternalError, "marshal result: "+err.Error())

		return
	}

	if err := s.write(&wireMessage{JSONRPC: jsonrpcVersion, ID: id, Result: data}); err != nil {
		s.log.Debug("Could not write reply", "error", err)
	}
}

func (s *Server) replyError(id json.RawMessage, code int, message string) {
	if err := s.write(&wireMessage{JSONRPC: jsonrpcVersion, ID: id, Error: &Error{Code: code, Message: message}}); err != nil {
		s.log.Debug("Could not write error reply", "error", err)
	}
}

func (s *Server) write(msg *wireMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return s.writeLine(data)
}

// writeLine writes one newline-terminated line under the write lock.
func (s *Server) writeLine(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.out == nil {
		return stderrors.New("server is not serving")
	}

	line := make([]byte, 0, len(data)+1)
	line = append(line, data...)
	line = append(line, '\n')

	if _, err := s.out.Write(line); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	return nil
}
