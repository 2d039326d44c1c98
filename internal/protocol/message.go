package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/wagiedev/mcpstdio/internal/errors"
)

const jsonrpcVersion = "2.0"

// JSON-RPC error codes used in replies to server requests.
const (
	codeMethodNotFound = -32601
	codeInternalError  = -32603
)

// Request is an outgoing JSON-RPC request.
//
// Wire format:
//
//	{"jsonrpc": "2.0", "id": 7, "method": "tools/call", "params": {...}}
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Notification is an outgoing JSON-RPC notification. It has no id and
// receives no reply.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is a server reply matched to one of our requests.
type Response struct {
	ID     int64
	Result any
	Error  *errors.RPCError
}

// Decode unmarshals the result into v.
func (r *Response) Decode(v any) error {
	data, err := json.Marshal(r.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}

	return nil
}

// IncomingRequest is a request initiated by the server.
type IncomingRequest struct {
	// ID is echoed back verbatim in the reply.
	ID     any
	Method string
	Params map[string]any
}

// RequestHandler answers a server-initiated request.
//
// Returning an *errors.RPCError sends that error; any other error is sent as
// an internal error. The context is cancelled if the server sends
// notifications/cancelled for the request.
type RequestHandler func(ctx context.Context, req *IncomingRequest) (any, error)

// NotificationHandler observes a server notification. Handlers run on the
// read loop and must not block.
type NotificationHandler func(method string, params map[string]any)

// outgoingResponse is our reply to a server-initiated request.
type outgoingResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      any              `json:"id"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *errors.RPCError `json:"error,omitempty"`
}

// parseID converts a decoded JSON id to the integer form we issue.
func parseID(v any) (int64, bool) {
	switch id := v.(type) {
	case float64:
		if id != math.Trunc(id) || id < math.MinInt64 || id > math.MaxInt64 {
			return 0, false
		}

		return int64(id), true
	case json.Number:
		n, err := id.Int64()

		return n, err == nil
	case string:
		n, err := strconv.ParseInt(id, 10, 64)

		return n, err == nil
	case int64:
		return id, true
	case int:
		return int64(id), true
	default:
		return 0, false
	}
}

// parseRPCError reads the error member of a response.
func parseRPCError(v any) *errors.RPCError {
	m, ok := v.(map[string]any)
	if !ok {
		return &errors.RPCError{Code: codeInternalError, Message: fmt.Sprint(v)}
	}

	rpcErr := &errors.RPCError{Code: codeInternalError, Data: m["data"]}

	if code, ok := m["code"].(float64); ok {
		rpcErr.Code = int(code)
	}

	if msg, ok := m["message"].(string); ok {
		rpcErr.Message = msg
	}

	return rpcErr
}
