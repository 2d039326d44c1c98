package mcpstdio

import "github.com/wagiedev/mcpstdio/internal/errors"

// Re-export error types from internal package

// MCPClientError is the base interface for all client errors.
type MCPClientError = errors.MCPClientError

// LaunchError indicates the server process could not be started.
type LaunchError = errors.LaunchError

// ProcessError indicates the server process exited. It matches ErrTransportClosed.
type ProcessError = errors.ProcessError

// ProtocolDecodeError indicates a line from the server was not a JSON object.
type ProtocolDecodeError = errors.ProtocolDecodeError

// ProtocolVersionMismatchError indicates the server answered initialize with
// a protocol version the client does not accept.
type ProtocolVersionMismatchError = errors.ProtocolVersionMismatchError

// TimeoutError indicates a request got no response in time. It matches ErrToolCallTimeout.
type TimeoutError = errors.TimeoutError

// RPCError is a JSON-RPC error response from the server.
type RPCError = errors.RPCError

// ToolExecutionError indicates the server ran a tool and the tool reported failure.
type ToolExecutionError = errors.ToolExecutionError

// DiscoveryError indicates tools/list failed or returned an unusable tool.
type DiscoveryError = errors.DiscoveryError

// Re-export sentinel errors from internal package.
var (
	// ErrClientClosed indicates the client has been closed and cannot be reused.
	ErrClientClosed = errors.ErrClientClosed

	// ErrClientAlreadyStarted indicates Start was called twice.
	ErrClientAlreadyStarted = errors.ErrClientAlreadyStarted

	// ErrTransportNotConnected indicates the transport is not connected.
	ErrTransportNotConnected = errors.ErrTransportNotConnected

	// ErrTransportClosed indicates the server process exited or its streams closed.
	ErrTransportClosed = errors.ErrTransportClosed

	// ErrSessionNotReady indicates the handshake has not completed or the session ended.
	ErrSessionNotReady = errors.ErrSessionNotReady

	// ErrToolCallTimeout indicates a request timed out.
	ErrToolCallTimeout = errors.ErrToolCallTimeout

	// ErrUnknownTool indicates a tool name that discovery did not return.
	ErrUnknownTool = errors.ErrUnknownTool
)
