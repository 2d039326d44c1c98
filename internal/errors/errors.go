package errors

import (
	"errors"
	"fmt"
	"time"
)

// MCPClientError is the base interface for all client errors.
type MCPClientError interface {
	error
	IsMCPClientError() bool
}

// Compile-time verification that all error types implement MCPClientError.
var (
	_ MCPClientError = (*LaunchError)(nil)
	_ MCPClientError = (*ProcessError)(nil)
	_ MCPClientError = (*ProtocolDecodeError)(nil)
	_ MCPClientError = (*ProtocolVersionMismatchError)(nil)
	_ MCPClientError = (*TimeoutError)(nil)
	_ MCPClientError = (*RPCError)(nil)
	_ MCPClientError = (*ToolExecutionError)(nil)
	_ MCPClientError = (*DiscoveryError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrClientClosed indicates the client has been closed and cannot be reused.
	ErrClientClosed = errors.New("client closed: clients are single-use, create a new one with NewClient()")

	// ErrClientAlreadyStarted indicates Start was called twice.
	ErrClientAlreadyStarted = errors.New("client already started")

	// ErrTransportNotConnected indicates the transport has not been started.
	ErrTransportNotConnected = errors.New("transport not connected")

	// ErrTransportClosed indicates the server process exited or its streams closed.
	// It is fatal for every pending and future call on the session.
	ErrTransportClosed = errors.New("transport closed")

	// ErrSessionNotReady indicates a call was attempted before the handshake
	// completed or after the session closed.
	ErrSessionNotReady = errors.New("session not ready")

	// ErrToolCallTimeout indicates no response arrived within the caller's deadline.
	ErrToolCallTimeout = errors.New("tool call timeout")

	// ErrUnknownTool indicates a lookup or call by an unregistered tool name.
	ErrUnknownTool = errors.New("unknown tool")
)

// LaunchError indicates the server executable could not be started.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %q: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// IsMCPClientError implements MCPClientError.
func (e *LaunchError) IsMCPClientError() bool { return true }

// ProcessError indicates the server process exited with a failure.
// It matches ErrTransportClosed.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("server process exited (exit %d): %s", e.ExitCode, e.Stderr)
	}

	if e.Err != nil {
		return fmt.Sprintf("server process exited (exit %d): %v", e.ExitCode, e.Err)
	}

	return fmt.Sprintf("server process exited (exit %d)", e.ExitCode)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrTransportClosed.
func (e *ProcessError) Is(target error) bool {
	return target == ErrTransportClosed
}

// IsMCPClientError implements MCPClientError.
func (e *ProcessError) IsMCPClientError() bool { return true }

// ProtocolDecodeError indicates one output line was not a JSON object.
// This error preserves the original raw data that failed to parse.
type ProtocolDecodeError struct {
	RawData string
	Err     error
}

func (e *ProtocolDecodeError) Error() string {
	return fmt.Sprintf("failed to decode protocol message: %v", e.Err)
}

func (e *ProtocolDecodeError) Unwrap() error {
	return e.Err
}

// IsMCPClientError implements MCPClientError.
func (e *ProtocolDecodeError) IsMCPClientError() bool { return true }

// ProtocolVersionMismatchError indicates the server offered a protocol version
// the client does not accept.
type ProtocolVersionMismatchError struct {
	Requested string
	Offered   string
}

func (e *ProtocolVersionMismatchError) Error() string {
	return fmt.Sprintf("protocol version mismatch: requested %q, server offered %q", e.Requested, e.Offered)
}

// IsMCPClientError implements MCPClientError.
func (e *ProtocolVersionMismatchError) IsMCPClientError() bool { return true }

// TimeoutError indicates a request received no response in time.
// It matches ErrToolCallTimeout.
type TimeoutError struct {
	Method  string
	ID      int64
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %q (id %d) timed out after %s", e.Method, e.ID, e.Timeout)
}

// Is reports whether target is ErrToolCallTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrToolCallTimeout
}

// IsMCPClientError implements MCPClientError.
func (e *TimeoutError) IsMCPClientError() bool { return true }

// RPCError is the error member of a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsMCPClientError implements MCPClientError.
func (e *RPCError) IsMCPClientError() bool { return true }

// ToolExecutionError indicates the server reported a failure executing a tool.
// Message is the server's text, verbatim.
type ToolExecutionError struct {
	Tool    string
	Code    int
	Message string
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %s", e.Tool, e.Message)
}

// IsMCPClientError implements MCPClientError.
func (e *ToolExecutionError) IsMCPClientError() bool { return true }

// DiscoveryError indicates tools/list failed; the previous tool set is kept.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("tool discovery failed: %v", e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// IsMCPClientError implements MCPClientError.
func (e *DiscoveryError) IsMCPClientError() bool { return true }
