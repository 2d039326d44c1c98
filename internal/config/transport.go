// Package config provides configuration types for the MCP stdio client.
package config

import "context"

// Transport defines the interface for exchanging JSON-RPC messages with a
// tool server. Implement this to provide custom transports for testing,
// mocking, or servers reached other than through a child process.
//
// The default implementation spawns the server as a subprocess and speaks
// line-delimited JSON over its stdin and stdout.
// Custom transports can be injected via Options.Transport.
type Transport interface {
	// Start launches the server and prepares it for communication.
	// This is called before any messages are sent or received.
	Start(ctx context.Context) error

	// ReadMessages returns channels for receiving messages and errors.
	// The message channel yields one decoded JSON object per line.
	// The error channel yields decode errors, which are not fatal, and the
	// final process error. Both channels are closed when the stream ends.
	ReadMessages(ctx context.Context) (<-chan map[string]any, <-chan error)

	// SendMessage writes one JSON message followed by a newline.
	// This method must be safe for concurrent use.
	SendMessage(ctx context.Context, data []byte) error

	// Close terminates the server and releases resources.
	// It's safe to call Close multiple times.
	Close() error

	// IsReady returns true if the transport is ready for communication.
	IsReady() bool

	// EndInput closes the server's stdin.
	EndInput() error
}
