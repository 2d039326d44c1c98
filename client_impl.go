package mcpstdio

import (
	"context"

	"github.com/wagiedev/mcpstdio/internal/client"
)

// clientWrapper wraps the internal client to adapt it to the public interface.
type clientWrapper struct {
	impl *client.Client
}

// Compile-time check that *clientWrapper implements the Client interface.
var _ Client = (*clientWrapper)(nil)

// newClientImpl creates the internal client implementation.
func newClientImpl() Client {
	return &clientWrapper{impl: client.New()}
}

// Start launches the server and completes the handshake.
func (c *clientWrapper) Start(ctx context.Context, opts ...Option) error {
	return c.impl.Start(ctx, applyOptions(opts))
}

// Discover lists the server's tools.
func (c *clientWrapper) Discover(ctx context.Context) ([]*ToolDescriptor, error) {
	return c.impl.Discover(ctx)
}

// Tools returns the descriptors from the last successful Discover.
func (c *clientWrapper) Tools() []*ToolDescriptor {
	return c.impl.Tools()
}

// Lookup returns the descriptor for a discovered tool.
func (c *clientWrapper) Lookup(name string) (*ToolDescriptor, error) {
	return c.impl.Lookup(name)
}

// Stale reports whether the tool list changed since the last Discover.
func (c *clientWrapper) Stale() bool {
	return c.impl.Stale()
}

// CallTool invokes a discovered tool and returns its first text item.
func (c *clientWrapper) CallTool(ctx context.Context, name string, arguments map[string]any) (string, error) {
	return c.impl.CallTool(ctx, name, arguments)
}

// Call invokes a discovered tool and returns every content item.
func (c *clientWrapper) Call(ctx context.Context, name string, arguments map[string]any) (*ToolResult, error) {
	return c.impl.Call(ctx, name, arguments)
}

// Ping checks that the server is responsive.
func (c *clientWrapper) Ping(ctx context.Context) error {
	return c.impl.Ping(ctx)
}

// ServerInfo returns the name and version the server reported.
func (c *clientWrapper) ServerInfo() *Implementation {
	return c.impl.ServerInfo()
}

// Instructions returns the usage instructions the server sent.
func (c *clientWrapper) Instructions() string {
	return c.impl.Instructions()
}

// ProtocolVersion returns the agreed protocol version.
func (c *clientWrapper) ProtocolVersion() string {
	return c.impl.ProtocolVersion()
}

// Done returns a channel that is closed when the session ends.
func (c *clientWrapper) Done() <-chan struct{} {
	return c.impl.Done()
}

// Err returns why the session ended.
func (c *clientWrapper) Err() error {
	return c.impl.Err()
}

// Close ends the session and stops the server process.
func (c *clientWrapper) Close() error {
	return c.impl.Close()
}
