package mcpstdio

import "context"

// Client connects to one tool server over its standard input and output.
//
// Start launches the server and performs the handshake. Discover lists the
// server's tools and normalizes their parameter schemas; CallTool invokes
// them. When the server process exits every outstanding call fails with an
// error matching ErrTransportClosed, the discovered tools are discarded, and
// later calls fail with ErrSessionNotReady.
//
// Lifecycle: Clients are single-use. After Close(), create a new client with NewClient().
//
// Example usage:
//
//	client := NewClient()
//	defer client.Close()
//
//	err := client.Start(ctx,
//	    WithCommand("sql", "-mcp"),
//	    WithEnv(map[string]string{"TNS_ADMIN": walletDir}),
//	    WithLogger(slog.Default()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	tools, err := client.Discover(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, tool := range tools {
//	    fmt.Println(tool.Name, tool.Schema)
//	}
//
//	text, err := client.CallTool(ctx, "run-sql", map[string]any{"sql": "select 1 from dual"})
type Client interface {
	// Start launches the server and completes the handshake.
	// Must be called before any other methods.
	// Returns LaunchError if the server cannot be started and
	// ProtocolVersionMismatchError if its protocol version is not accepted.
	Start(ctx context.Context, opts ...Option) error

	// Discover lists the server's tools, following pagination, and replaces
	// the known set with them. The previous set is kept if discovery fails.
	Discover(ctx context.Context) ([]*ToolDescriptor, error)

	// Tools returns the descriptors from the last successful Discover.
	Tools() []*ToolDescriptor

	// Lookup returns the descriptor for a discovered tool.
	// Returns an error matching ErrUnknownTool for other names.
	Lookup(name string) (*ToolDescriptor, error)

	// Stale reports whether the server announced a tool list change since
	// the last Discover.
	Stale() bool

	// CallTool invokes a discovered tool and returns the text of its first
	// text content item, or EmptyResultMessage when there is none.
	// Tool-reported failures are returned as ToolExecutionError.
	CallTool(ctx context.Context, name string, arguments map[string]any) (string, error)

	// Call invokes a discovered tool and returns every content item.
	Call(ctx context.Context, name string, arguments map[string]any) (*ToolResult, error)

	// Ping checks that the server is responsive.
	Ping(ctx context.Context) error

	// ServerInfo returns the name and version the server reported.
	ServerInfo() *Implementation

	// Instructions returns the usage instructions the server sent, if any.
	Instructions() string

	// ProtocolVersion returns the protocol version agreed with the server.
	ProtocolVersion() string

	// Done returns a channel that is closed when the session ends.
	Done() <-chan struct{}

	// Err returns why the session ended, or nil while it is usable.
	Err() error

	// Close ends the session and stops the server process.
	// After Close(), the client cannot be reused. Safe to call multiple times.
	Close() error
}

// NewClient creates a new client.
//
// Call Start() with options to launch the server:
//
//	client := NewClient()
//	err := client.Start(ctx,
//	    WithCommand("sql", "-mcp"),
//	    WithLogger(slog.Default()),
//	)
func NewClient() Client {
	return newClientImpl()
}
