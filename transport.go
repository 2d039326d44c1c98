package mcpstdio

import "github.com/wagiedev/mcpstdio/internal/config"

// Transport defines the interface for exchanging messages with a tool server.
// Implement this to provide custom transports for testing, mocking,
// or servers that are not launched as a child process.
//
// The default implementation spawns the server as a subprocess.
// Custom transports can be injected via WithTransport.
type Transport = config.Transport
