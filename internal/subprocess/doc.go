// Package subprocess provides the stdio transport for MCP tool servers.
//
// This package implements the Transport interface by spawning the server as a
// child process and exchanging line-delimited JSON-RPC messages over its
// stdin and stdout. Stderr is drained continuously and logged. It handles
// process lifecycle management, line buffering, and staged shutdown.
package subprocess
