// Package mcptest implements a small MCP server that speaks JSON-RPC over a
// pair of line streams.
//
// It backs the end-to-end tests of the client: a test binary re-executes
// itself and calls Main, which serves the database fixture on stdin and
// stdout. Behavior that real servers exhibit only occasionally (banner lines
// on stdout, a foreign protocol version, paginated listings, crashing with
// requests in flight) is switched on through environment variables so the
// parent test can choose it per process.
package mcptest
