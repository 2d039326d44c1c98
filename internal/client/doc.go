// Package client wires the layers of a stdio tool-server connection together.
//
// A Client launches the server process through the subprocess transport,
// runs the handshake on a protocol.Session, and serves discovery and tool
// calls through tools.Registry and tools.Dispatcher. A background watcher,
// managed with an errgroup, closes the session when the process exits; the
// registry is discarded at that point so no descriptor outlives its server.
package client
