// Package errors defines error types for the MCP stdio client.
//
// This package provides structured error types that wrap the different failure
// scenarios of talking to a tool server over stdio: process launch, transport
// loss, protocol decoding, handshake, timeouts, and tool execution. All error
// types support unwrapping and can be checked using errors.Is, errors.As, and
// errors.AsType.
package errors
