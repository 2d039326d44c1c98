// Package mcp loads stdio tool server definitions from configuration files.
//
// Definitions can be written as JSON, using the "mcpServers" layout shared by
// most MCP hosts, or as TOML or YAML with the same keys. ${VAR} references in
// the command, arguments, working directory, and environment values are
// expanded when the file is loaded.
package mcp
