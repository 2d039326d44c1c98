package mcpstdio

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagiedev/mcpstdio/internal/config"
	internalmcp "github.com/wagiedev/mcpstdio/internal/mcp"
	"github.com/wagiedev/mcpstdio/internal/schema"
	"github.com/wagiedev/mcpstdio/internal/tools"
)

// Options configures a client. Build it with Option functions.
type Options = config.Options

// Protocol defaults.
const (
	// DefaultProtocolVersion is the protocol revision requested when none is set.
	DefaultProtocolVersion = config.DefaultProtocolVersion

	// DefaultClientName is reported to the server when none is set.
	DefaultClientName = config.DefaultClientName
)

// ===== Tools =====

// ToolDescriptor is a discovered tool with its normalized parameter schema.
type ToolDescriptor = tools.Descriptor

// ToolResult is the content a tool returned.
type ToolResult = tools.Result

// Content is one item of a ToolResult.
type Content = tools.Content

// EmptyResultMessage is what CallTool returns when a result has no text.
const EmptyResultMessage = tools.EmptyResultMessage

// Implementation is the name and version a peer reports during the handshake.
type Implementation = mcp.Implementation

// ===== Schemas =====

// Normalizer rewrites a raw tool input schema into the subset callers accept.
type Normalizer = schema.Normalizer

// NormalizerFunc adapts a function to Normalizer.
type NormalizerFunc = schema.NormalizerFunc

// NormalizeSchema applies the built-in normalization to a raw input schema.
// A value that is not a JSON object is returned unchanged.
func NormalizeSchema(raw any) any {
	return schema.Normalize(raw)
}

// ===== Server configuration files =====

// ServerConfig describes how to launch one server.
type ServerConfig = internalmcp.StdioServerConfig

// ServerFile is a set of named server definitions loaded from disk.
type ServerFile = internalmcp.File

// LoadServerFile reads a JSON, TOML or YAML file of server definitions.
// ${VAR} references in string fields are expanded from the environment.
// Entries are validated when selected with ServerFile.Server, so a file that
// also lists remote servers still loads.
func LoadServerFile(path string) (*ServerFile, error) {
	return internalmcp.LoadFile(path)
}
