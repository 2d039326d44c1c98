package config

import (
	"log/slog"
	"time"

	"github.com/wagiedev/mcpstdio/internal/schema"
)

// Protocol defaults.
const (
	// DefaultProtocolVersion is the MCP revision requested during initialize.
	DefaultProtocolVersion = "2024-11-05"

	// DefaultClientName is reported as clientInfo.name.
	DefaultClientName = "mcpstdio"

	// DefaultClientVersion is reported as clientInfo.version.
	DefaultClientVersion = "0.1.0"
)

// Options configures an MCP stdio client.
type Options struct {
	// Logger is the slog logger for debug output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger

	// Command is the server executable, resolved against PATH when not absolute.
	Command string

	// Args are passed to Command.
	Args []string

	// Env provides additional environment variables for the server process.
	// They are layered on top of the current process environment.
	Env map[string]string

	// Cwd sets the working directory for the server process.
	Cwd string

	// Stderr is called with each line the server writes to stderr.
	Stderr func(string)

	// MaxBufferSize sets the maximum bytes of a single stdout line.
	// If nil, defaults to 1MB.
	MaxBufferSize *int

	// ProtocolVersion is the version requested during initialize.
	// If empty, DefaultProtocolVersion is used.
	ProtocolVersion string

	// SupportedProtocolVersions are the versions accepted from the server.
	// If empty, only the requested version is accepted.
	SupportedProtocolVersions []string

	// ClientName and ClientVersion are reported as clientInfo.
	ClientName    string
	ClientVersion string

	// InitializeTimeout bounds the initialize handshake.
	// If nil, defaults to 60 seconds. Can also be set via MCP_INITIALIZE_TIMEOUT env var.
	InitializeTimeout *time.Duration

	// RequestTimeout bounds requests other than tools/call.
	// Zero means no timeout beyond the caller's context.
	RequestTimeout time.Duration

	// ToolCallTimeout bounds each tools/call request.
	// Zero means no timeout beyond the caller's context.
	ToolCallTimeout time.Duration

	// ShutdownGracePeriod is how long Close waits for the server to exit after
	// closing stdin, and again after SIGTERM, before escalating.
	// If nil, defaults to 5 seconds.
	ShutdownGracePeriod *time.Duration

	// Normalizer rewrites tool input schemas during discovery.
	// If nil, schema.Default() is used.
	Normalizer schema.Normalizer

	// Transport allows injecting a custom transport implementation.
	// If nil, a subprocess transport is created from Command and Args.
	// This field is not serialized to JSON.
	Transport Transport `json:"-"`
}

// RequestedProtocolVersion returns ProtocolVersion or the default.
func (o *Options) RequestedProtocolVersion() string {
	if o != nil && o.ProtocolVersion != "" {
		return o.ProtocolVersion
	}

	return DefaultProtocolVersion
}

// AcceptedProtocolVersions returns the versions a server may answer with.
func (o *Options) AcceptedProtocolVersions() []string {
	if o != nil && len(o.SupportedProtocolVersions) > 0 {
		return o.SupportedProtocolVersions
	}

	return []string{o.RequestedProtocolVersion()}
}

// ClientInfo returns the name and version reported to the server.
func (o *Options) ClientInfo() (name, version string) {
	name, version = DefaultClientName, DefaultClientVersion

	if o == nil {
		return name, version
	}

	if o.ClientName != "" {
		name = o.ClientName
	}

	if o.ClientVersion != "" {
		version = o.ClientVersion
	}

	return name, version
}

// SchemaNormalizer returns Normalizer or the built-in one.
func (o *Options) SchemaNormalizer() schema.Normalizer {
	if o != nil && o.Normalizer != nil {
		return o.Normalizer
	}

	return schema.Default()
}
