package mcpstdio

import (
	"log/slog"
	"maps"
	"time"
)

// Option configures Options using the functional options pattern.
type Option func(*Options)

// applyOptions applies functional options to a fresh Options struct.
func applyOptions(opts []Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// ===== Basic Configuration =====

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithCommand sets the server executable and its arguments.
// The executable is resolved against PATH when it is not absolute.
func WithCommand(command string, args ...string) Option {
	return func(o *Options) {
		o.Command = command
		o.Args = args
	}
}

// WithArgs replaces the server arguments.
func WithArgs(args ...string) Option {
	return func(o *Options) {
		o.Args = args
	}
}

// WithEnv adds environment variables for the server process.
// They are layered on top of the current process environment; repeated
// calls merge, later values winning.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string, len(env))
		}

		maps.Copy(o.Env, env)
	}
}

// WithCwd sets the working directory for the server process.
func WithCwd(cwd string) Option {
	return func(o *Options) {
		o.Cwd = cwd
	}
}

// WithServerConfig launches the server described by a configuration entry.
// Options applied afterwards override its fields.
func WithServerConfig(cfg *ServerConfig) Option {
	return func(o *Options) {
		if cfg != nil {
			cfg.Apply(o)
		}
	}
}

// WithStderr sets a callback for each line the server writes to stderr.
// The last lines are also kept for ProcessError regardless of this setting.
func WithStderr(handler func(string)) Option {
	return func(o *Options) {
		o.Stderr = handler
	}
}

// WithMaxBufferSize sets the largest stdout line accepted from the server.
// Defaults to 1MB.
func WithMaxBufferSize(size int) Option {
	return func(o *Options) {
		o.MaxBufferSize = &size
	}
}

// ===== Protocol =====

// WithProtocolVersion sets the protocol version requested during initialize.
func WithProtocolVersion(version string) Option {
	return func(o *Options) {
		o.ProtocolVersion = version
	}
}

// WithSupportedProtocolVersions sets the versions accepted from the server.
// By default only the requested version is accepted.
func WithSupportedProtocolVersions(versions ...string) Option {
	return func(o *Options) {
		o.SupportedProtocolVersions = versions
	}
}

// WithClientInfo sets the name and version reported to the server.
func WithClientInfo(name, version string) Option {
	return func(o *Options) {
		o.ClientName = name
		o.ClientVersion = version
	}
}

// ===== Timeouts =====

// WithInitializeTimeout bounds the handshake. Defaults to 60 seconds.
func WithInitializeTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.InitializeTimeout = &timeout
	}
}

// WithRequestTimeout bounds requests other than tool calls, such as
// discovery and ping. Zero leaves only the caller's context.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.RequestTimeout = timeout
	}
}

// WithToolCallTimeout bounds each tool call. Zero leaves only the caller's context.
func WithToolCallTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.ToolCallTimeout = timeout
	}
}

// WithShutdownGracePeriod sets how long Close waits for the server to exit
// at each shutdown step before escalating. Defaults to 5 seconds.
func WithShutdownGracePeriod(period time.Duration) Option {
	return func(o *Options) {
		o.ShutdownGracePeriod = &period
	}
}

// ===== Advanced =====

// WithNormalizer replaces the schema normalization applied during discovery.
func WithNormalizer(normalizer Normalizer) Option {
	return func(o *Options) {
		o.Normalizer = normalizer
	}
}

// WithTransport injects a custom transport implementation.
// Command and its related options are ignored when a transport is set.
func WithTransport(transport Transport) Option {
	return func(o *Options) {
		o.Transport = transport
	}
}
