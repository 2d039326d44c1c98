package mcp

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/wagiedev/mcpstdio/internal/config"
)

// ServerType represents the type of MCP server.
type ServerType string

const (
	// ServerTypeStdio uses stdio for communication.
	ServerTypeStdio ServerType = "stdio"
	// ServerTypeSSE uses Server-Sent Events.
	ServerTypeSSE ServerType = "sse"
	// ServerTypeHTTP uses HTTP for communication.
	ServerTypeHTTP ServerType = "http"
)

// Format is the encoding of a server definition file.
type Format string

const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// envPattern matches ${VAR} references.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// StdioServerConfig configures a stdio-based MCP server.
type StdioServerConfig struct {
	Type    ServerType        `json:"type,omitempty" toml:"type" yaml:"type,omitempty"`
	Command string            `json:"command" toml:"command" yaml:"command"`
	Args    []string          `json:"args,omitempty" toml:"args" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" toml:"env" yaml:"env,omitempty"`
	Cwd     string            `json:"cwd,omitempty" toml:"cwd" yaml:"cwd,omitempty"`
}

// GetType returns the declared type, defaulting to stdio.
func (c *StdioServerConfig) GetType() ServerType {
	if c.Type != "" {
		return c.Type
	}

	return ServerTypeStdio
}

// Validate reports whether the definition can be launched.
func (c *StdioServerConfig) Validate() error {
	if t := c.GetType(); t != ServerTypeStdio {
		return fmt.Errorf("unsupported server type %q: only stdio servers can be launched", t)
	}

	if c.Command == "" {
		return fmt.Errorf("command is required")
	}

	return nil
}

// Apply copies the launch settings into options.
func (c *StdioServerConfig) Apply(o *config.Options) {
	o.Command = c.Command
	o.Args = slices.Clone(c.Args)
	o.Cwd = c.Cwd

	if len(c.Env) > 0 {
		if o.Env == nil {
			o.Env = make(map[string]string, len(c.Env))
		}

		maps.Copy(o.Env, c.Env)
	}
}

// expand resolves ${VAR} references in every string field.
func (c *StdioServerConfig) expand(getenv func(string) string) {
	c.Command = expandEnvVars(c.Command, getenv)
	c.Cwd = expandEnvVars(c.Cwd, getenv)

	for i, arg := range c.Args {
		c.Args[i] = expandEnvVars(arg, getenv)
	}

	for k, v := range c.Env {
		c.Env[k] = expandEnvVars(v, getenv)
	}
}

// File is a set of named server definitions.
//
// JSON files use the common layout:
//
//	{"mcpServers": {"sqlcl": {"command": "sql", "args": ["-mcp"]}}}
//
// TOML and YAML files use the same keys.
type File struct {
	Servers map[string]*StdioServerConfig `json:"mcpServers" toml:"mcpServers" yaml:"mcpServers"`
}

// Names returns the server names in sorted order.
func (f *File) Names() []string {
	return slices.Sorted(maps.Keys(f.Servers))
}

// Server returns the named definition after validating it. An empty name
// selects the only server when the file defines exactly one. Other entries
// are not checked, so a file may also describe servers this client cannot
// launch.
func (f *File) Server(name string) (*StdioServerConfig, error) {
	if name == "" {
		if len(f.Servers) != 1 {
			return nil, fmt.Errorf("server name required: file defines %d servers (%s)",
				len(f.Servers), strings.Join(f.Names(), ", "))
		}

		name = f.Names()[0]
	}

	server, ok := f.Servers[name]
	if !ok {
		return nil, fmt.Errorf("server %q not defined", name)
	}

	if server == nil {
		return nil, fmt.Errorf("server %q: empty definition", name)
	}

	if err := server.Validate(); err != nil {
		return nil, fmt.Errorf("server %q: %w", name, err)
	}

	return server, nil
}

// FormatFromPath infers the file format from its extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unrecognized config file extension %q", filepath.Ext(path))
	}
}

// LoadFile reads server definitions from path. The format follows the file
// extension and ${VAR} references are expanded from the environment.
func LoadFile(path string) (*File, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	file, err := Parse(data, format, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return file, nil
}

// Parse decodes server definitions and expands their ${VAR} references.
// Entries are validated only when selected with File.Server. Keys other hosts
// understand but this client does not are ignored. References to unset
// variables expand to the empty string.
func Parse(data []byte, format Format, getenv func(string) string) (*File, error) {
	var file File

	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), &file); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	if len(file.Servers) == 0 {
		return nil, fmt.Errorf("no servers defined under mcpServers")
	}

	for _, server := range file.Servers {
		if server != nil {
			server.expand(getenv)
		}
	}

	return &file, nil
}

// expandEnvVars replaces ${VAR} with values from getenv.
func expandEnvVars(s string, getenv func(string) string) string {
	if !strings.Contains(s, "${") {
		return s
	}

	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		return getenv(envPattern.FindStringSubmatch(match)[1])
	})
}
