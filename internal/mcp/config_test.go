package mcp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/mcpstdio/internal/config"
)

func testEnv(key string) string {
	return map[string]string{
		"WALLET_DIR": "/opt/oracle/wallet",
		"SQLCL_HOME": "/opt/sqlcl",
	}[key]
}

func TestParse_Formats(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		data   string
	}{
		{
			name:   "json",
			format: FormatJSON,
			data: `{
  "mcpServers": {
    "sqlcl": {
      "command": "${SQLCL_HOME}/bin/sql",
      "args": ["-mcp"],
      "env": {"TNS_ADMIN": "${WALLET_DIR}"},
      "cwd": "/tmp",
      "disabled": false
    }
  }
}`,
		},
		{
			name:   "toml",
			format: FormatTOML,
			data: `
[mcpServers.sqlcl]
command = "${SQLCL_HOME}/bin/sql"
args = ["-mcp"]
cwd = "/tmp"

[mcpServers.sqlcl.env]
TNS_ADMIN = "${WALLET_DIR}"
`,
		},
		{
			name:   "yaml",
			format: FormatYAML,
			data: `
mcpServers:
  sqlcl:
    command: ${SQLCL_HOME}/bin/sql
    args: ["-mcp"]
    cwd: /tmp
    env:
      TNS_ADMIN: ${WALLET_DIR}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, err := Parse([]byte(tt.data), tt.format, testEnv)
			require.NoError(t, err)
			require.Equal(t, []string{"sqlcl"}, file.Names())

			server, err := file.Server("")
			require.NoError(t, err)
			require.Equal(t, &StdioServerConfig{
				Command: "/opt/sqlcl/bin/sql",
				Args:    []string{"-mcp"},
				Env:     map[string]string{"TNS_ADMIN": "/opt/oracle/wallet"},
				Cwd:     "/tmp",
			}, server)
			require.Equal(t, ServerTypeStdio, server.GetType())
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{name: "malformed", data: `{"mcpServers":`, wantErr: "parsing config"},
		{name: "no servers", data: `{}`, wantErr: "no servers defined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), FormatJSON, testEnv)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}

	_, err := Parse([]byte(`{}`), Format("ini"), testEnv)
	require.ErrorContains(t, err, "unsupported config format")
}

func TestFile_ServerValidatesSelectedEntry(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{name: "null server", data: `{"mcpServers":{"a":null}}`, wantErr: `server "a": empty definition`},
		{name: "missing command", data: `{"mcpServers":{"a":{"args":["x"]}}}`, wantErr: `server "a": command is required`},
		{
			name:    "sse server",
			data:    `{"mcpServers":{"a":{"type":"sse","url":"https://example.com/sse"}}}`,
			wantErr: `unsupported server type "sse"`,
		},
		{
			name:    "http server",
			data:    `{"mcpServers":{"a":{"type":"http","url":"https://example.com/mcp"}}}`,
			wantErr: `unsupported server type "http"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, err := Parse([]byte(tt.data), FormatJSON, testEnv)
			require.NoError(t, err)

			_, err = file.Server("a")
			require.ErrorContains(t, err, tt.wantErr)

			_, err = file.Server("")
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestParse_MixedServerTypes(t *testing.T) {
	// Host configuration files routinely list remote servers next to the
	// stdio one this client launches.
	data := `{
  "mcpServers": {
    "sqlcl": {"command": "sql", "args": ["-mcp"]},
    "remote": {"type": "http", "url": "https://example.com/mcp"},
    "broken": null
  }
}`

	file, err := Parse([]byte(data), FormatJSON, testEnv)
	require.NoError(t, err)
	require.Equal(t, []string{"broken", "remote", "sqlcl"}, file.Names())

	server, err := file.Server("sqlcl")
	require.NoError(t, err)
	require.Equal(t, "sql", server.Command)

	_, err = file.Server("remote")
	require.ErrorContains(t, err, `server "remote": unsupported server type "http"`)

	_, err = file.Server("broken")
	require.ErrorContains(t, err, `server "broken": empty definition`)
}

func TestExpandEnvVars(t *testing.T) {
	require.Equal(t, "/opt/oracle/wallet/tnsnames.ora", expandEnvVars("${WALLET_DIR}/tnsnames.ora", testEnv))
	require.Equal(t, "--", expandEnvVars("-${NOT_SET}-", testEnv))
	require.Equal(t, "$WALLET_DIR", expandEnvVars("$WALLET_DIR", testEnv))
	require.Equal(t, "${1BAD}", expandEnvVars("${1BAD}", testEnv))
	require.Equal(t, "plain", expandEnvVars("plain", testEnv))
}

func TestFile_Server(t *testing.T) {
	file := &File{Servers: map[string]*StdioServerConfig{
		"b": {Command: "b"},
		"a": {Command: "a"},
	}}

	require.Equal(t, []string{"a", "b"}, file.Names())

	server, err := file.Server("b")
	require.NoError(t, err)
	require.Equal(t, "b", server.Command)

	_, err = file.Server("")
	require.ErrorContains(t, err, "file defines 2 servers (a, b)")

	_, err = file.Server("c")
	require.ErrorContains(t, err, `server "c" not defined`)
}

func TestStdioServerConfig_Apply(t *testing.T) {
	server := &StdioServerConfig{
		Command: "sql",
		Args:    []string{"-mcp"},
		Env:     map[string]string{"TNS_ADMIN": "/wallet"},
		Cwd:     "/work",
	}

	opts := &config.Options{Env: map[string]string{"LANG": "C"}}
	server.Apply(opts)

	require.Equal(t, "sql", opts.Command)
	require.Equal(t, []string{"-mcp"}, opts.Args)
	require.Equal(t, "/work", opts.Cwd)
	require.Equal(t, map[string]string{"LANG": "C", "TNS_ADMIN": "/wallet"}, opts.Env)

	opts.Args[0] = "changed"
	require.Equal(t, "-mcp", server.Args[0])
}

func TestFormatFromPath(t *testing.T) {
	for path, want := range map[string]Format{
		"servers.json": FormatJSON,
		"servers.TOML": FormatTOML,
		"servers.yaml": FormatYAML,
		"servers.yml":  FormatYAML,
	} {
		got, err := FormatFromPath(path)
		require.NoError(t, err)
		require.Equal(t, want, got, path)
	}

	_, err := FormatFromPath("servers.ini")
	require.ErrorContains(t, err, "unrecognized config file extension")
}

func TestLoadFile(t *testing.T) {
	t.Setenv("MCPSTDIO_TEST_WALLET", "/wallet")

	path := filepath.Join(t.TempDir(), "servers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mcpServers:
  sqlcl:
    command: sql
    env:
      TNS_ADMIN: ${MCPSTDIO_TEST_WALLET}
`), 0o600))

	file, err := LoadFile(path)
	require.NoError(t, err)

	server, err := file.Server("sqlcl")
	require.NoError(t, err)
	require.Equal(t, "/wallet", server.Env["TNS_ADMIN"])

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorContains(t, err, "reading config file")

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("mcpServers = 3"), 0o600))

	_, err = LoadFile(bad)
	require.ErrorContains(t, err, bad)
}
