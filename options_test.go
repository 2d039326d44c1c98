package mcpstdio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyOptions_Empty(t *testing.T) {
	o := applyOptions(nil)

	require.NotNil(t, o)
	require.Empty(t, o.Command)
	require.Nil(t, o.InitializeTimeout)
	require.Equal(t, DefaultProtocolVersion, o.RequestedProtocolVersion())
}

func TestApplyOptions_All(t *testing.T) {
	logger := NopLogger()
	normalizer := NormalizerFunc(func(raw any) any { return raw })

	var lines []string

	o := applyOptions([]Option{
		WithLogger(logger),
		WithCommand("sql", "-mcp"),
		WithEnv(map[string]string{"TNS_ADMIN": "/opt/oracle/wallet"}),
		WithEnv(map[string]string{"NLS_LANG": "AMERICAN_AMERICA.AL32UTF8"}),
		WithCwd("/tmp"),
		WithStderr(func(line string) { lines = append(lines, line) }),
		WithMaxBufferSize(4096),
		WithProtocolVersion("2025-03-26"),
		WithSupportedProtocolVersions("2025-03-26", "2024-11-05"),
		WithClientInfo("sqlcl-bridge", "1.2.0"),
		WithInitializeTimeout(30 * time.Second),
		WithRequestTimeout(10 * time.Second),
		WithToolCallTimeout(2 * time.Minute),
		WithShutdownGracePeriod(time.Second),
		WithNormalizer(normalizer),
	})

	require.Same(t, logger, o.Logger)
	require.Equal(t, "sql", o.Command)
	require.Equal(t, []string{"-mcp"}, o.Args)
	require.Equal(t, map[string]string{
		"TNS_ADMIN": "/opt/oracle/wallet",
		"NLS_LANG":  "AMERICAN_AMERICA.AL32UTF8",
	}, o.Env)
	require.Equal(t, "/tmp", o.Cwd)
	require.Equal(t, 4096, *o.MaxBufferSize)
	require.Equal(t, []string{"2025-03-26", "2024-11-05"}, o.AcceptedProtocolVersions())
	require.Equal(t, 30*time.Second, *o.InitializeTimeout)
	require.Equal(t, 10*time.Second, o.RequestTimeout)
	require.Equal(t, 2*time.Minute, o.ToolCallTimeout)
	require.Equal(t, time.Second, *o.ShutdownGracePeriod)
	require.NotNil(t, o.Normalizer)

	name, version := o.ClientInfo()
	require.Equal(t, "sqlcl-bridge", name)
	require.Equal(t, "1.2.0", version)

	o.Stderr("banner")
	require.Equal(t, []string{"banner"}, lines)
}

func TestWithServerConfig(t *testing.T) {
	cfg := &ServerConfig{
		Command: "sql",
		Args:    []string{"-mcp"},
		Env:     map[string]string{"TNS_ADMIN": "/wallet"},
		Cwd:     "/srv",
	}

	o := applyOptions([]Option{
		WithEnv(map[string]string{"NLS_LANG": "AMERICAN"}),
		WithServerConfig(cfg),
		WithArgs("-mcp", "-nolog"),
	})

	require.Equal(t, "sql", o.Command)
	require.Equal(t, []string{"-mcp", "-nolog"}, o.Args)
	require.Equal(t, "/srv", o.Cwd)
	require.Equal(t, map[string]string{"TNS_ADMIN": "/wallet", "NLS_LANG": "AMERICAN"}, o.Env)

	// The entry itself is not modified by later options.
	require.Equal(t, []string{"-mcp"}, cfg.Args)
}

func TestWithServerConfig_Nil(t *testing.T) {
	o := applyOptions([]Option{WithCommand("sql"), WithServerConfig(nil)})

	require.Equal(t, "sql", o.Command)
}
