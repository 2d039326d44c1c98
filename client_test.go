package mcpstdio_test

import (
	"context"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/mcpstdio"
	"github.com/wagiedev/mcpstdio/internal/mcptest"
)

const serverEnv = "MCPSTDIO_TEST_SERVER"

// TestMain lets the test binary double as the database fixture server.
func TestMain(m *testing.M) {
	if os.Getenv(serverEnv) == "1" {
		mcptest.Main()
	}

	os.Exit(m.Run())
}

func serverOptions(env map[string]string) []mcpstdio.Option {
	merged := map[string]string{serverEnv: "1"}
	maps.Copy(merged, env)

	return []mcpstdio.Option{
		mcpstdio.WithLogger(slog.Default()),
		mcpstdio.WithCommand(os.Args[0]),
		mcpstdio.WithEnv(merged),
		mcpstdio.WithShutdownGracePeriod(500 * time.Millisecond),
		mcpstdio.WithRequestTimeout(10 * time.Second),
		mcpstdio.WithToolCallTimeout(10 * time.Second),
	}
}

func TestClient_DiscoverAndCall(t *testing.T) {
	ctx := context.Background()

	client := mcpstdio.NewClient()
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Start(ctx, serverOptions(nil)...))
	require.Equal(t, mcpstdio.DefaultProtocolVersion, client.ProtocolVersion())
	require.NotNil(t, client.ServerInfo())

	tools, err := client.Discover(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, tools)
	require.False(t, client.Stale())
	require.Len(t, client.Tools(), len(tools))

	runSQL, err := client.Lookup(mcptest.ToolRunSQL)
	require.NoError(t, err)
	require.Equal(t, "object", runSQL.Schema["type"])
	require.NotContains(t, runSQL.Schema, "oneOf")

	_, err = client.Lookup("drop-database")
	require.ErrorIs(t, err, mcpstdio.ErrUnknownTool)

	text, err := client.CallTool(ctx, mcptest.ToolConnect, map[string]any{"connection_name": "ADMIN@FREEPDB1"})
	require.NoError(t, err)
	require.Equal(t, "Connected to ADMIN@FREEPDB1", text)

	_, err = client.CallTool(ctx, mcptest.ToolRunSQL, map[string]any{"sql": "select * from invoices"})

	var toolErr *mcpstdio.ToolExecutionError
	require.ErrorAs(t, err, &toolErr)
	require.Contains(t, toolErr.Message, "ORA-00942")

	require.NoError(t, client.Ping(ctx))
	require.NoError(t, client.Close())

	_, err = client.CallTool(ctx, mcptest.ToolListConnections, nil)
	require.ErrorIs(t, err, mcpstdio.ErrClientClosed)
}

func TestClient_ServerFromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.yaml")
	content := "mcpServers:\n" +
		"  fixture:\n" +
		"    command: ${MCPSTDIO_TEST_BINARY}\n" +
		"    env:\n" +
		"      " + serverEnv + ": \"1\"\n" +
		"      TNS_ADMIN: /opt/oracle/wallet\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("MCPSTDIO_TEST_BINARY", os.Args[0])

	file, err := mcpstdio.LoadServerFile(path)
	require.NoError(t, err)

	cfg, err := file.Server("")
	require.NoError(t, err)
	require.Equal(t, os.Args[0], cfg.Command)

	ctx := context.Background()

	err = mcpstdio.WithClient(ctx, func(c mcpstdio.Client) error {
		if _, err := c.Discover(ctx); err != nil {
			return err
		}

		text, err := c.CallTool(ctx, mcptest.ToolPrintEnv, map[string]any{"name": "TNS_ADMIN"})
		if err != nil {
			return err
		}

		require.Equal(t, "/opt/oracle/wallet", text)

		return nil
	},
		mcpstdio.WithServerConfig(cfg),
		mcpstdio.WithShutdownGracePeriod(500*time.Millisecond),
	)
	require.NoError(t, err)
}

func TestClient_VersionMismatch(t *testing.T) {
	client := mcpstdio.NewClient()
	t.Cleanup(func() { _ = client.Close() })

	err := client.Start(context.Background(),
		serverOptions(map[string]string{mcptest.EnvProtocolVersion: "2099-01-01"})...)

	var mismatch *mcpstdio.ProtocolVersionMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, "2099-01-01", mismatch.Offered)
}

func TestClient_NotStarted(t *testing.T) {
	client := mcpstdio.NewClient()

	_, err := client.Discover(context.Background())
	require.ErrorIs(t, err, mcpstdio.ErrSessionNotReady)
	require.Nil(t, client.Done())
	require.NoError(t, client.Close())
}
