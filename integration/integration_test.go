//go:build integration

package integration

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/mcpstdio"
)

// serverCommand returns the server to test against. MCPSTDIO_SERVER_COMMAND
// overrides the default SQLcl invocation.
func serverCommand() []string {
	if v := os.Getenv("MCPSTDIO_SERVER_COMMAND"); v != "" {
		return strings.Fields(v)
	}

	return []string{"sql", "-mcp"}
}

// skipIfServerNotInstalled skips the test if the server could not be launched.
func skipIfServerNotInstalled(t *testing.T, err error) {
	t.Helper()

	if _, ok := errors.AsType[*mcpstdio.LaunchError](err); ok {
		t.Skipf("%s not installed", serverCommand()[0])
	}
}

// startServer launches the server and skips the test if it is missing.
func startServer(t *testing.T, opts ...mcpstdio.Option) mcpstdio.Client {
	t.Helper()

	cmd := serverCommand()

	client := mcpstdio.NewClient()

	err := client.Start(context.Background(), append([]mcpstdio.Option{
		mcpstdio.WithCommand(cmd[0], cmd[1:]...),
		mcpstdio.WithInitializeTimeout(60 * time.Second),
		mcpstdio.WithSupportedProtocolVersions("2024-11-05", "2025-03-26", "2025-06-18"),
	}, opts...)...)
	if err != nil {
		skipIfServerNotInstalled(t, err)
		t.Fatalf("Start failed: %v", err)
	}

	t.Cleanup(func() { require.NoError(t, client.Close()) })

	return client
}
