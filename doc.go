// Package mcpstdio provides a client for tool servers that speak the Model
// Context Protocol over a child process's standard input and output.
//
// The client launches the server, performs the initialize handshake, lists
// the server's tools and calls them. Tool parameter schemas are normalized
// into a flat JSON Schema subset on discovery, so they can be handed to
// consumers that reject composition keywords or references.
//
// # Basic Usage
//
//	client := mcpstdio.NewClient()
//	defer client.Close()
//
//	err := client.Start(ctx,
//	    mcpstdio.WithCommand("sql", "-mcp"),
//	    mcpstdio.WithToolCallTimeout(2*time.Minute),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	tools, err := client.Discover(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	text, err := client.CallTool(ctx, tools[0].Name, map[string]any{})
//
// For scoped use, WithClient starts a client, runs a callback and closes it.
//
// # Server Configuration Files
//
// Servers may be described in the common mcpServers layout, in JSON, TOML
// or YAML:
//
//	file, err := mcpstdio.LoadServerFile("servers.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cfg, err := file.Server("sqlcl")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = client.Start(ctx, mcpstdio.WithServerConfig(cfg))
//
// # Error Handling
//
// Errors are typed and work with errors.Is and errors.As:
//
//	var toolErr *mcpstdio.ToolExecutionError
//	if errors.As(err, &toolErr) {
//	    // The tool ran and reported failure; the session is still usable.
//	}
//
//	if errors.Is(err, mcpstdio.ErrTransportClosed) {
//	    // The server process is gone; start a new client.
//	}
//
// # Logging
//
// Pass a *slog.Logger with WithLogger. Without one the client is silent.
package mcpstdio
