package mcpstdio

import (
	"context"
	"fmt"
)

// WithClient manages client lifecycle with automatic cleanup.
//
// This helper creates a client, starts it with the provided options, executes the
// callback function, and ensures proper cleanup via Close() when done.
//
// The callback receives a started Client whose handshake has completed.
// If the callback returns an error, it is returned to the caller.
// If Close() fails, a warning is logged but does not override the callback's error.
//
// Example usage:
//
//	err := mcpstdio.WithClient(ctx, func(c mcpstdio.Client) error {
//	    if _, err := c.Discover(ctx); err != nil {
//	        return err
//	    }
//	    text, err := c.CallTool(ctx, "list-connections", nil)
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(text)
//	    return nil
//	},
//	    mcpstdio.WithLogger(log),
//	    mcpstdio.WithCommand("sql", "-mcp"),
//	)
func WithClient(ctx context.Context, fn func(Client) error, opts ...Option) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	client := NewClient()
	if err := client.Start(ctx, opts...); err != nil {
		return fmt.Errorf("failed to start client: %w", err)
	}

	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			log.Warn("failed to close client", "error", closeErr)
		}
	}()

	return fn(client)
}
