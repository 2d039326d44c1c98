package client

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/mcpstdio/internal/config"
	"github.com/wagiedev/mcpstdio/internal/errors"
	"github.com/wagiedev/mcpstdio/internal/protocol"
	"github.com/wagiedev/mcpstdio/internal/subprocess"
	"github.com/wagiedev/mcpstdio/internal/tools"
)

// Client connects to one stdio tool server and exposes its tools.
//
// A Client owns the whole stack for a single server process: transport,
// correlator, session, registry, and dispatcher. Clients are single-use;
// once closed, or once the server process exits, create a new one.
type Client struct {
	log        *slog.Logger
	options    *config.Options
	transport  config.Transport
	correlator *protocol.Correlator
	session    *protocol.Session
	registry   *tools.Registry
	dispatcher *tools.Dispatcher

	// Errgroup for goroutine management
	eg          *errgroup.Group
	stopWatcher context.CancelFunc

	// Lifecycle management
	mu        sync.Mutex
	started   bool
	starting  bool
	closed    bool
	closeOnce sync.Once
}

// New creates a client. Nothing is launched until Start.
func New() *Client {
	return &Client{}
}

// Start launches the server, performs the handshake, and leaves the
// session Ready. Tools are not listed until Discover is called.
//
// Returns LaunchError if the server cannot be started and
// ProtocolVersionMismatchError if it answers with a version the client does
// not accept. On failure the server process is shut down. The client lock
// is not held during the handshake, so Close may abort a Start that is
// waiting on the server; Start then returns ErrClientClosed.
func (c *Client) Start(ctx context.Context, options *config.Options) error {
	if options == nil {
		options = &config.Options{}
	}

	log := options.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return errors.ErrClientClosed
	}

	if c.started || c.starting {
		c.mu.Unlock()

		return errors.ErrClientAlreadyStarted
	}

	c.starting = true
	c.log = log.With("component", "client")
	c.options = options
	c.mu.Unlock()

	var transport config.Transport

	if options.Transport != nil {
		transport = options.Transport

		c.log.Debug("Using injected custom transport")
	} else {
		transport = subprocess.NewTransport(log, options)
	}

	if err := transport.Start(ctx); err != nil {
		c.mu.Lock()
		c.starting = false
		c.closed = true
		c.mu.Unlock()

		return fmt.Errorf("start transport: %w", err)
	}

	correlator := protocol.NewCorrelator(log, transport)
	correlator.Start(ctx)

	session := protocol.NewSession(log, correlator, options)
	session.RegisterHandlers()

	registry := tools.NewRegistry(log, session, options.SchemaNormalizer(), options.RequestTimeout)

	correlator.OnNotification("notifications/tools/list_changed", func(string, map[string]any) {
		registry.MarkStale()
	})

	// Descriptors never outlive the process that described them.
	session.OnClose(func(cause error) {
		registry.Invalidate()
		c.log.Debug("Discarded tool registry", "cause", cause)
	})

	c.mu.Lock()

	if c.closed {
		c.starting = false
		c.mu.Unlock()

		_ = transport.Close()
		correlator.Stop()

		return errors.ErrClientClosed
	}

	c.transport = transport
	c.correlator = correlator
	c.session = session
	c.registry = registry
	c.dispatcher = tools.NewDispatcher(log, session, registry, options.ToolCallTimeout)
	c.mu.Unlock()

	initErr := session.Initialize(ctx)

	c.mu.Lock()
	c.starting = false

	// Close ran during the handshake and has already torn the stack down.
	if c.closed {
		c.mu.Unlock()

		if initErr != nil {
			return fmt.Errorf("initialize session: %w", stderrors.Join(errors.ErrClientClosed, initErr))
		}

		return errors.ErrClientClosed
	}

	if initErr != nil {
		c.closed = true
		c.mu.Unlock()

		_ = c.shutdown()

		return fmt.Errorf("initialize session: %w", initErr)
	}

	defer c.mu.Unlock()

	// The watcher is bound to Background, not ctx: ctx may only cover the
	// handshake, and the session must notice a dead server until Close.
	watchCtx, stopWatcher := context.WithCancel(context.Background())
	c.stopWatcher = stopWatcher

	c.eg = &errgroup.Group{}
	c.eg.Go(func() error {
		if err := session.Watch(watchCtx); err != nil && !stderrors.Is(err, context.Canceled) {
			return err
		}

		return nil
	})

	c.started = true

	c.log.Info("Client started", "session_id", session.ID(), "protocol_version", session.ProtocolVersion())

	return nil
}

// ready returns the session once Start has succeeded and Close has not
// been called.
func (c *Client) ready() (*protocol.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.ErrClientClosed
	}

	if !c.started {
		return nil, fmt.Errorf("%w (%s)", errors.ErrSessionNotReady, protocol.StateUnstarted)
	}

	return c.session, nil
}

// Discover lists the server's tools and replaces the registry with them.
func (c *Client) Discover(ctx context.Context) ([]*tools.Descriptor, error) {
	if _, err := c.ready(); err != nil {
		return nil, err
	}

	return c.registry.Discover(ctx)
}

// Tools returns the descriptors from the last successful Discover.
func (c *Client) Tools() []*tools.Descriptor {
	if _, err := c.ready(); err != nil {
		return nil
	}

	return c.registry.Tools()
}

// Lookup returns the descriptor for name.
func (c *Client) Lookup(name string) (*tools.Descriptor, error) {
	if _, err := c.ready(); err != nil {
		return nil, err
	}

	return c.registry.Lookup(name)
}

// Stale reports whether the server announced a tool list change since the
// last Discover.
func (c *Client) Stale() bool {
	if _, err := c.ready(); err != nil {
		return false
	}

	return c.registry.Stale()
}

// Call invokes a discovered tool and returns its full result.
func (c *Client) Call(ctx context.Context, name string, arguments map[string]any) (*tools.Result, error) {
	session, err := c.ready()
	if err != nil {
		return nil, err
	}

	// A dead session empties the registry; report the session, not the tool.
	if err := session.EnsureReady(); err != nil {
		return nil, err
	}

	return c.dispatcher.Call(ctx, name, arguments)
}

// CallTool invokes a discovered tool and returns its first text item.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (string, error) {
	result, err := c.Call(ctx, name, arguments)
	if err != nil {
		return "", err
	}

	return result.Text(), nil
}

// Ping checks that the server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	session, err := c.ready()
	if err != nil {
		return err
	}

	return session.Ping(ctx)
}

// ServerInfo returns the server's self-description from the handshake.
func (c *Client) ServerInfo() *mcp.Implementation {
	session, err := c.ready()
	if err != nil {
		return nil
	}

	return session.ServerInfo()
}

// Instructions returns the usage instructions the server sent, if any.
func (c *Client) Instructions() string {
	session, err := c.ready()
	if err != nil {
		return ""
	}

	return session.Instructions()
}

// ProtocolVersion returns the protocol version agreed with the server.
func (c *Client) ProtocolVersion() string {
	session, err := c.ready()
	if err != nil {
		return ""
	}

	return session.ProtocolVersion()
}

// Done returns a channel that is closed once the session can no longer
// serve requests, either because the server exited or Close was called.
// It returns nil before Start.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.correlator == nil {
		return nil
	}

	return c.correlator.Done()
}

// Err returns why the session closed, or nil while it is usable.
func (c *Client) Err() error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session == nil {
		return nil
	}

	return session.Err()
}

// shutdown tears the stack down. Pending calls fail with ErrTransportClosed.
func (c *Client) shutdown() error {
	if c.session != nil {
		c.session.Close(nil)
	}

	var closeErr error

	if c.transport != nil {
		closeErr = c.transport.Close()
	}

	if c.correlator != nil {
		c.correlator.Stop()
	}

	return closeErr
}

// Close ends the session and stops the server process.
//
// Outstanding calls fail, the registry is discarded, and the client cannot
// be reused. Safe to call multiple times.
func (c *Client) Close() error {
	var closeErr error

	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		wasStarted := c.started
		wasStarting := c.starting
		c.started = false
		c.mu.Unlock()

		switch {
		case wasStarted:
		case wasStarting:
			// Abort the handshake; Start sees closed and returns.
			c.log.Info("Closing client during start")

			closeErr = c.shutdown()

			return
		default:
			return
		}

		c.log.Info("Closing client")

		c.stopWatcher()
		closeErr = c.shutdown()

		// Wait for errgroup goroutines to complete
		if err := c.eg.Wait(); err != nil && closeErr == nil {
			closeErr = err
		}

		c.log.Info("Client closed")
	})

	return closeErr
}
