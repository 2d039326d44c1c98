package protocol

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/oklog/ulid/v2"

	"github.com/wagiedev/mcpstdio/internal/config"
	"github.com/wagiedev/mcpstdio/internal/errors"
)

const (
	// defaultInitializeTimeout is the default timeout for the initialize handshake.
	defaultInitializeTimeout = 60 * time.Second

	// initializeTimeoutEnv overrides the handshake timeout, in seconds.
	initializeTimeoutEnv = "MCP_INITIALIZE_TIMEOUT"
)

// Session runs the MCP lifecycle over a Correlator.
//
// It performs the initialize handshake, gates requests on the Ready state,
// answers ping, and forwards server log notifications to the logger. Once
// the transport closes the session moves to Closed and stays there.
type Session struct {
	log        *slog.Logger
	correlator *Correlator
	options    *config.Options
	id         string

	mu              sync.RWMutex
	state           State
	cause           error
	protocolVersion string
	initResult      *mcp.InitializeResult

	closeOnce  sync.Once
	closeHooks []func(error)
}

// NewSession creates a session in the Unstarted state.
func NewSession(log *slog.Logger, correlator *Correlator, options *config.Options) *Session {
	id := ulid.Make().String()

	return &Session{
		log:        log.With("component", "session", "session_id", id),
		correlator: correlator,
		options:    options,
		id:         id,
		state:      StateUnstarted,
	}
}

// RegisterHandlers installs the handlers every MCP client needs.
// This must be called before Initialize().
func (s *Session) RegisterHandlers() {
	s.correlator.RegisterHandler("ping", func(context.Context, *IncomingRequest) (any, error) {
		return map[string]any{}, nil
	})

	s.correlator.OnNotification("notifications/message", s.handleLogMessage)
}

// ID returns the client-side session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// Err returns the reason the session closed, or nil.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cause
}

// Initialize performs the handshake: the initialize request, a protocol
// version check, and the notifications/initialized notification.
//
// On success the session is Ready. On any failure it is Closed and the
// error is returned; a version the client does not accept yields
// ProtocolVersionMismatchError.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()

	switch s.state {
	case StateUnstarted:
		s.state = StateInitializing
	case StateClosed:
		s.mu.Unlock()

		return s.notReady()
	default:
		state := s.state
		s.mu.Unlock()

		return fmt.Errorf("initialize: session is %s", state)
	}

	s.mu.Unlock()

	requested := s.options.RequestedProtocolVersion()
	name, version := s.options.ClientInfo()

	params := &mcp.InitializeParams{
		ProtocolVersion: requested,
		ClientInfo:      &mcp.Implementation{Name: name, Version: version},
		Capabilities:    &mcp.ClientCapabilities{},
	}

	timeout := s.initializeTimeout()

	s.log.Debug("Sending initialize request", "protocol_version", requested, "timeout", timeout)

	resp, err := s.correlator.Call(ctx, "initialize", params, timeout)
	if err != nil {
		return s.fail(fmt.Errorf("initialize: %w", err))
	}

	var result mcp.InitializeResult
	if err := resp.Decode(&result); err != nil {
		return s.fail(fmt.Errorf("initialize: %w", err))
	}

	if !slices.Contains(s.options.AcceptedProtocolVersions(), result.ProtocolVersion) {
		return s.fail(&errors.ProtocolVersionMismatchError{Requested: requested, Offered: result.ProtocolVersion})
	}

	if err := s.correlator.Notify(ctx, "notifications/initialized", nil); err != nil {
		return s.fail(fmt.Errorf("initialize: %w", err))
	}

	s.mu.Lock()

	if s.state != StateInitializing {
		s.mu.Unlock()

		return s.notReady()
	}

	s.state = StateReady
	s.protocolVersion = result.ProtocolVersion
	s.initResult = &result
	s.mu.Unlock()

	attrs := []any{"protocol_version", result.ProtocolVersion}
	if result.ServerInfo != nil {
		attrs = append(attrs, "server", result.ServerInfo.Name, "server_version", result.ServerInfo.Version)
	}

	s.log.Info("Session ready", attrs...)

	return nil
}

// initializeTimeout returns the handshake timeout from options, env var, or default.
func (s *Session) initializeTimeout() time.Duration {
	if s.options != nil && s.options.InitializeTimeout != nil {
		return *s.options.InitializeTimeout
	}

	if timeoutStr := os.Getenv(initializeTimeoutEnv); timeoutStr != "" {
		if timeoutSec, err := strconv.Atoi(timeoutStr); err == nil && timeoutSec > 0 {
			return time.Duration(timeoutSec) * time.Second
		}
	}

	return defaultInitializeTimeout
}

// EnsureReady returns nil in the Ready state and the SessionNotReady error
// Call would return otherwise.
func (s *Session) EnsureReady() error {
	if s.State() == StateReady {
		return nil
	}

	return s.notReady()
}

// Call sends a request once the session is Ready.
//
// Before the handshake completes, and after the session closes, Call fails
// with ErrSessionNotReady without touching the transport.
func (s *Session) Call(ctx context.Context, method string, params any, timeout time.Duration) (*Response, error) {
	if err := s.EnsureReady(); err != nil {
		return nil, err
	}

	resp, err := s.correlator.Call(ctx, method, params, timeout)
	if err != nil && stderrors.Is(err, errors.ErrTransportClosed) {
		s.Close(err)
	}

	return resp, err
}

// Notify sends a notification once the session is Ready.
func (s *Session) Notify(ctx context.Context, method string, params any) error {
	if err := s.EnsureReady(); err != nil {
		return err
	}

	return s.correlator.Notify(ctx, method, params)
}

// Ping checks that the server is responsive.
func (s *Session) Ping(ctx context.Context) error {
	var timeout time.Duration
	if s.options != nil {
		timeout = s.options.RequestTimeout
	}

	_, err := s.Call(ctx, "ping", nil, timeout)

	return err
}

// ProtocolVersion returns the version agreed during the handshake.
func (s *Session) ProtocolVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.protocolVersion
}

// ServerInfo returns the server's self-description, or nil before Ready.
func (s *Session) ServerInfo() *mcp.Implementation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.initResult == nil {
		return nil
	}

	return s.initResult.ServerInfo
}

// Capabilities returns the server's declared capabilities, or nil before Ready.
func (s *Session) Capabilities() *mcp.ServerCapabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.initResult == nil {
		return nil
	}

	return s.initResult.Capabilities
}

// Instructions returns the server's usage instructions, if it sent any.
func (s *Session) Instructions() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.initResult == nil {
		return ""
	}

	return s.initResult.Instructions
}

// OnClose registers fn to run once when the session closes.
// If the session is already closed fn runs immediately.
func (s *Session) OnClose(fn func(cause error)) {
	s.mu.Lock()

	if s.state == StateClosed {
		cause := s.cause
		s.mu.Unlock()

		fn(cause)

		return
	}

	s.closeHooks = append(s.closeHooks, fn)
	s.mu.Unlock()
}

// Watch closes the session when the correlator stops.
// It returns when that happens or ctx is done.
func (s *Session) Watch(ctx context.Context) error {
	select {
	case <-s.correlator.Done():
		s.Close(s.correlator.FatalError())

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close moves the session to Closed and stops the correlator, failing any
// outstanding requests. The first cause is kept. Close is idempotent.
func (s *Session) Close(cause error) {
	s.closeOnce.Do(func() {
		if cause == nil {
			cause = errors.ErrTransportClosed
		}

		s.mu.Lock()
		previous := s.state
		s.state = StateClosed
		s.cause = cause
		hooks := s.closeHooks
		s.closeHooks = nil
		s.mu.Unlock()

		s.correlator.SetFatalError(cause)

		s.log.Info("Session closed", "previous_state", previous.String(), "cause", cause)

		for _, hook := range hooks {
			hook(cause)
		}
	})
}

func (s *Session) fail(err error) error {
	s.Close(err)

	return err
}

// notReady builds the error for a request outside the Ready state.
func (s *Session) notReady() error {
	s.mu.RLock()
	state, cause := s.state, s.cause
	s.mu.RUnlock()

	if cause != nil {
		return fmt.Errorf("%w (%s): %w", errors.ErrSessionNotReady, state, cause)
	}

	return fmt.Errorf("%w (%s)", errors.ErrSessionNotReady, state)
}

// handleLogMessage forwards notifications/message to the logger.
func (s *Session) handleLogMessage(_ string, params map[string]any) {
	level, _ := params["level"].(string)
	logger, _ := params["logger"].(string)

	s.log.Log(context.Background(), serverLogLevel(mcp.LoggingLevel(level)), "Server log",
		"level", level,
		"logger", logger,
		"data", params["data"],
	)
}

// serverLogLevel maps MCP syslog-style levels onto slog levels.
func serverLogLevel(level mcp.LoggingLevel) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info", "notice":
		return slog.LevelInfo
	case "warning":
		return slog.LevelWarn
	case "error", "critical", "alert", "emergency":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
