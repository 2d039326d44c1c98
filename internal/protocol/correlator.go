package protocol

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wagiedev/mcpstdio/internal/errors"
)

// Transport defines the minimal interface needed for protocol operations.
//
// This interface is satisfied by the subprocess transport but allows for
// testing with mock transports.
type Transport interface {
	ReadMessages(ctx context.Context) (<-chan map[string]any, <-chan error)
	SendMessage(ctx context.Context, data []byte) error
}

// Correlator matches JSON-RPC responses to outstanding requests.
//
// The Correlator handles:
//   - Assigning request ids, unique and increasing for the session
//   - Routing each response to the caller waiting on its id
//   - Per-request timeouts and context cancellation
//   - Answering server-initiated requests through registered handlers
//   - Dispatching server notifications to observers
//   - Failing every outstanding request when the transport closes
//
// The Correlator must be started with Start() before use and owns the
// goroutine that reads from the transport.
type Correlator struct {
	log       *slog.Logger
	transport Transport

	nextID atomic.Int64

	// Request tracking
	pendingMu sync.Mutex
	pending   map[int64]*pendingCall
	closed    bool

	// Server requests being handled, keyed by their wire id
	inFlightMu sync.Mutex
	inFlight   map[string]context.CancelFunc

	handlersMu    sync.RWMutex
	handlers      map[string]RequestHandler
	notifyHandler map[string][]NotificationHandler

	// Fatal error handling - stores error and broadcasts via done channel
	errMu    sync.RWMutex
	fatalErr error

	// Lifecycle management
	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// pendingCall tracks an outgoing request awaiting its response.
type pendingCall struct {
	method   string
	response chan *Response
}

// NewCorrelator creates a correlator over transport.
func NewCorrelator(log *slog.Logger, transport Transport) *Correlator {
	ctx, cancel := context.WithCancel(context.Background())

	return &Correlator{
		log:           log.With("component", "correlator"),
		transport:     transport,
		pending:       make(map[int64]*pendingCall, 8),
		inFlight:      make(map[string]context.CancelFunc, 4),
		handlers:      make(map[string]RequestHandler, 4),
		notifyHandler: make(map[string][]NotificationHandler, 4),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
}

// closeDone closes the done channel exactly once and fails pending requests.
func (c *Correlator) closeDone() {
	c.closeOnce.Do(func() {
		c.pendingMu.Lock()
		c.closed = true
		outstanding := len(c.pending)
		clear(c.pending)
		c.pendingMu.Unlock()

		close(c.done)
		c.cancel()

		if outstanding > 0 {
			c.log.Debug("Failed outstanding requests", "count", outstanding, "error", c.FatalError())
		}
	})
}

// SetFatalError stores a fatal error and broadcasts to all waiters by closing done.
// Only the first error is kept.
func (c *Correlator) SetFatalError(err error) {
	c.errMu.Lock()

	if c.fatalErr == nil {
		c.fatalErr = err
	}

	c.errMu.Unlock()

	c.closeDone()
}

// FatalError returns the error that stopped the correlator, if any.
func (c *Correlator) FatalError() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()

	return c.fatalErr
}

// closedError is returned to callers once the correlator has stopped.
func (c *Correlator) closedError() error {
	if err := c.FatalError(); err != nil {
		return err
	}

	return errors.ErrTransportClosed
}

// Done returns a channel that is closed when the correlator stops.
func (c *Correlator) Done() <-chan struct{} {
	return c.done
}

// Start begins reading from the transport. Calling it again has no effect.
//
// The read loop is not bound to ctx; it runs until the transport closes or
// Stop is called.
func (c *Correlator) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		messages, errs := c.transport.ReadMessages(ctx)

		c.wg.Go(func() { c.readLoop(messages, errs) })

		c.log.Debug("Correlator started")
	})
}

// Stop fails outstanding requests, cancels running handlers, and waits
// for the read loop. It's safe to call Stop multiple times.
func (c *Correlator) Stop() {
	c.SetFatalError(errors.ErrTransportClosed)
	c.wg.Wait()
}

// RegisterHandler registers the handler for a server-initiated request method.
// Registering the same method twice replaces the previous handler.
func (c *Correlator) RegisterHandler(method string, handler RequestHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	c.handlers[method] = handler
}

// OnNotification adds an observer for a server notification method.
func (c *Correlator) OnNotification(method string, handler NotificationHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	c.notifyHandler[method] = append(c.notifyHandler[method], handler)
}

// Call sends a request and waits for the matching response.
//
// A zero timeout waits until ctx is done. On timeout or cancellation the
// request is abandoned locally: nothing is sent to the server and a late
// response is discarded. Timeouts return a TimeoutError. An error reply
// is returned as *errors.RPCError. If the transport closes first every
// waiting caller receives the fatal error, which matches ErrTransportClosed.
func (c *Correlator) Call(
	ctx context.Context,
	method string,
	params any,
	timeout time.Duration,
) (*Response, error) {
	id := c.nextID.Add(1)
	call := &pendingCall{method: method, response: make(chan *Response, 1)}

	c.pendingMu.Lock()

	if c.closed {
		c.pendingMu.Unlock()

		return nil, c.closedError()
	}

	c.pending[id] = call
	c.pendingMu.Unlock()

	data, err := json.Marshal(&Request{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params})
	if err != nil {
		c.forget(id)

		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}

	c.log.Debug("Sending request", "id", id, "method", method)

	if err := c.transport.SendMessage(ctx, data); err != nil {
		c.forget(id)

		if stderrors.Is(err, errors.ErrTransportClosed) {
			c.SetFatalError(err)
		}

		return nil, fmt.Errorf("send %s request: %w", method, err)
	}

	var timer <-chan time.Time

	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()

		timer = t.C
	}

	select {
	case resp := <-call.response:
		return c.result(resp)

	case <-c.done:
		// A response may have been routed just before the transport closed.
		select {
		case resp := <-call.response:
			return c.result(resp)
		default:
		}

		c.log.Debug("Request failed by transport close", "id", id, "method", method)

		return nil, c.closedError()

	case <-timer:
		c.forget(id)

		c.log.Warn("Request timed out", "id", id, "method", method, "timeout", timeout)

		return nil, &errors.TimeoutError{Method: method, ID: id, Timeout: timeout}

	case <-ctx.Done():
		c.forget(id)

		c.log.Debug("Request cancelled", "id", id, "method", method)

		return nil, ctx.Err()
	}
}

func (c *Correlator) result(resp *Response) (*Response, error) {
	if resp.Error != nil {
		return nil, resp.Error
	}

	return resp, nil
}

// forget removes a pending request so a late response is dropped.
func (c *Correlator) forget(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// Notify sends a notification without waiting for anything.
func (c *Correlator) Notify(ctx context.Context, method string, params any) error {
	data, err := json.Marshal(&Notification{JSONRPC: jsonrpcVersion, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s notification: %w", method, err)
	}

	if err := c.transport.SendMessage(ctx, data); err != nil {
		return fmt.Errorf("send %s notification: %w", method, err)
	}

	return nil
}

// Pending returns the number of requests awaiting a response.
func (c *Correlator) Pending() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	return len(c.pending)
}

// readLoop reads messages from the transport until both channels close.
func (c *Correlator) readLoop(messages <-chan map[string]any, errs <-chan error) {
	defer c.log.Debug("Correlator read loop stopped")

	for messages != nil || errs != nil {
		select {
		case msg, ok := <-messages:
			if !ok {
				messages = nil

				continue
			}

			c.handleMessage(msg)

		case err, ok := <-errs:
			if !ok {
				errs = nil

				continue
			}

			if _, isDecode := stderrors.AsType[*errors.ProtocolDecodeError](err); isDecode {
				c.log.Warn("Skipping undecodable message", "error", err)

				continue
			}

			c.log.Debug("Transport failed", "error", err)
			c.SetFatalError(err)

		case <-c.done:
			return
		}
	}

	c.SetFatalError(errors.ErrTransportClosed)
}

// handleMessage routes one message by shape.
func (c *Correlator) handleMessage(msg map[string]any) {
	method, hasMethod := msg["method"].(string)
	rawID, hasID := msg["id"]
	hasID = hasID && rawID != nil

	switch {
	case hasMethod && hasID:
		c.handleRequest(rawID, method, msg)
	case hasMethod:
		c.handleNotification(method, msg)
	case hasID:
		c.handleResponse(rawID, msg)
	default:
		c.log.Warn("Dropping message that is neither request, response, nor notification")
	}
}

// handleResponse routes a response to the waiting request.
func (c *Correlator) handleResponse(rawID any, msg map[string]any) {
	id, ok := parseID(rawID)
	if !ok {
		c.log.Warn("Dropping response with foreign id", "id", rawID)

		return
	}

	// Find and claim pending request atomically
	c.pendingMu.Lock()

	call, exists := c.pending[id]
	if exists {
		delete(c.pending, id)
	}

	c.pendingMu.Unlock()

	if !exists {
		c.log.Warn("No pending request for response", "id", id)

		return
	}

	resp := &Response{ID: id, Result: msg["result"]}
	if rawErr, isErr := msg["error"]; isErr && rawErr != nil {
		resp.Error = parseRPCError(rawErr)
	}

	c.log.Debug("Received response", "id", id, "method", call.method, "error", resp.Error != nil)

	// The channel is buffered and we own the entry, so this never blocks.
	call.response <- resp
}

// handleRequest answers a server-initiated request.
func (c *Correlator) handleRequest(rawID any, method string, msg map[string]any) {
	params, _ := msg["params"].(map[string]any)
	req := &IncomingRequest{ID: rawID, Method: method, Params: params}

	c.handlersMu.RLock()
	handler, exists := c.handlers[method]
	c.handlersMu.RUnlock()

	if !exists {
		c.log.Debug("No handler for server request", "method", method)
		c.reply(rawID, nil, &errors.RPCError{Code: codeMethodNotFound, Message: "Method not found: " + method})

		return
	}

	key := fmt.Sprint(rawID)
	opCtx, cancel := context.WithCancel(c.ctx)

	c.inFlightMu.Lock()
	c.inFlight[key] = cancel
	c.inFlightMu.Unlock()

	// Run handler in goroutine so the read loop can process cancellations
	c.wg.Go(func() {
		defer func() {
			c.inFlightMu.Lock()
			delete(c.inFlight, key)
			c.inFlightMu.Unlock()

			cancel()
		}()

		result, err := handler(opCtx, req)

		if opCtx.Err() != nil {
			// Cancelled requests get no reply.
			c.log.Debug("Server request cancelled", "id", rawID, "method", method)

			return
		}

		if err != nil {
			rpcErr, ok := stderrors.AsType[*errors.RPCError](err)
			if !ok {
				rpcErr = &errors.RPCError{Code: codeInternalError, Message: err.Error()}
			}

			c.reply(rawID, nil, rpcErr)

			return
		}

		if result == nil {
			result = map[string]any{}
		}

		c.reply(rawID, result, nil)
	})
}

func (c *Correlator) reply(rawID, result any, rpcErr *errors.RPCError) {
	resp := &outgoingResponse{JSONRPC: jsonrpcVersion, ID: rawID, Error: rpcErr}

	if rpcErr == nil {
		encoded, err := json.Marshal(result)
		if err != nil {
			c.log.Error("Failed to marshal result", "id", rawID, "error", err)

			resp.Error = &errors.RPCError{Code: codeInternalError, Message: err.Error()}
		} else {
			resp.Result = encoded
		}
	}

	data, err := json.Marshal(resp)
	if err != nil {
		c.log.Error("Failed to marshal reply", "id", rawID, "error", err)

		return
	}

	if err := c.transport.SendMessage(c.ctx, data); err != nil {
		c.log.Debug("Could not send reply", "id", rawID, "error", err)
	}
}

// handleNotification cancels in-flight work on notifications/cancelled and
// passes every notification to its observers.
func (c *Correlator) handleNotification(method string, msg map[string]any) {
	params, _ := msg["params"].(map[string]any)

	if method == "notifications/cancelled" {
		key := fmt.Sprint(params["requestId"])

		c.inFlightMu.Lock()
		cancel, exists := c.inFlight[key]
		c.inFlightMu.Unlock()

		if exists {
			c.log.Debug("Server cancelled request", "id", key, "reason", params["reason"])
			cancel()
		}
	}

	c.handlersMu.RLock()
	observers := c.notifyHandler[method]
	c.handlersMu.RUnlock()

	if len(observers) == 0 {
		c.log.Debug("Ignoring notification", "method", method)

		return
	}

	for _, observe := range observers {
		observe(method, params)
	}
}
