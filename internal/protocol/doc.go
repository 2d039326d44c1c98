// Package protocol implements JSON-RPC 2.0 correlation and the MCP session
// lifecycle on top of a line-oriented transport.
//
// The Correlator assigns request ids, routes each response to the caller
// waiting on it, enforces per-request timeouts, answers server-initiated
// requests through registered handlers, and dispatches notifications to
// observers. When the transport closes every outstanding request fails
// with the transport error.
//
// The Session drives the handshake (initialize, version check,
// notifications/initialized) and refuses requests until it is Ready.
//
// Example usage:
//
//	transport := subprocess.NewTransport(log, options)
//	transport.Start(ctx)
//
//	correlator := protocol.NewCorrelator(log, transport)
//	correlator.Start(ctx)
//
//	session := protocol.NewSession(log, correlator, options)
//	session.RegisterHandlers()
//
//	if err := session.Initialize(ctx); err != nil {
//		return err
//	}
//
//	resp, err := session.Call(ctx, "tools/list", nil, 30*time.Second)
package protocol
