// Package mcp implements the Model Context Protocol engine for the device.
//
// # Overview
//
// A Server accepts one client connection at a time and hands it to the
// single Worker. The worker pulls bounded frames from the framer, decodes
// them, dispatches requests in arrival order, and writes one response per
// request. Notifications never get a response.
//
// # State machine
//
// Each Session moves through:
//
//	Idle → AwaitingFrame → Decoding → Dispatching → Encoding → Idle
//
// ErrorRecovery is entered on framing and decode faults and returns to
// AwaitingFrame. Closed is terminal: the transport closed, the framer's
// resync budget ran out, or the server is shutting down.
//
// # Methods
//
// The Dispatcher answers initialize, ping, tools/list and tools/call itself.
// Any other method name is looked up in the tool registry and invoked
// directly; otherwise the peer gets MethodNotFound.
//
//	{"id":1,"method":"ping","params":{}}
//	{"id":1,"result":{}}
//
// tools/list is paginated so every page fits in one frame. Follow
// nextCursor until it is absent.
//
// # Duplicate identifiers
//
// Requests already buffered together are admitted before the first of them
// runs. A request whose id is still in flight is answered with
// DuplicateRequestId at once and never executed.
//
// # Keepalive
//
// With a keepalive interval set, the worker sends a ping request after that
// much inbound silence. A missing pong is logged and never closes the
// session.
package mcp
