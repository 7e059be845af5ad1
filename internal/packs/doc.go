// Package packs provides the static tool registry and the router that invokes tools.
//
// # Overview
//
// Tools are grouped into built-in packs (see internal/builtins). Packs are
// handed to NewRegistry once at startup; the registry is read-only from then
// on and is shared by every session without locking.
//
// # Architecture
//
//   - Registry: name to tool mapping, built once, duplicate names rejected
//   - Schema: coarse parameter checks (presence, type tag, enum, bounds)
//   - Router: validates arguments, applies the per-tool timeout, and invokes
//     the handler on the calling goroutine
//
// # Tool Routing
//
// When the dispatcher routes a call, the router:
//
//  1. Looks up the tool by name in the registry
//  2. Validates the arguments against the tool's schema
//  3. Runs the handler under a deadline
//  4. Maps an overrun or a panic to ErrToolTimeout or ErrHandlerPanic
//
// # Usage
//
//	registry, err := packs.NewRegistry(logger, builtins.SystemPack(board), builtins.ConfigPack(kv))
//	if err != nil {
//	    return err // ErrToolCollision aborts startup
//	}
//	router := packs.NewRouter(packs.RouterConfig{Registry: registry, Logger: logger})
//	out, err := router.RouteToolCall(ctx, "config_get", args, requestID)
package packs
