// ABOUTME: Built-in tool types: definitions, handlers, and the packs that group them.
// ABOUTME: Packs are assembled at startup and never change afterwards.

package packs

import (
	"context"
	"encoding/json"
	"time"
)

// ToolHandler executes a built-in tool. It receives the validated arguments
// as JSON and returns the result as JSON or an error. Handlers run on the
// connection's worker and must honour ctx's deadline.
type ToolHandler func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// ToolDefinition describes a tool to clients.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      Schema
	// Timeout overrides the router's default when non-zero.
	Timeout time.Duration
}

// BuiltinTool pairs a definition with its handler.
type BuiltinTool struct {
	Definition ToolDefinition
	Handler    ToolHandler
}

// BuiltinPack is a collection of built-in tools with a pack ID.
type BuiltinPack struct {
	ID    string
	Tools []*BuiltinTool
}
