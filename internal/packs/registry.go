// ABOUTME: Static registry mapping tool names to built-in tools.
// ABOUTME: Built once at startup; duplicate names abort construction.

package packs

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// ErrToolCollision indicates a tool name already exists in another pack.
var ErrToolCollision = errors.New("tool name collision")

// ErrToolNotFound indicates the requested tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// Tool is a registered built-in tool with its owning pack ID.
type Tool struct {
	Definition  ToolDefinition
	Handler     ToolHandler
	PackID      string
	inputSchema json.RawMessage
}

// InputSchema returns the JSON Schema advertised for the tool.
func (t *Tool) InputSchema() json.RawMessage { return t.inputSchema }

// Registry is read-only after NewRegistry returns and may be shared by
// any number of sessions without locking.
type Registry struct {
	tools  map[string]*Tool
	order  []*Tool
	logger *slog.Logger
}

// NewRegistry builds a registry from the given packs. It returns
// ErrToolCollision if two tools share a name.
func NewRegistry(logger *slog.Logger, builtinPacks ...*BuiltinPack) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		tools:  make(map[string]*Tool),
		logger: logger,
	}

	for _, pack := range builtinPacks {
		for _, bt := range pack.Tools {
			name := bt.Definition.Name
			if name == "" {
				return nil, fmt.Errorf("pack '%s' has a tool without a name", pack.ID)
			}
			if bt.Handler == nil {
				return nil, fmt.Errorf("tool '%s' in pack '%s' has no handler", name, pack.ID)
			}
			if existing, exists := r.tools[name]; exists {
				return nil, fmt.Errorf("%w: tool '%s' already registered by pack '%s'",
					ErrToolCollision, name, existing.PackID)
			}
			tool := &Tool{
				Definition:  bt.Definition,
				Handler:     bt.Handler,
				PackID:      pack.ID,
				inputSchema: bt.Definition.Schema.JSON(),
			}
			r.tools[name] = tool
			r.order = append(r.order, tool)
		}

		logger.Debug("builtin pack registered",
			"pack_id", pack.ID,
			"tool_count", len(pack.Tools),
		)
	}

	logger.Info("tool registry ready", "tool_count", len(r.order))
	return r, nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (*Tool, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return tool, nil
}

// Tools returns all tools in registration order.
func (r *Registry) Tools() []*Tool {
	return r.order
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}
