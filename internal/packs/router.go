// ABOUTME: Routes tool calls to built-in handlers with validation and bounded timeouts.
// ABOUTME: Converts handler panics and overruns into errors the dispatcher can classify.

package packs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// ErrHandlerPanic indicates a handler panicked. The panic is contained.
var ErrHandlerPanic = errors.New("tool handler panicked")

// ErrToolTimeout indicates a handler overran its deadline.
var ErrToolTimeout = errors.New("tool execution timed out")

// DefaultTimeout is the default timeout for tool execution.
const DefaultTimeout = 5 * time.Second

// Router validates arguments and invokes tools synchronously.
type Router struct {
	registry *Registry
	logger   *slog.Logger
	timeout  time.Duration
}

// RouterConfig contains configuration options for the Router.
type RouterConfig struct {
	Registry *Registry
	Logger   *slog.Logger
	Timeout  time.Duration
}

// NewRouter creates a new Router with the given configuration.
func NewRouter(cfg RouterConfig) *Router {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: cfg.Registry,
		logger:   logger,
		timeout:  timeout,
	}
}

// Registry returns the registry the router dispatches into.
func (r *Router) Registry() *Registry { return r.registry }

// RouteToolCall looks up, validates, and runs a tool on the calling
// goroutine. Errors wrap ErrToolNotFound, ErrInvalidParams,
// ErrToolTimeout, or ErrHandlerPanic; anything else came from the handler.
func (r *Router) RouteToolCall(ctx context.Context, toolName string, input json.RawMessage, requestID string) (json.RawMessage, error) {
	tool, err := r.registry.Lookup(toolName)
	if err != nil {
		r.logger.Debug("tool not found in registry",
			"tool_name", toolName,
			"request_id", requestID,
		)
		return nil, err
	}

	if err := tool.Definition.Schema.Validate(input); err != nil {
		r.logger.Debug("tool arguments rejected",
			"tool_name", toolName,
			"request_id", requestID,
			"error", err,
		)
		return nil, err
	}

	timeout := r.timeout
	if tool.Definition.Timeout > 0 {
		timeout = tool.Definition.Timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.logger.Debug("→ dispatching to builtin",
		"tool_name", toolName,
		"pack_id", tool.PackID,
		"request_id", requestID,
	)

	start := time.Now()
	result, err := r.invoke(callCtx, tool.Handler, input)

	// Parent cancellation means shutdown, not a slow tool.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		r.logger.Warn("tool call timed out",
			"tool_name", toolName,
			"request_id", requestID,
			"timeout", timeout,
		)
		return nil, fmt.Errorf("%w after %s", ErrToolTimeout, timeout)
	}
	if err != nil {
		r.logger.Warn("builtin tool error",
			"tool_name", toolName,
			"request_id", requestID,
			"error", err,
		)
		return nil, err
	}

	r.logger.Debug("← builtin responded",
		"tool_name", toolName,
		"request_id", requestID,
		"duration", time.Since(start),
	)
	return result, nil
}

// invoke runs handler and converts a panic into ErrHandlerPanic.
func (r *Router) invoke(ctx context.Context, handler ToolHandler, input json.RawMessage) (result json.RawMessage, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool handler panic", "panic", p, "stack", string(debug.Stack()))
			result = nil
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, p)
		}
	}()
	return handler(ctx, input)
}
