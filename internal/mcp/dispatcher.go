// ABOUTME: Maps decoded requests and notifications onto protocol methods and tools.
// ABOUTME: Classifies every failure into the wire error taxonomy; handler faults never escape.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/2389/tinymcp/internal/metrics"
	"github.com/2389/tinymcp/internal/packs"
	"github.com/2389/tinymcp/internal/protocol"
	"github.com/2389/tinymcp/internal/telemetry"
)

// Protocol methods answered by the dispatcher itself.
const (
	MethodInitialize = "initialize"
	MethodPing       = "ping"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"

	NotificationInitialized = "notifications/initialized"
	NotificationCancelled   = "notifications/cancelled"
)

// listOverhead reserves room in a tools/list page for the response envelope,
// the longest permitted id, and the next-page cursor.
const listOverhead = 64 + protocol.MaxIDLength + 64

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Router     *packs.Router
	ServerInfo mcpgo.Implementation
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Tracer     trace.Tracer
}

// Dispatcher resolves methods and invokes tools. It holds no per-session
// state and may be shared by every worker.
type Dispatcher struct {
	router  *packs.Router
	info    mcpgo.Implementation
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	// tools/list pages, computed once so each fits in one frame.
	pages [][]mcpgo.Tool

	// Metric labels: protocol methods and registered tool names.
	methods map[string]struct{}
}

// NewDispatcher creates a dispatcher over cfg.Router's registry.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer()
	}
	info := cfg.ServerInfo
	if info.Name == "" {
		info.Name = "tinymcp"
	}
	d := &Dispatcher{
		router:  cfg.Router,
		info:    info,
		logger:  logger,
		metrics: cfg.Metrics,
		tracer:  tracer,
	}
	d.pages = paginate(cfg.Router.Registry().Tools(), protocol.MaxMessageSize-listOverhead)
	d.methods = methodLabels(cfg.Router.Registry().Tools())
	return d
}

func methodLabels(tools []*packs.Tool) map[string]struct{} {
	names := map[string]struct{}{
		MethodInitialize:        {},
		MethodPing:              {},
		MethodToolsList:         {},
		MethodToolsCall:         {},
		NotificationInitialized: {},
		NotificationCancelled:   {},
	}
	for _, t := range tools {
		names[t.Definition.Name] = struct{}{}
	}
	return names
}

// methodLabel returns method if the server serves it, else metrics.UnknownMethod.
func (d *Dispatcher) methodLabel(method string) string {
	if _, ok := d.methods[method]; ok {
		return method
	}
	return metrics.UnknownMethod
}

// paginate splits tools into pages whose encoded size stays under budget.
// A page always holds at least one tool.
func paginate(tools []*packs.Tool, budget int) [][]mcpgo.Tool {
	var pages [][]mcpgo.Tool
	var page []mcpgo.Tool
	size := 0
	for _, t := range tools {
		entry := mcpgo.Tool{
			Name:           t.Definition.Name,
			Description:    t.Definition.Description,
			RawInputSchema: t.InputSchema(),
		}
		encoded, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		n := len(encoded) + 1
		if len(page) > 0 && size+n > budget {
			pages = append(pages, page)
			page, size = nil, 0
		}
		page = append(page, entry)
		size += n
	}
	if len(page) > 0 || len(pages) == 0 {
		pages = append(pages, page)
	}
	return pages
}

// Handle answers one request. It never returns nil.
func (d *Dispatcher) Handle(ctx context.Context, sess *Session, req *protocol.Request) *protocol.Response {
	ctx, span := d.tracer.Start(ctx, req.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", req.Method),
			attribute.String("rpc.jsonrpc.request_id", req.ID.String()),
			attribute.String("mcp.session.id", sess.ID),
		),
	)
	defer span.End()

	requestID := req.ID.String()
	d.logger.Debug("→ dispatching",
		"session_id", sess.ID,
		"request_id", requestID,
		"method", req.Method,
	)

	start := time.Now()
	result, err := d.call(ctx, sess, req.Method, req.Params, requestID)
	elapsed := time.Since(start)

	resp := &protocol.Response{ID: req.ID, JSONRPC: req.JSONRPC}
	outcome := "ok"
	if err != nil {
		perr := classify(err)
		resp.Error = perr.Object()
		outcome = perr.Kind.String()
		span.RecordError(err)
		span.SetStatus(codes.Error, perr.Kind.String())
		span.SetAttributes(attribute.Int("rpc.jsonrpc.error_code", perr.Kind.Code()))
		d.logger.Warn("request failed",
			"session_id", sess.ID,
			"request_id", requestID,
			"method", req.Method,
			"kind", perr.Kind,
			"error", err,
		)
	} else {
		resp.Result = result
	}
	d.metrics.Request(d.methodLabel(req.Method), outcome, elapsed)

	d.logger.Debug("← responded",
		"session_id", sess.ID,
		"request_id", requestID,
		"method", req.Method,
		"outcome", outcome,
		"duration", elapsed,
	)
	return resp
}

// Notify handles a notification. Failures are logged and never reported.
func (d *Dispatcher) Notify(ctx context.Context, sess *Session, n *protocol.Notification) {
	d.metrics.Notification(d.methodLabel(n.Method))

	switch n.Method {
	case NotificationInitialized:
		d.logger.Debug("client initialized", "session_id", sess.ID)
		return
	case NotificationCancelled:
		// Requests run to completion; there is nothing to cancel.
		d.logger.Debug("cancellation ignored", "session_id", sess.ID, "params", string(n.Params))
		return
	}

	ctx, span := d.tracer.Start(ctx, n.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", n.Method),
			attribute.String("mcp.session.id", sess.ID),
		),
	)
	defer span.End()

	if _, err := d.call(ctx, sess, n.Method, n.Params, ""); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, classify(err).Kind.String())
		d.logger.Warn("notification failed",
			"session_id", sess.ID,
			"method", n.Method,
			"error", err,
		)
	}
}

func (d *Dispatcher) call(ctx context.Context, sess *Session, method string, params json.RawMessage, requestID string) (json.RawMessage, error) {
	switch method {
	case MethodInitialize:
		return d.initialize(sess, params)
	case MethodPing:
		return json.RawMessage(`{}`), nil
	case MethodToolsList:
		return d.toolsList(params)
	case MethodToolsCall:
		return d.toolsCall(ctx, params, requestID)
	}

	// Direct invocation by tool name.
	if _, err := d.router.Registry().Lookup(method); err != nil {
		return nil, protocol.Errorf(protocol.KindMethodNotFound, "method not found: %s", method)
	}
	return d.router.RouteToolCall(ctx, method, params, requestID)
}

type initializeParams struct {
	ProtocolVersion string               `json:"protocolVersion"`
	ClientInfo      mcpgo.Implementation `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string               `json:"protocolVersion"`
	Capabilities    map[string]any       `json:"capabilities"`
	ServerInfo      mcpgo.Implementation `json:"serverInfo"`
}

func (d *Dispatcher) initialize(sess *Session, params json.RawMessage) (json.RawMessage, error) {
	var in initializeParams
	if err := unmarshalParams(params, &in); err != nil {
		return nil, err
	}
	sess.markInitialized(in.ClientInfo)

	d.logger.Info("session initialized",
		"session_id", sess.ID,
		"client_name", in.ClientInfo.Name,
		"client_version", in.ClientInfo.Version,
		"client_protocol", in.ProtocolVersion,
	)

	return json.Marshal(initializeResult{
		ProtocolVersion: protocol.ProtocolVersion,
		Capabilities:    map[string]any{"tools": map[string]any{}},
		ServerInfo:      d.info,
	})
}

type listParams struct {
	Cursor string `json:"cursor"`
}

func (d *Dispatcher) toolsList(params json.RawMessage) (json.RawMessage, error) {
	var in listParams
	if err := unmarshalParams(params, &in); err != nil {
		return nil, err
	}

	page := 0
	if in.Cursor != "" {
		n, err := strconv.Atoi(in.Cursor)
		if err != nil || n < 0 || n >= len(d.pages) {
			return nil, protocol.Errorf(protocol.KindInvalidParams, "invalid cursor %q", in.Cursor)
		}
		page = n
	}

	result := mcpgo.ListToolsResult{Tools: d.pages[page]}
	if result.Tools == nil {
		result.Tools = []mcpgo.Tool{}
	}
	if page+1 < len(d.pages) {
		result.NextCursor = mcpgo.Cursor(strconv.Itoa(page + 1))
	}
	return json.Marshal(result)
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (d *Dispatcher) toolsCall(ctx context.Context, params json.RawMessage, requestID string) (json.RawMessage, error) {
	var in callParams
	if err := unmarshalParams(params, &in); err != nil {
		return nil, err
	}
	if in.Name == "" {
		return nil, protocol.Errorf(protocol.KindInvalidParams, "tool name is required")
	}

	out, err := d.router.RouteToolCall(ctx, in.Name, in.Arguments, requestID)
	if errors.Is(err, packs.ErrToolNotFound) {
		return nil, protocol.Errorf(protocol.KindInvalidParams, "tool not found: %s", in.Name)
	}
	if err != nil {
		return nil, err
	}

	return json.Marshal(mcpgo.CallToolResult{
		Content: []mcpgo.Content{mcpgo.NewTextContent(string(out))},
	})
}

func unmarshalParams(params json.RawMessage, v any) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return protocol.Errorf(protocol.KindInvalidParams, "invalid params: %v", err)
	}
	return nil
}

// classify maps any dispatch error onto the wire taxonomy.
func classify(err error) *protocol.Error {
	var perr *protocol.Error
	switch {
	case errors.As(err, &perr):
		return perr
	case errors.Is(err, packs.ErrInvalidParams):
		return protocol.Errorf(protocol.KindInvalidParams, "%v", err)
	case errors.Is(err, packs.ErrToolNotFound):
		return protocol.Errorf(protocol.KindMethodNotFound, "%v", err)
	case errors.Is(err, packs.ErrToolTimeout):
		return protocol.Errorf(protocol.KindTimeout, "%v", err)
	case errors.Is(err, packs.ErrHandlerPanic):
		return protocol.Errorf(protocol.KindHandlerFailure, "tool handler failed")
	case errors.Is(err, context.Canceled):
		return protocol.Errorf(protocol.KindHandlerFailure, "request cancelled")
	default:
		return protocol.Errorf(protocol.KindHandlerFailure, "%v", err)
	}
}
