// ABOUTME: Single-worker session loop: frames in, dispatch in arrival order, responses out.
// ABOUTME: Recovers from per-message faults and closes only on transport loss or shutdown.

package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/tinymcp/internal/framer"
	"github.com/2389/tinymcp/internal/metrics"
	"github.com/2389/tinymcp/internal/protocol"
	"github.com/2389/tinymcp/internal/transport"
)

// DefaultMaxPending bounds how many buffered messages are admitted ahead of
// the one being dispatched.
const DefaultMaxPending = 8

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	Dispatcher *Dispatcher
	Logger     *slog.Logger
	Metrics    *metrics.Metrics

	// KeepaliveInterval enables server pings after this much inbound silence.
	// The framer's read timeout must not exceed it.
	KeepaliveInterval time.Duration
	MaxPending        int
}

// Worker runs sessions one at a time. A Worker is not safe for concurrent
// use; it owns the response encoder.
type Worker struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	keepalive  time.Duration
	maxPending int

	enc protocol.Encoder
}

// pending is a message admitted but not yet processed. Exactly one field is set.
type pending struct {
	req    *protocol.Request
	note   *protocol.Notification
	reject *protocol.Response
}

// NewWorker creates a worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxPending := cfg.MaxPending
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	return &Worker{
		dispatcher: cfg.Dispatcher,
		logger:     logger,
		metrics:    cfg.Metrics,
		keepalive:  cfg.KeepaliveInterval,
		maxPending: maxPending,
	}
}

// errSessionClosed marks a send that failed because the peer went away.
var errSessionClosed = errors.New("session closed")

// Serve runs sess over f until the transport closes, the resync budget is
// exhausted, or ctx is done. A nil return means the peer closed the stream.
func (w *Worker) Serve(ctx context.Context, sess *Session, f *framer.Framer) (err error) {
	logger := w.logger.With("session_id", sess.ID)
	logger.Info("session started", "remote_addr", sess.RemoteAddr, "framing", f.Mode())

	defer func() {
		sess.setState(StateClosed)
		logger.Info("session closed",
			"requests", sess.Requests,
			"errors", sess.Errors,
			"duration", time.Since(sess.StartedAt),
			"cause", closeCause(err),
		)
	}()

	var queue []pending
	lastActivity := time.Now()
	var pingID protocol.ID

	sess.setState(StateIdle)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if len(queue) == 0 {
			sess.setState(StateAwaitingFrame)
			frame, err := f.Next(ctx)
			if err != nil {
				if errors.Is(err, transport.ErrTimeout) {
					if w.keepalive > 0 && time.Since(lastActivity) >= w.keepalive {
						if pingID, err = w.ping(ctx, sess, f, pingID); err != nil {
							return err
						}
						lastActivity = time.Now()
					}
					continue
				}
				if closed, cause := w.frameFault(sess, logger, err); closed {
					return cause
				}
				continue
			}
			lastActivity = time.Now()
			if queue, err = w.admit(ctx, sess, f, logger, frame, queue); err != nil {
				return err
			}
		}

		// Admit whatever else already arrived so duplicates are visible
		// before the first of them runs.
		if queue, err = w.drain(ctx, sess, f, logger, queue); err != nil {
			return err
		}
		w.metrics.Pending(len(queue))

		if len(queue) == 0 {
			continue
		}
		next := queue[0]
		queue[0] = pending{}
		queue = queue[1:]

		if queue, err = w.process(ctx, sess, f, logger, next, queue); err != nil {
			return err
		}
		sess.setState(StateIdle)
	}
}

// drain admits frames the transport already holds, without waiting, until
// the queue is full.
func (w *Worker) drain(ctx context.Context, sess *Session, f *framer.Framer, logger *slog.Logger, queue []pending) ([]pending, error) {
	for len(queue) < w.maxPending {
		frame, ok, err := f.Poll(ctx)
		if err != nil {
			if closed, cause := w.frameFault(sess, logger, err); closed {
				return queue, cause
			}
			continue
		}
		if !ok {
			return queue, nil
		}
		if queue, err = w.admit(ctx, sess, f, logger, frame, queue); err != nil {
			return queue, err
		}
	}
	return queue, nil
}

// admit decodes one frame and queues it, or answers it at once when it
// reuses an in-flight id.
func (w *Worker) admit(ctx context.Context, sess *Session, f *framer.Framer, logger *slog.Logger, frame []byte, queue []pending) ([]pending, error) {
	sess.setState(StateDecoding)
	msg, err := protocol.Decode(frame)
	if err != nil {
		var de *protocol.DecodeError
		if !errors.As(err, &de) {
			de = &protocol.DecodeError{Kind: protocol.KindMalformedSyntax, Reply: true, Err: err}
		}
		sess.setState(StateErrorRecovery)
		w.metrics.Fault(de.Kind.String())
		logger.Warn("dropping undecodable frame", "kind", de.Kind, "field", de.Field, "error", err)
		if !de.Reply {
			return queue, nil
		}
		// de.ID is zero, and encodes as null, when no id could be recovered.
		return append(queue, pending{reject: &protocol.Response{
			ID:      de.ID,
			JSONRPC: bytes.Contains(frame, []byte(`"jsonrpc"`)),
			Error:   de.AsError().Object(),
		}}), nil
	}

	switch m := msg.(type) {
	case *protocol.Request:
		if !sess.admit(m.ID) {
			w.metrics.Duplicate()
			logger.Warn("duplicate request id rejected",
				"request_id", m.ID.String(),
				"method", m.Method,
				"in_flight", sess.InFlight(),
			)
			sess.Requests++
			sess.Errors++
			err := w.send(ctx, sess, f, &protocol.Response{
				ID:      m.ID,
				JSONRPC: m.JSONRPC,
				Error:   protocol.Errorf(protocol.KindDuplicateRequestID, "request id %s is already in flight", m.ID).Object(),
			})
			return queue, err
		}
		return append(queue, pending{req: m}), nil
	case *protocol.Notification:
		return append(queue, pending{note: m}), nil
	case *protocol.Response:
		if sentAt, ok := sess.resolveOutbound(m.ID); ok {
			logger.Debug("keepalive answered", "id", m.ID.String(), "rtt", time.Since(sentAt))
		} else {
			logger.Warn("unmatched response dropped", "id", m.ID.String())
		}
	}
	return queue, nil
}

func (w *Worker) process(ctx context.Context, sess *Session, f *framer.Framer, logger *slog.Logger, p pending, queue []pending) ([]pending, error) {
	switch {
	case p.reject != nil:
		sess.Errors++
		return queue, w.send(ctx, sess, f, p.reject)
	case p.note != nil:
		sess.setState(StateDispatching)
		w.dispatcher.Notify(ctx, sess, p.note)
		return queue, nil
	}

	sess.setState(StateDispatching)
	resp := w.dispatcher.Handle(ctx, sess, p.req)
	if ctx.Err() != nil {
		// Shutdown while the handler ran; the response is discarded.
		sess.complete(p.req.ID)
		sess.Requests++
		return queue, ctx.Err()
	}

	// Frames that arrived while the handler ran are admitted while its id
	// is still in flight, so a reused id is rejected rather than run.
	queue, err := w.drain(ctx, sess, f, logger, queue)
	sess.complete(p.req.ID)
	sess.Requests++
	if err != nil {
		return queue, err
	}
	if resp.Error != nil {
		sess.Errors++
	}
	return queue, w.send(ctx, sess, f, resp)
}

// send encodes and writes one response. Only transport failures are returned.
func (w *Worker) send(ctx context.Context, sess *Session, f *framer.Framer, resp *protocol.Response) error {
	sess.setState(StateEncoding)
	frame, err := w.enc.EncodeResponse(resp)
	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrResultTooLarge):
		w.metrics.ResultTooLarge()
		w.logger.Warn("result exceeds message limit, sending error instead",
			"session_id", sess.ID,
			"request_id", resp.ID.String(),
		)
	case errors.Is(err, protocol.ErrHandlerFailure) && frame != nil:
		w.logger.Warn("result is not valid JSON, sending error instead",
			"session_id", sess.ID,
			"request_id", resp.ID.String(),
			"error", err,
		)
	default:
		w.logger.Error("response could not be encoded",
			"session_id", sess.ID,
			"request_id", resp.ID.String(),
			"error", err,
		)
		return nil
	}
	if err := f.Send(ctx, frame); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", errSessionClosed, err)
	}
	return nil
}

// ping sends a keepalive request. At most one ping is outstanding; an
// unanswered one is forgotten.
func (w *Worker) ping(ctx context.Context, sess *Session, f *framer.Framer, outstanding protocol.ID) (protocol.ID, error) {
	if !outstanding.IsZero() {
		if _, ok := sess.resolveOutbound(outstanding); ok {
			w.logger.Debug("keepalive unanswered", "session_id", sess.ID, "id", outstanding.String())
		}
	}

	id := sess.nextOutboundID(time.Now())
	sess.setState(StateEncoding)
	frame, err := w.enc.Encode(&protocol.Request{ID: id, Method: MethodPing, JSONRPC: true})
	if err != nil {
		return protocol.ID{}, nil
	}
	if err := f.Send(ctx, frame); err != nil {
		if ctx.Err() != nil {
			return id, ctx.Err()
		}
		return id, fmt.Errorf("%w: %w", errSessionClosed, err)
	}
	w.logger.Debug("→ keepalive ping", "session_id", sess.ID, "id", id.String())
	return id, nil
}

// frameFault logs a framing failure. It reports whether the session must
// close, and why; a nil cause means the peer closed the stream.
func (w *Worker) frameFault(sess *Session, logger *slog.Logger, err error) (bool, error) {
	switch {
	case errors.Is(err, transport.ErrClosed):
		return true, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return true, err
	case errors.Is(err, framer.ErrResyncExhausted):
		w.metrics.Fault("ResyncExhausted")
		logger.Error("framing unrecoverable", "error", err)
		return true, err
	}

	var kind string
	switch {
	case errors.Is(err, framer.ErrFrameTooLarge):
		kind = protocol.KindFrameTooLarge.String()
	case errors.Is(err, framer.ErrDesync):
		kind = "Desync"
	case errors.Is(err, framer.ErrTruncatedFrame):
		kind = "TruncatedFrame"
	default:
		logger.Error("framing failed", "error", err)
		return true, err
	}
	sess.setState(StateErrorRecovery)
	w.metrics.Fault(kind)
	logger.Warn("frame discarded", "kind", kind, "error", err)
	return false, nil
}

func closeCause(err error) string {
	switch {
	case err == nil:
		return "peer closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "shutdown"
	case errors.Is(err, framer.ErrResyncExhausted):
		return "resync budget exhausted"
	case errors.Is(err, errSessionClosed):
		return "transport closed"
	default:
		return err.Error()
	}
}
