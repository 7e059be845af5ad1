// ABOUTME: Accept loop that serves one MCP client connection at a time.
// ABOUTME: Wires each connection's stream, framer, and session, then records the session.

package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/2389/tinymcp/internal/framer"
	"github.com/2389/tinymcp/internal/metrics"
	"github.com/2389/tinymcp/internal/store"
	"github.com/2389/tinymcp/internal/transport"
)

// recordTimeout bounds persisting a session summary after the session ends.
const recordTimeout = 2 * time.Second

// ServerConfig configures a Server.
type ServerConfig struct {
	Worker *Worker

	Framing           framer.Mode
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	KeepaliveInterval time.Duration
	ResyncBudget      int
	QueueSlots        int

	// Sessions, when set, receives a summary of every finished session.
	Sessions store.SessionLog
	Observer StateObserver
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Server owns the single worker and feeds it one connection at a time.
// Further dialers wait in the listen backlog.
type Server struct {
	cfg       ServerConfig
	logger    *slog.Logger
	connected atomic.Bool
}

// NewServer creates a server.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: logger}
}

// Connected reports whether a client session is active.
func (s *Server) Connected() bool {
	return s.connected.Load()
}

// Serve accepts connections from ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.logger.Info("MCP endpoint listening", "addr", ln.Addr().String(), "framing", s.framing())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		if err := s.ServeConn(ctx, conn, conn.RemoteAddr().String()); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("session ended with error", "remote_addr", conn.RemoteAddr().String(), "error", err)
		}
	}
}

// ServeConn runs one session over rwc and closes it afterwards.
func (s *Server) ServeConn(ctx context.Context, rwc io.ReadWriteCloser, remoteAddr string) error {
	stream := transport.NewConnStream(rwc, transport.StreamConfig{
		Logger:       s.logger,
		WriteTimeout: s.cfg.WriteTimeout,
		QueueSlots:   s.cfg.QueueSlots,
	})
	defer func() { _ = stream.Close() }()

	f := framer.New(stream, framer.Config{
		Mode:         s.framing(),
		ReadTimeout:  s.readTimeout(),
		ResyncBudget: s.cfg.ResyncBudget,
		Logger:       s.logger,
	})

	sess := NewSession(remoteAddr, s.cfg.Observer)
	s.connected.Store(true)
	s.cfg.Metrics.SessionStarted()
	defer func() {
		s.connected.Store(false)
		s.cfg.Metrics.SessionEnded()
	}()

	err := s.cfg.Worker.Serve(ctx, sess, f)
	s.record(sess, err)
	return err
}

func (s *Server) record(sess *Session, err error) {
	if s.cfg.Sessions == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	rec := &store.SessionRecord{
		ID:         sess.ID,
		RemoteAddr: sess.RemoteAddr,
		StartedAt:  sess.StartedAt,
		EndedAt:    time.Now(),
		Requests:   sess.Requests,
		Errors:     sess.Errors,
		CloseCause: closeCause(err),
	}
	if rerr := s.cfg.Sessions.RecordSession(ctx, rec); rerr != nil {
		s.logger.Warn("failed to record session", "session_id", sess.ID, "error", rerr)
	}
}

func (s *Server) framing() framer.Mode {
	if s.cfg.Framing == "" {
		return framer.ModeLength
	}
	return s.cfg.Framing
}

// readTimeout is the framer read timeout: the configured value, shortened
// so keepalive checks run at least once per interval.
func (s *Server) readTimeout() time.Duration {
	rt := s.cfg.ReadTimeout
	if ka := s.cfg.KeepaliveInterval; ka > 0 && (rt <= 0 || ka < rt) {
		rt = ka
	}
	return rt
}
