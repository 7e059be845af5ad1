// ABOUTME: Byte-stream abstraction the protocol engine reads from and writes to.
// ABOUTME: Wraps any io.ReadWriteCloser behind a refill goroutine and a bounded queue.

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// ErrTimeout is returned by Read when no bytes arrived before the deadline.
var ErrTimeout = errors.New("transport read timed out")

// ErrClosed is returned once the peer or the local side closed the stream.
var ErrClosed = errors.New("transport closed")

// Stream is the byte-stream collaborator. It has no framing knowledge.
type Stream interface {
	// Read copies up to len(p) bytes. It returns ErrTimeout when ctx's
	// deadline passes first and ErrClosed after the stream ends.
	Read(ctx context.Context, p []byte) (int, error)
	// Write sends all of p or returns ErrClosed.
	Write(ctx context.Context, p []byte) error
	Close() error
}

// StreamConfig configures a ConnStream.
type StreamConfig struct {
	Logger       *slog.Logger
	WriteTimeout time.Duration
	// QueueSlots bounds how many refill chunks may wait for the worker.
	QueueSlots int
}

// ConnStream adapts an io.ReadWriteCloser (a net.Conn or stdio) to Stream.
// A refill goroutine moves bytes from the connection into a bounded Queue,
// which is the only state shared with the worker.
type ConnStream struct {
	rwc          io.ReadWriteCloser
	queue        *Queue
	logger       *slog.Logger
	writeTimeout time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// NewConnStream wraps rwc and starts the refill goroutine.
func NewConnStream(rwc io.ReadWriteCloser, cfg StreamConfig) *ConnStream {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &ConnStream{
		rwc:          rwc,
		queue:        NewQueue(cfg.QueueSlots),
		logger:       logger,
		writeTimeout: cfg.WriteTimeout,
		done:         make(chan struct{}),
	}
	go s.refill()
	return s
}

// refill plays the role of the receive interrupt: it never touches the
// framer, only the queue.
func (s *ConnStream) refill() {
	defer close(s.done)
	var chunk [ChunkSize]byte
	for {
		n, err := s.rwc.Read(chunk[:])
		if n > 0 {
			if perr := s.queue.Push(context.Background(), chunk[:n]); perr != nil {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("transport read ended", "error", err)
			}
			s.queue.Close()
			return
		}
	}
}

// Read implements Stream.
func (s *ConnStream) Read(ctx context.Context, p []byte) (int, error) {
	return s.queue.Read(ctx, p)
}

// Write implements Stream. Deadlines come from ctx or the configured write timeout.
func (s *ConnStream) Write(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if conn, ok := s.rwc.(net.Conn); ok {
		deadline, hasDeadline := ctx.Deadline()
		if s.writeTimeout > 0 {
			if d := time.Now().Add(s.writeTimeout); !hasDeadline || d.Before(deadline) {
				deadline, hasDeadline = d, true
			}
		}
		if hasDeadline {
			_ = conn.SetWriteDeadline(deadline)
		} else {
			_ = conn.SetWriteDeadline(time.Time{})
		}
	}
	for len(p) > 0 {
		n, err := s.rwc.Write(p)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrClosed, err)
		}
		p = p[n:]
	}
	return nil
}

// Close stops the refill goroutine and closes the underlying connection.
func (s *ConnStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.queue.Close()
		err = s.rwc.Close()
	})
	return err
}

// Done is closed once the refill goroutine has exited.
func (s *ConnStream) Done() <-chan struct{} { return s.done }
