// ABOUTME: Extracts bounded frames from a byte stream and writes framed payloads back.
// ABOUTME: Supports length-prefixed and newline-delimited conventions with resynchronisation.

package framer

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/2389/tinymcp/internal/protocol"
	"github.com/2389/tinymcp/internal/transport"
)

// Mode is a framing convention.
type Mode string

const (
	// ModeLength prefixes each payload with a 4-byte big-endian length.
	ModeLength Mode = "length"
	// ModeNewline terminates each payload with '\n'.
	ModeNewline Mode = "newline"
)

// HeaderSize is the length-prefix size in ModeLength.
const HeaderSize = 4

// DefaultResyncBudget is the number of consecutive framing failures
// tolerated before the stream is considered unrecoverable.
const DefaultResyncBudget = 8

// maxDiscard bounds how much of a declared oversize payload is skipped.
// Larger declarations are treated as a lost frame boundary.
const maxDiscard = 16 * protocol.MaxMessageSize

// ErrFrameTooLarge reports an inbound frame over protocol.MaxMessageSize.
// It matches protocol.ErrFrameTooLarge under errors.Is.
var ErrFrameTooLarge = fmt.Errorf("framer: %w", protocol.ErrFrameTooLarge)

// ErrDesync reports a length prefix too implausible to skip; the buffered
// bytes are dropped instead.
var ErrDesync = errors.New("framer: lost frame boundary")

// ErrTruncatedFrame reports a stream that closed in the middle of a frame.
var ErrTruncatedFrame = errors.New("framer: stream closed mid-frame")

// ErrResyncExhausted reports that consecutive framing failures exceeded the budget.
var ErrResyncExhausted = errors.New("framer: resync budget exhausted")

// Stream is the subset of transport.Stream the framer needs.
type Stream interface {
	Read(ctx context.Context, p []byte) (int, error)
	Write(ctx context.Context, p []byte) error
}

// Config configures a Framer.
type Config struct {
	Mode         Mode
	ReadTimeout  time.Duration
	ResyncBudget int
	Logger       *slog.Logger
}

// Framer owns the connection's inbound and outbound frame buffers. It is
// not safe for concurrent use; the worker is its only caller.
type Framer struct {
	stream      Stream
	mode        Mode
	readTimeout time.Duration
	budget      int
	logger      *slog.Logger

	in         [HeaderSize + protocol.MaxMessageSize]byte
	start, end int
	discard    int  // oversize payload bytes still to skip (length mode)
	skipLine   bool // dropping until the next newline (newline mode)
	failures   int  // consecutive framing failures
	closed     bool

	out [HeaderSize + protocol.MaxMessageSize + 1]byte
}

// New returns a Framer reading from and writing to stream.
func New(stream Stream, cfg Config) *Framer {
	mode := cfg.Mode
	if mode == "" {
		mode = ModeLength
	}
	budget := cfg.ResyncBudget
	if budget <= 0 {
		budget = DefaultResyncBudget
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Framer{
		stream:      stream,
		mode:        mode,
		readTimeout: cfg.ReadTimeout,
		budget:      budget,
		logger:      logger,
	}
}

// Mode returns the framing convention in use.
func (f *Framer) Mode() Mode { return f.mode }

// Next returns the next complete frame, reading from the stream as needed.
// The frame aliases the framer's buffer and is valid until the next call.
//
// Recoverable errors: ErrFrameTooLarge, ErrDesync, ErrTruncatedFrame, and
// transport.ErrTimeout. Terminal errors: transport.ErrClosed,
// ErrResyncExhausted, and ctx errors.
func (f *Framer) Next(ctx context.Context) ([]byte, error) {
	for {
		frame, ok, err := f.extract()
		if err != nil || ok {
			return frame, err
		}
		if err := f.fill(ctx, true); err != nil {
			return nil, err
		}
	}
}

// Poll returns the next frame if it can be completed from bytes already
// buffered here or already held by the stream. It never waits for the peer.
// A closed stream is reported by the following Next, not by Poll.
func (f *Framer) Poll(ctx context.Context) ([]byte, bool, error) {
	for {
		frame, ok, err := f.extract()
		if err != nil || ok {
			return frame, ok, err
		}
		if f.closed {
			return nil, false, nil
		}
		err = f.fill(ctx, false)
		switch {
		case err == nil:
		case errors.Is(err, transport.ErrTimeout), errors.Is(err, transport.ErrClosed):
			return nil, false, nil
		default:
			return nil, false, err
		}
	}
}

// Frames yields frames for the lifetime of the stream. Recoverable errors
// are yielded alongside a nil frame; the sequence ends when the stream
// closes, the resync budget runs out, or ctx is done. Ranging over Frames
// again resumes where the previous range stopped.
func (f *Framer) Frames(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			frame, err := f.Next(ctx)
			if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
				return
			}
			if !yield(frame, err) {
				return
			}
			if errors.Is(err, ErrResyncExhausted) {
				return
			}
		}
	}
}

// Send frames payload and writes it in a single stream write.
func (f *Framer) Send(ctx context.Context, payload []byte) error {
	if len(payload) > protocol.MaxMessageSize {
		return fmt.Errorf("%w: outbound %d bytes", ErrFrameTooLarge, len(payload))
	}
	var n int
	switch f.mode {
	case ModeNewline:
		if bytes.IndexByte(payload, '\n') >= 0 {
			return errors.New("framer: payload contains a newline")
		}
		n = copy(f.out[:], payload)
		f.out[n] = '\n'
		n++
	default:
		binary.BigEndian.PutUint32(f.out[:HeaderSize], uint32(len(payload)))
		n = HeaderSize + copy(f.out[HeaderSize:], payload)
	}
	return f.stream.Write(ctx, f.out[:n])
}

func (f *Framer) extract() ([]byte, bool, error) {
	if f.mode == ModeNewline {
		return f.extractLine()
	}
	return f.extractPrefixed()
}

func (f *Framer) extractPrefixed() ([]byte, bool, error) {
	if f.discard > 0 {
		n := min(f.discard, f.end-f.start)
		f.start += n
		f.discard -= n
		if f.discard > 0 {
			return nil, false, nil
		}
		f.logger.Debug("framer resynchronised after oversize frame")
	}

	if f.end-f.start < HeaderSize {
		return nil, false, nil
	}
	declared := binary.BigEndian.Uint32(f.in[f.start:])
	if declared > protocol.MaxMessageSize {
		if declared > maxDiscard {
			dropped := f.end - f.start
			f.start = f.end
			return nil, false, f.fail(fmt.Errorf("%w: declared length %d, dropped %d buffered bytes", ErrDesync, declared, dropped))
		}
		f.start += HeaderSize
		f.discard = int(declared)
		return nil, false, f.fail(fmt.Errorf("%w: declared length %d", ErrFrameTooLarge, declared))
	}

	size := int(declared)
	if f.end-f.start-HeaderSize < size {
		return nil, false, nil
	}
	frame := f.in[f.start+HeaderSize : f.start+HeaderSize+size]
	f.start += HeaderSize + size
	f.failures = 0
	return frame, true, nil
}

func (f *Framer) extractLine() ([]byte, bool, error) {
	if f.skipLine {
		i := bytes.IndexByte(f.in[f.start:f.end], '\n')
		if i < 0 {
			f.start = f.end
			return nil, false, nil
		}
		f.start += i + 1
		f.skipLine = false
		f.logger.Debug("framer resynchronised at line boundary")
	}

	for {
		i := bytes.IndexByte(f.in[f.start:f.end], '\n')
		if i < 0 {
			if pending := f.end - f.start; pending > protocol.MaxMessageSize {
				f.start = f.end
				f.skipLine = true
				return nil, false, f.fail(fmt.Errorf("%w: %d bytes without a newline", ErrFrameTooLarge, pending))
			}
			return nil, false, nil
		}

		line := f.in[f.start : f.start+i]
		f.start += i + 1
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if len(line) > protocol.MaxMessageSize {
			return nil, false, f.fail(fmt.Errorf("%w: %d-byte line", ErrFrameTooLarge, len(line)))
		}
		f.failures = 0
		return line, true, nil
	}
}

// fail counts a framing failure against the resync budget.
func (f *Framer) fail(err error) error {
	f.failures++
	if f.failures > f.budget {
		return fmt.Errorf("%w after %d consecutive failures: %w", ErrResyncExhausted, f.failures, err)
	}
	return err
}

// fill compacts the buffer and performs one bounded read. Without wait the
// read only collects bytes the stream already holds.
func (f *Framer) fill(ctx context.Context, wait bool) error {
	if f.closed {
		return transport.ErrClosed
	}
	if f.start > 0 {
		f.end = copy(f.in[:], f.in[f.start:f.end])
		f.start = 0
	}
	if f.end == len(f.in) {
		// Unreachable while extract enforces the size limits.
		return errors.New("framer: buffer full without a complete frame")
	}

	readCtx := ctx
	var cancel context.CancelFunc
	switch {
	case !wait:
		readCtx, cancel = context.WithDeadline(ctx, time.Time{})
	case f.readTimeout > 0:
		readCtx, cancel = context.WithTimeout(ctx, f.readTimeout)
	}
	if cancel != nil {
		defer cancel()
	}

	n, err := f.stream.Read(readCtx, f.in[f.end:])
	f.end += n
	switch {
	case err == nil:
		return nil
	case errors.Is(err, transport.ErrClosed):
		f.closed = true
		if f.end > f.start && !f.skipLine {
			partial := f.end - f.start
			f.start = f.end
			return fmt.Errorf("%w: %d bytes pending", ErrTruncatedFrame, partial)
		}
		return err
	case errors.Is(err, transport.ErrTimeout) && ctx.Err() != nil:
		return ctx.Err()
	default:
		return err
	}
}
