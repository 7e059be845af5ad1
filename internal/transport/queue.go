// ABOUTME: Bounded, lock-guarded chunk queue between the refill goroutine and the worker.
// ABOUTME: Slots are preallocated; a full queue applies backpressure to the producer.

package transport

import (
	"context"
	"errors"
	"sync"
)

// ChunkSize is the size of one queue slot and of a single refill read.
const ChunkSize = 512

// DefaultQueueSlots bounds buffered input to 8 KiB.
const DefaultQueueSlots = 16

type slot struct {
	data [ChunkSize]byte
	n    int
}

// Queue hands raw bytes from one producer to one consumer.
type Queue struct {
	mu     sync.Mutex
	slots  []slot
	head   int // next slot to read
	off    int // bytes already consumed from slots[head]
	count  int // filled slots
	closed bool

	readable chan struct{}
	writable chan struct{}
}

// NewQueue returns a queue with the given number of slots.
func NewQueue(slots int) *Queue {
	if slots <= 0 {
		slots = DefaultQueueSlots
	}
	return &Queue{
		slots:    make([]slot, slots),
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Push copies p into free slots, blocking while the queue is full.
func (q *Queue) Push(ctx context.Context, p []byte) error {
	for len(p) > 0 {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrClosed
		}
		if q.count == len(q.slots) {
			q.mu.Unlock()
			select {
			case <-q.writable:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		tail := (q.head + q.count) % len(q.slots)
		s := &q.slots[tail]
		s.n = copy(s.data[:], p)
		p = p[s.n:]
		q.count++
		q.mu.Unlock()
		signal(q.readable)
	}
	return nil
}

// Read copies buffered bytes into p, waiting until data arrives, the queue
// closes, or ctx ends. Buffered bytes are still delivered after Close.
func (q *Queue) Read(ctx context.Context, p []byte) (int, error) {
	for {
		q.mu.Lock()
		if q.count > 0 {
			n := 0
			for n < len(p) && q.count > 0 {
				s := &q.slots[q.head]
				c := copy(p[n:], s.data[q.off:s.n])
				n += c
				q.off += c
				if q.off == s.n {
					q.head = (q.head + 1) % len(q.slots)
					q.off = 0
					q.count--
				}
			}
			q.mu.Unlock()
			signal(q.writable)
			return n, nil
		}
		if q.closed {
			q.mu.Unlock()
			return 0, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-q.readable:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return 0, ErrTimeout
			}
			return 0, ctx.Err()
		}
	}
}

// Len reports the number of buffered bytes.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0
	for i := 0; i < q.count; i++ {
		s := &q.slots[(q.head+i)%len(q.slots)]
		total += s.n
	}
	return total - q.off
}

// Close wakes both sides. Safe to call multiple times.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	signal(q.readable)
	signal(q.writable)
}
