// ABOUTME: Per-connection session: worker state, in-flight identifiers, and outbound ids.
// ABOUTME: Owned by a single worker; only the state is read from other goroutines.

package mcp

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/2389/tinymcp/internal/protocol"
)

// State is a position in the worker's state machine.
type State int32

const (
	StateIdle State = iota
	StateAwaitingFrame
	StateDecoding
	StateDispatching
	StateEncoding
	StateErrorRecovery
	StateClosed
)

var stateNames = [...]string{
	StateIdle:          "Idle",
	StateAwaitingFrame: "AwaitingFrame",
	StateDecoding:      "Decoding",
	StateDispatching:   "Dispatching",
	StateEncoding:      "Encoding",
	StateErrorRecovery: "ErrorRecovery",
	StateClosed:        "Closed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// StateObserver is told about every state transition.
type StateObserver func(sessionID string, from, to State)

// Session is the state of one client connection.
type Session struct {
	ID         string
	RemoteAddr string
	StartedAt  time.Time

	state    atomic.Int32
	observer StateObserver

	inflight map[protocol.ID]struct{}

	// Server-originated requests awaiting a response, keyed by id.
	outbound map[protocol.ID]time.Time
	nextID   int64

	initialized bool
	client      mcpgo.Implementation

	Requests int
	Errors   int
}

// NewSession creates a session with a fresh identifier.
func NewSession(remoteAddr string, observer StateObserver) *Session {
	return &Session{
		ID:         uuid.New().String(),
		RemoteAddr: remoteAddr,
		StartedAt:  time.Now(),
		observer:   observer,
		inflight:   make(map[protocol.ID]struct{}),
		outbound:   make(map[protocol.ID]time.Time),
	}
}

// State returns the current state. Safe to call from any goroutine.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(to State) {
	from := State(s.state.Swap(int32(to)))
	if from != to && s.observer != nil {
		s.observer(s.ID, from, to)
	}
}

// admit records id as in flight. It reports false if id is already in flight.
func (s *Session) admit(id protocol.ID) bool {
	if _, dup := s.inflight[id]; dup {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Session) complete(id protocol.ID) {
	delete(s.inflight, id)
}

// InFlight reports how many requests are admitted but unanswered.
func (s *Session) InFlight() int {
	return len(s.inflight)
}

// nextOutboundID allocates an id for a server-originated request. Only
// inbound Responses are matched against these ids.
func (s *Session) nextOutboundID(now time.Time) protocol.ID {
	s.nextID++
	id := protocol.StringID("srv-" + strconv.FormatInt(s.nextID, 10))
	s.outbound[id] = now
	return id
}

// resolveOutbound matches a response to a server-originated request.
func (s *Session) resolveOutbound(id protocol.ID) (sentAt time.Time, ok bool) {
	sentAt, ok = s.outbound[id]
	if ok {
		delete(s.outbound, id)
	}
	return sentAt, ok
}

func (s *Session) markInitialized(client mcpgo.Implementation) {
	s.initialized = true
	s.client = client
}

// Client returns the implementation info the peer sent in initialize.
func (s *Session) Client() mcpgo.Implementation {
	return s.client
}
