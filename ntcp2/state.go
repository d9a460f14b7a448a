package ntcp2

import (
	"sync"

	"github.com/go-i2p/ntcp2/block"
	"github.com/go-i2p/ntcp2/handshake"
)

// SessionState identifies where a Session sits in its lifecycle:
// Uninitialized, then HandshakeInProgress (the current message phase is
// tracked alongside it), then DataPhase, then Terminating with a reason,
// then Terminated. The only backward step is reset, which returns a
// non-terminal session to Uninitialized after a non-fatal handshake failure.
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateHandshakeInProgress
	StateDataPhase
	StateTerminating
	StateTerminated
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateHandshakeInProgress:
		return "handshake_in_progress"
	case StateDataPhase:
		return "data_phase"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// stateTracker guards the Session's forward-only state machine and the
// handshake phase/termination reason that accompany some states.
type stateTracker struct {
	mu     sync.RWMutex
	state  SessionState
	phase  handshake.Phase
	reason block.TerminationReason
}

func newStateTracker() *stateTracker {
	return &stateTracker{state: StateUninitialized}
}

func (t *stateTracker) get() SessionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *stateTracker) setHandshakePhase(phase handshake.Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateHandshakeInProgress
	t.phase = phase
}

func (t *stateTracker) setDataPhase() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateDataPhase
}

func (t *stateTracker) setTerminating(reason block.TerminationReason) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateTerminated {
		return
	}
	t.state = StateTerminating
	t.reason = reason
}

// reset returns the tracker to Uninitialized, allowing a retried handshake
// attempt. It is a no-op once the session has reached a terminal state.
func (t *stateTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateTerminating || t.state == StateTerminated {
		return
	}
	t.state = StateUninitialized
}

func (t *stateTracker) setTerminated() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateTerminated
}

func (t *stateTracker) isDataPhase() bool {
	return t.get() == StateDataPhase
}

func (t *stateTracker) isTerminal() bool {
	s := t.get()
	return s == StateTerminating || s == StateTerminated
}
