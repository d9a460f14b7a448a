package handshake

// Phase identifies which of the three NTCP2 handshake messages a session is
// currently sending or expecting.
type Phase int

const (
	// PhaseSessionRequest is message 1, initiator to responder.
	PhaseSessionRequest Phase = iota
	// PhaseSessionCreated is message 2, responder to initiator.
	PhaseSessionCreated
	// PhaseSessionConfirmed is message 3, initiator to responder.
	PhaseSessionConfirmed
	// PhaseComplete marks a finished handshake; the session has moved to
	// the data phase.
	PhaseComplete
)

// String renders the phase for logging.
func (p Phase) String() string {
	switch p {
	case PhaseSessionRequest:
		return "session_request"
	case PhaseSessionCreated:
		return "session_created"
	case PhaseSessionConfirmed:
		return "session_confirmed"
	case PhaseComplete:
		return "complete"
	default:
		return "unknown"
	}
}
