package viewer

import (
	"fmt"

	"wrtcplay/native/internal/chunk"
	"wrtcplay/native/internal/domain"
)

// State is the negotiation state of one stream.
type State int

const (
	// StateIdle is a session created by an early server message before Play.
	StateIdle State = iota
	// StateOffering means the play request is being sent.
	StateOffering
	// StateAwaitingAnswer means play was sent and the server's description is pending.
	StateAwaitingAnswer
	// StateNegotiating means a remote description is being applied.
	StateNegotiating
	// StateConnected means the local answer was sent or the remote answer applied.
	StateConnected
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOffering:
		return "offering"
	case StateAwaitingAnswer:
		return "awaiting-answer"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// session is the per-stream negotiation state. It is owned by the loop.
type session struct {
	streamID string
	state    State
	peer     domain.Peer

	remoteDescriptionSet bool
	pending              []domain.Candidate

	idMapping   map[string]string
	dataChannel domain.DataChannel
	reassembler *chunk.Reassembler

	infoRequested bool
}

func newSession(streamID string, maxMessageSize int) *session {
	return &session{
		streamID:    streamID,
		reassembler: chunk.NewReassembler(maxMessageSize),
	}
}

// advance moves the session forward to next. States never move backwards
// and StateClosed is absorbing. It reports whether the state changed.
func (s *session) advance(next State) bool {
	if s.state == StateClosed || next <= s.state {
		return false
	}
	s.state = next
	return true
}

// buffer queues a remote candidate until the remote description is set.
func (s *session) buffer(c domain.Candidate) {
	s.pending = append(s.pending, c)
}

// drain returns the buffered candidates in arrival order and empties the buffer.
func (s *session) drain() []domain.Candidate {
	pending := s.pending
	s.pending = nil
	return pending
}

// role resolves the local role of the transceiver with the given mid.
func (s *session) role(mid string) string {
	return s.idMapping[mid]
}

// release drops everything the session holds except the peer.
func (s *session) release() {
	s.state = StateClosed
	s.pending = nil
	s.dataChannel = nil
	s.reassembler.Reset()
}
