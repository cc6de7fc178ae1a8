package viewer

import (
	"encoding/json"
	"errors"
	"strings"

	"wrtcplay/native/internal/chunk"
	"wrtcplay/native/internal/domain"
	"wrtcplay/native/internal/loop"

	"github.com/rs/zerolog/log"
)

// DefaultRejectionReasons are the substrings that mark a failed remote
// description as a codec incompatibility rather than a generic failure.
var DefaultRejectionReasons = []string{"InvalidAccessError", "setRemoteDescription", "codec"}

// Auth carries the optional play credentials taken from the stream URL.
type Auth struct {
	Token          string
	SubscriberID   string
	SubscriberCode string
}

// Config configures a Viewer.
type Config struct {
	ViewerInfo     string
	CandidateTypes []string
	// MaxMessageSize bounds reassembled data channel messages.
	MaxMessageSize   int
	RejectionReasons []string
}

// Viewer coordinates the signaling and WebRTC flows of every stream.
// It implements domain.Handler. All state is owned by the loop; the exported
// methods only post work onto it.
type Viewer struct {
	cfg     Config
	filter  CandidateFilter
	loop    *loop.Loop
	factory domain.PeerFactory
	sink    domain.EventSink
	signal  domain.Signaler

	sessions map[string]*session
	closed   bool
}

// New creates a Viewer that runs on l and reports to sink.
// Call SetSignaler before use to complete the circular dependency.
func New(cfg Config, l *loop.Loop, factory domain.PeerFactory, sink domain.EventSink) *Viewer {
	if len(cfg.RejectionReasons) == 0 {
		cfg.RejectionReasons = DefaultRejectionReasons
	}
	return &Viewer{
		cfg:      cfg,
		filter:   NewCandidateFilter(cfg.CandidateTypes),
		loop:     l,
		factory:  factory,
		sink:     sink,
		sessions: make(map[string]*session),
	}
}

// SetSignaler injects the signaler after construction to resolve the
// circular dependency (Viewer needs Signaler, Signal needs Handler).
func (v *Viewer) SetSignaler(s domain.Signaler) {
	v.signal = s
}

// Play asks the server to start streamID.
func (v *Viewer) Play(streamID string, auth Auth) {
	v.post(func() { v.play(streamID, auth) })
}

// Stop closes the session of streamID and tells the server.
func (v *Viewer) Stop(streamID string) {
	v.post(func() {
		closed := v.closeSession(streamID)
		v.send(domain.Envelope{Command: domain.CommandStop, StreamID: streamID})
		if closed {
			v.emit(domain.PlayFinished{StreamID: streamID})
		}
	})
}

// GetStreamInfo requests the renditions of streamID.
func (v *Viewer) GetStreamInfo(streamID string) {
	v.post(func() {
		v.send(domain.Envelope{Command: domain.CommandGetStreamInfo, StreamID: streamID})
	})
}

// ForceStreamQuality pins streamID to the given height; 0 restores automatic selection.
func (v *Viewer) ForceStreamQuality(streamID string, height int) {
	v.post(func() {
		v.send(domain.Envelope{
			Command:      domain.CommandForceStreamQuality,
			StreamID:     streamID,
			StreamHeight: &height,
		})
	})
}

// PeerMessage relays an application message through the server. data must
// be valid JSON or empty.
func (v *Viewer) PeerMessage(streamID, definition string, data json.RawMessage) {
	data = append([]byte(nil), data...)
	v.post(func() {
		v.send(domain.Envelope{
			Command:    domain.CommandPeerMessage,
			StreamID:   streamID,
			Definition: definition,
			Data:       data,
		})
	})
}

// SendData sends payload over the data channel of streamID. Binary payloads
// are framed; text goes out as a single message.
func (v *Viewer) SendData(streamID string, payload []byte, text bool) {
	payload = append([]byte(nil), payload...)
	v.post(func() { v.sendData(streamID, payload, text) })
}

// Close tears down every session and then the transport. Nothing is emitted
// once the teardown has run.
func (v *Viewer) Close() {
	v.post(v.shutdown)
}

// OnConnected implements domain.Handler.
func (v *Viewer) OnConnected() {
	v.post(func() { v.emit(domain.Initialized{}) })
}

// OnCommand implements domain.Handler.
func (v *Viewer) OnCommand(env domain.Envelope) {
	v.post(func() { v.dispatch(env) })
}

// OnTransportClosed implements domain.Handler. A clean close raises Closed;
// a lost connection raises a transport Error.
func (v *Viewer) OnTransportClosed(err error) {
	v.post(func() {
		if err != nil {
			v.emit(domain.Error{Kind: domain.ErrorKindTransport, Err: err})
			return
		}
		v.emit(domain.Closed{})
	})
}

// OnTransportError implements domain.Handler.
func (v *Viewer) OnTransportError(err error) {
	v.post(func() {
		v.emit(domain.Error{Kind: domain.ErrorKindTransport, Err: err})
	})
}

func (v *Viewer) post(fn func()) {
	if !v.loop.Post(func() {
		if v.closed {
			return
		}
		fn()
	}) {
		log.Debug().Str("module", "viewer").Msg("loop closed, dropping task")
	}
}

func (v *Viewer) emit(ev domain.Event) {
	if v.closed {
		return
	}
	v.sink.Emit(ev)
}

func (v *Viewer) send(env domain.Envelope) bool {
	if err := v.signal.Send(env); err != nil {
		log.Error().Err(err).Str("module", "viewer").Str("command", string(env.Command)).Msg("send failed")
		v.emit(domain.Error{Kind: domain.ErrorKindTransport, StreamID: env.StreamID, Err: err})
		return false
	}
	return true
}

func (v *Viewer) dispatch(env domain.Envelope) {
	switch env.Command {
	case domain.CommandTakeConfiguration:
		v.onTakeConfiguration(env)
	case domain.CommandTakeCandidate:
		v.onTakeCandidate(env)
	case domain.CommandStop:
		log.Info().Str("module", "viewer").Str("stream", env.StreamID).Msg("server stopped stream")
		v.closeSession(env.StreamID)
	case domain.CommandNotification:
		v.onNotification(env)
	case domain.CommandStreamInformation:
		v.emit(domain.StreamInformation{
			StreamID:    env.StreamID,
			Info:        env.StreamInfo,
			Resolutions: ResolutionLadder(env.StreamInfo),
		})
	case domain.CommandTrackList:
		v.emit(domain.TrackList{StreamID: env.StreamID, Tracks: env.TrackList})
	case domain.CommandPeerMessage:
		v.emit(domain.PeerMessage{StreamID: env.StreamID, Definition: env.Definition, Data: env.Data})
	case domain.CommandError:
		log.Warn().Str("module", "viewer").Str("stream", env.StreamID).Str("definition", env.Definition).Msg("server error")
		v.emit(domain.Error{Kind: domain.ErrorKindServer, StreamID: env.StreamID, Definition: env.Definition})
	case domain.CommandPing:
	default:
		log.Warn().Str("module", "viewer").Str("command", string(env.Command)).Msg("unhandled command")
	}
}

func (v *Viewer) onNotification(env domain.Envelope) {
	log.Info().Str("module", "viewer").Str("stream", env.StreamID).Str("definition", env.Definition).Msg("notification")

	switch env.Definition {
	case domain.DefinitionPlayStarted:
		v.emit(domain.PlayStarted{StreamID: env.StreamID})
	case domain.DefinitionPlayFinished, domain.DefinitionPublishFinished:
		v.closeSession(env.StreamID)
		v.emit(domain.PlayFinished{StreamID: env.StreamID})
	case domain.DefinitionResolutionChangeInfo:
		v.emit(domain.ResolutionChangeInProgress{StreamID: env.StreamID})
	default:
		v.emit(domain.Notification{StreamID: env.StreamID, Definition: env.Definition})
	}
}

func (v *Viewer) play(streamID string, auth Auth) {
	s, err := v.session(streamID)
	if err != nil {
		v.emit(domain.Error{Kind: domain.ErrorKindNegotiation, StreamID: streamID, Err: err})
		return
	}
	if s.state != StateIdle {
		log.Debug().Str("module", "viewer").Str("stream", streamID).Str("state", s.state.String()).Msg("already playing")
		return
	}

	s.advance(StateOffering)
	log.Info().Str("module", "viewer").Str("stream", streamID).Msg("requesting play")
	if v.send(domain.Envelope{
		Command:        domain.CommandPlay,
		StreamID:       streamID,
		Token:          auth.Token,
		SubscriberID:   auth.SubscriberID,
		SubscriberCode: auth.SubscriberCode,
		ViewerInfo:     v.cfg.ViewerInfo,
	}) {
		s.advance(StateAwaitingAnswer)
	}
}

func (v *Viewer) onTakeConfiguration(env domain.Envelope) {
	s, err := v.session(env.StreamID)
	if err != nil {
		v.emit(domain.Error{Kind: domain.ErrorKindNegotiation, StreamID: env.StreamID, Err: err})
		return
	}
	if env.IDMapping != nil {
		s.idMapping = env.IDMapping
	}
	s.advance(StateNegotiating)

	if err := s.peer.SetRemoteDescription(domain.SessionDescription{Type: env.Type, SDP: env.SDP}); err != nil {
		kind := domain.ErrorKindNegotiation
		if v.rejected(err) {
			kind = domain.ErrorKindRemoteDescriptionRejected
		}
		log.Error().Err(err).Str("module", "viewer").Str("stream", s.streamID).Str("kind", string(kind)).Msg("remote description failed")
		v.emit(domain.Error{Kind: kind, StreamID: s.streamID, Err: err})
		return
	}

	s.remoteDescriptionSet = true
	for _, c := range s.drain() {
		v.addCandidate(s, c)
	}

	if env.Type == domain.SDPTypeOffer {
		answer, err := s.peer.CreateAnswer()
		if err == nil {
			err = s.peer.SetLocalDescription(answer)
		}
		if err != nil {
			log.Error().Err(err).Str("module", "viewer").Str("stream", s.streamID).Msg("answer failed")
			v.emit(domain.Error{Kind: domain.ErrorKindNegotiation, StreamID: s.streamID, Err: err})
			return
		}
		v.send(domain.Envelope{
			Command:  domain.CommandTakeConfiguration,
			StreamID: s.streamID,
			Type:     answer.Type,
			SDP:      answer.SDP,
		})
	}

	if s.advance(StateConnected) && !s.infoRequested {
		s.infoRequested = true
		v.send(domain.Envelope{Command: domain.CommandGetStreamInfo, StreamID: s.streamID})
	}
}

func (v *Viewer) onTakeCandidate(env domain.Envelope) {
	s, err := v.session(env.StreamID)
	if err != nil {
		v.emit(domain.Error{Kind: domain.ErrorKindNegotiation, StreamID: env.StreamID, Err: err})
		return
	}

	c := domain.Candidate{SDPMid: env.ID, Protocol: env.Protocol}
	if env.Label != nil {
		c.SDPMLineIndex = *env.Label
	}
	if env.Candidate != nil {
		c.Candidate = *env.Candidate
	}

	if !v.accept(s.streamID, c) {
		return
	}
	if !s.remoteDescriptionSet {
		s.buffer(c)
		return
	}
	v.addCandidate(s, c)
}

func (v *Viewer) addCandidate(s *session, c domain.Candidate) {
	if err := s.peer.AddICECandidate(c); err != nil {
		log.Warn().Err(err).Str("module", "viewer").Str("stream", s.streamID).Str("candidate", c.Candidate).Msg("add candidate failed")
	}
}

// accept runs the candidate filter and reports a rejected non-empty candidate.
func (v *Viewer) accept(streamID string, c domain.Candidate) bool {
	if v.filter.Accept(c) {
		return true
	}
	log.Warn().Str("module", "viewer").Str("stream", streamID).Str("candidate", c.Candidate).Strs("accepted", v.filter.Types()).Msg("candidate protocol not supported")
	v.emit(domain.Error{
		Kind:     domain.ErrorKindProtocolNotSupported,
		StreamID: streamID,
		Err:      errors.New("candidate protocol not supported: " + c.Candidate),
	})
	return false
}

func (v *Viewer) rejected(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, reason := range v.cfg.RejectionReasons {
		if strings.Contains(msg, strings.ToLower(reason)) {
			return true
		}
	}
	return false
}

func (v *Viewer) sendData(streamID string, payload []byte, text bool) {
	s := v.sessions[streamID]
	if s == nil || s.dataChannel == nil {
		log.Warn().Str("module", "viewer").Str("stream", streamID).Msg("data channel not open")
		v.emit(domain.ChannelNotOpen{StreamID: streamID})
		return
	}

	if text {
		if err := s.dataChannel.SendText(string(payload)); err != nil {
			v.emit(domain.Error{Kind: domain.ErrorKindDataChannel, StreamID: streamID, Err: err})
		}
		return
	}

	for _, frame := range chunk.Split(payload, chunk.NewToken()) {
		if err := s.dataChannel.Send(frame); err != nil {
			log.Error().Err(err).Str("module", "viewer").Str("stream", streamID).Msg("data channel send failed")
			v.emit(domain.Error{Kind: domain.ErrorKindDataChannel, StreamID: streamID, Err: err})
			return
		}
	}
}

// session returns the session of streamID, creating it and its peer if needed.
func (v *Viewer) session(streamID string) (*session, error) {
	if s, ok := v.sessions[streamID]; ok {
		return s, nil
	}
	s := newSession(streamID, v.cfg.MaxMessageSize)
	peer, err := v.factory.NewPeer(streamID, &sessionEvents{v: v, s: s})
	if err != nil {
		log.Error().Err(err).Str("module", "viewer").Str("stream", streamID).Msg("create peer failed")
		return nil, err
	}
	s.peer = peer
	v.sessions[streamID] = s
	log.Debug().Str("module", "viewer").Str("stream", streamID).Msg("session created")
	return s, nil
}

// closeSession releases the session of streamID. It reports whether one existed.
func (v *Viewer) closeSession(streamID string) bool {
	s, ok := v.sessions[streamID]
	if !ok {
		return false
	}
	delete(v.sessions, streamID)
	s.release()
	if err := s.peer.Close(); err != nil {
		log.Warn().Err(err).Str("module", "viewer").Str("stream", streamID).Msg("close peer")
	}
	log.Info().Str("module", "viewer").Str("stream", streamID).Msg("session closed")
	return true
}

func (v *Viewer) shutdown() {
	for id := range v.sessions {
		v.closeSession(id)
	}
	v.closed = true
	if v.signal != nil {
		v.signal.Close()
	}
	log.Info().Str("module", "viewer").Msg("closed")
}

// sessionEvents adapts peer callbacks of one session onto the loop.
// Callbacks from a peer whose session has been closed are ignored.
type sessionEvents struct {
	v *Viewer
	s *session
}

func (e *sessionEvents) post(fn func()) {
	e.v.post(func() {
		if e.s.state == StateClosed {
			return
		}
		fn()
	})
}

func (e *sessionEvents) OnLocalCandidate(streamID string, c domain.Candidate) {
	e.post(func() {
		if !e.v.accept(streamID, c) {
			return
		}
		label := c.SDPMLineIndex
		cand := c.Candidate
		e.v.send(domain.Envelope{
			Command:   domain.CommandTakeCandidate,
			StreamID:  streamID,
			Label:     &label,
			ID:        c.SDPMid,
			Candidate: &cand,
		})
	})
}

func (e *sessionEvents) OnICEConnectionStateChange(streamID, state string) {
	e.post(func() {
		e.v.emit(domain.ICEConnectionStateChanged{StreamID: streamID, State: state})
	})
}

func (e *sessionEvents) OnTrack(streamID string, t domain.Track) {
	e.post(func() {
		role := e.s.role(t.Mid)
		if role == "" {
			role = t.ID
		}
		e.v.emit(domain.NewTrackAvailable{StreamID: streamID, TrackID: t.ID, Kind: t.Kind, Role: role})
	})
}

func (e *sessionEvents) OnDataChannelOpen(streamID string, dc domain.DataChannel) {
	e.post(func() {
		e.s.dataChannel = dc
		e.v.emit(domain.DataChannelOpened{StreamID: streamID})
	})
}

func (e *sessionEvents) OnDataChannelClose(streamID string) {
	e.post(func() {
		e.s.dataChannel = nil
		e.s.reassembler.Reset()
		e.v.emit(domain.DataChannelClosed{StreamID: streamID})
	})
}

func (e *sessionEvents) OnDataChannelError(streamID string, err error) {
	e.post(func() {
		e.v.emit(domain.Error{Kind: domain.ErrorKindDataChannel, StreamID: streamID, Err: err})
	})
}

func (e *sessionEvents) OnDataChannelMessage(streamID string, data []byte, isText bool) {
	e.post(func() {
		if isText {
			e.v.emit(domain.DataReceived{StreamID: streamID, Data: data, Text: true})
			return
		}
		msg, done, err := e.s.reassembler.Feed(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "viewer").Str("stream", streamID).Msg("dropping data frame")
			return
		}
		if done {
			e.v.emit(domain.DataReceived{StreamID: streamID, Data: msg})
		}
	})
}
