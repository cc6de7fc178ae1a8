package domain

// Event is a domain event raised towards the host and UI.
// The set of implementations is closed; switch on the concrete type.
type Event interface {
	// Name is the outward event name.
	Name() string
	isEvent()
}

// ErrorKind classifies an Error event.
type ErrorKind string

const (
	// ErrorKindTransport is a signaling connection failure.
	ErrorKindTransport ErrorKind = "transport"
	// ErrorKindRemoteDescriptionRejected is a codec or description incompatibility.
	ErrorKindRemoteDescriptionRejected ErrorKind = "notSetRemoteDescription"
	// ErrorKindNegotiation is any other failure while exchanging descriptions.
	ErrorKindNegotiation ErrorKind = "negotiation"
	// ErrorKindProtocolNotSupported is a candidate with a transport outside the accepted set.
	ErrorKindProtocolNotSupported ErrorKind = "protocol_not_supported"
	// ErrorKindServer is an error command sent by the media server.
	ErrorKindServer ErrorKind = "server"
	// ErrorKindDataChannel is a data channel failure.
	ErrorKindDataChannel ErrorKind = "data_channel_error"
)

// Initialized reports that the signaling connection is open.
type Initialized struct{}

// Closed reports that the server closed the signaling connection cleanly.
type Closed struct{}

// PlayStarted reports that the server started sending a stream.
type PlayStarted struct {
	StreamID string
}

// PlayFinished reports that a stream ended or was stopped.
type PlayFinished struct {
	StreamID string
}

// StreamInformation carries the raw renditions and the derived resolution
// ladder. Resolutions[0] is always 0, meaning automatic.
type StreamInformation struct {
	StreamID    string
	Info        []StreamInfo
	Resolutions []int
}

// ResolutionChangeInProgress reports that the server is switching rendition.
type ResolutionChangeInProgress struct {
	StreamID string
}

// DataReceived carries one complete data channel message. Text is set for
// string messages, which bypass chunk reassembly.
type DataReceived struct {
	StreamID string
	Data     []byte
	Text     bool
}

// ChannelNotOpen reports a data send on a stream without an open data channel.
type ChannelNotOpen struct {
	StreamID string
}

// NewTrackAvailable reports a remote track added to a stream's peer.
type NewTrackAvailable struct {
	StreamID string
	TrackID  string
	Kind     string
	// Role is the local role mapped from the track id, if the server sent one.
	Role string
}

// ICEConnectionStateChanged reports a peer's ICE connection state.
type ICEConnectionStateChanged struct {
	StreamID string
	State    string
}

// DataChannelOpened reports that a stream's data channel is open.
type DataChannelOpened struct {
	StreamID string
}

// DataChannelClosed reports that a stream's data channel closed.
type DataChannelClosed struct {
	StreamID string
}

// Notification is a server notification with no dedicated event.
type Notification struct {
	StreamID   string
	Definition string
}

// TrackList carries the subtrack ids the server reported for a stream.
type TrackList struct {
	StreamID string
	Tracks   []string
}

// PeerMessage carries a peer message relayed by the server.
type PeerMessage struct {
	StreamID   string
	Definition string
	Data       []byte
}

// Error reports a failure. It also implements the error interface.
type Error struct {
	Kind     ErrorKind
	StreamID string
	// Definition is the server supplied error name, if any.
	Definition string
	Err        error
}

func (Initialized) Name() string                { return "initialized" }
func (Closed) Name() string                     { return "closed" }
func (PlayStarted) Name() string                { return "play-started" }
func (PlayFinished) Name() string               { return "play-finished" }
func (StreamInformation) Name() string          { return "stream-information" }
func (ResolutionChangeInProgress) Name() string { return "resolution-change-in-progress" }
func (DataReceived) Name() string               { return "data-received" }
func (ChannelNotOpen) Name() string             { return "channel-not-open" }
func (NewTrackAvailable) Name() string          { return "new-track-available" }
func (ICEConnectionStateChanged) Name() string  { return "ice-connection-state-changed" }
func (DataChannelOpened) Name() string          { return "data-channel-opened" }
func (DataChannelClosed) Name() string          { return "data-channel-closed" }
func (Notification) Name() string               { return "notification" }
func (TrackList) Name() string                  { return "track-list" }
func (PeerMessage) Name() string                { return "peer-message" }
func (Error) Name() string                      { return "error" }

func (Initialized) isEvent()                {}
func (Closed) isEvent()                     {}
func (PlayStarted) isEvent()                {}
func (PlayFinished) isEvent()               {}
func (StreamInformation) isEvent()          {}
func (ResolutionChangeInProgress) isEvent() {}
func (DataReceived) isEvent()               {}
func (ChannelNotOpen) isEvent()             {}
func (NewTrackAvailable) isEvent()          {}
func (ICEConnectionStateChanged) isEvent()  {}
func (DataChannelOpened) isEvent()          {}
func (DataChannelClosed) isEvent()          {}
func (Notification) isEvent()               {}
func (TrackList) isEvent()                  {}
func (PeerMessage) isEvent()                {}
func (Error) isEvent()                      {}

// Error formats the kind, definition and cause.
func (e Error) Error() string {
	msg := string(e.Kind)
	if e.Definition != "" {
		msg += ": " + e.Definition
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}
