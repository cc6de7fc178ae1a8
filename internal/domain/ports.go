package domain

import (
	"context"
	"io"
)

// Signaler manages the websocket signaling connection.
type Signaler interface {
	Connect(ctx context.Context) error
	Send(env Envelope) error
	Close()
}

// Handler receives signaling events.
type Handler interface {
	OnConnected()
	OnCommand(env Envelope)
	// OnTransportClosed reports a lost connection. err is nil for a clean close.
	OnTransportClosed(err error)
	OnTransportError(err error)
}

// Peer is the negotiation resource of one stream.
type Peer interface {
	SetRemoteDescription(sd SessionDescription) error
	// CreateAnswer returns a local answer with audio tuning applied.
	// It does not set the local description.
	CreateAnswer() (SessionDescription, error)
	SetLocalDescription(sd SessionDescription) error
	AddICECandidate(c Candidate) error
	Close() error
}

// PeerEvents receives the asynchronous callbacks of a Peer.
// Implementations must not assume they run on any particular goroutine.
type PeerEvents interface {
	OnLocalCandidate(streamID string, c Candidate)
	OnICEConnectionStateChange(streamID, state string)
	OnTrack(streamID string, t Track)
	OnDataChannelOpen(streamID string, dc DataChannel)
	OnDataChannelClose(streamID string)
	OnDataChannelError(streamID string, err error)
	OnDataChannelMessage(streamID string, data []byte, isText bool)
}

// PeerFactory creates one Peer per stream.
type PeerFactory interface {
	NewPeer(streamID string, events PeerEvents) (Peer, error)
}

// DataChannel is a remote-opened data channel bound to a stream.
type DataChannel interface {
	Send(data []byte) error
	SendText(s string) error
}

// Track describes a remote media track.
type Track struct {
	ID       string
	StreamID string
	// Mid is the media id of the transceiver that received the track.
	Mid   string
	Kind  string
	Codec string
}

// EventSink receives domain events.
type EventSink interface {
	Emit(ev Event)
}

// Host is the media player hosting the session.
type Host interface {
	Play()
	Pause()
	Trigger(name string, payload any)
	// MediaSink receives the raw H264 video stream. Nil drops media.
	MediaSink() io.Writer
}
