package domain

import "encoding/json"

// Command is the discriminator of every signaling envelope.
type Command string

const (
	CommandPlay               Command = "play"
	CommandStop               Command = "stop"
	CommandGetStreamInfo      Command = "getStreamInfo"
	CommandTakeCandidate      Command = "takeCandidate"
	CommandTakeConfiguration  Command = "takeConfiguration"
	CommandPeerMessage        Command = "peerMessageCommand"
	CommandForceStreamQuality Command = "forceStreamQuality"
	CommandPing               Command = "ping"
	CommandPong               Command = "pong"
	CommandError              Command = "error"
	CommandNotification       Command = "notification"
	CommandStreamInformation  Command = "streamInformation"
	CommandTrackList          Command = "trackList"
)

// Notification definitions the viewer reacts to.
const (
	DefinitionPlayStarted          = "play_started"
	DefinitionPlayFinished         = "play_finished"
	DefinitionPublishFinished      = "publish_finished"
	DefinitionResolutionChangeInfo = "resolutionChangeInfo"
)

// Envelope is the JSON object exchanged over the signaling websocket.
// One struct covers every command; unused fields are omitted on the wire.
type Envelope struct {
	Command  Command `json:"command"`
	StreamID string  `json:"streamId,omitempty"`

	// play
	Token          string `json:"token,omitempty"`
	SubscriberID   string `json:"subscriberId,omitempty"`
	SubscriberCode string `json:"subscriberCode,omitempty"`
	ViewerInfo     string `json:"viewerInfo,omitempty"`

	// takeCandidate
	Label     *int    `json:"label,omitempty"`
	ID        string  `json:"id,omitempty"`
	Candidate *string `json:"candidate,omitempty"`
	Protocol  string  `json:"protocol,omitempty"`

	// takeConfiguration
	Type      string            `json:"type,omitempty"`
	SDP       string            `json:"sdp,omitempty"`
	IDMapping map[string]string `json:"idMapping,omitempty"`

	// error, notification, peerMessageCommand
	Definition string          `json:"definition,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`

	// forceStreamQuality
	StreamHeight *int `json:"streamHeight,omitempty"`

	// streamInformation, trackList
	StreamInfo []StreamInfo `json:"streamInfo,omitempty"`
	TrackList  []string     `json:"trackList,omitempty"`
}

// StreamInfo describes one rendition of a stream as reported by the server.
type StreamInfo struct {
	StreamWidth  int    `json:"streamWidth,omitempty"`
	StreamHeight int    `json:"streamHeight"`
	VideoBitrate int    `json:"videoBitrate,omitempty"`
	AudioBitrate int    `json:"audioBitrate,omitempty"`
	VideoCodec   string `json:"videoCodec,omitempty"`
}
