package domain

// SDP types carried in takeConfiguration.
const (
	SDPTypeOffer  = "offer"
	SDPTypeAnswer = "answer"
)

// SessionDescription is an SDP offer or answer exchanged with the media server.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Candidate is an ICE candidate as carried by takeCandidate.
type Candidate struct {
	Candidate     string
	SDPMid        string
	SDPMLineIndex int
	// Protocol is the transport when known explicitly. Empty means it has to
	// be read from the candidate line.
	Protocol string
}

// ICEServer holds STUN/TURN server configuration.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}
