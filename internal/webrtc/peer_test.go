package webrtc

import (
	"strings"
	"sync"
	"testing"

	"wrtcplay/native/internal/domain"

	pion "github.com/pion/webrtc/v4"
)

// recordingEvents collects peer callbacks.
type recordingEvents struct {
	mu         sync.Mutex
	candidates []domain.Candidate
}

func (r *recordingEvents) OnLocalCandidate(streamID string, c domain.Candidate) {
	r.mu.Lock()
	r.candidates = append(r.candidates, c)
	r.mu.Unlock()
}
func (r *recordingEvents) OnICEConnectionStateChange(streamID, state string)              {}
func (r *recordingEvents) OnTrack(streamID string, t domain.Track)                        {}
func (r *recordingEvents) OnDataChannelOpen(streamID string, dc domain.DataChannel)       {}
func (r *recordingEvents) OnDataChannelClose(streamID string)                             {}
func (r *recordingEvents) OnDataChannelError(streamID string, err error)                  {}
func (r *recordingEvents) OnDataChannelMessage(streamID string, data []byte, isText bool) {}

// newServerOffer builds an offer the way a media server would in play mode:
// audio and video to send and a data channel.
func newServerOffer(t *testing.T) (*pion.PeerConnection, domain.SessionDescription) {
	t.Helper()

	pc, err := pion.NewPeerConnection(pion.Configuration{})
	if err != nil {
		t.Fatalf("server peer: %v", err)
	}
	for _, kind := range []pion.RTPCodecType{pion.RTPCodecTypeAudio, pion.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, pion.RTPTransceiverInit{
			Direction: pion.RTPTransceiverDirectionSendonly,
		}); err != nil {
			t.Fatalf("add %s transceiver: %v", kind, err)
		}
	}
	if _, err := pc.CreateDataChannel("stream1", nil); err != nil {
		t.Fatalf("create data channel: %v", err)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		t.Fatalf("set local offer: %v", err)
	}
	return pc, domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: offer.SDP}
}

func TestPeer_AnswersOfferWithStereo(t *testing.T) {
	server, offer := newServerOffer(t)
	defer server.Close()

	f, err := NewFactory(FactoryConfig{DataChannel: true})
	if err != nil {
		t.Fatalf("new factory: %v", err)
	}
	peer, err := f.NewPeer("stream1", &recordingEvents{})
	if err != nil {
		t.Fatalf("new peer: %v", err)
	}
	defer peer.Close()

	if err := peer.SetRemoteDescription(offer); err != nil {
		t.Fatalf("set remote: %v", err)
	}

	answer, err := peer.CreateAnswer()
	if err != nil {
		t.Fatalf("create answer: %v", err)
	}
	if answer.Type != domain.SDPTypeAnswer {
		t.Errorf("expected answer type, got %q", answer.Type)
	}
	if !strings.Contains(answer.SDP, "useinbandfec=1;stereo=1") {
		t.Errorf("expected stereo in answer:\n%s", answer.SDP)
	}

	if err := peer.SetLocalDescription(answer); err != nil {
		t.Fatalf("set local: %v", err)
	}
	if err := server.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: answer.SDP}); err != nil {
		t.Fatalf("server rejected tuned answer: %v", err)
	}
}

func TestPeer_RejectsUnknownDescriptionType(t *testing.T) {
	f, err := NewFactory(FactoryConfig{})
	if err != nil {
		t.Fatalf("new factory: %v", err)
	}
	peer, err := f.NewPeer("stream1", &recordingEvents{})
	if err != nil {
		t.Fatalf("new peer: %v", err)
	}
	defer peer.Close()

	if err := peer.SetRemoteDescription(domain.SessionDescription{Type: "bogus", SDP: "v=0"}); err == nil {
		t.Error("expected error for unknown description type")
	}
}

func TestPeer_AddCandidateBeforeRemoteDescriptionFails(t *testing.T) {
	f, err := NewFactory(FactoryConfig{})
	if err != nil {
		t.Fatalf("new factory: %v", err)
	}
	peer, err := f.NewPeer("stream1", &recordingEvents{})
	if err != nil {
		t.Fatalf("new peer: %v", err)
	}
	defer peer.Close()

	err = peer.AddICECandidate(domain.Candidate{Candidate: "candidate:1 1 udp 2130706431 10.0.0.1 5000 typ host"})
	if err == nil {
		t.Error("expected error adding a candidate without a remote description")
	}
}
