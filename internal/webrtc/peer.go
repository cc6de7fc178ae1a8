package webrtc

import (
	"fmt"
	"io"
	"sync"

	"wrtcplay/native/internal/domain"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/interceptor/pkg/report"
	"github.com/pion/logging"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// FactoryConfig configures a Factory.
type FactoryConfig struct {
	ICEServers []domain.ICEServer
	// DataChannel binds server-opened data channels when set.
	DataChannel bool
	// VideoSink receives H264 video as an Annex-B byte stream. Nil drains it.
	VideoSink io.Writer
	// LoggerFactory defaults to NewLoggerFactory.
	LoggerFactory logging.LoggerFactory
}

// Factory creates playback PeerConnections that share one pion API.
type Factory struct {
	api         *pion.API
	config      pion.Configuration
	dataChannel bool

	sinkMu sync.Mutex
	sink   io.Writer
}

// NewFactory registers the default codecs and the receive-side interceptors.
func NewFactory(cfg FactoryConfig) (*Factory, error) {
	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	i := &interceptor.Registry{}
	generator, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack generator: %w", err)
	}
	i.Add(generator)

	receiverReports, err := report.NewReceiverInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create receiver reports: %w", err)
	}
	i.Add(receiverReports)

	pli, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create pli generator: %w", err)
	}
	i.Add(pli)

	lf := cfg.LoggerFactory
	if lf == nil {
		lf = NewLoggerFactory()
	}
	se := pion.SettingEngine{LoggerFactory: lf}

	api := pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(i),
		pion.WithSettingEngine(se),
	)

	var servers []pion.ICEServer
	for _, s := range cfg.ICEServers {
		servers = append(servers, pion.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	return &Factory{
		api: api,
		config: pion.Configuration{
			ICEServers:   servers,
			BundlePolicy: pion.BundlePolicyMaxBundle,
		},
		dataChannel: cfg.DataChannel,
		sink:        cfg.VideoSink,
	}, nil
}

// Peer wraps the Pion PeerConnection of one stream.
type Peer struct {
	streamID string
	pc       *pion.PeerConnection
	events   domain.PeerEvents
	factory  *Factory
}

// NewPeer creates a PeerConnection for streamID and wires its callbacks to events.
func (f *Factory) NewPeer(streamID string, events domain.PeerEvents) (domain.Peer, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{
		streamID: streamID,
		pc:       pc,
		events:   events,
		factory:  f,
	}

	pc.OnICECandidate(p.onICECandidate)
	pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("stream", streamID).Str("ice_state", state.String()).Msg("ICE connection state")
		events.OnICEConnectionStateChange(streamID, state.String())
	})
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("stream", streamID).Str("peer_state", state.String()).Msg("peer connection state")
	})
	pc.OnTrack(p.onTrack)

	if f.dataChannel {
		// in play mode the server opens the data channel
		pc.OnDataChannel(p.bindDataChannel)
	}

	return p, nil
}

func (p *Peer) onICECandidate(c *pion.ICECandidate) {
	if c == nil {
		log.Debug().Str("module", "webrtc").Str("stream", p.streamID).Msg("ICE gathering complete")
		return
	}

	init := c.ToJSON()
	cand := domain.Candidate{
		Candidate: init.Candidate,
		Protocol:  c.Protocol.String(),
	}
	if init.SDPMid != nil {
		cand.SDPMid = *init.SDPMid
	}
	if init.SDPMLineIndex != nil {
		cand.SDPMLineIndex = int(*init.SDPMLineIndex)
	}
	p.events.OnLocalCandidate(p.streamID, cand)
}

func (p *Peer) onTrack(track *pion.TrackRemote, receiver *pion.RTPReceiver) {
	codec := track.Codec()
	log.Info().
		Str("module", "webrtc").
		Str("stream", p.streamID).
		Str("kind", track.Kind().String()).
		Str("codec", codec.MimeType).
		Uint8("pt", uint8(codec.PayloadType)).
		Msg("got track")

	p.events.OnTrack(p.streamID, domain.Track{
		ID:       track.ID(),
		StreamID: track.StreamID(),
		Mid:      p.mid(receiver),
		Kind:     track.Kind().String(),
		Codec:    codec.MimeType,
	})

	if track.Kind() == pion.RTPCodecTypeVideo && codec.MimeType == pion.MimeTypeH264 && p.factory.sink != nil {
		go p.readVideoTrack(track)
		return
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := track.Read(buf); err != nil {
				return
			}
		}
	}()
}

func (p *Peer) mid(receiver *pion.RTPReceiver) string {
	for _, t := range p.pc.GetTransceivers() {
		if t.Receiver() == receiver {
			return t.Mid()
		}
	}
	return ""
}

func (p *Peer) readVideoTrack(track *pion.TrackRemote) {
	log.Info().Str("module", "webrtc").Str("stream", p.streamID).Msg("reading H264 video track")

	startCode := []byte{0x00, 0x00, 0x00, 0x01}
	depack := NewH264Depacketizer()

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			log.Debug().Err(err).Str("module", "webrtc").Str("stream", p.streamID).Msg("video track ended")
			return
		}

		for _, nalu := range depack.Push(pkt) {
			if len(nalu) == 0 {
				continue
			}
			p.factory.writeNALU(startCode, nalu)
		}
	}
}

func (f *Factory) writeNALU(startCode, nalu []byte) {
	f.sinkMu.Lock()
	defer f.sinkMu.Unlock()
	if _, err := f.sink.Write(startCode); err != nil {
		return
	}
	f.sink.Write(nalu)
}

func (p *Peer) bindDataChannel(dc *pion.DataChannel) {
	label := dc.Label()
	log.Info().Str("module", "webrtc").Str("stream", p.streamID).Str("label", label).Msg("remote data channel")

	dc.OnOpen(func() {
		log.Info().Str("module", "webrtc").Str("stream", p.streamID).Str("label", label).Msg("data channel opened")
		p.events.OnDataChannelOpen(p.streamID, dc)
	})
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		p.events.OnDataChannelMessage(p.streamID, msg.Data, msg.IsString)
	})
	dc.OnError(func(err error) {
		log.Error().Err(err).Str("module", "webrtc").Str("stream", p.streamID).Msg("data channel error")
		if dc.ReadyState() != pion.DataChannelStateClosed {
			p.events.OnDataChannelError(p.streamID, err)
		}
	})
	dc.OnClose(func() {
		log.Info().Str("module", "webrtc").Str("stream", p.streamID).Str("label", label).Msg("data channel closed")
		p.events.OnDataChannelClose(p.streamID)
	})
}

// SetRemoteDescription applies the server's offer or answer.
func (p *Peer) SetRemoteDescription(sd domain.SessionDescription) error {
	typ := pion.NewSDPType(sd.Type)
	if typ == pion.SDPTypeUnknown {
		return fmt.Errorf("unknown description type %q", sd.Type)
	}
	if err := p.pc.SetRemoteDescription(pion.SessionDescription{Type: typ, SDP: sd.SDP}); err != nil {
		return fmt.Errorf("apply remote %s: %w", sd.Type, err)
	}
	log.Info().Str("module", "webrtc").Str("stream", p.streamID).Str("type", sd.Type).Msg("remote description set")
	return nil
}

// CreateAnswer creates an answer to the remote offer with stereo enabled.
func (p *Peer) CreateAnswer() (domain.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	tuned, err := EnableStereo(answer.SDP)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: tuned}, nil
}

// SetLocalDescription applies a local description produced by CreateAnswer.
func (p *Peer) SetLocalDescription(sd domain.SessionDescription) error {
	if err := p.pc.SetLocalDescription(pion.SessionDescription{Type: pion.NewSDPType(sd.Type), SDP: sd.SDP}); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	log.Info().Str("module", "webrtc").Str("stream", p.streamID).Str("type", sd.Type).Msg("local description set")
	return nil
}

// AddICECandidate adds a remote candidate. The remote description must be set.
func (p *Peer) AddICECandidate(c domain.Candidate) error {
	idx := uint16(c.SDPMLineIndex)
	init := pion.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMLineIndex: &idx,
	}
	if c.SDPMid != "" {
		mid := c.SDPMid
		init.SDPMid = &mid
	}

	if err := p.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	log.Debug().Str("module", "webrtc").Str("stream", p.streamID).Str("candidate", c.Candidate).Msg("added remote ICE candidate")
	return nil
}

// Close shuts down the PeerConnection.
func (p *Peer) Close() error {
	return p.pc.Close()
}
