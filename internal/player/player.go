// Package player is the session façade a media player host embeds: it turns a
// stream URL into a signaling connection, a playback peer and a stream of
// domain events, and reacts to those events on the host.
package player

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"wrtcplay/native/internal/domain"
	"wrtcplay/native/internal/loop"
	"wrtcplay/native/internal/signal"
	"wrtcplay/native/internal/source"
	"wrtcplay/native/internal/viewer"
	"wrtcplay/native/internal/webrtc"

	"github.com/rs/zerolog/log"
)

const (
	DefaultEventBuffer = 64
	DefaultResumeDelay = 2 * time.Second
)

// Options configures a Player. The zero value is usable except for
// Autoplay and DataChannel, which default to off.
type Options struct {
	// ICEServers defaults to source.DefaultICEServers.
	ICEServers     []domain.ICEServer
	CandidateTypes []string
	PingInterval   time.Duration
	DataChannel    bool
	ViewerInfo     string
	EventBuffer    int
	MaxMessageSize int
	// Autoplay requests the stream as soon as signaling is connected.
	Autoplay    bool
	ResumeDelay time.Duration
}

// builders creates the collaborators of a Player.
type builders struct {
	signaler func(url string, pingInterval time.Duration, h domain.Handler) domain.Signaler
	factory  func(opts Options, sink io.Writer) (domain.PeerFactory, error)
}

var defaultBuilders = builders{
	signaler: func(url string, pingInterval time.Duration, h domain.Handler) domain.Signaler {
		return signal.NewClient(signal.Config{URL: url, PingInterval: pingInterval}, h)
	},
	factory: func(opts Options, sink io.Writer) (domain.PeerFactory, error) {
		return webrtc.NewFactory(webrtc.FactoryConfig{
			ICEServers:  opts.ICEServers,
			DataChannel: opts.DataChannel,
			VideoSink:   sink,
		})
	},
}

// Player plays one WebRTC stream into a Host.
type Player struct {
	src    source.Source
	opts   Options
	host   domain.Host
	loop   *loop.Loop
	viewer *viewer.Viewer
	signal domain.Signaler
	events chan domain.Event

	mu          sync.Mutex
	resolutions []int
	selected    int

	// owned by the loop
	resume *time.Timer

	disposed    atomic.Bool
	disposeOnce sync.Once
	done        chan struct{}
}

// New parses src and wires a Player for it. The host may be nil.
func New(src string, opts Options, host domain.Host) (*Player, error) {
	return newPlayer(src, opts, host, defaultBuilders)
}

func newPlayer(src string, opts Options, host domain.Host, b builders) (*Player, error) {
	parsed, err := source.Parse(src)
	if err != nil {
		return nil, err
	}
	if host == nil {
		host = nopHost{}
	}
	if opts.ICEServers == nil {
		opts.ICEServers = source.DefaultICEServers
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	if opts.ResumeDelay <= 0 {
		opts.ResumeDelay = DefaultResumeDelay
	}

	factory, err := b.factory(opts, host.MediaSink())
	if err != nil {
		return nil, fmt.Errorf("create peer factory: %w", err)
	}

	p := &Player{
		src:    parsed,
		opts:   opts,
		host:   host,
		loop:   loop.New(),
		events: make(chan domain.Event, opts.EventBuffer),
		done:   make(chan struct{}),
	}
	p.viewer = viewer.New(viewer.Config{
		ViewerInfo:     opts.ViewerInfo,
		CandidateTypes: opts.CandidateTypes,
		MaxMessageSize: opts.MaxMessageSize,
	}, p.loop, factory, sinkFunc(p.emit))
	p.signal = b.signaler(parsed.WebSocketURL, opts.PingInterval, p.viewer)
	p.viewer.SetSignaler(p.signal)

	go p.loop.Run(context.Background())

	log.Info().
		Str("module", "player").
		Str("stream", parsed.StreamID).
		Str("websocket", parsed.WebSocketURL).
		Msg("player created")
	return p, nil
}

// StreamID returns the stream name taken from the URL.
func (p *Player) StreamID() string {
	return p.src.StreamID
}

// Start connects to the signaling server.
func (p *Player) Start(ctx context.Context) error {
	if p.disposed.Load() {
		return signal.ErrClosed
	}
	return p.signal.Connect(ctx)
}

// Play requests the stream with the credentials from the URL.
func (p *Player) Play() {
	p.viewer.Play(p.src.StreamID, viewer.Auth{
		Token:          p.src.Token,
		SubscriberID:   p.src.SubscriberID,
		SubscriberCode: p.src.SubscriberCode,
	})
}

// Stop ends the stream.
func (p *Player) Stop() {
	p.viewer.Stop(p.src.StreamID)
}

// GetInfo requests the available renditions.
func (p *Player) GetInfo() {
	p.viewer.GetStreamInfo(p.src.StreamID)
}

// ChangeQuality pins the stream to height; 0 selects automatically.
func (p *Player) ChangeQuality(height int) {
	p.viewer.ForceStreamQuality(p.src.StreamID, height)
	p.loop.Post(func() {
		if p.disposed.Load() {
			return
		}
		p.mu.Lock()
		p.selected = height
		p.mu.Unlock()
		p.host.Trigger("quality-changed", height)
	})
}

// SendData sends binary data over the stream's data channel.
func (p *Player) SendData(data []byte) {
	p.viewer.SendData(p.src.StreamID, data, false)
}

// SendText sends a text message over the stream's data channel.
func (p *Player) SendText(text string) {
	p.viewer.SendData(p.src.StreamID, []byte(text), true)
}

// PeerMessage relays an application message through the server. data is
// encoded as JSON.
func (p *Player) PeerMessage(definition string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal peer message: %w", err)
	}
	p.viewer.PeerMessage(p.src.StreamID, definition, raw)
	return nil
}

// Events returns the domain events. Events that do not fit in the buffer
// are dropped. The channel is closed once Dispose completes.
func (p *Player) Events() <-chan domain.Event {
	return p.events
}

// Resolutions returns the resolution ladder of the last stream information,
// highest first after the automatic entry 0.
func (p *Player) Resolutions() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.resolutions...)
}

// SelectedResolution returns the height last chosen with ChangeQuality.
func (p *Player) SelectedResolution() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected
}

// Dispose stops the stream and releases everything. It never blocks and may
// be called from inside an event reaction; Done reports completion.
func (p *Player) Dispose() {
	p.disposeOnce.Do(func() {
		p.disposed.Store(true)
		log.Info().Str("module", "player").Str("stream", p.src.StreamID).Msg("disposing")

		p.viewer.Stop(p.src.StreamID)
		p.viewer.Close()
		if !p.loop.Post(p.finish) {
			p.finish()
		}
	})
}

// Done is closed when Dispose has completed.
func (p *Player) Done() <-chan struct{} {
	return p.done
}

func (p *Player) finish() {
	if p.resume != nil {
		p.resume.Stop()
		p.resume = nil
	}
	p.loop.Close()
	close(p.events)
	close(p.done)
	log.Info().Str("module", "player").Str("stream", p.src.StreamID).Msg("disposed")
}

// emit runs on the loop for every event the viewer raises.
func (p *Player) emit(ev domain.Event) {
	if p.disposed.Load() {
		return
	}

	log.Debug().Str("module", "player").Str("event", ev.Name()).Msg("event")
	p.react(ev)

	select {
	case p.events <- ev:
	default:
		log.Warn().Str("module", "player").Str("event", ev.Name()).Msg("event buffer full, dropping event")
	}
}

func (p *Player) react(ev domain.Event) {
	p.host.Trigger("webrtc-info", ev)

	switch e := ev.(type) {
	case domain.Initialized:
		if p.opts.Autoplay {
			p.Play()
		}
	case domain.PlayStarted:
		p.host.Play()
		p.host.Trigger("play", e)
	case domain.PlayFinished:
		p.mu.Lock()
		p.resolutions = nil
		p.selected = viewer.AutoResolution
		p.mu.Unlock()
		p.host.Trigger("ended", e)
	case domain.StreamInformation:
		p.mu.Lock()
		p.resolutions = append([]int(nil), e.Resolutions...)
		p.selected = viewer.AutoResolution
		p.mu.Unlock()
		p.host.Trigger("resolutions-changed", e.Resolutions)
	case domain.ResolutionChangeInProgress:
		p.host.Pause()
		p.scheduleResume()
	case domain.DataReceived:
		p.host.Trigger("webrtc-data-received", e)
	case domain.Error:
		log.Warn().Str("module", "player").Str("kind", string(e.Kind)).Str("definition", e.Definition).Err(e.Err).Msg("session error")
		p.host.Trigger("webrtc-error", e)
	}
}

// scheduleResume resumes host playback after the resume delay. A newer
// resolution change restarts the delay.
func (p *Player) scheduleResume() {
	if p.resume != nil {
		p.resume.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(p.opts.ResumeDelay, func() {
		p.loop.Post(func() {
			if p.disposed.Load() || p.resume != t {
				return
			}
			p.resume = nil
			p.host.Play()
		})
	})
	p.resume = t
}

type sinkFunc func(domain.Event)

func (f sinkFunc) Emit(ev domain.Event) { f(ev) }

type nopHost struct{}

func (nopHost) Play()                {}
func (nopHost) Pause()               {}
func (nopHost) Trigger(string, any)  {}
func (nopHost) MediaSink() io.Writer { return nil }
