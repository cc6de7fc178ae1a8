package main

import (
	"context"
	"fmt"
	"io"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"

	"wrtcplay/native/internal/config"
	"wrtcplay/native/internal/domain"
	"wrtcplay/native/internal/player"
	"wrtcplay/native/internal/source"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const helpText = `wrtcplay - Play a WebRTC stream from a media server

Usage:
  wrtcplay [options] <stream-url>

The stream URL has the form
  wss://host:port/<app>/<stream>.webrtc[?token=&subscriberId=&subscriberCode=]

The raw H264 video is written to stdout. Pipe to ffplay or ffmpeg for
playback or recording.

Environment Variables:
  WRTC_SRC              Stream URL, if not given as an argument
  WRTC_CONFIG           Optional YAML config file
  WRTC_ICE_SERVERS      JSON array of ICE servers
  WRTC_CANDIDATE_TYPES  Accepted candidate protocols (default udp,tcp)
  WRTC_VIEWER_INFO      Viewer description sent with play
  WRTC_LOG_LEVEL        trace, debug, info, warn or error (default info)

Examples:
  # Live playback
  wrtcplay wss://media.example.com:5443/LiveApp/stream1.webrtc | ffplay -f h264 -

  # Record to MP4
  wrtcplay wss://media.example.com:5443/LiveApp/stream1.webrtc | ffmpeg -f h264 -i - -c copy output.mp4

Options:
  -h, --help  Show this help message
`

// cliHost writes media to stdout and logs host actions.
type cliHost struct {
	out io.Writer
}

func (h cliHost) Play()  { log.Info().Str("module", "main").Msg("playing") }
func (h cliHost) Pause() { log.Info().Str("module", "main").Msg("paused") }

func (h cliHost) Trigger(name string, payload any) {
	if name == "webrtc-info" {
		return
	}
	log.Debug().Str("module", "main").Str("trigger", name).Interface("payload", payload).Msg("host event")
}

func (h cliHost) MediaSink() io.Writer { return h.out }

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		fmt.Print(helpText)
		os.Exit(0)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var src string
	if len(os.Args) > 1 {
		src = os.Args[1]
	}
	cfg, err := config.Load(src)
	if err != nil {
		log.Fatal().Err(err).Str("module", "main").Msg("load config")
	}
	if level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Str("module", "main").Str("level", cfg.LogLevel).Msg("unknown log level, using info")
	}

	iceServers, err := source.ParseICEServers(cfg.ICEServers)
	if err != nil {
		log.Fatal().Err(err).Str("module", "main").Msg("ice servers")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p, err := player.New(cfg.Src, player.Options{
		ICEServers:     iceServers,
		CandidateTypes: cfg.CandidateTypes,
		PingInterval:   cfg.PingInterval,
		DataChannel:    cfg.DataChannel,
		ViewerInfo:     cfg.ViewerInfo,
		EventBuffer:    cfg.EventBuffer,
		MaxMessageSize: cfg.MaxMessageSize,
		Autoplay:       cfg.Autoplay,
		ResumeDelay:    cfg.ResumeDelay,
	}, cliHost{out: os.Stdout})
	if err != nil {
		log.Fatal().Err(err).Str("module", "main").Msg("create player")
	}

	if err := p.Start(ctx); err != nil {
		log.Fatal().Err(err).Str("module", "main").Msg("signal connect")
	}
	if !cfg.Autoplay {
		p.Play()
	}

	exitCode := run(ctx, p)

	log.Info().Str("module", "main").Msg("shutting down")
	p.Dispose()
	<-p.Done()
	log.Info().Str("module", "main").Msg("done")
	os.Exit(exitCode)
}

// run logs events until the stream ends, the connection closes or ctx is done.
func run(ctx context.Context, p *player.Player) int {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "main").Msg("interrupted")
			return 0
		case ev, ok := <-p.Events():
			if !ok {
				return 0
			}
			switch e := ev.(type) {
			case domain.PlayStarted:
				log.Info().Str("module", "main").Str("stream", e.StreamID).Msg("play started")
			case domain.PlayFinished:
				log.Info().Str("module", "main").Str("stream", e.StreamID).Msg("play finished")
				return 0
			case domain.StreamInformation:
				log.Info().Str("module", "main").Ints("resolutions", e.Resolutions).Msg("stream information")
			case domain.ICEConnectionStateChanged:
				log.Info().Str("module", "main").Str("state", e.State).Msg("ice connection state")
			case domain.DataReceived:
				log.Info().Str("module", "main").Int("bytes", len(e.Data)).Bool("text", e.Text).Msg("data received")
			case domain.Closed:
				log.Warn().Str("module", "main").Msg("signaling connection closed")
				return 1
			case domain.Error:
				log.Error().Err(e).Str("module", "main").Msg("session error")
				switch e.Kind {
				case domain.ErrorKindServer, domain.ErrorKindRemoteDescriptionRejected, domain.ErrorKindTransport:
					return 1
				}
			default:
				log.Debug().Str("module", "main").Str("event", ev.Name()).Msg("event")
			}
		}
	}
}
