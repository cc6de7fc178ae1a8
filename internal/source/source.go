// Package source parses WebRTC stream URLs of the form
//
//	ws[s]://host[:port]/<app>/<stream>.webrtc[?token=&subscriberId=&subscriberCode=]
package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"wrtcplay/native/internal/domain"
)

// DefaultICEServers is used when no ICE servers are configured.
var DefaultICEServers = []domain.ICEServer{{URLs: []string{"stun:stun1.l.google.com:19302"}}}

// ErrNotWebRTC is returned for URLs that do not name a .webrtc stream.
var ErrNotWebRTC = errors.New("source: not a webrtc stream url")

var webrtcSuffix = regexp.MustCompile(`\.webrtc.*$`)

// Source is a parsed stream URL.
type Source struct {
	// WebSocketURL is the signaling endpoint: the stream URL with its last
	// path segment replaced by "websocket" and the query dropped.
	WebSocketURL   string
	StreamID       string
	Token          string
	SubscriberID   string
	SubscriberCode string
}

// CanHandle reports whether src names a WebRTC stream.
func CanHandle(src string) bool {
	return webrtcSuffix.MatchString(src)
}

// Parse splits a stream URL into its signaling endpoint, stream name and
// play credentials.
func Parse(src string) (Source, error) {
	if !CanHandle(src) {
		return Source{}, ErrNotWebRTC
	}

	u, err := url.Parse(src)
	if err != nil {
		return Source{}, fmt.Errorf("parse stream url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return Source{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	i := strings.LastIndex(u.Path, "/")
	last := u.Path[i+1:]
	name, _, ok := strings.Cut(last, ".webrtc")
	if !ok || name == "" {
		return Source{}, ErrNotWebRTC
	}

	q := u.Query()
	ws := *u
	ws.Path = u.Path[:i+1] + "websocket"
	ws.RawPath = ""
	ws.RawQuery = ""
	ws.Fragment = ""

	return Source{
		WebSocketURL:   ws.String(),
		StreamID:       name,
		Token:          q.Get("token"),
		SubscriberID:   q.Get("subscriberId"),
		SubscriberCode: q.Get("subscriberCode"),
	}, nil
}

type iceServerJSON struct {
	URLs       json.RawMessage `json:"urls"`
	Username   string          `json:"username,omitempty"`
	Credential string          `json:"credential,omitempty"`
}

// ParseICEServers decodes a JSON array of ICE servers in the browser
// RTCIceServer shape, where "urls" is a string or an array of strings.
// An empty input yields DefaultICEServers.
func ParseICEServers(raw string) ([]domain.ICEServer, error) {
	if strings.TrimSpace(raw) == "" {
		return DefaultICEServers, nil
	}

	var entries []iceServerJSON
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("parse ice servers: %w", err)
	}

	servers := make([]domain.ICEServer, 0, len(entries))
	for i, e := range entries {
		var urls []string
		var one string
		if err := json.Unmarshal(e.URLs, &one); err == nil {
			urls = []string{one}
		} else if err := json.Unmarshal(e.URLs, &urls); err != nil {
			return nil, fmt.Errorf("ice server %d: urls must be a string or an array of strings", i)
		}
		if len(urls) == 0 {
			return nil, fmt.Errorf("ice server %d: no urls", i)
		}
		servers = append(servers, domain.ICEServer{
			URLs:       urls,
			Username:   e.Username,
			Credential: e.Credential,
		})
	}
	return servers, nil
}
