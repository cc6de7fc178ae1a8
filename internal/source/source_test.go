package source

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want Source
	}{
		{
			name: "plain",
			src:  "wss://media.example.com:5443/LiveApp/stream1.webrtc",
			want: Source{
				WebSocketURL: "wss://media.example.com:5443/LiveApp/websocket",
				StreamID:     "stream1",
			},
		},
		{
			name: "credentials",
			src:  "ws://localhost:5080/WebRTCAppEE/cam.webrtc?token=abc&subscriberId=sub1&subscriberCode=424242",
			want: Source{
				WebSocketURL:   "ws://localhost:5080/WebRTCAppEE/websocket",
				StreamID:       "cam",
				Token:          "abc",
				SubscriberID:   "sub1",
				SubscriberCode: "424242",
			},
		},
		{
			name: "https maps to wss",
			src:  "https://media.example.com/LiveApp/s.webrtc?token=t",
			want: Source{
				WebSocketURL: "wss://media.example.com/LiveApp/websocket",
				StreamID:     "s",
				Token:        "t",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.src)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, src := range []string{
		"wss://media.example.com/LiveApp/stream1.m3u8",
		"wss://media.example.com/LiveApp/.webrtc",
		"ftp://media.example.com/LiveApp/stream1.webrtc",
	} {
		if _, err := Parse(src); err == nil {
			t.Errorf("%s: expected error", src)
		}
	}
	if _, err := Parse("rtmp://x/app/s.flv"); !errors.Is(err, ErrNotWebRTC) {
		t.Errorf("expected ErrNotWebRTC, got %v", err)
	}
}

func TestCanHandle(t *testing.T) {
	if !CanHandle("wss://h/app/s.webrtc?token=1") {
		t.Error("expected .webrtc url to be handled")
	}
	if CanHandle("wss://h/app/s.mp4") {
		t.Error("expected non-webrtc url to be rejected")
	}
}

func TestParseICEServers(t *testing.T) {
	servers, err := ParseICEServers("")
	if err != nil || len(servers) != 1 || servers[0].URLs[0] != "stun:stun1.l.google.com:19302" {
		t.Fatalf("expected default stun server, got %v, %v", servers, err)
	}

	servers, err = ParseICEServers(`[
		{"urls": "stun:stun.example.com:3478"},
		{"urls": ["turn:turn.example.com:3478?transport=udp", "turn:turn.example.com:3478?transport=tcp"], "username": "u", "credential": "p"}
	]`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}
	if len(servers[1].URLs) != 2 || servers[1].Username != "u" || servers[1].Credential != "p" {
		t.Errorf("unexpected turn server: %+v", servers[1])
	}

	for _, bad := range []string{`{`, `[{"urls": 5}]`, `[{"urls": []}]`} {
		if _, err := ParseICEServers(bad); err == nil {
			t.Errorf("%s: expected error", bad)
		}
	}
}
