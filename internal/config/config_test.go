package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WRTC_SRC", "wss://h/app/s.webrtc")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Src != "wss://h/app/s.webrtc" {
		t.Errorf("unexpected src %q", cfg.Src)
	}
	if cfg.PingInterval != 3*time.Second || cfg.ResumeDelay != 2*time.Second {
		t.Errorf("unexpected durations: ping=%s resume=%s", cfg.PingInterval, cfg.ResumeDelay)
	}
	if len(cfg.CandidateTypes) != 2 || cfg.CandidateTypes[0] != "udp" || cfg.CandidateTypes[1] != "tcp" {
		t.Errorf("unexpected candidate types %v", cfg.CandidateTypes)
	}
	if !cfg.DataChannel || !cfg.Autoplay {
		t.Error("expected data channel and autoplay enabled by default")
	}
	if cfg.EventBuffer != 64 || cfg.MaxMessageSize != 64<<20 || cfg.LogLevel != "info" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !strings.HasPrefix(cfg.ViewerInfo, "wrtcplay-") {
		t.Errorf("expected generated viewer info, got %q", cfg.ViewerInfo)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WRTC_SRC", "wss://h/app/s.webrtc")
	t.Setenv("WRTC_CANDIDATE_TYPES", "udp")
	t.Setenv("WRTC_PING_INTERVAL", "10s")
	t.Setenv("WRTC_AUTOPLAY", "false")
	t.Setenv("WRTC_VIEWER_INFO", "kiosk-7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.CandidateTypes) != 1 || cfg.CandidateTypes[0] != "udp" {
		t.Errorf("unexpected candidate types %v", cfg.CandidateTypes)
	}
	if cfg.PingInterval != 10*time.Second {
		t.Errorf("expected 10s ping interval, got %s", cfg.PingInterval)
	}
	if cfg.Autoplay {
		t.Error("expected autoplay disabled")
	}
	if cfg.ViewerInfo != "kiosk-7" {
		t.Errorf("expected viewer info kiosk-7, got %q", cfg.ViewerInfo)
	}
}

func TestLoad_FileAndArgument(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "wrtc.yaml")
	yaml := "src: wss://file/app/a.webrtc\nevent_buffer: 8\nice_servers: '[{\"urls\":\"stun:stun.example.com\"}]'\n"
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("WRTC_CONFIG", file)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Src != "wss://file/app/a.webrtc" || cfg.EventBuffer != 8 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if !strings.Contains(cfg.ICEServers, "stun.example.com") {
		t.Errorf("unexpected ice servers %q", cfg.ICEServers)
	}

	cfg, err = Load("wss://arg/app/b.webrtc")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Src != "wss://arg/app/b.webrtc" {
		t.Errorf("argument must override the file, got %q", cfg.Src)
	}
}

func TestLoad_RequiresSrc(t *testing.T) {
	t.Setenv("WRTC_SRC", "")
	if _, err := Load(""); err == nil {
		t.Error("expected error without a stream url")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("WRTC_SRC", "wss://h/app/s.webrtc")
	t.Setenv("WRTC_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(""); err == nil {
		t.Error("expected error for a missing config file")
	}
}
