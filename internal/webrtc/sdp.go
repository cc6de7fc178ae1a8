package webrtc

import (
	"fmt"
	"strings"

	"github.com/pion/sdp/v3"
)

const (
	inbandFEC = "useinbandfec=1"
	stereo    = "stereo=1"
)

// EnableStereo advertises stereo reception on every Opus-style fmtp line that
// carries in-band FEC.
func EnableStereo(raw string) (string, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return "", fmt.Errorf("parse sdp: %w", err)
	}

	changed := false
	for _, m := range desc.MediaDescriptions {
		for i, attr := range m.Attributes {
			if attr.Key != "fmtp" || !strings.Contains(attr.Value, inbandFEC) || strings.Contains(attr.Value, stereo) {
				continue
			}
			m.Attributes[i].Value = strings.Replace(attr.Value, inbandFEC, inbandFEC+";"+stereo, 1)
			changed = true
		}
	}
	if !changed {
		return raw, nil
	}

	out, err := desc.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal sdp: %w", err)
	}
	return string(out), nil
}
