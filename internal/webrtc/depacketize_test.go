package webrtc

import (
	"bytes"
	"testing"

	"github.com/pion/rtp"
)

func packet(seq uint16, payload ...byte) *rtp.Packet {
	return &rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 102, SequenceNumber: seq, SSRC: 1},
		Payload: payload,
	}
}

// fua builds an FU-A fragment of an IDR slice with NRI 3.
func fua(seq uint16, start, end bool, data ...byte) *rtp.Packet {
	header := byte(0x05)
	if start {
		header |= 0x80
	}
	if end {
		header |= 0x40
	}
	return packet(seq, append([]byte{0x7c, header}, data...)...)
}

func TestPush(t *testing.T) {
	idr := []byte{0x65, 0x10, 0x20, 0x30, 0x40}

	tests := []struct {
		name    string
		packets []*rtp.Packet
		want    [][]byte
	}{
		{
			name:    "single NAL unit",
			packets: []*rtp.Packet{packet(7, 0x41, 0x9a, 0x02)},
			want:    [][]byte{{0x41, 0x9a, 0x02}},
		},
		{
			name:    "STAP-A carrying SPS and PPS",
			packets: []*rtp.Packet{packet(7, 0x78, 0x00, 0x03, 0x67, 0x42, 0x00, 0x00, 0x02, 0x68, 0xce)},
			want:    [][]byte{{0x67, 0x42, 0x00}, {0x68, 0xce}},
		},
		{
			name:    "STAP-A stops at a zero size entry",
			packets: []*rtp.Packet{packet(7, 0x78, 0x00, 0x02, 0x09, 0xf0, 0x00, 0x00, 0x00, 0x01, 0x06)},
			want:    [][]byte{{0x09, 0xf0}},
		},
		{
			name:    "STAP-A truncated entry",
			packets: []*rtp.Packet{packet(7, 0x78, 0x00, 0x02, 0x09, 0xf0, 0x00, 0x05, 0x06)},
			want:    [][]byte{{0x09, 0xf0}},
		},
		{
			name: "FU-A reassembled across three packets",
			packets: []*rtp.Packet{
				fua(10, true, false, 0x10, 0x20),
				fua(11, false, false, 0x30),
				fua(12, false, true, 0x40),
			},
			want: [][]byte{idr},
		},
		{
			name: "FU-A across sequence wrap",
			packets: []*rtp.Packet{
				fua(65535, true, false, 0x10, 0x20),
				fua(0, false, false, 0x30),
				fua(1, false, true, 0x40),
			},
			want: [][]byte{idr},
		},
		{
			name: "FU-A with a lost middle fragment is dropped",
			packets: []*rtp.Packet{
				fua(10, true, false, 0x10, 0x20),
				fua(12, false, true, 0x40),
			},
		},
		{
			name:    "FU-A continuation without a start",
			packets: []*rtp.Packet{fua(10, false, true, 0x40)},
		},
		{
			name: "FU-A restarts after an interrupted chain",
			packets: []*rtp.Packet{
				fua(10, true, false, 0xff),
				fua(11, true, false, 0x10, 0x20),
				fua(12, false, false, 0x30),
				fua(13, false, true, 0x40),
			},
			want: [][]byte{idr},
		},
		{
			name: "single NAL unit abandons a partial FU-A",
			packets: []*rtp.Packet{
				fua(10, true, false, 0x10),
				packet(11, 0x41, 0x01),
				fua(12, false, true, 0x40),
			},
			want: [][]byte{{0x41, 0x01}},
		},
		{
			name:    "empty payload",
			packets: []*rtp.Packet{packet(7)},
		},
		{
			name:    "truncated FU-A",
			packets: []*rtp.Packet{packet(7, 0x7c)},
		},
		{
			name:    "unsupported aggregation type",
			packets: []*rtp.Packet{packet(7, 0x19, 0x00, 0x01, 0x00, 0x02, 0x09, 0xf0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewH264Depacketizer()
			var got [][]byte
			for _, pkt := range tt.packets {
				got = append(got, d.Push(pkt)...)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d NAL units, got %d: %x", len(tt.want), len(got), got)
			}
			for i := range tt.want {
				if !bytes.Equal(got[i], tt.want[i]) {
					t.Errorf("NAL unit %d: expected %x, got %x", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestPush_MarshalledPacket(t *testing.T) {
	sent := packet(4242, 0x41, 0x9a, 0x02)
	raw, err := sent.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var received rtp.Packet
	if err := received.Unmarshal(raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	nalus := NewH264Depacketizer().Push(&received)
	if len(nalus) != 1 || !bytes.Equal(nalus[0], sent.Payload) {
		t.Errorf("expected %x, got %x", sent.Payload, nalus)
	}
}

func TestPush_DepacketizersDoNotShareFragments(t *testing.T) {
	a := NewH264Depacketizer()
	b := NewH264Depacketizer()

	a.Push(fua(1, true, false, 0xaa))
	b.Push(fua(1, true, false, 0x10, 0x20))
	b.Push(fua(2, false, false, 0x30))

	if got := a.Push(fua(2, false, true, 0xbb)); len(got) != 1 || !bytes.Equal(got[0], []byte{0x65, 0xaa, 0xbb}) {
		t.Errorf("stream a: expected 65aabb, got %x", got)
	}
	if got := b.Push(fua(3, false, true, 0x40)); len(got) != 1 || !bytes.Equal(got[0], []byte{0x65, 0x10, 0x20, 0x30, 0x40}) {
		t.Errorf("stream b: expected 6510203040, got %x", got)
	}
}
