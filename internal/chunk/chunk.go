// Package chunk frames large binary data channel messages.
//
// A message is sent as one header frame followed by body frames:
//
//	header: [token uint32][total length uint32]
//	body:   [token uint32][up to MaxChunkSize bytes]
//
// Integers are little-endian. The token is shared by every frame of a message
// and distinguishes concurrently transferred messages.
package chunk

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// TokenSize is the length of the token prefix on every frame.
	TokenSize = 4
	// HeaderSize is the length of a header frame.
	HeaderSize = 8
	// MaxChunkSize is the largest body slice carried by one frame.
	MaxChunkSize = 16000

	// DefaultMaxMessageSize bounds the allocation a single header may request.
	DefaultMaxMessageSize = 64 << 20
)

var (
	// ErrShortFrame is returned for a frame without a complete token.
	ErrShortFrame = errors.New("chunk: frame shorter than token")
	// ErrMalformedHeader is returned when the first frame of a token is not a header.
	ErrMalformedHeader = errors.New("chunk: malformed header")
	// ErrDuplicateHeader is returned for a second header before any body frame.
	ErrDuplicateHeader = errors.New("chunk: repeated header before body")
	// ErrFrameOverflow is returned for a body frame past the declared length.
	ErrFrameOverflow = errors.New("chunk: frame exceeds declared length")
	// ErrMessageTooLarge is returned for a header declaring more than the size limit.
	ErrMessageTooLarge = errors.New("chunk: declared length too large")
)

// NewToken returns a random message token.
func NewToken() uint32 {
	var b [TokenSize]byte
	_, _ = rand.Read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}

// Split frames payload for sending. The first frame is the header.
func Split(payload []byte, token uint32) [][]byte {
	frames := make([][]byte, 0, 1+(len(payload)+MaxChunkSize-1)/MaxChunkSize)

	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], token)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(payload)))
	frames = append(frames, header)

	for sent := 0; sent < len(payload); {
		size := min(len(payload)-sent, MaxChunkSize)
		frame := make([]byte, TokenSize+size)
		binary.LittleEndian.PutUint32(frame[0:4], token)
		copy(frame[TokenSize:], payload[sent:sent+size])
		frames = append(frames, frame)
		sent += size
	}
	return frames
}

type buffer struct {
	total    int
	received int
	data     []byte
}

// Reassembler rebuilds messages from frames. It is not safe for concurrent use.
type Reassembler struct {
	maxSize int
	buffers map[uint32]*buffer
}

// NewReassembler creates a Reassembler that rejects messages larger than
// maxSize bytes. A non-positive maxSize selects DefaultMaxMessageSize.
func NewReassembler(maxSize int) *Reassembler {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &Reassembler{
		maxSize: maxSize,
		buffers: make(map[uint32]*buffer),
	}
}

// Feed consumes one frame. When the frame completes a message, Feed returns
// it with done set and forgets the token. A frame that fails validation is
// dropped and reported through err; in-progress messages are left untouched.
func (r *Reassembler) Feed(frame []byte) (msg []byte, done bool, err error) {
	if len(frame) < TokenSize {
		return nil, false, ErrShortFrame
	}
	token := binary.LittleEndian.Uint32(frame[0:4])

	buf, ok := r.buffers[token]
	if !ok {
		if len(frame) != HeaderSize {
			return nil, false, fmt.Errorf("%w: token %d: %d bytes", ErrMalformedHeader, token, len(frame))
		}
		declared := binary.LittleEndian.Uint32(frame[4:8])
		if uint64(declared) > uint64(r.maxSize) {
			return nil, false, fmt.Errorf("%w: token %d: %d bytes", ErrMessageTooLarge, token, declared)
		}
		total := int(declared)
		if total == 0 {
			return []byte{}, true, nil
		}
		r.buffers[token] = &buffer{total: total, data: make([]byte, total)}
		return nil, false, nil
	}

	body := frame[TokenSize:]
	// Before any body byte, an 8 byte frame can only be a body when the
	// message is exactly 4 bytes long. Otherwise it is a repeated header.
	if buf.received == 0 && len(frame) == HeaderSize && buf.total != TokenSize {
		return nil, false, fmt.Errorf("%w: token %d", ErrDuplicateHeader, token)
	}
	if buf.received+len(body) > buf.total {
		return nil, false, fmt.Errorf("%w: token %d: %d+%d > %d", ErrFrameOverflow, token, buf.received, len(body), buf.total)
	}

	copy(buf.data[buf.received:], body)
	buf.received += len(body)
	if buf.received < buf.total {
		return nil, false, nil
	}

	delete(r.buffers, token)
	return buf.data, true, nil
}

// Pending returns the number of messages in progress.
func (r *Reassembler) Pending() int {
	return len(r.buffers)
}

// Reset discards every message in progress.
func (r *Reassembler) Reset() {
	clear(r.buffers)
}
