// internal/mk3/frame.go
package mk3

import (
	"errors"
	"fmt"
)

// Frame envelope:
//
//	len(1) 0xFF(1) cmd(1) data(len-2) checksum(1)
//
// len counts the bytes between itself and the checksum.
// checksum makes the sum of every frame byte 0 mod 256.

const (
	frameMarker  byte = 0xFF
	maxFrameBody      = 0x7F
)

// Commands.
const (
	cmdInfo      byte = 'F'
	cmdLED       byte = 'L'
	cmdState     byte = 'S'
	cmdInterface byte = 'H'
	cmdVersion   byte = 'V'
)

// Frame is one decoded envelope.
type Frame struct {
	Command byte
	Data    []byte
}

// Encode builds a request frame.
func Encode(cmd byte, data ...byte) ([]byte, error) {
	n := 2 + len(data)
	if n > maxFrameBody {
		return nil, fmt.Errorf("mk3: frame body too long: %d", n)
	}

	out := make([]byte, 0, n+2)
	out = append(out, byte(n), frameMarker, cmd)
	out = append(out, data...)

	var sum byte
	for _, b := range out {
		sum += b
	}
	return append(out, -sum), nil
}

var errBadChecksum = errors.New("mk3: bad checksum")

// Decoder reassembles frames from a byte stream.
// On a bad envelope it drops one byte and resynchronizes.
type Decoder struct {
	buf     []byte
	dropped int
}

// Feed appends raw bytes and returns every complete frame.
func (d *Decoder) Feed(p []byte) []Frame {
	d.buf = append(d.buf, p...)

	var frames []Frame
	for {
		f, consumed, err := parseFrame(d.buf)
		if consumed == 0 {
			break
		}
		d.buf = d.buf[consumed:]
		if err != nil {
			d.dropped++
			continue
		}
		frames = append(frames, f)
	}

	if len(d.buf) == 0 {
		d.buf = nil
	}
	return frames
}

// Dropped returns the number of bytes discarded while resynchronizing.
func (d *Decoder) Dropped() int { return d.dropped }

// parseFrame returns consumed == 0 when more bytes are needed.
func parseFrame(b []byte) (Frame, int, error) {
	if len(b) < 2 {
		return Frame{}, 0, nil
	}

	n := int(b[0])
	if n < 2 || n > maxFrameBody || b[1] != frameMarker {
		return Frame{}, 1, errors.New("mk3: bad envelope")
	}
	if len(b) < n+2 {
		return Frame{}, 0, nil
	}

	var sum byte
	for _, c := range b[:n+2] {
		sum += c
	}
	if sum != 0 {
		return Frame{}, 1, errBadChecksum
	}

	data := make([]byte, n-2)
	copy(data, b[3:n+1])
	return Frame{Command: b[2], Data: data}, n + 2, nil
}
