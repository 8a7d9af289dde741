package transport

import (
	"encoding/binary"
	"fmt"
)

// Stream framing: a direction marker, a little endian length, then the frame.
const (
	InboundMarker  = '<'
	OutboundMarker = '>'

	headerLen = 3
	// MaxFrameLen is the largest frame accepted in either direction.
	MaxFrameLen = 1024
)

// Encode wraps frame in a stream header with the given marker.
func Encode(marker byte, frame []byte) ([]byte, error) {
	if len(frame) > MaxFrameLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}
	out := make([]byte, headerLen, headerLen+len(frame))
	out[0] = marker
	binary.LittleEndian.PutUint16(out[1:], uint16(len(frame)))
	return append(out, frame...), nil
}

// Decoder reassembles frames from arbitrarily split stream reads. Bytes that
// do not start a frame with the expected marker, or headers announcing an
// oversized frame, are skipped.
type Decoder struct {
	marker  byte
	buf     []byte
	skipped int
}

func NewDecoder(marker byte) *Decoder {
	return &Decoder{marker: marker}
}

// Feed appends stream bytes.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next returns the next complete frame, if one is buffered.
func (d *Decoder) Next() ([]byte, bool) {
	for {
		i := 0
		for i < len(d.buf) && d.buf[i] != d.marker {
			i++
		}
		d.skipped += i
		d.buf = d.buf[i:]

		if len(d.buf) < headerLen {
			return nil, false
		}
		n := int(binary.LittleEndian.Uint16(d.buf[1:]))
		if n > MaxFrameLen {
			// Not a real header; resynchronise on the next marker.
			d.buf = d.buf[1:]
			d.skipped++
			continue
		}
		if len(d.buf) < headerLen+n {
			return nil, false
		}
		frame := make([]byte, n)
		copy(frame, d.buf[headerLen:headerLen+n])
		d.buf = d.buf[headerLen+n:]
		if n == 0 {
			continue
		}
		return frame, true
	}
}

// Skipped returns the number of bytes discarded while resynchronising.
func (d *Decoder) Skipped() int {
	return d.skipped
}
