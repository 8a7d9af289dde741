// Package buffer implements the little-endian primitives used to encode and
// decode protocol frames.
package buffer

import (
	"encoding/binary"
	"unicode/utf8"
)

// Writer accumulates an outgoing frame. The zero value is ready to use.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer whose first byte is code.
func NewWriter(code byte) *Writer {
	w := &Writer{buf: make([]byte, 0, 64)}
	w.WriteU8(code)
	return w
}

// Bytes returns the encoded frame. The slice aliases the writer's storage.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) WriteU8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteI8(v int8) {
	w.buf = append(w.buf, byte(v))
}

func (w *Writer) WriteU16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *Writer) WriteU32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) WriteI32(v int32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
}

// WriteBytes appends p verbatim.
func (w *Writer) WriteBytes(p []byte) {
	w.buf = append(w.buf, p...)
}

// WriteString appends s without a terminator.
func (w *Writer) WriteString(s string) {
	w.buf = append(w.buf, s...)
}

// WriteCString appends exactly size bytes: s truncated to at most size-1
// bytes, then NUL padding. Truncation never splits a UTF-8 sequence.
func (w *Writer) WriteCString(s string, size int) {
	if size <= 0 {
		return
	}
	n := len(s)
	if n > size-1 {
		n = size - 1
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
	}
	w.buf = append(w.buf, s[:n]...)
	for i := n; i < size; i++ {
		w.buf = append(w.buf, 0)
	}
}
