package buffer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrUnderflow is returned when a read needs more bytes than remain.
var ErrUnderflow = errors.New("buffer underflow")

// Reader is a cursor over an immutable frame body.
type Reader struct {
	buf []byte
	off int
}

func NewReader(p []byte) *Reader {
	return &Reader{buf: p}
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) - r.off }

func (r *Reader) next(n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrUnderflow, n, r.off, r.Len())
	}
	p := r.buf[r.off : r.off+n]
	r.off += n
	return p, nil
}

func (r *Reader) ReadU8() (uint8, error) {
	p, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

func (r *Reader) ReadI8() (int8, error) {
	v, err := r.ReadU8()
	return int8(v), err
}

func (r *Reader) ReadU16() (uint16, error) {
	p, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(p), nil
}

func (r *Reader) ReadU32() (uint32, error) {
	p, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p), nil
}

func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

// ReadBytes returns a copy of the next n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	p, err := r.next(n)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(p), nil
}

// ReadFull fills dst from the cursor.
func (r *Reader) ReadFull(dst []byte) error {
	p, err := r.next(len(dst))
	if err != nil {
		return err
	}
	copy(dst, p)
	return nil
}

// ReadCString consumes n bytes and returns the text up to the first NUL.
func (r *Reader) ReadCString(n int) (string, error) {
	p, err := r.next(n)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(p, 0); i >= 0 {
		p = p[:i]
	}
	return string(p), nil
}

// ReadString consumes the rest of the buffer as text.
func (r *Reader) ReadString() string {
	return string(r.Remaining())
}

// Remaining consumes and returns a copy of every unread byte.
func (r *Reader) Remaining() []byte {
	p := bytes.Clone(r.buf[r.off:])
	r.off = len(r.buf)
	if p == nil {
		p = []byte{}
	}
	return p
}
