package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// serialPort is the part of serial.Port the transport uses.
type serialPort interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Serial is a framed transport over a serial line, using the same framing as
// TCPConn.
type Serial struct {
	name string
	port serialPort
	dec  *Decoder
	buf  []byte

	wmu sync.Mutex
}

// OpenSerial opens path at baud, 8N1.
func OpenSerial(path string, baud int) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("can't open serial port %s: %w", path, err)
	}
	s, err := newSerial(path, port)
	if err != nil {
		port.Close()
		return nil, err
	}
	return s, nil
}

func newSerial(name string, port serialPort) (*Serial, error) {
	if err := port.SetReadTimeout(DefaultPollInterval); err != nil {
		return nil, fmt.Errorf("can't set read timeout on %s: %w", name, err)
	}
	return &Serial{
		name: name,
		port: port,
		dec:  NewDecoder(InboundMarker),
		buf:  make([]byte, 256),
	}, nil
}

func (s *Serial) String() string {
	return "serial:" + s.name
}

// Receive returns the next complete frame. It must not be called
// concurrently with itself.
func (s *Serial) Receive(ctx context.Context) ([]byte, error) {
	for {
		if frame, ok := s.dec.Next(); ok {
			return frame, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// A read timeout returns 0, nil.
		n, err := s.port.Read(s.buf)
		if n > 0 {
			s.dec.Feed(s.buf[:n])
		}
		if err != nil {
			var pe *serial.PortError
			if errors.As(err, &pe) && pe.Code() == serial.PortClosed {
				return nil, io.EOF
			}
			return nil, err
		}
	}
}

func (s *Serial) Send(_ context.Context, frame []byte) error {
	out, err := Encode(OutboundMarker, frame)
	if err != nil {
		return err
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	_, err = s.port.Write(out)
	return err
}

func (s *Serial) Close() error {
	return s.port.Close()
}
