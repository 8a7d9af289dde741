package transport

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakePort behaves like a serial line with a read timeout.
type fakePort struct {
	mu      sync.Mutex
	in      chan []byte
	out     bytes.Buffer
	timeout time.Duration
	closed  chan struct{}
}

func newFakePort() *fakePort {
	return &fakePort{in: make(chan []byte, 8), closed: make(chan struct{})}
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	select {
	case chunk := <-p.in:
		return copy(b, chunk), nil
	case <-p.closed:
		return 0, io.EOF
	case <-time.After(p.timeout):
		return 0, nil
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Write(b)
}

func (p *fakePort) Close() error {
	close(p.closed)
	return nil
}

func TestSerialTransport(t *testing.T) {
	port := newFakePort()
	s, err := newSerial("/dev/ttyTEST", port)
	require.NoError(t, err)
	require.Equal(t, DefaultPollInterval, port.timeout)
	require.Equal(t, "serial:/dev/ttyTEST", s.String())
	port.timeout = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	port.in <- []byte{'<', 0x02}
	port.in <- []byte{0x00, 0x16, 0x03}
	f, err := s.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte{0x16, 0x03}, f)

	require.NoError(t, s.Send(ctx, []byte{0x0D, 0x01}))
	require.Equal(t, []byte{'>', 0x02, 0x00, 0x0D, 0x01}, port.out.Bytes())

	require.NoError(t, s.Close())
	_, err = s.Receive(ctx)
	require.ErrorIs(t, err, io.EOF)
}
