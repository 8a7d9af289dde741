package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// TCPListener accepts framed client connections.
type TCPListener struct {
	ln           *net.TCPListener
	pollInterval time.Duration
}

// ListenTCP listens on addr, e.g. ":5000".
func ListenTCP(addr string) (*TCPListener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("can't resolve %s: %w", addr, err)
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("can't listen on %s: %w", addr, err)
	}
	return &TCPListener{ln: ln, pollInterval: DefaultPollInterval}, nil
}

func (l *TCPListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Accept waits for the next client or for ctx to be done.
func (l *TCPListener) Accept(ctx context.Context) (Transport, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := l.ln.SetDeadline(time.Now().Add(l.pollInterval)); err != nil {
			return nil, err
		}
		c, err := l.ln.Accept()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return nil, err
		}
		return NewTCPConn(c), nil
	}
}

func (l *TCPListener) Close() error {
	return l.ln.Close()
}

// TCPConn is a framed stream connection. Inbound frames carry
// InboundMarker, outbound frames OutboundMarker.
type TCPConn struct {
	conn         net.Conn
	dec          *Decoder
	buf          []byte
	pollInterval time.Duration
	writeTimeout time.Duration

	wmu sync.Mutex
}

func NewTCPConn(c net.Conn) *TCPConn {
	return &TCPConn{
		conn:         c,
		dec:          NewDecoder(InboundMarker),
		buf:          make([]byte, 512),
		pollInterval: DefaultPollInterval,
		writeTimeout: DefaultWriteTimeout,
	}
}

func (c *TCPConn) String() string {
	return "tcp:" + c.conn.RemoteAddr().String()
}

// Receive returns the next complete frame. It must not be called
// concurrently with itself.
func (c *TCPConn) Receive(ctx context.Context) ([]byte, error) {
	for {
		if frame, ok := c.dec.Next(); ok {
			return frame, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(c.pollInterval)); err != nil {
			return nil, closedAsEOF(err)
		}
		n, err := c.conn.Read(c.buf)
		if n > 0 {
			c.dec.Feed(c.buf[:n])
		}
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return nil, closedAsEOF(err)
		}
	}
}

func (c *TCPConn) Send(ctx context.Context, frame []byte) error {
	out, err := Encode(OutboundMarker, frame)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return closedAsEOF(err)
	}
	_, err = c.conn.Write(out)
	return err
}

func (c *TCPConn) Close() error {
	return c.conn.Close()
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func closedAsEOF(err error) error {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return io.EOF
	}
	return err
}
