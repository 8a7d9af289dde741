// Package transport moves protocol frames between the node and its clients.
package transport

import (
	"context"
	"errors"
	"time"
)

// Transport carries whole frames. Receive blocks until a frame is available
// or the channel is closed, in which case it returns io.EOF. Send may be
// called concurrently with Receive and with itself.
type Transport interface {
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Listener accepts stream transports.
type Listener interface {
	Accept(ctx context.Context) (Transport, error)
	Close() error
}

const (
	// DefaultPollInterval bounds each blocking read so cancellation is
	// noticed.
	DefaultPollInterval = 250 * time.Millisecond
	DefaultWriteTimeout = 5 * time.Second
)

var ErrFrameTooLarge = errors.New("frame too large")
