package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"golang.org/x/sync/errgroup"

	"github.com/michcald/loranode/buffer"
	"github.com/michcald/loranode/metrics"
	"github.com/michcald/loranode/sx1262"
	"github.com/michcald/loranode/transport"
)

// Transport kinds, used as metric labels.
const (
	KindTCP    = "tcp"
	KindSerial = "serial"
	KindRadio  = "radio"
)

const errorChanSize = 16

// Dispatcher turns inbound frames into handler calls and tracks the peers it
// serves so pushes can reach them.
type Dispatcher struct {
	logger log.Logger
	errs   chan error

	mu       sync.Mutex
	registry *Registry
	peers    map[*peer]struct{}
}

func NewDispatcher(logger log.Logger, registry *Registry) *Dispatcher {
	return &Dispatcher{
		logger:   log.With(logger, "component", "dispatcher"),
		registry: registry,
		errs:     make(chan error, errorChanSize),
		peers:    make(map[*peer]struct{}),
	}
}

// Errors reports frames dropped as malformed. Reports are discarded while
// the channel is full.
func (d *Dispatcher) Errors() <-chan error {
	return d.errs
}

// Dispatch serves one frame, writing replies to w. It returns an error only
// when the peer can no longer be served: a failed write or a hardware fault.
func (d *Dispatcher) Dispatch(ctx context.Context, w Sender, frame []byte) error {
	r := buffer.NewReader(frame)
	op, err := r.ReadU8()
	if err != nil {
		d.malformed(0, err)
		return nil
	}
	cmd := Command(op)

	h, ok := d.lookup(cmd)
	if !ok {
		metrics.DispatchCounter.WithLabelValues("unsupported").Inc()
		level.Debug(d.logger).Log("msg", "unsupported command", "cmd", byte(cmd))
		return d.sendError(ctx, w, ErrCodeUnsupportedCmd)
	}
	metrics.DispatchCounter.WithLabelValues(cmd.String()).Inc()

	err = h(ctx, w, r)
	if err == nil {
		return nil
	}
	if errors.Is(err, buffer.ErrUnderflow) {
		d.malformed(cmd, err)
		return nil
	}
	if code, ok := errorCode(err); ok {
		level.Debug(d.logger).Log("msg", "command failed", "cmd", cmd, "code", code, "err", err)
		return d.sendError(ctx, w, code)
	}
	return fmt.Errorf("%s: %w", cmd, err)
}

// setRegistry installs the handler table. It is called once by New, before
// any transport is served.
func (d *Dispatcher) setRegistry(r *Registry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registry = r
}

// Registry returns the handler table in use.
func (d *Dispatcher) Registry() *Registry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registry
}

func (d *Dispatcher) lookup(cmd Command) (Handler, bool) {
	r := d.Registry()
	if r == nil {
		return nil, false
	}
	return r.Lookup(cmd)
}

func (d *Dispatcher) sendError(ctx context.Context, w Sender, code ErrorCode) error {
	metrics.ErrorResponseCounter.WithLabelValues(code.String()).Inc()
	return w.Send(ctx, []byte{byte(RespErr), byte(code)})
}

func (d *Dispatcher) malformed(cmd Command, err error) {
	metrics.MalformedFrameCounter.Inc()
	merr := &MalformedFrameError{Command: cmd, Err: err}
	level.Warn(d.logger).Log("msg", "dropping frame", "err", merr)
	select {
	case d.errs <- merr:
	default:
	}
}

// Serve dispatches frames from t until it is closed or ctx is done. Replies
// go back on t. kind labels the transport in metrics.
func (d *Dispatcher) Serve(ctx context.Context, t transport.Transport, kind string) error {
	return d.serve(ctx, t, kind, true)
}

func (d *Dispatcher) serve(ctx context.Context, t transport.Transport, kind string, push bool) error {
	p := d.addPeer(t, kind, push)
	defer d.removePeer(p)

	logger := log.With(d.logger, "peer", p.name)
	level.Info(logger).Log("msg", "serving peer")

	for {
		frame, err := t.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				level.Info(logger).Log("msg", "peer done")
				return nil
			}
			return fmt.Errorf("receive from %s: %w", p.name, err)
		}
		metrics.FramesReceivedCounter.WithLabelValues(kind).Inc()
		if err := d.Dispatch(ctx, p, frame); err != nil {
			return err
		}
	}
}

// ServeListener serves every transport accepted from l, each on its own
// goroutine, until ctx is done. A peer failing is logged and dropped; a
// hardware fault stops every peer and is returned. Accepted transports are
// closed before ServeListener returns; l is not.
func (d *Dispatcher) ServeListener(ctx context.Context, l transport.Listener, kind string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			t, err := l.Accept(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}
			g.Go(func() error {
				defer t.Close()
				err := d.Serve(ctx, t, kind)
				if err != nil && !sx1262.IsHardwareFault(err) {
					level.Warn(d.logger).Log("msg", "peer dropped", "kind", kind, "err", err)
					return nil
				}
				return err
			})
		}
	})
	return g.Wait()
}

// RadioLink is a radio serving as a transport.
type RadioLink interface {
	transport.Transport
	ReceivePacket(ctx context.Context) (sx1262.Packet, error)
}

// ServeRadio dispatches frames received over the air. Each packet is also
// pushed as LogRxData to the other peers. The radio does not receive pushes.
func (d *Dispatcher) ServeRadio(ctx context.Context, radio RadioLink) error {
	return d.serve(ctx, &radioBridge{RadioLink: radio, d: d}, KindRadio, false)
}

type radioBridge struct {
	RadioLink
	d *Dispatcher
}

func (b *radioBridge) Receive(ctx context.Context) ([]byte, error) {
	p, err := b.ReceivePacket(ctx)
	if err != nil {
		return nil, err
	}
	w := buffer.NewWriter(byte(PushLogRxData))
	w.WriteI8(int8(p.Status.SNR * 4))
	w.WriteI8(int8(p.Status.RSSI))
	w.WriteBytes(p.Data)
	b.d.Broadcast(ctx, w.Bytes(), b)
	return p.Data, nil
}

func (b *radioBridge) String() string {
	return KindRadio
}

// Broadcast pushes frame to every peer accepting pushes except the one
// behind except. Failed writes are logged; the peer's own loop notices the
// broken transport.
func (d *Dispatcher) Broadcast(ctx context.Context, frame []byte, except Sender) {
	d.mu.Lock()
	targets := make([]*peer, 0, len(d.peers))
	for p := range d.peers {
		if !p.push || Sender(p) == except || Sender(p.t) == except {
			continue
		}
		targets = append(targets, p)
	}
	d.mu.Unlock()

	for _, p := range targets {
		if err := p.Send(ctx, frame); err != nil {
			level.Warn(d.logger).Log("msg", "push failed", "peer", p.name, "err", err)
		}
	}
}

// PeerCount returns the number of peers being served.
func (d *Dispatcher) PeerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.peers)
}

type peer struct {
	t    transport.Transport
	kind string
	name string
	push bool
}

func (p *peer) Send(ctx context.Context, frame []byte) error {
	if err := p.t.Send(ctx, frame); err != nil {
		return err
	}
	metrics.FramesSentCounter.WithLabelValues(p.kind).Inc()
	return nil
}

func (d *Dispatcher) addPeer(t transport.Transport, kind string, push bool) *peer {
	name := kind
	if s, ok := t.(fmt.Stringer); ok {
		name = s.String()
	}
	p := &peer{t: t, kind: kind, name: name, push: push}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers[p] = struct{}{}
	return p
}

func (d *Dispatcher) removePeer(p *peer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.peers, p)
}
