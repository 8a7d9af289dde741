package node

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/require"

	"github.com/michcald/loranode/store"
	"github.com/michcald/loranode/sx1262"
)

// pipe is an in-memory transport: frames fed to in are received, frames sent
// are recorded.
type pipe struct {
	name string
	in   chan []byte

	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	closed  bool
}

func newPipe(name string) *pipe {
	return &pipe{name: name, in: make(chan []byte, 16)}
}

func (p *pipe) Send(_ context.Context, frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sent = append(p.sent, append([]byte(nil), frame...))
	return nil
}

func (p *pipe) Receive(ctx context.Context) ([]byte, error) {
	select {
	case f, ok := <-p.in:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *pipe) String() string { return p.name }

func (p *pipe) frames() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.sent...)
}

// fakeRadio validates and records what the handlers ask of the radio.
type fakeRadio struct {
	mu      sync.Mutex
	config  sx1262.RadioConfig
	sent    [][]byte
	resets  int
	sendErr error
}

func newFakeRadio() *fakeRadio {
	return &fakeRadio{config: sx1262.DefaultRadioConfig()}
}

func (r *fakeRadio) Config() sx1262.RadioConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config
}

func (r *fakeRadio) Configure(c sx1262.RadioConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = c
	return nil
}

func (r *fakeRadio) SetTxPower(dbm int8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config.TxPower = dbm
	return nil
}

func (r *fakeRadio) Send(_ context.Context, p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	r.sent = append(r.sent, append([]byte(nil), p...))
	return nil
}

func (r *fakeRadio) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
	return nil
}

var testKey = store.PublicKey{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x01}

func testProfile() Profile {
	return Profile{
		Name:              "node-1",
		PublicKey:         testKey,
		AdvertType:        AdvertTypeChat,
		MaxTxPower:        20,
		BatteryMillivolts: 3700,
	}
}

func newTestNode(t *testing.T, role Role, radio Radio) *Node {
	t.Helper()
	n, err := New(Options{
		Role:     role,
		Identity: NewIdentity(testProfile()),
		Radio:    radio,
		Logger:   log.NewNopLogger(),
	})
	require.NoError(t, err)
	return n
}

// dispatch runs one frame through n and returns what was sent back.
func dispatch(t *testing.T, n *Node, frame ...byte) [][]byte {
	t.Helper()
	w := newPipe("test")
	require.NoError(t, n.Dispatch(context.Background(), w, frame))
	return w.frames()
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
