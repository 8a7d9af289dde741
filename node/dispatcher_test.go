package node

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michcald/loranode/buffer"
	"github.com/michcald/loranode/sx1262"
	"github.com/michcald/loranode/transport"
)

func TestDispatchUnknownOpcode(t *testing.T) {
	n := newTestNode(t, RoleCompanion, nil)

	for _, op := range []byte{0x00, 0x15, 0x63, 0xFF} {
		got := dispatch(t, n, op, 0x01, 0x02)
		assert.Equal(t, [][]byte{{byte(RespErr), byte(ErrCodeUnsupportedCmd)}}, got, "opcode %#x", op)
	}
}

func TestDispatchRouterOnlyCommandOnCompanion(t *testing.T) {
	n := newTestNode(t, RoleCompanion, nil)
	got := dispatch(t, n, cat([]byte{byte(CmdResetPath)}, testKey[:])...)
	assert.Equal(t, [][]byte{{byte(RespErr), byte(ErrCodeUnsupportedCmd)}}, got)
}

func TestDispatchMalformedFrame(t *testing.T) {
	n := newTestNode(t, RoleCompanion, nil)

	got := dispatch(t, n, byte(CmdSendTxtMsg), 0x00, 0x01, 0x01)
	assert.Empty(t, got)

	select {
	case err := <-n.Errors():
		var merr *MalformedFrameError
		require.True(t, errors.As(err, &merr))
		assert.Equal(t, CmdSendTxtMsg, merr.Command)
		assert.True(t, errors.Is(err, buffer.ErrUnderflow))
	default:
		t.Fatal("no malformed frame reported")
	}

	count, err := n.Messages.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDispatchEmptyFrame(t *testing.T) {
	n := newTestNode(t, RoleCompanion, nil)
	assert.Empty(t, dispatch(t, n))
	assert.Len(t, n.Errors(), 1)
}

func TestDispatchErrorsChannelNeverBlocks(t *testing.T) {
	n := newTestNode(t, RoleCompanion, nil)
	for i := 0; i < errorChanSize*2; i++ {
		dispatch(t, n, byte(CmdSetTxPower))
	}
	assert.Len(t, n.Errors(), errorChanSize)
}

func TestDispatchSendTxtMsg(t *testing.T) {
	n := newTestNode(t, RoleCompanion, nil)

	got := dispatch(t, n,
		byte(CmdSendTxtMsg), 0x00, 0x01,
		0x01, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		'h', 'i',
	)
	want := []byte{
		byte(RespContactMsgRecv),
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00,
		0x01, 0x00, 0x00, 0x00,
		'h', 'i',
	}
	assert.Equal(t, [][]byte{want}, got)

	m, err := n.Messages.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint8(0), m.TextType)
	assert.Equal(t, uint8(1), m.Attempt)
	assert.Equal(t, uint32(1), m.Timestamp)
	assert.Equal(t, [6]byte{}, m.SenderPrefix)
	assert.Equal(t, "hi", m.Text)
}

func TestDispatchGetContactsEmpty(t *testing.T) {
	n := newTestNode(t, RoleCompanion, nil)
	assert.Equal(t, [][]byte{{byte(RespEndOfContacts)}}, dispatch(t, n, byte(CmdGetContacts)))
}

func TestDispatchSetRadioParamsBadBandwidth(t *testing.T) {
	radio := newFakeRadio()
	n := newTestNode(t, RoleCompanion, radio)
	before := radio.Config()

	w := buffer.NewWriter(byte(CmdSetRadioParams))
	w.WriteU32(869_525_000)
	w.WriteU32(100_000)
	w.WriteU8(9)
	w.WriteU8(5)

	got := dispatch(t, n, w.Bytes()...)
	assert.Equal(t, [][]byte{{byte(RespErr), byte(ErrCodeIllegalArg)}}, got)
	assert.Equal(t, before, radio.Config())
}

func TestDispatchWriteFailureEndsPeer(t *testing.T) {
	n := newTestNode(t, RoleCompanion, nil)
	w := newPipe("broken")
	w.sendErr = errors.New("connection reset")

	err := n.Dispatch(context.Background(), w, []byte{byte(CmdGetContacts)})
	assert.Error(t, err)
}

func TestServeUntilEOF(t *testing.T) {
	n := newTestNode(t, RoleCompanion, nil)
	p := newPipe("client")
	p.in <- []byte{byte(CmdGetContacts)}
	p.in <- []byte{0x7F}
	close(p.in)

	require.NoError(t, n.Serve(context.Background(), p, KindTCP))
	assert.Equal(t, [][]byte{
		{byte(RespEndOfContacts)},
		{byte(RespErr), byte(ErrCodeUnsupportedCmd)},
	}, p.frames())
	assert.Zero(t, n.PeerCount())
}

func TestServeCancelled(t *testing.T) {
	n := newTestNode(t, RoleCompanion, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- n.Serve(ctx, newPipe("client"), KindTCP) }()
	require.Eventually(t, func() bool { return n.PeerCount() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
}

// serveAll serves every pipe until the test ends.
func serveAll(t *testing.T, n *Node, pipes ...*pipe) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, p := range pipes {
		wg.Add(1)
		go func(p *pipe) {
			defer wg.Done()
			n.Serve(ctx, p, KindTCP)
		}(p)
	}
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	require.Eventually(t, func() bool { return n.PeerCount() == len(pipes) }, time.Second, time.Millisecond)
}

func TestMessagePushedToOtherPeers(t *testing.T) {
	n := newTestNode(t, RoleCompanion, nil)
	a, b := newPipe("a"), newPipe("b")
	serveAll(t, n, a, b)

	a.in <- []byte{byte(CmdSendChannelTxtMsg), 0x00, 0x00, 0x05, 0x00, 0x00, 0x00, 'y', 'o'}

	require.Eventually(t, func() bool { return len(b.frames()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []byte{byte(PushMsgWaiting)}, b.frames()[0])
	require.Eventually(t, func() bool { return len(a.frames()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []byte{byte(RespChannelMsgRecv), 0x00, 0x00, 0x00, 0x05, 0x00, 0x00, 0x00, 'y', 'o'}, a.frames()[0])

	// b syncs the message a sent
	b.in <- []byte{byte(CmdSyncNextMessage)}
	require.Eventually(t, func() bool { return len(b.frames()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, a.frames()[0], b.frames()[1])
}

type fakeLink struct {
	*pipe
	packets chan sx1262.Packet
}

func (l *fakeLink) ReceivePacket(ctx context.Context) (sx1262.Packet, error) {
	select {
	case p := <-l.packets:
		return p, nil
	case <-ctx.Done():
		return sx1262.Packet{}, ctx.Err()
	}
}

func TestServeRadio(t *testing.T) {
	n := newTestNode(t, RoleCompanion, nil)
	client := newPipe("client")
	serveAll(t, n, client)

	link := &fakeLink{pipe: newPipe("radio"), packets: make(chan sx1262.Packet, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.ServeRadio(ctx, link) }()
	defer func() {
		cancel()
		<-done
	}()

	link.packets <- sx1262.Packet{
		Data:   []byte{byte(CmdGetContacts)},
		Status: sx1262.PacketStatus{RSSI: -40, SNR: -2},
	}

	require.Eventually(t, func() bool { return len(client.frames()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []byte{byte(PushLogRxData), 0xF8, 0xD8, byte(CmdGetContacts)}, client.frames()[0])

	require.Eventually(t, func() bool { return len(link.frames()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []byte{byte(RespEndOfContacts)}, link.frames()[0])

	// pushes never go out over the air
	client.in <- []byte{byte(CmdSendSelfAdvert)}
	require.Eventually(t, func() bool { return len(client.frames()) == 2 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, link.frames(), 1)
}

// fakeListener hands out the queued transports, then blocks.
type fakeListener struct {
	conns chan transport.Transport
}

func (l *fakeListener) Accept(ctx context.Context) (transport.Transport, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *fakeListener) Close() error { return nil }

func rawData(payload ...byte) []byte {
	return cat([]byte{byte(CmdSendRawData), 0x00}, payload)
}

func TestServeListenerHardwareFaultIsFatal(t *testing.T) {
	radio := newFakeRadio()
	radio.sendErr = sx1262.ErrBusyTimeout
	n := newTestNode(t, RoleCompanion, radio)

	idle, faulty := newPipe("idle"), newPipe("faulty")
	faulty.in <- rawData(0x01)
	l := &fakeListener{conns: make(chan transport.Transport, 2)}
	l.conns <- idle
	l.conns <- faulty

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := n.ServeListener(ctx, l, KindTCP)
	require.Error(t, err)
	assert.True(t, sx1262.IsHardwareFault(err))
	assert.Empty(t, faulty.frames())
}

func TestServeListenerDropsBrokenPeer(t *testing.T) {
	n := newTestNode(t, RoleCompanion, nil)

	broken := newPipe("broken")
	broken.sendErr = errors.New("connection reset")
	broken.in <- []byte{byte(CmdGetContacts)}
	l := &fakeListener{conns: make(chan transport.Transport, 1)}
	l.conns <- broken

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.ServeListener(ctx, l, KindTCP) }()

	require.Eventually(t, func() bool {
		broken.mu.Lock()
		defer broken.mu.Unlock()
		return broken.closed
	}, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestSendRawData(t *testing.T) {
	radio := newFakeRadio()
	n := newTestNode(t, RoleCompanion, radio)

	got := dispatch(t, n, byte(CmdSendRawData), 0x02, 0x10, 0x11, 0xCA, 0xFE)
	assert.Equal(t, [][]byte{{byte(RespOk)}}, got)
	assert.Equal(t, [][]byte{{0xCA, 0xFE}}, radio.sent)

	offline := newTestNode(t, RoleCompanion, nil)
	got = dispatch(t, offline, rawData(0xCA)...)
	assert.Equal(t, [][]byte{{byte(RespErr), byte(ErrCodeUnsupportedCmd)}}, got)
}
