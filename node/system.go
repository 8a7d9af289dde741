package node

import (
	"context"
	"sync/atomic"

	"github.com/akhenakh/cayenne"

	"github.com/michcald/loranode/buffer"
)

// Cayenne LPP channels of the telemetry reply.
const (
	telemetryBatteryChannel = 1
	telemetryTxPowerChannel = 2
)

// systemService answers requests addressed to remote nodes. Replies are
// produced locally and sent back as pushes to the requester.
type systemService struct {
	identity *Identity
	radio    Radio
	online   bool
	tag      uint32
}

func newSystemService(identity *Identity, radio Radio, online bool) *systemService {
	return &systemService{identity: identity, radio: radio, online: online}
}

func (s *systemService) group() Group {
	return Group{
		Name: GroupSystem,
		Handlers: map[Command]Handler{
			CmdSendLogin:        s.sendLogin,
			CmdSendStatusReq:    s.sendStatusReq,
			CmdSendTelemetryReq: s.sendTelemetryReq,
			CmdSendBinaryReq:    s.sendBinaryReq,
			CmdSendRawData:      s.sendRawData,
		},
	}
}

func (s *systemService) sendLogin(ctx context.Context, w Sender, r *buffer.Reader) error {
	key, err := readPublicKey(r)
	if err != nil {
		return err
	}
	r.ReadString() // password

	prefix := key.Prefix()
	bw := buffer.NewWriter(byte(PushLoginSuccess))
	bw.WriteU8(0)
	bw.WriteBytes(prefix[:])
	return w.Send(ctx, bw.Bytes())
}

func (s *systemService) sendStatusReq(ctx context.Context, w Sender, r *buffer.Reader) error {
	key, err := readPublicKey(r)
	if err != nil {
		return err
	}
	prefix := key.Prefix()
	bw := buffer.NewWriter(byte(PushStatusResponse))
	bw.WriteU8(0)
	bw.WriteBytes(prefix[:])
	bw.WriteString("OK")
	return w.Send(ctx, bw.Bytes())
}

func (s *systemService) sendTelemetryReq(ctx context.Context, w Sender, r *buffer.Reader) error {
	if _, err := r.ReadBytes(3); err != nil {
		return err
	}
	key, err := readPublicKey(r)
	if err != nil {
		return err
	}

	e := cayenne.NewEncoder()
	e.AddAnalogInput(telemetryBatteryChannel, float32(s.identity.Profile().BatteryMillivolts)/1000)
	e.AddAnalogInput(telemetryTxPowerChannel, float32(s.radio.Config().TxPower))

	prefix := key.Prefix()
	bw := buffer.NewWriter(byte(PushTelemetryResponse))
	bw.WriteU8(0)
	bw.WriteBytes(prefix[:])
	bw.WriteBytes(e.Bytes())
	return w.Send(ctx, bw.Bytes())
}

// sendBinaryReq echoes the request under a fresh tag.
func (s *systemService) sendBinaryReq(ctx context.Context, w Sender, r *buffer.Reader) error {
	if _, err := readPublicKey(r); err != nil {
		return err
	}
	data := r.Remaining()

	bw := buffer.NewWriter(byte(PushBinaryResponse))
	bw.WriteU8(0)
	bw.WriteU32(atomic.AddUint32(&s.tag, 1))
	bw.WriteBytes(data)
	return w.Send(ctx, bw.Bytes())
}

// sendRawData transmits the payload as is. The path is not used: the
// payload already carries its routing.
func (s *systemService) sendRawData(ctx context.Context, w Sender, r *buffer.Reader) error {
	n, err := r.ReadU8()
	if err != nil {
		return err
	}
	if _, err := r.ReadBytes(int(n)); err != nil {
		return err
	}
	payload := r.Remaining()

	if !s.online {
		return protocolError(ErrCodeUnsupportedCmd, ErrNoRadio)
	}
	if err := s.radio.Send(ctx, payload); err != nil {
		return err
	}
	return sendOk(ctx, w)
}
