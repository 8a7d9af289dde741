package node

import (
	"context"
	"strings"
	"time"

	"github.com/michcald/loranode/buffer"
	"github.com/michcald/loranode/store"
	"github.com/michcald/loranode/sx1262"
)

// Reported by DeviceQuery. BuildDate is set at link time.
var (
	FirmwareVersion int8 = 1
	BuildDate            = "2026-10-18"
	Model                = "loranode-sx1262"
)

const (
	channelNameLen = 32
	buildDateLen   = 12
)

type deviceService struct {
	identity *Identity
	radio    Radio
	channels store.ChannelStore
}

func (s *deviceService) group() Group {
	return Group{
		Name: GroupDevice,
		Handlers: map[Command]Handler{
			CmdAppStart:          s.appStart,
			CmdDeviceQuery:       s.deviceQuery,
			CmdGetDeviceTime:     s.getDeviceTime,
			CmdSetDeviceTime:     s.setDeviceTime,
			CmdSetRadioParams:    s.setRadioParams,
			CmdSetTxPower:        s.setTxPower,
			CmdGetChannel:        s.getChannel,
			CmdSetChannel:        s.setChannel,
			CmdReboot:            s.reboot,
			CmdGetBatteryVoltage: s.getBatteryVoltage,
			CmdSetOtherParams:    s.setOtherParams,
		},
	}
}

func (s *deviceService) appStart(ctx context.Context, w Sender, r *buffer.Reader) error {
	if _, err := r.ReadU8(); err != nil { // app version
		return err
	}
	if _, err := r.ReadBytes(6); err != nil {
		return err
	}
	app := strings.TrimRight(r.ReadString(), "\x00")
	s.identity.Update(func(p *Profile) { p.AppName = app })

	return w.Send(ctx, s.selfInfo())
}

func (s *deviceService) selfInfo() []byte {
	p := s.identity.Profile()
	c := s.radio.Config()

	var flags uint8
	if p.ManualAddContacts {
		flags = 1
	}
	bw := buffer.NewWriter(byte(RespSelfInfo))
	bw.WriteU8(p.AdvertType)
	bw.WriteU8(uint8(c.TxPower))
	bw.WriteU8(uint8(p.MaxTxPower))
	bw.WriteBytes(p.PublicKey[:])
	bw.WriteI32(p.Lat)
	bw.WriteI32(p.Lon)
	bw.WriteBytes(make([]byte, 3))
	bw.WriteU8(flags)
	bw.WriteU32(c.FrequencyHz)
	bw.WriteU32(c.BandwidthHz)
	bw.WriteU8(c.SpreadingFactor)
	bw.WriteU8(c.CodingRate)
	bw.WriteString(p.Name)
	return bw.Bytes()
}

func (s *deviceService) deviceQuery(ctx context.Context, w Sender, r *buffer.Reader) error {
	if _, err := r.ReadU8(); err != nil { // target app version
		return err
	}
	bw := buffer.NewWriter(byte(RespDeviceInfo))
	bw.WriteI8(FirmwareVersion)
	bw.WriteBytes(make([]byte, 6))
	bw.WriteCString(BuildDate, buildDateLen)
	bw.WriteString(Model)
	return w.Send(ctx, bw.Bytes())
}

func (s *deviceService) getDeviceTime(ctx context.Context, w Sender, _ *buffer.Reader) error {
	bw := buffer.NewWriter(byte(RespCurrTime))
	bw.WriteU32(uint32(s.identity.Now().Unix()))
	return w.Send(ctx, bw.Bytes())
}

func (s *deviceService) setDeviceTime(ctx context.Context, w Sender, r *buffer.Reader) error {
	epoch, err := r.ReadU32()
	if err != nil {
		return err
	}
	s.identity.SetClock(time.Unix(int64(epoch), 0))
	return sendOk(ctx, w)
}

func (s *deviceService) setRadioParams(ctx context.Context, w Sender, r *buffer.Reader) error {
	freq, err := r.ReadU32()
	if err != nil {
		return err
	}
	bw, err := r.ReadU32()
	if err != nil {
		return err
	}
	sf, err := r.ReadU8()
	if err != nil {
		return err
	}
	cr, err := r.ReadU8()
	if err != nil {
		return err
	}

	c := s.radio.Config()
	c.FrequencyHz = freq
	c.BandwidthHz = bw
	c.SpreadingFactor = sf
	c.CodingRate = cr
	if err := s.radio.Configure(c); err != nil {
		return err
	}
	return sendOk(ctx, w)
}

func (s *deviceService) setTxPower(ctx context.Context, w Sender, r *buffer.Reader) error {
	dbm, err := r.ReadU8()
	if err != nil {
		return err
	}
	if limit := s.identity.Profile().MaxTxPower; int(dbm) > int(limit) || dbm > sx1262.MaxTxPower {
		return protocolError(ErrCodeIllegalArg, nil)
	}
	if err := s.radio.SetTxPower(int8(dbm)); err != nil {
		return err
	}
	return sendOk(ctx, w)
}

func (s *deviceService) getChannel(ctx context.Context, w Sender, r *buffer.Reader) error {
	idx, err := r.ReadU8()
	if err != nil {
		return err
	}
	ch, err := s.channels.Get(ctx, idx)
	if err != nil {
		return err
	}
	bw := buffer.NewWriter(byte(RespChannelInfo))
	bw.WriteU8(ch.Index)
	bw.WriteString(ch.Name)
	bw.WriteBytes(ch.Secret[:])
	return w.Send(ctx, bw.Bytes())
}

func (s *deviceService) setChannel(ctx context.Context, w Sender, r *buffer.Reader) error {
	var ch store.Channel
	var err error
	if ch.Index, err = r.ReadU8(); err != nil {
		return err
	}
	if ch.Name, err = r.ReadCString(channelNameLen); err != nil {
		return err
	}
	if err = r.ReadFull(ch.Secret[:]); err != nil {
		return err
	}
	if err := s.channels.Set(ctx, ch); err != nil {
		return err
	}
	return sendOk(ctx, w)
}

// reboot resets the radio and brings it back to listening with the current
// settings. The process keeps running.
func (s *deviceService) reboot(ctx context.Context, w Sender, r *buffer.Reader) error {
	if r.ReadString() != "reboot" {
		return protocolError(ErrCodeIllegalArg, nil)
	}
	if err := s.radio.Reset(); err != nil {
		return err
	}
	return sendOk(ctx, w)
}

func (s *deviceService) getBatteryVoltage(ctx context.Context, w Sender, _ *buffer.Reader) error {
	bw := buffer.NewWriter(byte(RespBatteryVoltage))
	bw.WriteU16(s.identity.Profile().BatteryMillivolts)
	return w.Send(ctx, bw.Bytes())
}

func (s *deviceService) setOtherParams(ctx context.Context, w Sender, r *buffer.Reader) error {
	manual, err := r.ReadU8()
	if err != nil {
		return err
	}
	s.identity.Update(func(p *Profile) { p.ManualAddContacts = manual != 0 })
	return sendOk(ctx, w)
}
