package node

import (
	"context"

	"github.com/michcald/loranode/buffer"
)

type advertService struct {
	identity *Identity
	pusher   pusher
}

func (s *advertService) group() Group {
	return Group{
		Name: GroupAdvert,
		Handlers: map[Command]Handler{
			CmdSendSelfAdvert:  s.sendSelfAdvert,
			CmdSetAdvertName:   s.setAdvertName,
			CmdSetAdvertLatLon: s.setAdvertLatLon,
		},
	}
}

// sendSelfAdvert announces the node to the other peers. The optional body
// byte selects a flood or zero-hop advert and does not change the push.
func (s *advertService) sendSelfAdvert(ctx context.Context, w Sender, r *buffer.Reader) error {
	if r.Len() > 0 {
		if _, err := r.ReadU8(); err != nil {
			return err
		}
	}
	key := s.identity.Profile().PublicKey

	if err := sendOk(ctx, w); err != nil {
		return err
	}
	bw := buffer.NewWriter(byte(PushAdvert))
	bw.WriteBytes(key[:])
	s.pusher.Broadcast(ctx, bw.Bytes(), w)
	return nil
}

func (s *advertService) setAdvertName(ctx context.Context, w Sender, r *buffer.Reader) error {
	name := r.ReadString()
	s.identity.Update(func(p *Profile) { p.Name = name })
	return sendOk(ctx, w)
}

func (s *advertService) setAdvertLatLon(ctx context.Context, w Sender, r *buffer.Reader) error {
	lat, err := r.ReadI32()
	if err != nil {
		return err
	}
	lon, err := r.ReadI32()
	if err != nil {
		return err
	}
	s.identity.Update(func(p *Profile) { p.Lat, p.Lon = lat, lon })
	return sendOk(ctx, w)
}
