package node

import (
	"context"

	"github.com/michcald/loranode/buffer"
	"github.com/michcald/loranode/store"
)

type routingService struct {
	contacts store.ContactStore
}

func (s *routingService) group() Group {
	return Group{
		Name: GroupRouting,
		Handlers: map[Command]Handler{
			CmdResetPath:     s.resetPath,
			CmdSendTracePath: s.sendTracePath,
		},
	}
}

// resetPath forgets the route to a contact so the next message floods.
func (s *routingService) resetPath(ctx context.Context, w Sender, r *buffer.Reader) error {
	key, err := readPublicKey(r)
	if err != nil {
		return err
	}
	c, err := s.contacts.Get(ctx, key)
	if err != nil {
		return err
	}
	c.OutPathLen = -1
	c.OutPath = [64]byte{}
	if err := s.contacts.Put(ctx, c); err != nil {
		return err
	}
	return sendOk(ctx, w)
}

func (s *routingService) sendTracePath(ctx context.Context, w Sender, r *buffer.Reader) error {
	if _, err := r.ReadU32(); err != nil { // tag
		return err
	}
	if _, err := r.ReadU32(); err != nil { // auth
		return err
	}
	if _, err := r.ReadU8(); err != nil { // flags
		return err
	}
	return sendOk(ctx, w)
}
