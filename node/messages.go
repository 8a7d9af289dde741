package node

import (
	"context"
	"errors"

	"github.com/michcald/loranode/buffer"
	"github.com/michcald/loranode/store"
)

type messageService struct {
	messages store.MessageStore
	pusher   pusher
}

func (s *messageService) group() Group {
	return Group{
		Name: GroupMessage,
		Handlers: map[Command]Handler{
			CmdSendTxtMsg:        s.sendTxtMsg,
			CmdSendChannelTxtMsg: s.sendChannelTxtMsg,
			CmdSyncNextMessage:   s.syncNextMessage,
		},
	}
}

func (s *messageService) sendTxtMsg(ctx context.Context, w Sender, r *buffer.Reader) error {
	var m store.Message
	var err error
	if m.TextType, err = r.ReadU8(); err != nil {
		return err
	}
	if m.Attempt, err = r.ReadU8(); err != nil {
		return err
	}
	if m.Timestamp, err = r.ReadU32(); err != nil {
		return err
	}
	if err = r.ReadFull(m.SenderPrefix[:]); err != nil {
		return err
	}
	m.Text = r.ReadString()

	if err := s.store(ctx, w, m); err != nil {
		return err
	}
	return w.Send(ctx, encodeMessage(m))
}

func (s *messageService) sendChannelTxtMsg(ctx context.Context, w Sender, r *buffer.Reader) error {
	m := store.Message{Channel: true}
	var err error
	if m.TextType, err = r.ReadU8(); err != nil {
		return err
	}
	if m.ChannelIdx, err = r.ReadU8(); err != nil {
		return err
	}
	if m.Timestamp, err = r.ReadU32(); err != nil {
		return err
	}
	m.Text = r.ReadString()

	if err := s.store(ctx, w, m); err != nil {
		return err
	}
	return w.Send(ctx, encodeMessage(m))
}

// store queues m and tells the other peers a message is waiting.
func (s *messageService) store(ctx context.Context, w Sender, m store.Message) error {
	if err := s.messages.Push(ctx, m); err != nil {
		return err
	}
	s.pusher.Broadcast(ctx, []byte{byte(PushMsgWaiting)}, w)
	return nil
}

func (s *messageService) syncNextMessage(ctx context.Context, w Sender, _ *buffer.Reader) error {
	m, err := s.messages.Pop(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return w.Send(ctx, []byte{byte(RespNoMoreMessages)})
	}
	if err != nil {
		return err
	}
	return w.Send(ctx, encodeMessage(m))
}

func encodeMessage(m store.Message) []byte {
	var bw *buffer.Writer
	if m.Channel {
		bw = buffer.NewWriter(byte(RespChannelMsgRecv))
		bw.WriteU8(m.ChannelIdx)
	} else {
		bw = buffer.NewWriter(byte(RespContactMsgRecv))
		bw.WriteBytes(m.SenderPrefix[:])
	}
	bw.WriteU8(m.PathLen)
	bw.WriteU8(m.TextType)
	bw.WriteU32(m.Timestamp)
	bw.WriteString(m.Text)
	return bw.Bytes()
}
