package node

import (
	"context"

	"github.com/michcald/loranode/buffer"
)

const (
	privateKeyLen = 64
	signatureLen  = 64
	maxSignLen    = 1024
)

// securityService answers the key management and signing commands. Keys are
// not held by the node: exports and signatures are zero filled.
type securityService struct{}

func (s *securityService) group() Group {
	return Group{
		Name: GroupSecurity,
		Handlers: map[Command]Handler{
			CmdExportPrivateKey: s.exportPrivateKey,
			CmdImportPrivateKey: s.importPrivateKey,
			CmdSignStart:        s.signStart,
			CmdSignData:         s.signData,
			CmdSignFinish:       s.signFinish,
		},
	}
}

func (s *securityService) exportPrivateKey(ctx context.Context, w Sender, _ *buffer.Reader) error {
	bw := buffer.NewWriter(byte(RespPrivateKey))
	bw.WriteBytes(make([]byte, privateKeyLen))
	return w.Send(ctx, bw.Bytes())
}

func (s *securityService) importPrivateKey(ctx context.Context, w Sender, r *buffer.Reader) error {
	if _, err := r.ReadBytes(privateKeyLen); err != nil {
		return err
	}
	return sendOk(ctx, w)
}

func (s *securityService) signStart(ctx context.Context, w Sender, _ *buffer.Reader) error {
	bw := buffer.NewWriter(byte(RespSignStart))
	bw.WriteU8(0)
	bw.WriteU32(maxSignLen)
	return w.Send(ctx, bw.Bytes())
}

func (s *securityService) signData(ctx context.Context, w Sender, r *buffer.Reader) error {
	if data := r.Remaining(); len(data) > maxSignLen {
		return protocolError(ErrCodeIllegalArg, nil)
	}
	bw := buffer.NewWriter(byte(RespSignature))
	bw.WriteBytes(make([]byte, signatureLen))
	return w.Send(ctx, bw.Bytes())
}

func (s *securityService) signFinish(ctx context.Context, w Sender, _ *buffer.Reader) error {
	return sendOk(ctx, w)
}
