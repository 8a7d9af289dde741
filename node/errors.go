package node

import (
	"errors"
	"fmt"

	"github.com/michcald/loranode/store"
	"github.com/michcald/loranode/sx1262"
)

// ProtocolError is answered on the wire with Err(Code); the connection stays up.
type ProtocolError struct {
	Code ErrorCode
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return "protocol error: " + e.Code.String()
	}
	return fmt.Sprintf("protocol error: %s: %v", e.Code, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func protocolError(code ErrorCode, err error) error {
	return &ProtocolError{Code: code, Err: err}
}

// MalformedFrameError reports a request whose body ended early. No reply is
// sent for it.
type MalformedFrameError struct {
	Command Command
	Err     error
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed %s frame: %v", e.Command, e.Err)
}

func (e *MalformedFrameError) Unwrap() error { return e.Err }

// errorCode maps a handler error to the code sent back to the client.
func errorCode(err error) (ErrorCode, bool) {
	var pe *ProtocolError
	switch {
	case errors.As(err, &pe):
		return pe.Code, true
	case errors.Is(err, store.ErrNotFound):
		return ErrCodeNotFound, true
	case errors.Is(err, store.ErrTableFull):
		return ErrCodeTableFull, true
	case errors.Is(err, sx1262.ErrConfig):
		return ErrCodeIllegalArg, true
	}
	return 0, false
}
