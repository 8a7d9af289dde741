package sx1262

import (
	"errors"
	"fmt"
)

var (
	ErrPkg = errors.New("sx1262")

	// ErrHardwareFault is the parent of every unrecoverable bus or chip failure.
	// Once returned, the device refuses further bus traffic.
	ErrHardwareFault = errors.New("hardware fault")
	ErrBusyTimeout   = fmt.Errorf("%w: busy line stuck", ErrHardwareFault)
	ErrBus           = fmt.Errorf("%w: bus transfer failed", ErrHardwareFault)
	ErrTxTimeout     = fmt.Errorf("%w: transmission did not complete", ErrHardwareFault)

	// ErrConfig is the parent of configuration errors, which are always
	// detected before the bus is touched.
	ErrConfig           = errors.New("configuration error")
	ErrInvalidParameter = fmt.Errorf("%w: invalid parameter", ErrConfig)

	ErrClosed = errors.New("radio closed")
)

// IsHardwareFault reports whether err is an unrecoverable radio failure.
func IsHardwareFault(err error) bool {
	return errors.Is(err, ErrHardwareFault)
}

func invalidParam(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrPkg, ErrInvalidParameter, fmt.Sprintf(format, args...))
}
