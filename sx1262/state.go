package sx1262

// State is the chip operating mode as tracked by the driver.
type State uint8

const (
	StateSleep State = iota
	StateStandby
	StateConfigured
	StateListening
	StateTransmitting
)

func (s State) String() string {
	switch s {
	case StateSleep:
		return "sleep"
	case StateStandby:
		return "standby"
	case StateConfigured:
		return "configured"
	case StateListening:
		return "listening"
	case StateTransmitting:
		return "transmitting"
	default:
		return "unknown"
	}
}
