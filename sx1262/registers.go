package sx1262

// SX1262 commands (datasheet DS.SX1261-2, section 13).
const (
	_SET_SLEEP                = 0x84
	_SET_STANDBY              = 0x80
	_SET_TX                   = 0x83
	_SET_RX                   = 0x82
	_SET_REGULATOR_MODE       = 0x96
	_CALIBRATE                = 0x89
	_CALIBRATE_IMAGE          = 0x98
	_SET_PA_CONFIG            = 0x95
	_SET_DIO_IRQ_PARAMS       = 0x08
	_GET_IRQ_STATUS           = 0x12
	_CLEAR_IRQ_STATUS         = 0x02
	_SET_DIO2_AS_RF_SWITCH    = 0x9D
	_SET_DIO3_AS_TCXO_CTRL    = 0x97
	_SET_RF_FREQUENCY         = 0x86
	_SET_PACKET_TYPE          = 0x8A
	_SET_TX_PARAMS            = 0x8E
	_SET_MODULATION_PARAMS    = 0x8B
	_SET_PACKET_PARAMS        = 0x8C
	_SET_BUFFER_BASE_ADDRESS  = 0x8F
	_GET_STATUS               = 0xC0
	_GET_RX_BUFFER_STATUS     = 0x13
	_GET_PACKET_STATUS        = 0x14
	_WRITE_REGISTER           = 0x0D
	_READ_REGISTER            = 0x1D
	_WRITE_BUFFER             = 0x0E
	_READ_BUFFER              = 0x1E
	_NOP                      = 0x00
	_STDBY_RC                 = 0x00
	_PACKET_TYPE_LORA         = 0x01
	_REGULATOR_DCDC           = 0x01
	_CALIBRATE_ALL            = 0x7F
	_SLEEP_COLD_START         = 0x00
	_RAMP_200U                = 0x04
	_TX_BASE_ADDRESS          = 0x80
	_RX_BASE_ADDRESS          = 0x00
	_REG_LORA_SYNC_WORD_MSB   = 0x0740
	_REG_IQ_POLARITY          = 0x0736
	_RX_CONTINUOUS            = 0xFFFFFF
	_TCXO_STARTUP_DELAY_TICKS = 320 // 5ms in 15.625us steps
)

// IRQ flags reported by GetIrqStatus.
const (
	IrqTxDone           uint16 = 1 << 0
	IrqRxDone           uint16 = 1 << 1
	IrqPreambleDetected uint16 = 1 << 2
	IrqSyncWordValid    uint16 = 1 << 3
	IrqHeaderValid      uint16 = 1 << 4
	IrqHeaderErr        uint16 = 1 << 5
	IrqCrcErr           uint16 = 1 << 6
	IrqCadDone          uint16 = 1 << 7
	IrqCadDetected      uint16 = 1 << 8
	IrqTimeout          uint16 = 1 << 9
	IrqAll              uint16 = 0x03FF
)

// irqTerminal are the flags that end a receive or transmit window.
const irqTerminal = IrqTxDone | IrqRxDone | IrqHeaderErr | IrqCrcErr | IrqTimeout

// bandwidthCodes maps the LoRa bandwidths to SetModulationParams codes.
var bandwidthCodes = map[uint32]byte{
	7800:   0x00,
	10400:  0x08,
	15600:  0x01,
	20800:  0x09,
	31250:  0x02,
	41700:  0x0A,
	62500:  0x03,
	125000: 0x04,
	250000: 0x05,
	500000: 0x06,
}

// tcxoCodes maps TCXO supply voltages to SetDIO3AsTCXOCtrl codes.
var tcxoCodes = map[float32]byte{
	1.6: 0x00,
	1.7: 0x01,
	1.8: 0x02,
	2.2: 0x03,
	2.4: 0x04,
	2.7: 0x05,
	3.0: 0x06,
	3.3: 0x07,
}

// imageBands lists the CalibrateImage frequency pairs per band.
var imageBands = []struct {
	lo, hi uint32
	f1, f2 byte
}{
	{430_000_000, 440_000_000, 0x6B, 0x6F},
	{470_000_000, 510_000_000, 0x75, 0x81},
	{779_000_000, 787_000_000, 0xC1, 0xC5},
	{863_000_000, 870_000_000, 0xD7, 0xDB},
	{902_000_000, 928_000_000, 0xE1, 0xE9},
}
