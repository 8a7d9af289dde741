package sx1262

import (
	"fmt"
	"time"

	"github.com/soypat/lora"
)

const (
	MinFrequencyHz   = 150_000_000
	MaxFrequencyHz   = 960_000_000
	MaxPayloadLength = 255
	MinTxPower       = -9
	MaxTxPower       = 22

	// SyncWordPublic is the LoRaWAN sync word, SyncWordPrivate the one used by
	// private networks such as MeshCore.
	SyncWordPublic  uint16 = 0x3444
	SyncWordPrivate uint16 = 0x1424

	// ldroSymbolPeriod is the symbol duration above which low data rate
	// optimisation is mandatory.
	ldroSymbolPeriod = 16 * time.Millisecond
)

// RadioConfig holds the LoRa modem parameters.
type RadioConfig struct {
	// FrequencyHz is the carrier frequency. Range: 150 MHz to 960 MHz.
	FrequencyHz uint32
	// BandwidthHz must be one of 7800, 10400, 15600, 20800, 31250, 41700,
	// 62500, 125000, 250000 or 500000.
	BandwidthHz uint32
	// SpreadingFactor. Range: 5 to 12.
	SpreadingFactor uint8
	// CodingRate is the denominator of the 4/x coding rate. Range: 5 to 8.
	CodingRate uint8
	// PreambleLength in symbols. Must not be zero.
	PreambleLength uint16
	SyncWord       uint16
	// PayloadLength is the largest payload accepted on receive.
	// Range: 1 to 255.
	PayloadLength uint8
	CRC           bool
	// ImplicitHeader disables the explicit LoRa header. Receivers then expect
	// exactly PayloadLength bytes.
	ImplicitHeader bool
	InvertIQ       bool
	// TxPower in dBm. Range: -9 to 22.
	TxPower int8
	// RxTimeout bounds each receive window. Zero means continuous receive.
	RxTimeout time.Duration
}

// DefaultRadioConfig returns the parameters used by MeshCore nodes in the US band.
func DefaultRadioConfig() RadioConfig {
	return RadioConfig{
		FrequencyHz:     910_525_000,
		BandwidthHz:     62_500,
		SpreadingFactor: 7,
		CodingRate:      5,
		PreambleLength:  8,
		SyncWord:        SyncWordPrivate,
		PayloadLength:   MaxPayloadLength,
		CRC:             true,
		TxPower:         14,
	}
}

// Validate checks every field against the ranges supported by the chip.
func (c RadioConfig) Validate() error {
	switch {
	case c.FrequencyHz < MinFrequencyHz || c.FrequencyHz > MaxFrequencyHz:
		return invalidParam("frequency %d Hz out of range", c.FrequencyHz)
	case c.SpreadingFactor < 5 || c.SpreadingFactor > 12:
		return invalidParam("spreading factor %d out of range", c.SpreadingFactor)
	case c.CodingRate < 5 || c.CodingRate > 8:
		return invalidParam("coding rate 4/%d out of range", c.CodingRate)
	case c.PreambleLength == 0:
		return invalidParam("preamble length must not be zero")
	case c.PayloadLength == 0:
		return invalidParam("payload length must not be zero")
	case c.TxPower < MinTxPower || c.TxPower > MaxTxPower:
		return invalidParam("tx power %d dBm out of range", c.TxPower)
	case c.RxTimeout < 0 || c.RxTimeout >= rxTimeoutMax:
		return invalidParam("rx timeout %s out of range", c.RxTimeout)
	}
	if _, ok := bandwidthCodes[c.BandwidthHz]; !ok {
		return invalidParam("unsupported bandwidth %d Hz", c.BandwidthHz)
	}
	return nil
}

func (c RadioConfig) String() string {
	return fmt.Sprintf("%.3fMHz SF%d BW%.1fkHz CR4/%d", float64(c.FrequencyHz)/1e6, c.SpreadingFactor, float64(c.BandwidthHz)/1e3, c.CodingRate)
}

func (c RadioConfig) modem() lora.Config {
	cfg := lora.Config{
		Bandwidth:       lora.Frequency(c.BandwidthHz) * lora.Hertz,
		Frequency:       lora.Frequency(c.FrequencyHz) * lora.Hertz,
		PreambleLength:  c.PreambleLength,
		HeaderType:      lora.HeaderExplicit,
		CodingRate:      lora.CodingRate(c.CodingRate - 4),
		SpreadingFactor: lora.SpreadingFactor(c.SpreadingFactor),
		SyncWord:        c.SyncWord,
		TxPower:         c.TxPower,
		CRC:             c.CRC,
		IQInversion:     c.InvertIQ,
	}
	if c.ImplicitHeader {
		cfg.HeaderType = lora.HeaderImplicit
		cfg.MaxImplicitPayloadLength = c.PayloadLength
	}
	cfg.LDRO = cfg.SymbolPeriod() >= ldroSymbolPeriod
	return cfg
}

// LowDataRateOptimize reports whether the symbol period requires LDRO.
func (c RadioConfig) LowDataRateOptimize() bool {
	return c.modem().LDRO
}

// TimeOnAir returns the airtime of a packet carrying n payload bytes.
func (c RadioConfig) TimeOnAir(n int) time.Duration {
	m := c.modem()
	return m.TimeOnAir(n)
}

// frequencyRegister converts a carrier frequency into the 32 bit RF frequency
// word: round(hz * 2^25 / 32 MHz).
func frequencyRegister(hz uint32) uint32 {
	return uint32((uint64(hz)<<25 + 16_000_000) / 32_000_000)
}

// rxTimeoutTicks converts a receive timeout into 15.625us steps.
func rxTimeoutTicks(d time.Duration) uint32 {
	if d <= 0 {
		return _RX_CONTINUOUS
	}
	ticks := uint32(d * 64 / time.Millisecond)
	if ticks == 0 {
		ticks = 1
	}
	return ticks
}

// rxTimeoutMax is the largest finite receive timeout the 24 bit field holds.
const rxTimeoutMax = time.Duration(_RX_CONTINUOUS) * time.Millisecond / 64

func (c RadioConfig) modulationParams() [4]byte {
	var ldro byte
	if c.LowDataRateOptimize() {
		ldro = 1
	}
	return [4]byte{c.SpreadingFactor, bandwidthCodes[c.BandwidthHz], c.CodingRate - 4, ldro}
}

func (c RadioConfig) packetParams(payloadLen uint8) [6]byte {
	var header, crc, iq byte
	if c.ImplicitHeader {
		header = 1
	}
	if c.CRC {
		crc = 1
	}
	if c.InvertIQ {
		iq = 1
	}
	return [6]byte{byte(c.PreambleLength >> 8), byte(c.PreambleLength), header, payloadLen, crc, iq}
}
