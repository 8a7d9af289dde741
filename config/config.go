// Package config loads the node configuration from a YAML file and the
// environment.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/michcald/loranode/node"
	"github.com/michcald/loranode/store"
	"github.com/michcald/loranode/sx1262"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LORANODE_"

type Config struct {
	Node     NodeConfig     `yaml:"node"`
	Radio    RadioConfig    `yaml:"radio"`
	Hardware HardwareConfig `yaml:"hardware"`
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// NodeConfig describes the node identity and its client transports.
type NodeConfig struct {
	Role string `yaml:"role"`
	Name string `yaml:"name"`
	// PublicKey is hex encoded. Empty means a key is generated at startup.
	PublicKey         string `yaml:"publicKey"`
	Lat               int32  `yaml:"lat"`
	Lon               int32  `yaml:"lon"`
	MaxTxPower        int8   `yaml:"maxTxPower"`
	BatteryMillivolts uint16 `yaml:"batteryMillivolts"`
	MaxContacts       int    `yaml:"maxContacts"`
	MaxMessages       int    `yaml:"maxMessages"`
	// TCPAddr is the client listen address. Empty disables TCP.
	TCPAddr string `yaml:"tcpAddr"`
	// SerialPort is the client serial device. Empty disables serial.
	SerialPort string `yaml:"serialPort"`
	SerialBaud int    `yaml:"serialBaud"`
}

// RadioConfig holds the modem parameters.
type RadioConfig struct {
	FrequencyHz     uint32        `yaml:"frequencyHz"`
	BandwidthHz     uint32        `yaml:"bandwidthHz"`
	SpreadingFactor uint8         `yaml:"spreadingFactor"`
	CodingRate      uint8         `yaml:"codingRate"`
	PreambleLength  uint16        `yaml:"preambleLength"`
	SyncWord        uint16        `yaml:"syncWord"`
	PayloadLength   uint8         `yaml:"payloadLength"`
	CRC             bool          `yaml:"crc"`
	ImplicitHeader  bool          `yaml:"implicitHeader"`
	InvertIQ        bool          `yaml:"invertIQ"`
	TxPower         int8          `yaml:"txPower"`
	RxTimeout       time.Duration `yaml:"rxTimeout"`
}

// HardwareConfig describes how the radio is wired.
type HardwareConfig struct {
	// Enabled is false to run without a radio.
	Enabled        bool    `yaml:"enabled"`
	SPIBus         string  `yaml:"spiBus"`
	SPIClockHz     int     `yaml:"spiClockHz"`
	ResetPin       int     `yaml:"resetPin"`
	BusyPin        int     `yaml:"busyPin"`
	DIO1Pin        int     `yaml:"dio1Pin"`
	DIO2AsRFSwitch bool    `yaml:"dio2AsRfSwitch"`
	TCXOVoltage    float32 `yaml:"tcxoVoltage"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// File, when set, receives a copy of the log, rotated by size.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

type HTTPConfig struct {
	// APIAddr serves the status API and metrics. Empty disables it.
	APIAddr string `yaml:"apiAddr"`
	// HealthAddr serves the gRPC health service. Empty disables it.
	HealthAddr string `yaml:"healthAddr"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	rc := sx1262.DefaultRadioConfig()
	return &Config{
		Node: NodeConfig{
			Role:              string(node.RoleCompanion),
			Name:              "loranode",
			MaxTxPower:        sx1262.MaxTxPower,
			BatteryMillivolts: 3700,
			MaxContacts:       100,
			MaxMessages:       32,
			TCPAddr:           ":5000",
			SerialBaud:        115200,
		},
		Radio: RadioConfig{
			FrequencyHz:     rc.FrequencyHz,
			BandwidthHz:     rc.BandwidthHz,
			SpreadingFactor: rc.SpreadingFactor,
			CodingRate:      rc.CodingRate,
			PreambleLength:  rc.PreambleLength,
			SyncWord:        rc.SyncWord,
			PayloadLength:   rc.PayloadLength,
			CRC:             rc.CRC,
			TxPower:         rc.TxPower,
		},
		Hardware: HardwareConfig{
			Enabled:        true,
			SPIBus:         "/dev/spidev0.0",
			SPIClockHz:     2_000_000,
			ResetPin:       18,
			BusyPin:        20,
			DIO1Pin:        16,
			DIO2AsRFSwitch: true,
			TCXOVoltage:    1.8,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		HTTP: HTTPConfig{
			APIAddr:    ":8888",
			HealthAddr: ":6666",
		},
	}
}

// Load reads the defaults, then the YAML file at path if not empty, then the
// LORANODE_* environment variables, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

type lookupFunc func(key string) (string, bool)

// applyEnvOverrides sets the fields that have an environment variable.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) error {
	strs := map[string]*string{
		"ROLE":        &cfg.Node.Role,
		"NAME":        &cfg.Node.Name,
		"PUBLIC_KEY":  &cfg.Node.PublicKey,
		"TCP_ADDR":    &cfg.Node.TCPAddr,
		"SERIAL_PORT": &cfg.Node.SerialPort,
		"SPI_BUS":     &cfg.Hardware.SPIBus,
		"LOG_LEVEL":   &cfg.Log.Level,
		"LOG_FILE":    &cfg.Log.File,
		"API_ADDR":    &cfg.HTTP.APIAddr,
		"HEALTH_ADDR": &cfg.HTTP.HealthAddr,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	if v, ok := lookup(EnvPrefix + "FREQUENCY_HZ"); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("%sFREQUENCY_HZ: %w", EnvPrefix, err)
		}
		cfg.Radio.FrequencyHz = uint32(n)
	}
	if v, ok := lookup(EnvPrefix + "BANDWIDTH_HZ"); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("%sBANDWIDTH_HZ: %w", EnvPrefix, err)
		}
		cfg.Radio.BandwidthHz = uint32(n)
	}
	if v, ok := lookup(EnvPrefix + "SPREADING_FACTOR"); ok {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return fmt.Errorf("%sSPREADING_FACTOR: %w", EnvPrefix, err)
		}
		cfg.Radio.SpreadingFactor = uint8(n)
	}
	if v, ok := lookup(EnvPrefix + "TX_POWER"); ok {
		n, err := strconv.ParseInt(v, 10, 8)
		if err != nil {
			return fmt.Errorf("%sTX_POWER: %w", EnvPrefix, err)
		}
		cfg.Radio.TxPower = int8(n)
	}
	if v, ok := lookup(EnvPrefix + "HARDWARE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sHARDWARE: %w", EnvPrefix, err)
		}
		cfg.Hardware.Enabled = b
	}
	return nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if _, err := node.ParseRole(c.Node.Role); err != nil {
		return err
	}
	if c.Node.Name == "" {
		return fmt.Errorf("node name must not be empty")
	}
	if _, err := c.PublicKey(); err != nil {
		return err
	}
	if c.Node.MaxTxPower < sx1262.MinTxPower || c.Node.MaxTxPower > sx1262.MaxTxPower {
		return fmt.Errorf("max tx power %d dBm out of range", c.Node.MaxTxPower)
	}
	if c.Radio.TxPower > c.Node.MaxTxPower {
		return fmt.Errorf("tx power %d dBm above max %d dBm", c.Radio.TxPower, c.Node.MaxTxPower)
	}
	if err := c.RadioConfig().Validate(); err != nil {
		return err
	}
	if c.Node.SerialPort != "" && c.Node.SerialBaud <= 0 {
		return fmt.Errorf("invalid serial baud rate %d", c.Node.SerialBaud)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	return nil
}

// RadioConfig returns the modem parameters for the driver.
func (c *Config) RadioConfig() sx1262.RadioConfig {
	r := c.Radio
	return sx1262.RadioConfig{
		FrequencyHz:     r.FrequencyHz,
		BandwidthHz:     r.BandwidthHz,
		SpreadingFactor: r.SpreadingFactor,
		CodingRate:      r.CodingRate,
		PreambleLength:  r.PreambleLength,
		SyncWord:        r.SyncWord,
		PayloadLength:   r.PayloadLength,
		CRC:             r.CRC,
		ImplicitHeader:  r.ImplicitHeader,
		InvertIQ:        r.InvertIQ,
		TxPower:         r.TxPower,
		RxTimeout:       r.RxTimeout,
	}
}

// PublicKey decodes Node.PublicKey. The zero key means none is configured.
func (c *Config) PublicKey() (key store.PublicKey, err error) {
	if c.Node.PublicKey == "" {
		return key, nil
	}
	b, err := hex.DecodeString(c.Node.PublicKey)
	if err != nil {
		return key, fmt.Errorf("invalid public key: %w", err)
	}
	if len(b) != len(key) {
		return key, fmt.Errorf("invalid public key: %d bytes, want %d", len(b), len(key))
	}
	copy(key[:], b)
	return key, nil
}
