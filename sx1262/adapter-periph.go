package sx1262

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// edgePollInterval bounds how long a watcher blocks before checking for Unwatch.
const edgePollInterval = 100 * time.Millisecond

// realPin wraps a gpio.PinIO to satisfy the Pin interface.
type realPin struct {
	gpio.PinIO
	stopWatch chan struct{}
	done      chan struct{}
}

func (p *realPin) Out(l Level) error {
	if l == High {
		return p.PinIO.Out(gpio.High)
	}
	return p.PinIO.Out(gpio.Low)
}

func toGPIOPull(pull Pull) gpio.Pull {
	switch pull {
	case PullFloat:
		return gpio.Float
	case PullDown:
		return gpio.PullDown
	case PullUp:
		return gpio.PullUp
	default:
		return gpio.PullNoChange
	}
}

func (p *realPin) In(pull Pull) error {
	return p.PinIO.In(toGPIOPull(pull), gpio.NoEdge)
}

func (p *realPin) Read() Level {
	if p.PinIO.Read() == gpio.High {
		return High
	}
	return Low
}

func (p *realPin) Watch(edge Edge, handler func()) error {
	var pEdge gpio.Edge
	pull := gpio.PullDown
	switch edge {
	case RisingEdge:
		pEdge = gpio.RisingEdge
	case FallingEdge:
		pEdge = gpio.FallingEdge
		pull = gpio.PullUp
	case BothEdges:
		pEdge = gpio.BothEdges
	default:
		pEdge = gpio.NoEdge
	}

	if err := p.PinIO.In(pull, pEdge); err != nil {
		return err
	}

	p.stopWatch = make(chan struct{})
	p.done = make(chan struct{})
	stop, done := p.stopWatch, p.done

	go func() {
		defer close(done)
		for {
			edged := p.PinIO.WaitForEdge(edgePollInterval)
			select {
			case <-stop:
				return
			default:
			}
			if edged {
				handler()
			}
		}
	}()
	return nil
}

func (p *realPin) Unwatch() error {
	if p.stopWatch != nil {
		close(p.stopWatch)
		<-p.done
		p.stopWatch = nil
	}
	return p.PinIO.In(gpio.PullNoChange, gpio.NoEdge)
}

// Config holds the configuration for the Linux/periph.io driver.
type Config struct {
	RadioConfig
	// ResetPin is the GPIO pin number (BCM numbering) wired to NRESET.
	// Defaults to 18 if not provided.
	ResetPin int
	// BusyPin is the GPIO pin number (BCM numbering) wired to BUSY.
	// Defaults to 20 if not provided.
	BusyPin int
	// DIO1Pin is the GPIO pin number (BCM numbering) wired to DIO1.
	// Optional. If not provided, IRQ status is polled.
	DIO1Pin int
	// SpiBusPath is the path to the SPI bus (e.g., "/dev/spidev0.0").
	// Defaults to "/dev/spidev0.0" if not provided.
	SpiBusPath string
	// SpiClockHz is the SPI clock frequency in Hz.
	// Defaults to 2000000 (2MHz) if not provided.
	SpiClockHz int
	// DIO2AsRFSwitch lets the chip drive the antenna switch from DIO2.
	DIO2AsRFSwitch bool
	// TCXOVoltage powers a TCXO from DIO3. Zero means a plain crystal.
	TCXOVoltage float32
	// Logger receives driver diagnostics. Optional.
	Logger Logger
}

func openPin(n int) (*realPin, error) {
	name := fmt.Sprintf("GPIO%d", n)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("failed to open pin %s", name)
	}
	return &realPin{PinIO: p}, nil
}

// New creates and initializes a new SX1262 driver for Linux systems.
// It applies configuration defaults, opens the SPI bus and GPIO pins using
// periph.io, and brings the chip up to continuous receive.
func New(c Config) (*Device, error) {
	// Reject bad modem parameters before any hardware is touched.
	if err := c.RadioConfig.Validate(); err != nil {
		return nil, err
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph.io host: %w", err)
	}

	if c.SpiBusPath == "" {
		c.SpiBusPath = "/dev/spidev0.0"
	}
	p, err := spireg.Open(c.SpiBusPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port: %w", err)
	}

	if c.SpiClockHz == 0 {
		c.SpiClockHz = 2000000
	}
	conn, err := p.Connect(physic.Frequency(c.SpiClockHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to create SPI connection: %w", err)
	}

	if c.ResetPin == 0 {
		c.ResetPin = 18
	}
	if c.BusyPin == 0 {
		c.BusyPin = 20
	}
	reset, err := openPin(c.ResetPin)
	if err != nil {
		p.Close()
		return nil, err
	}
	busy, err := openPin(c.BusyPin)
	if err != nil {
		p.Close()
		return nil, err
	}

	var dio1 Pin
	if c.DIO1Pin != 0 {
		pin, err := openPin(c.DIO1Pin)
		if err != nil {
			p.Close()
			return nil, err
		}
		dio1 = pin
	}

	hwConfig := HardwareConfig{
		RadioConfig:    c.RadioConfig,
		Reset:          reset,
		Busy:           busy,
		DIO1:           dio1,
		DIO2AsRFSwitch: c.DIO2AsRFSwitch,
		TCXOVoltage:    c.TCXOVoltage,
		Logger:         c.Logger,
	}
	dev, err := NewWithHardware(hwConfig, conn)
	if err != nil {
		p.Close()
		return nil, err
	}

	dev.port = p
	return dev, nil
}
