// Package sx1262 drives a Semtech SX1262 LoRa transceiver over SPI.
package sx1262

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/michcald/loranode/metrics"
)

const (
	defaultBusyTimeout  = 100 * time.Millisecond
	defaultPollInterval = 10 * time.Millisecond
	defaultRxQueueSize  = 16

	busAttempts      = 3
	busyPollInterval = 100 * time.Microsecond
	resetPulse       = 2 * time.Millisecond
	txPollInterval   = time.Millisecond
	// txMargin covers SPI latency and scheduling on top of the airtime.
	txMargin = 100 * time.Millisecond
)

// irqMask enables every flag the driver acts on, routed to DIO1.
const irqMask = IrqTxDone | IrqRxDone | IrqHeaderErr | IrqCrcErr | IrqTimeout

type HardwareConfig struct {
	RadioConfig
	// Reset is the NRESET pin. Optional. If not provided, no hardware reset
	// is performed.
	Reset Pin
	// Busy is the BUSY pin. Every bus transaction waits for it to go low.
	Busy Pin
	// DIO1 is the IRQ pin. Optional. If not provided, IRQ status is polled.
	DIO1 Pin
	// DIO2AsRFSwitch lets the chip drive the antenna switch from DIO2.
	DIO2AsRFSwitch bool
	// TCXOVoltage powers a TCXO from DIO3. Zero means a plain crystal.
	TCXOVoltage float32
	// BusyTimeout bounds the wait on BUSY before a bus transaction.
	// Defaults to 100ms.
	BusyTimeout time.Duration
	// PollInterval is the IRQ poll period of Run.
	// Defaults to 10ms.
	PollInterval time.Duration
	// RxQueueSize is the number of received packets buffered for Receive.
	// Defaults to 16.
	RxQueueSize int
	// Logger receives driver diagnostics. Optional.
	Logger Logger
}

type Device struct {
	config HardwareConfig
	conn   SPI
	port   io.Closer
	logger Logger

	mu     sync.Mutex
	state  State
	fault  error
	status PacketStatus
	tx     [4 + MaxPayloadLength]byte
	rx     [4 + MaxPayloadLength]byte

	irqChan   chan struct{}
	rxQueue   chan Packet
	faulted   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewWithHardware creates and initializes a new SX1262 driver with the provided
// hardware interfaces. On return the chip is configured and listening.
func NewWithHardware(c HardwareConfig, conn SPI) (*Device, error) {
	if err := c.RadioConfig.Validate(); err != nil {
		return nil, err
	}
	if c.TCXOVoltage != 0 {
		if _, ok := tcxoCodes[c.TCXOVoltage]; !ok {
			return nil, invalidParam("unsupported TCXO voltage %.1fV", c.TCXOVoltage)
		}
	}
	if c.Busy == nil {
		return nil, fmt.Errorf("%w: BUSY pin not configured", ErrPkg)
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.RxQueueSize == 0 {
		c.RxQueueSize = defaultRxQueueSize
	}
	if c.Logger == nil {
		c.Logger = &nopLogger{}
	}

	dev := &Device{
		config:  c,
		conn:    conn,
		logger:  c.Logger,
		state:   StateSleep,
		rxQueue: make(chan Packet, c.RxQueueSize),
		faulted: make(chan struct{}),
		done:    make(chan struct{}),
	}

	dev.logger.Info("Initializing SX1262 SPI communication...")

	if err := c.Busy.In(PullNoChange); err != nil {
		return nil, fmt.Errorf("failed to set up BUSY pin: %w", err)
	}
	if err := dev.reset(); err != nil {
		return nil, err
	}
	if err := dev.baseInit(); err != nil {
		return nil, err
	}
	if err := dev.configure(c.RadioConfig); err != nil {
		return nil, err
	}

	status, err := dev.getStatus()
	if err != nil {
		return nil, err
	}
	dev.logger.Debug(fmt.Sprintf("chip status 0x%02X", status))

	if err := dev.setRx(); err != nil {
		return nil, err
	}

	if c.DIO1 != nil {
		dev.irqChan = make(chan struct{}, 1)
		err := c.DIO1.Watch(RisingEdge, func() {
			select {
			case dev.irqChan <- struct{}{}:
			default:
				// Channel full
			}
		})
		if err != nil {
			return nil, fmt.Errorf("failed to watch DIO1 pin: %w", err)
		}
	}

	dev.logger.Info("SX1262 initialized. Listening on " + c.RadioConfig.String())
	return dev, nil
}

func (d *Device) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return fmt.Sprintf("SX1262(State=%s, %s, SyncWord=0x%04X, TxPower=%ddBm, CRC=%v)",
		d.state,
		d.config.RadioConfig,
		d.config.SyncWord,
		d.config.TxPower,
		d.config.CRC,
	)
}

// State returns the current chip mode.
// This method is concurrent safe.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Config returns the active modem parameters.
// This method is concurrent safe.
func (d *Device) Config() RadioConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config.RadioConfig
}

// LastPacketStatus returns the link quality of the most recent packet.
// This method is concurrent safe.
func (d *Device) LastPacketStatus() PacketStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Err returns the hardware fault that stopped the device, if any.
// This method is concurrent safe.
func (d *Device) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fault
}

// Configure validates c and applies it. Invalid parameters are rejected
// before any bus traffic. The radio keeps listening if it was.
// This method is concurrent safe.
func (d *Device) Configure(c RadioConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.usable(); err != nil {
		return err
	}
	resume := d.state == StateListening
	if err := d.configure(c); err != nil {
		return err
	}
	d.logger.Info("radio configured: " + c.String())
	if resume {
		return d.setRx()
	}
	return nil
}

// SetTxPower sets the output power in dBm.
// This method is concurrent safe.
func (d *Device) SetTxPower(dbm int8) error {
	if dbm < MinTxPower || dbm > MaxTxPower {
		return invalidParam("tx power %d dBm out of range", dbm)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.usable(); err != nil {
		return err
	}
	resume := d.state == StateListening
	if err := d.standby(); err != nil {
		return err
	}
	if err := d.command(_SET_TX_PARAMS, byte(dbm), _RAMP_200U); err != nil {
		return err
	}
	d.config.TxPower = dbm
	if resume {
		return d.setRx()
	}
	return nil
}

// Listen arms the receiver with the configured RX timeout.
// This method is concurrent safe.
func (d *Device) Listen() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.usable(); err != nil {
		return err
	}
	return d.setRx()
}

// Standby stops receiving. Packets already queued stay available.
// This method is concurrent safe.
func (d *Device) Standby() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.usable(); err != nil {
		return err
	}
	return d.standby()
}

// Reset pulses NRESET, reapplies the current configuration and resumes
// listening.
// This method is concurrent safe.
func (d *Device) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.usable(); err != nil {
		return err
	}
	if err := d.reset(); err != nil {
		return err
	}
	if err := d.baseInit(); err != nil {
		return err
	}
	if err := d.configure(d.config.RadioConfig); err != nil {
		return err
	}
	d.logger.Info("SX1262 reset.")
	return d.setRx()
}

// Send transmits p and blocks until the chip reports TX done. The radio
// returns to receive afterwards if it was listening.
// This method is concurrent safe.
func (d *Device) Send(ctx context.Context, p []byte) error {
	if len(p) == 0 || len(p) > MaxPayloadLength {
		return invalidParam("payload length %d out of range", len(p))
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.usable(); err != nil {
		return err
	}
	resume := d.state == StateListening
	if err := d.standby(); err != nil {
		return err
	}

	txErr := d.transmit(ctx, p)
	if IsHardwareFault(txErr) {
		return txErr
	}

	pkt := d.config.packetParams(d.config.PayloadLength)
	if err := d.command(_SET_PACKET_PARAMS, pkt[:]...); err != nil {
		return err
	}
	if resume {
		if err := d.setRx(); err != nil {
			return err
		}
	}
	return txErr
}

// Receive waits for the next packet and returns its payload.
// It returns io.EOF once the device is closed.
// This method is concurrent safe.
func (d *Device) Receive(ctx context.Context) ([]byte, error) {
	p, err := d.ReceivePacket(ctx)
	if err != nil {
		return nil, err
	}
	return p.Data, nil
}

// ReceivePacket is like Receive but also returns the link quality.
// This method is concurrent safe.
func (d *Device) ReceivePacket(ctx context.Context) (Packet, error) {
	select {
	case p := <-d.rxQueue:
		return p, nil
	default:
	}

	select {
	case p := <-d.rxQueue:
		return p, nil
	case <-d.faulted:
		return Packet{}, d.Err()
	case <-d.done:
		return Packet{}, io.EOF
	case <-ctx.Done():
		return Packet{}, ctx.Err()
	}
}

// Run services radio interrupts until ctx is done, the device is closed or a
// hardware fault occurs, in which case the fault is returned. DIO1 edges
// trigger a poll immediately; the poll interval is a backstop for missed edges
// and the only trigger when DIO1 is not wired.
func (d *Device) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.done:
			return nil
		case <-d.irqChan:
		case <-ticker.C:
		}
		if err := d.Poll(); err != nil {
			return err
		}
	}
}

// Poll reads the IRQ flags once and handles them. Flags are cleared before
// they are acted on, and any terminal flag re-arms the receiver.
// This method is concurrent safe.
func (d *Device) Poll() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fault != nil {
		return d.fault
	}
	if d.state != StateListening {
		return nil
	}

	irq, err := d.getIrqStatus()
	if err != nil {
		return err
	}
	if irq == 0 {
		return nil
	}
	if err := d.clearIrqStatus(IrqAll); err != nil {
		return err
	}
	if irq&irqTerminal == 0 {
		return nil
	}

	d.state = StateConfigured
	switch {
	case irq&(IrqCrcErr|IrqHeaderErr) != 0:
		metrics.RadioIRQCounter.WithLabelValues("crc_error").Inc()
		d.logger.Warn(fmt.Sprintf("dropped corrupt packet (irq 0x%04X)", irq))
	case irq&IrqRxDone != 0:
		metrics.RadioIRQCounter.WithLabelValues("rx_done").Inc()
		if err := d.readPacket(); err != nil {
			return err
		}
	case irq&IrqTimeout != 0:
		metrics.RadioIRQCounter.WithLabelValues("timeout").Inc()
	default:
		metrics.RadioIRQCounter.WithLabelValues("other").Inc()
	}
	return d.setRx()
}

// Close puts the chip to sleep and releases the bus and pins. Loops started
// with Run must have returned before Close is called.
// This method is concurrent safe.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.done)

		d.mu.Lock()
		defer d.mu.Unlock()

		if d.fault == nil {
			if serr := d.command(_SET_SLEEP, _SLEEP_COLD_START); serr != nil {
				d.logger.Warn("Failed to put SX1262 to sleep")
			}
		}
		d.state = StateSleep
		d.logger.Info("SX1262 put to sleep.")

		if d.config.DIO1 != nil {
			if uerr := d.config.DIO1.Unwatch(); uerr != nil {
				d.logger.Warn("Failed to release DIO1 pin")
			}
		}
		if d.port != nil {
			if cerr := d.port.Close(); cerr != nil {
				d.logger.Warn("Failed to close SPI port")
				err = cerr
				return
			}
			d.logger.Info("SPI bus closed.")
		}
	})
	return err
}

// --- SX1262 core functions (SPI interaction) ---

func (d *Device) usable() error {
	if d.fault != nil {
		return d.fault
	}
	if d.state == StateSleep {
		return fmt.Errorf("%w: %w", ErrPkg, ErrClosed)
	}
	return nil
}

func (d *Device) setFault(err error) error {
	if d.fault == nil {
		d.fault = err
		close(d.faulted)
		metrics.RadioFaultCounter.Inc()
		d.logger.Error("radio fault: " + err.Error())
	}
	return d.fault
}

func (d *Device) waitBusy() error {
	deadline := time.Now().Add(d.config.BusyTimeout)
	for d.config.Busy.Read() == High {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %w", ErrPkg, ErrBusyTimeout)
		}
		time.Sleep(busyPollInterval)
	}
	return nil
}

// transfer clocks out the first n bytes of d.tx and returns what the chip
// clocked back. The result aliases d.rx.
func (d *Device) transfer(n int) ([]byte, error) {
	if d.fault != nil {
		return nil, d.fault
	}
	if err := d.waitBusy(); err != nil {
		return nil, d.setFault(err)
	}
	var err error
	for attempt := 0; attempt < busAttempts; attempt++ {
		if err = d.conn.Tx(d.tx[:n], d.rx[:n]); err == nil {
			return d.rx[:n], nil
		}
	}
	return nil, d.setFault(fmt.Errorf("%w: %w: %v", ErrPkg, ErrBus, err))
}

func (d *Device) command(op byte, params ...byte) error {
	d.tx[0] = op
	n := copy(d.tx[1:], params)
	_, err := d.transfer(1 + n)
	return err
}

// fillNop zeroes the response area of d.tx.
func (d *Device) fillNop(from, to int) {
	for i := from; i < to; i++ {
		d.tx[i] = _NOP
	}
}

func (d *Device) getStatus() (byte, error) {
	d.tx[0] = _GET_STATUS
	d.fillNop(1, 2)
	r, err := d.transfer(2)
	if err != nil {
		return 0, err
	}
	return r[1], nil
}

func (d *Device) getIrqStatus() (uint16, error) {
	d.tx[0] = _GET_IRQ_STATUS
	d.fillNop(1, 4)
	r, err := d.transfer(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(r[2:4]), nil
}

func (d *Device) clearIrqStatus(mask uint16) error {
	return d.command(_CLEAR_IRQ_STATUS, byte(mask>>8), byte(mask))
}

func (d *Device) getRxBufferStatus() (length, start byte, err error) {
	d.tx[0] = _GET_RX_BUFFER_STATUS
	d.fillNop(1, 4)
	r, err := d.transfer(4)
	if err != nil {
		return 0, 0, err
	}
	return r[2], r[3], nil
}

func (d *Device) getPacketStatus() (PacketStatus, error) {
	d.tx[0] = _GET_PACKET_STATUS
	d.fillNop(1, 5)
	r, err := d.transfer(5)
	if err != nil {
		return PacketStatus{}, err
	}
	return decodePacketStatus(r[2], r[3], r[4]), nil
}

func (d *Device) readBuffer(offset byte, n int) ([]byte, error) {
	d.tx[0] = _READ_BUFFER
	d.tx[1] = offset
	d.fillNop(2, 3+n)
	r, err := d.transfer(3 + n)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(r[3:]), nil
}

func (d *Device) writeBuffer(offset byte, data []byte) error {
	d.tx[0] = _WRITE_BUFFER
	d.tx[1] = offset
	copy(d.tx[2:], data)
	_, err := d.transfer(2 + len(data))
	return err
}

func (d *Device) readRegister(addr uint16) (byte, error) {
	d.tx[0] = _READ_REGISTER
	d.tx[1] = byte(addr >> 8)
	d.tx[2] = byte(addr)
	d.fillNop(3, 5)
	r, err := d.transfer(5)
	if err != nil {
		return 0, err
	}
	return r[4], nil
}

func (d *Device) writeRegister(addr uint16, data ...byte) error {
	d.tx[0] = _WRITE_REGISTER
	d.tx[1] = byte(addr >> 8)
	d.tx[2] = byte(addr)
	copy(d.tx[3:], data)
	_, err := d.transfer(3 + len(data))
	return err
}

// --- SX1262 state transitions ---

func (d *Device) reset() error {
	if d.config.Reset != nil {
		if err := d.config.Reset.Out(Low); err != nil {
			return fmt.Errorf("failed to drive NRESET: %w", err)
		}
		time.Sleep(resetPulse)
		if err := d.config.Reset.Out(High); err != nil {
			return fmt.Errorf("failed to drive NRESET: %w", err)
		}
		time.Sleep(resetPulse)
	}
	if err := d.waitBusy(); err != nil {
		return d.setFault(err)
	}
	d.state = StateStandby
	return nil
}

// baseInit sets up the subsystems that do not depend on RadioConfig.
func (d *Device) baseInit() error {
	cmds := [][]byte{{_SET_STANDBY, _STDBY_RC}}
	if d.config.TCXOVoltage != 0 {
		delay := uint32(_TCXO_STARTUP_DELAY_TICKS)
		cmds = append(cmds, []byte{_SET_DIO3_AS_TCXO_CTRL, tcxoCodes[d.config.TCXOVoltage], byte(delay >> 16), byte(delay >> 8), byte(delay)})
	}
	cmds = append(cmds,
		[]byte{_SET_REGULATOR_MODE, _REGULATOR_DCDC},
		[]byte{_CALIBRATE, _CALIBRATE_ALL},
	)
	if d.config.DIO2AsRFSwitch {
		cmds = append(cmds, []byte{_SET_DIO2_AS_RF_SWITCH, 0x01})
	}
	cmds = append(cmds,
		[]byte{_SET_PACKET_TYPE, _PACKET_TYPE_LORA},
		[]byte{_SET_BUFFER_BASE_ADDRESS, _TX_BASE_ADDRESS, _RX_BASE_ADDRESS},
		// SX1262 high power PA: paDutyCycle, hpMax, deviceSel, paLut
		[]byte{_SET_PA_CONFIG, 0x04, 0x07, 0x00, 0x01},
		[]byte{_SET_DIO_IRQ_PARAMS, byte(irqMask >> 8), byte(irqMask & 0xFF), byte(irqMask >> 8), byte(irqMask & 0xFF), 0, 0, 0, 0},
	)
	for _, cmd := range cmds {
		if err := d.command(cmd[0], cmd[1:]...); err != nil {
			return err
		}
	}
	d.state = StateStandby
	return nil
}

func (d *Device) configure(c RadioConfig) error {
	if err := d.command(_SET_STANDBY, _STDBY_RC); err != nil {
		return err
	}
	d.state = StateStandby

	for _, band := range imageBands {
		if c.FrequencyHz >= band.lo && c.FrequencyHz <= band.hi {
			if err := d.command(_CALIBRATE_IMAGE, band.f1, band.f2); err != nil {
				return err
			}
			break
		}
	}

	freq := frequencyRegister(c.FrequencyHz)
	if err := d.command(_SET_RF_FREQUENCY, byte(freq>>24), byte(freq>>16), byte(freq>>8), byte(freq)); err != nil {
		return err
	}
	mod := c.modulationParams()
	if err := d.command(_SET_MODULATION_PARAMS, mod[:]...); err != nil {
		return err
	}
	pkt := c.packetParams(c.PayloadLength)
	if err := d.command(_SET_PACKET_PARAMS, pkt[:]...); err != nil {
		return err
	}
	if err := d.writeRegister(_REG_LORA_SYNC_WORD_MSB, byte(c.SyncWord>>8), byte(c.SyncWord)); err != nil {
		return err
	}

	// IQ polarity errata (datasheet 15.4): bit 2 must be the inverse of InvertIQ.
	iq, err := d.readRegister(_REG_IQ_POLARITY)
	if err != nil {
		return err
	}
	if c.InvertIQ {
		iq &^= 0x04
	} else {
		iq |= 0x04
	}
	if err := d.writeRegister(_REG_IQ_POLARITY, iq); err != nil {
		return err
	}

	if err := d.command(_SET_TX_PARAMS, byte(c.TxPower), _RAMP_200U); err != nil {
		return err
	}

	d.config.RadioConfig = c
	d.state = StateConfigured
	return nil
}

func (d *Device) standby() error {
	if err := d.command(_SET_STANDBY, _STDBY_RC); err != nil {
		return err
	}
	d.state = StateConfigured
	return nil
}

func (d *Device) setRx() error {
	t := rxTimeoutTicks(d.config.RxTimeout)
	if err := d.command(_SET_RX, byte(t>>16), byte(t>>8), byte(t)); err != nil {
		return err
	}
	d.state = StateListening
	return nil
}

func (d *Device) readPacket() error {
	length, start, err := d.getRxBufferStatus()
	if err != nil {
		return err
	}
	if length > d.config.PayloadLength {
		length = d.config.PayloadLength
	}
	status, err := d.getPacketStatus()
	if err != nil {
		return err
	}
	d.status = status
	metrics.RadioRSSIGauge.Set(float64(status.RSSI))
	metrics.RadioSNRGauge.Set(float64(status.SNR))

	if length == 0 {
		d.logger.Debug("received empty packet")
		return nil
	}
	data, err := d.readBuffer(start, int(length))
	if err != nil {
		return err
	}

	select {
	case d.rxQueue <- Packet{Data: data, Status: status}:
	default:
		metrics.RadioDroppedCounter.Inc()
		d.logger.Warn("receive queue full, packet dropped")
	}
	return nil
}

// transmit loads p, starts TX and waits for TX done. On return the chip is
// in standby.
func (d *Device) transmit(ctx context.Context, p []byte) error {
	if err := d.writeBuffer(_TX_BASE_ADDRESS, p); err != nil {
		return err
	}
	pkt := d.config.packetParams(uint8(len(p)))
	if err := d.command(_SET_PACKET_PARAMS, pkt[:]...); err != nil {
		return err
	}
	if err := d.clearIrqStatus(IrqAll); err != nil {
		return err
	}
	// No chip-side timeout; the wait below is bounded by the airtime.
	if err := d.command(_SET_TX, 0, 0, 0); err != nil {
		return err
	}
	d.state = StateTransmitting

	deadline := time.Now().Add(d.config.TimeOnAir(len(p)) + txMargin)
	for {
		irq, err := d.getIrqStatus()
		if err != nil {
			return err
		}
		if irq&IrqTxDone != 0 {
			metrics.RadioIRQCounter.WithLabelValues("tx_done").Inc()
			if err := d.clearIrqStatus(IrqAll); err != nil {
				return err
			}
			d.state = StateConfigured
			return nil
		}
		if time.Now().After(deadline) {
			if err := d.command(_SET_STANDBY, _STDBY_RC); err != nil {
				d.logger.Warn("Failed to stop timed out transmission: " + err.Error())
			}
			d.state = StateConfigured
			return d.setFault(fmt.Errorf("%w: %w", ErrPkg, ErrTxTimeout))
		}
		if err := ctx.Err(); err != nil {
			if serr := d.standby(); serr != nil {
				return serr
			}
			return err
		}
		time.Sleep(txPollInterval)
	}
}
