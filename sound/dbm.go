package sound

import (
	"context"
	"fmt"
	"time"

	"github.com/mklimuk/dbmeter"
)

// PCB Artists decibel meter module, fixed 7-bit I2C address.
const dbmAddress = 0x48

// Register map (per module documentation), one addressable byte each.
//
//	0x14-0x77 is a 100 entry decibel history block; the driver reserves
//	the range but exposes no operation over it.
const (
	regVersion   byte = 0x00
	regID3       byte = 0x01
	regID2       byte = 0x02
	regID1       byte = 0x03
	regID0       byte = 0x04
	regScratch   byte = 0x05
	regControl   byte = 0x06
	regTavgHigh  byte = 0x07
	regTavgLow   byte = 0x08
	regReset     byte = 0x09
	regDecibel   byte = 0x0A
	regMin       byte = 0x0B
	regMax       byte = 0x0C
	regThrMin    byte = 0x0D
	regThrMax    byte = 0x0E
	regHistory0  byte = 0x14
	regHistory99 byte = 0x77
)

// Reset register bit clearing the min/max latch. No other reset bits
// are ever written by this driver.
const resetClearMinMax byte = 0b00000010

type DBMOpts struct {
	RegisterDelay time.Duration
}

type DBMOpt func(*DBMOpts)

func WithRegisterDelay(delay time.Duration) DBMOpt {
	return func(o *DBMOpts) {
		o.RegisterDelay = delay
	}
}

// DBM represents the PCB Artists I2C decibel meter module.
// Typical usage:
//
//	s := NewDBM(bus)
//	_ = s.Begin(ctx)
//	db, err := s.ReadDecibel(ctx)
//
// Readings are returned in dB SPL as a single byte. Every operation is
// a synchronous request/response pair against the bus; the driver keeps
// no state between calls and assumes a single caller at a time.
type DBM struct {
	config    DBMOpts
	transport dbmeter.I2CBus
	buf       []byte
}

func NewDBM(transport dbmeter.I2CBus, opts ...DBMOpt) *DBM {
	config := DBMOpts{
		// register access latency of the module
		RegisterDelay: 10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &DBM{
		config:    config,
		transport: transport,
		buf:       make([]byte, 1),
	}
}

// Begin binds the driver to its transport. The module needs no init
// sequence and Begin performs no presence check, so it always succeeds;
// an absent or wedged device surfaces as garbage reads, not an error.
func (s *DBM) Begin(ctx context.Context) error {
	return nil
}

// GetVersion reads the firmware version register.
func (s *DBM) GetVersion(ctx context.Context) (byte, error) {
	return s.readRegister(ctx, regVersion)
}

// GetID reads the 4-byte unique device ID. The module stores the ID in
// registers ID3 down to ID0 and documents the ID as the byte sequence
// read in that descending register order, so id[0] holds ID3.
func (s *DBM) GetID(ctx context.Context) ([4]byte, error) {
	var id [4]byte
	for i, reg := range [4]byte{regID3, regID2, regID1, regID0} {
		v, err := s.readRegister(ctx, reg)
		if err != nil {
			return id, err
		}
		id[i] = v
	}
	return id, nil
}

// ReadDecibel reads the latest sound level in dB SPL, averaged over the
// configured averaging interval.
func (s *DBM) ReadDecibel(ctx context.Context) (byte, error) {
	return s.readRegister(ctx, regDecibel)
}

// ReadMinDecibel reads the lowest level observed since the min/max
// latch was last cleared.
func (s *DBM) ReadMinDecibel(ctx context.Context) (byte, error) {
	return s.readRegister(ctx, regMin)
}

// ReadMaxDecibel reads the highest level observed since the min/max
// latch was last cleared.
func (s *DBM) ReadMaxDecibel(ctx context.Context) (byte, error) {
	return s.readRegister(ctx, regMax)
}

// ResetMinMax clears the device-side min/max latch.
func (s *DBM) ResetMinMax(ctx context.Context) error {
	return s.writeRegister(ctx, regReset, resetClearMinMax)
}

// SetAveragingInterval sets the time window (in milliseconds) over
// which the module integrates sound level before producing a reading.
// The 16-bit value is written high byte first, as the module requires.
// Acceptable bounds are defined by the device, not checked here.
func (s *DBM) SetAveragingInterval(ctx context.Context, intervalMs uint16) error {
	err := s.writeRegister(ctx, regTavgHigh, byte((intervalMs>>8)&0xFF))
	if err != nil {
		return err
	}
	return s.writeRegister(ctx, regTavgLow, byte(intervalMs&0xFF))
}

// GetAveragingInterval reads back the configured averaging interval in
// milliseconds.
func (s *DBM) GetAveragingInterval(ctx context.Context) (uint16, error) {
	high, err := s.readRegister(ctx, regTavgHigh)
	if err != nil {
		return 0, err
	}
	low, err := s.readRegister(ctx, regTavgLow)
	if err != nil {
		return 0, err
	}
	return uint16(high)<<8 | uint16(low), nil
}

// WriteScratch writes the scratch register. Writing a value and reading
// it back is the usual way to verify communication with the module.
func (s *DBM) WriteScratch(ctx context.Context, value byte) error {
	return s.writeRegister(ctx, regScratch, value)
}

// ReadScratch reads the scratch register.
func (s *DBM) ReadScratch(ctx context.Context) (byte, error) {
	return s.readRegister(ctx, regScratch)
}

// ReadControl reads the control register.
func (s *DBM) ReadControl(ctx context.Context) (byte, error) {
	return s.readRegister(ctx, regControl)
}

// WriteControl writes the control register.
func (s *DBM) WriteControl(ctx context.Context, value byte) error {
	return s.writeRegister(ctx, regControl, value)
}

// SetThresholds sets the min and max decibel thresholds.
func (s *DBM) SetThresholds(ctx context.Context, min, max byte) error {
	err := s.writeRegister(ctx, regThrMin, min)
	if err != nil {
		return err
	}
	return s.writeRegister(ctx, regThrMax, max)
}

// GetThresholds reads the min and max decibel thresholds.
func (s *DBM) GetThresholds(ctx context.Context) (byte, byte, error) {
	min, err := s.readRegister(ctx, regThrMin)
	if err != nil {
		return 0, 0, err
	}
	max, err := s.readRegister(ctx, regThrMax)
	if err != nil {
		return 0, 0, err
	}
	return min, max, nil
}

// readRegister selects a register with an address-only write, waits out
// the module's register access latency and reads back a single byte.
// The wait is synchronous; the bus stays idle for its duration.
func (s *DBM) readRegister(ctx context.Context, reg byte) (byte, error) {
	err := s.transport.WriteToAddr(ctx, dbmAddress, []byte{reg})
	if err != nil {
		return 0, fmt.Errorf("dbm: write reg %#02x failed: %w", reg, err)
	}
	timer := time.NewTimer(s.config.RegisterDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	err = s.transport.ReadFromAddr(ctx, dbmAddress, s.buf)
	if err != nil {
		return 0, fmt.Errorf("dbm: read reg %#02x failed: %w", reg, err)
	}
	return s.buf[0], nil
}

// writeRegister writes a register address followed by one data byte in
// a single transaction. No inter-byte delay, no read-back verification.
func (s *DBM) writeRegister(ctx context.Context, reg byte, value byte) error {
	err := s.transport.WriteToAddr(ctx, dbmAddress, []byte{reg, value})
	if err != nil {
		return fmt.Errorf("dbm: write reg %#02x failed: %w", reg, err)
	}
	return nil
}
