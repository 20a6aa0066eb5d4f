// Package as5600 reads the AS5600 magnetic rotary position sensor over I²C.
package as5600

import (
	"sync"

	"codeberg.org/mutker/stepperctl/internal/errors"
	"codeberg.org/mutker/stepperctl/internal/hal"
	"periph.io/x/conn/v3/i2c"
)

// DefaultAddr is the fixed I²C address of the AS5600.
const DefaultAddr uint16 = 0x36

const (
	regStatus   = 0x0B
	regRawAngle = 0x0C
	regAngle    = 0x0E

	statusMagnetHigh     = 1 << 3
	statusMagnetLow      = 1 << 4
	statusMagnetDetected = 1 << 5

	countsPerTurn = 4096
)

// Bank addresses one sensor per motor slot. The AS5600 address cannot be
// changed, so each motor needs its own bus.
type Bank struct {
	mu      sync.Mutex
	devs    map[int]*i2c.Dev
	useRaw  bool
	checked map[int]bool
}

// Option configures a Bank
type Option func(*Bank)

// WithRawAngle reads RAW_ANGLE instead of the scaled ANGLE register
func WithRawAngle() Option {
	return func(b *Bank) {
		b.useRaw = true
	}
}

// New returns a Bank using buses[motorID] at DefaultAddr for each motor.
func New(buses map[int]i2c.Bus, opts ...Option) *Bank {
	b := &Bank{
		devs:    make(map[int]*i2c.Dev, len(buses)),
		checked: make(map[int]bool, len(buses)),
	}
	for id, bus := range buses {
		b.devs[id] = &i2c.Dev{Bus: bus, Addr: DefaultAddr}
	}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Init verifies a magnet is present in front of the sensor.
func (b *Bank) Init(motorID int) error {
	errFactory := errors.New()
	b.mu.Lock()
	defer b.mu.Unlock()

	dev, ok := b.devs[motorID]
	if !ok {
		return errFactory.WithData(hal.ErrUnknownMotor, motorID)
	}

	var status [1]byte
	if err := dev.Tx([]byte{regStatus}, status[:]); err != nil {
		return errFactory.Wrap(hal.ErrBusTransfer, err)
	}

	if status[0]&statusMagnetDetected == 0 {
		return errFactory.WithData(hal.ErrDeviceNotReady, "as5600: magnet not detected")
	}
	if status[0]&(statusMagnetHigh|statusMagnetLow) != 0 {
		return errFactory.WithData(hal.ErrDeviceNotReady, "as5600: magnet field out of range")
	}

	b.checked[motorID] = true

	return nil
}

// ReadAngle returns the rotor angle in degrees within [0, 360).
func (b *Bank) ReadAngle(motorID int) (float32, error) {
	errFactory := errors.New()
	b.mu.Lock()
	defer b.mu.Unlock()

	dev, ok := b.devs[motorID]
	if !ok || !b.checked[motorID] {
		return 0, errFactory.WithData(hal.ErrUnknownMotor, motorID)
	}

	reg := byte(regAngle)
	if b.useRaw {
		reg = regRawAngle
	}

	var buf [2]byte
	if err := dev.Tx([]byte{reg}, buf[:]); err != nil {
		return 0, errFactory.Wrap(hal.ErrBusTransfer, err)
	}

	return CountsToDegrees(uint16(buf[0]&0x0F)<<8 | uint16(buf[1])), nil
}

// CountsToDegrees converts a 12-bit angle reading to degrees.
func CountsToDegrees(counts uint16) float32 {
	return float32(counts&0x0FFF) * 360.0 / countsPerTurn
}

var _ hal.PositionSensor = (*Bank)(nil)
