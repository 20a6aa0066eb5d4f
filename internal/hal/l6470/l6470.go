// Package l6470 talks to the ST L6470 dSPIN stepper driver over SPI.
package l6470

import (
	"sync"

	"codeberg.org/mutker/stepperctl/internal/errors"
	"codeberg.org/mutker/stepperctl/internal/hal"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// MaxClock is the highest SPI clock the driver accepts.
const MaxClock = 5 * physic.MegaHertz

// Connect opens a connection on p with the mode the L6470 requires.
func Connect(p spi.Port) (spi.Conn, error) {
	c, err := p.Connect(MaxClock, spi.Mode3, 8)
	if err != nil {
		return nil, errors.New().Wrap(hal.ErrBusTransfer, err)
	}

	return c, nil
}

// Bank drives one L6470 per motor slot, each on its own chip select.
type Bank struct {
	mu    sync.Mutex
	conns map[int]spi.Conn
	reset map[int]bool
}

func New(conns map[int]spi.Conn) *Bank {
	b := &Bank{
		conns: make(map[int]spi.Conn, len(conns)),
		reset: make(map[int]bool, len(conns)),
	}
	for id, c := range conns {
		b.conns[id] = c
	}

	return b
}

// Init clears latched status flags and checks the chip answers with its
// power-up CONFIG value.
func (b *Bank) Init(motorID int) error {
	errFactory := errors.New()
	b.mu.Lock()
	defer b.mu.Unlock()

	c, err := b.conn(motorID)
	if err != nil {
		return err
	}

	if _, err := b.transfer(c, cmdGetStatus, 2); err != nil {
		return err
	}

	cfg, err := b.transfer(c, cmdGetParam|RegConfig, 2)
	if err != nil {
		return err
	}
	if cfg == 0 || cfg == 0xFFFF {
		return errFactory.WithData(hal.ErrDeviceNotReady, "l6470: no response on SPI")
	}
	b.reset[motorID] = cfg == configResetValue

	return nil
}

// AtPowerOnDefaults reports whether Init found the chip unconfigured.
func (b *Bank) AtPowerOnDefaults(motorID int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.reset[motorID]
}

// Status issues GetStatus, which also clears latched warning flags.
func (b *Bank) Status(motorID int) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, err := b.conn(motorID)
	if err != nil {
		return 0, err
	}

	return b.transfer(c, cmdGetStatus, 2)
}

func (b *Bank) Param(motorID int, addr uint8) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, err := b.conn(motorID)
	if err != nil {
		return 0, err
	}

	n, ok := paramBytes[addr]
	if !ok {
		return 0, errors.New().WithData(errors.ErrInvalidArgument, addr)
	}

	return b.transfer(c, cmdGetParam|addr, n)
}

func (b *Bank) HardStop(motorID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, err := b.conn(motorID)
	if err != nil {
		return err
	}

	_, err = b.transfer(c, cmdHardStop, 0)

	return err
}

func (b *Bank) conn(motorID int) (spi.Conn, error) {
	c, ok := b.conns[motorID]
	if !ok {
		return nil, errors.New().WithData(hal.ErrUnknownMotor, motorID)
	}

	return c, nil
}

// transfer sends cmd followed by n NOP bytes and assembles the response
// MSB first. Chip select has to toggle between bytes, so every byte is its
// own transaction.
func (*Bank) transfer(c spi.Conn, cmd byte, n int) (uint32, error) {
	var r [1]byte
	if err := c.Tx([]byte{cmd}, r[:]); err != nil {
		return 0, errors.New().Wrap(hal.ErrBusTransfer, err)
	}

	var value uint32
	for i := 0; i < n; i++ {
		if err := c.Tx([]byte{cmdNop}, r[:]); err != nil {
			return 0, errors.New().Wrap(hal.ErrBusTransfer, err)
		}
		value = value<<8 | uint32(r[0])
	}

	return value, nil
}

var _ hal.StepperDriver = (*Bank)(nil)
