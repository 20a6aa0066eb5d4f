package l6470_test

import (
	"testing"

	"codeberg.org/mutker/stepperctl/internal/errors"
	"codeberg.org/mutker/stepperctl/internal/hal"
	"codeberg.org/mutker/stepperctl/internal/hal/l6470"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spitest"
)

func byteOps(pairs ...byte) []conntest.IO {
	ops := make([]conntest.IO, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		ops = append(ops, conntest.IO{W: []byte{pairs[i]}, R: []byte{pairs[i+1]}})
	}

	return ops
}

func newBank(t *testing.T, ops []conntest.IO) (*l6470.Bank, *spitest.Playback) {
	t.Helper()

	port := &spitest.Playback{Playback: conntest.Playback{Ops: ops}}
	c, err := l6470.Connect(port)
	require.NoError(t, err)

	return l6470.New(map[int]spi.Conn{0: c}), port
}

func TestInitReadsStatusAndConfig(t *testing.T) {
	bank, port := newBank(t, byteOps(
		0xD0, 0x00, 0x00, 0x7E, 0x00, 0x03,
		0x38, 0x00, 0x00, 0x2E, 0x00, 0x88,
	))

	require.NoError(t, bank.Init(0))
	assert.True(t, bank.AtPowerOnDefaults(0))
	require.NoError(t, port.Close())
}

func TestInitNoDevice(t *testing.T) {
	bank, _ := newBank(t, byteOps(
		0xD0, 0xFF, 0x00, 0xFF, 0x00, 0xFF,
		0x38, 0xFF, 0x00, 0xFF, 0x00, 0xFF,
	))

	err := bank.Init(0)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, hal.ErrDeviceNotReady))
}

func TestStatusWord(t *testing.T) {
	bank, port := newBank(t, byteOps(0xD0, 0x00, 0x00, 0x6E, 0x00, 0x03))

	status, err := bank.Status(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x6E03), status)
	// OCD is active-low and reads 0 here
	assert.Zero(t, status&hal.StatusOCD)
	require.NoError(t, port.Close())
}

func TestParamKval(t *testing.T) {
	bank, port := newBank(t, byteOps(0x2A, 0x00, 0x00, 0x29))

	kval, err := bank.Param(0, hal.ParamKvalRun)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x29), kval)
	require.NoError(t, port.Close())
}

func TestParamUnknownRegister(t *testing.T) {
	bank, _ := newBank(t, nil)

	_, err := bank.Param(0, 0x1F)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument))
}

func TestHardStop(t *testing.T) {
	bank, port := newBank(t, byteOps(0xB8, 0x00))

	require.NoError(t, bank.HardStop(0))
	require.NoError(t, port.Close())
}

func TestUnknownMotor(t *testing.T) {
	bank, _ := newBank(t, nil)

	_, err := bank.Status(1)
	assert.True(t, errors.HasCode(err, hal.ErrUnknownMotor))
	assert.True(t, errors.HasCode(bank.HardStop(1), hal.ErrUnknownMotor))
}
