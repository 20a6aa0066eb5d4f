package telemetry_test

import (
	"testing"

	"codeberg.org/mutker/stepperctl/internal/errors"
	"codeberg.org/mutker/stepperctl/internal/hal"
	"codeberg.org/mutker/stepperctl/internal/telemetry"
	"github.com/stretchr/testify/require"
)

// fakeTimer advances by step on every read
type fakeTimer struct {
	now      uint32
	step     uint32
	initErr  error
	startErr error
	started  bool
	stopped  bool
}

func (t *fakeTimer) Init(hal.TimerConfig) error { return t.initErr }

func (t *fakeTimer) Start() error {
	if t.startErr != nil {
		return t.startErr
	}
	t.started = true

	return nil
}

func (t *fakeTimer) Stop() error {
	t.stopped = true
	return nil
}

func (t *fakeTimer) Counter() uint32 {
	v := t.now
	t.now += t.step

	return v
}

// fakeSensor returns angles in order and repeats the last one
type fakeSensor struct {
	angles []float32
	reads  int
	fail   map[int]bool
}

func (s *fakeSensor) Init(int) error { return nil }

func (s *fakeSensor) ReadAngle(int) (float32, error) {
	i := s.reads
	s.reads++
	if s.fail[i] {
		return 0, errors.New().WithData(hal.ErrBusTransfer, "fake encoder fault")
	}
	if len(s.angles) == 0 {
		return 0, nil
	}
	if i >= len(s.angles) {
		i = len(s.angles) - 1
	}

	return s.angles[i], nil
}

type fakeDriver struct {
	status    uint32
	statusErr error
	kvalHold  uint32
	kvalRun   uint32
	initErr   error
}

func (d *fakeDriver) Init(int) error { return d.initErr }

func (d *fakeDriver) Status(int) (uint32, error) {
	if d.statusErr != nil {
		return 0, d.statusErr
	}

	return d.status, nil
}

func (d *fakeDriver) Param(_ int, addr uint8) (uint32, error) {
	switch addr {
	case hal.ParamKvalHold:
		return d.kvalHold, nil
	case hal.ParamKvalRun:
		return d.kvalRun, nil
	}

	return 0, errors.New().New(errors.ErrInvalidArgument)
}

func (d *fakeDriver) HardStop(int) error { return nil }

type fakeClock struct{ tick uint32 }

func (c *fakeClock) Tick() uint32 { return c.tick }

func (c *fakeClock) Delay(ms uint32) { c.tick += ms }

type fakeStop struct{ sources []hal.StopSource }

func (s *fakeStop) Trigger(source hal.StopSource) {
	s.sources = append(s.sources, source)
}

// fixedCurrent reports the same current for every sample
type fixedCurrent float64

func (f fixedCurrent) Estimate(telemetry.CurrentInput) float64 { return float64(f) }

type rig struct {
	timer  *fakeTimer
	sensor *fakeSensor
	driver *fakeDriver
	clock  *fakeClock
	stop   *fakeStop
}

func newRig(angles ...float32) *rig {
	return &rig{
		timer:  &fakeTimer{now: 1000, step: 10},
		sensor: &fakeSensor{angles: angles, fail: map[int]bool{}},
		driver: &fakeDriver{status: hal.StatusHealthy, kvalHold: 0x29, kvalRun: 0x29},
		clock:  &fakeClock{tick: 42},
		stop:   &fakeStop{},
	}
}

func (r *rig) devices() hal.Devices {
	return hal.Devices{
		Timer:  r.timer,
		Sensor: r.sensor,
		Driver: r.driver,
		Clock:  r.clock,
		Stop:   r.stop,
	}
}

// newEngine returns an engine with motor 0 initialized
func newEngine(t *testing.T, r *rig, opts ...telemetry.Option) *telemetry.Engine {
	t.Helper()

	e, err := telemetry.New(telemetry.DefaultConfig(), r.devices(), opts...)
	require.NoError(t, err)
	require.NoError(t, e.InitMotor(0, telemetry.MotorConfig{}))

	return e
}
