// Package sim provides a simulated encoder and driver pair for bench runs
// without hardware attached.
package sim

import (
	"math"
	"sync"
	"time"

	"codeberg.org/mutker/stepperctl/internal/errors"
	"codeberg.org/mutker/stepperctl/internal/hal"
)

type MotorConfig struct {
	InitialAngle float64
	VelocityDps  float64
	KvalHold     uint8
	KvalRun      uint8
}

type motor struct {
	cfg         MotorConfig
	angle       float64
	velocity    float64
	lastUpdate  time.Time
	status      uint32
	stopped     bool
	failReads   int
	failStatus  int
	initialized bool
}

// Rig simulates one encoder and one driver per motor slot. Motors rotate at
// a constant velocity until hard-stopped.
type Rig struct {
	mu     sync.Mutex
	motors map[int]*motor
	now    func() time.Time
}

// Option configures a Rig
type Option func(*Rig)

// WithNow replaces the wall clock used to advance the rotors
func WithNow(now func() time.Time) Option {
	return func(r *Rig) {
		r.now = now
	}
}

func New(motors map[int]MotorConfig, opts ...Option) *Rig {
	r := &Rig{
		motors: make(map[int]*motor, len(motors)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	for id, cfg := range motors {
		r.motors[id] = &motor{
			cfg:      cfg,
			angle:    normalize(cfg.InitialAngle),
			velocity: cfg.VelocityDps,
			status:   hal.StatusHealthy,
		}
	}

	return r
}

func (r *Rig) Init(motorID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.motor(motorID)
	if err != nil {
		return err
	}
	if !m.initialized {
		m.lastUpdate = r.now()
		m.initialized = true
	}

	return nil
}

func (r *Rig) ReadAngle(motorID int) (float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.motor(motorID)
	if err != nil {
		return 0, err
	}
	if m.failReads > 0 {
		m.failReads--
		return 0, errors.New().WithData(hal.ErrBusTransfer, "sim: injected encoder fault")
	}
	r.advance(m)

	return float32(m.angle), nil
}

func (r *Rig) Status(motorID int) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.motor(motorID)
	if err != nil {
		return 0, err
	}
	if m.failStatus > 0 {
		m.failStatus--
		return 0, errors.New().WithData(hal.ErrBusTransfer, "sim: injected driver fault")
	}

	status := m.status
	if m.stopped || m.velocity == 0 {
		status |= hal.StatusHiZ
	}

	return status, nil
}

func (r *Rig) Param(motorID int, addr uint8) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.motor(motorID)
	if err != nil {
		return 0, err
	}

	switch addr {
	case hal.ParamKvalHold:
		return uint32(m.cfg.KvalHold), nil
	case hal.ParamKvalRun:
		return uint32(m.cfg.KvalRun), nil
	default:
		return 0, errors.New().WithData(errors.ErrInvalidArgument, addr)
	}
}

func (r *Rig) HardStop(motorID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.motor(motorID)
	if err != nil {
		return err
	}
	r.advance(m)
	m.velocity = 0
	m.stopped = true

	return nil
}

// SetStatus overrides the driver status word, e.g. to assert faults
func (r *Rig) SetStatus(motorID int, status uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.motors[motorID]; ok {
		m.status = status
	}
}

// SetVelocity changes the rotor speed and releases a hard stop
func (r *Rig) SetVelocity(motorID int, dps float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.motors[motorID]; ok {
		r.advance(m)
		m.velocity = dps
		m.stopped = false
	}
}

// FailNextReads makes the next n encoder reads fail
func (r *Rig) FailNextReads(motorID, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.motors[motorID]; ok {
		m.failReads = n
	}
}

// FailNextStatus makes the next n status reads fail
func (r *Rig) FailNextStatus(motorID, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.motors[motorID]; ok {
		m.failStatus = n
	}
}

// Stopped reports whether HardStop was issued for the motor
func (r *Rig) Stopped(motorID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.motors[motorID]

	return ok && m.stopped
}

func (r *Rig) motor(motorID int) (*motor, error) {
	m, ok := r.motors[motorID]
	if !ok {
		return nil, errors.New().WithData(hal.ErrUnknownMotor, motorID)
	}

	return m, nil
}

func (r *Rig) advance(m *motor) {
	now := r.now()
	if m.initialized {
		dt := now.Sub(m.lastUpdate).Seconds()
		m.angle = normalize(m.angle + m.velocity*dt)
	}
	m.lastUpdate = now
}

func normalize(deg float64) float64 {
	deg = math.Mod(deg, 360.0)
	if deg < 0 {
		deg += 360.0
	}

	return deg
}

var (
	_ hal.PositionSensor = (*Rig)(nil)
	_ hal.StepperDriver  = (*Rig)(nil)
)
