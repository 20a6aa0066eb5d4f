package main

import (
	"io"

	"codeberg.org/mutker/stepperctl/internal/config"
	"codeberg.org/mutker/stepperctl/internal/errors"
	"codeberg.org/mutker/stepperctl/internal/hal"
	"codeberg.org/mutker/stepperctl/internal/hal/as5600"
	"codeberg.org/mutker/stepperctl/internal/hal/l6470"
	"codeberg.org/mutker/stepperctl/internal/hal/sim"
	"codeberg.org/mutker/stepperctl/internal/logger"
	"codeberg.org/mutker/stepperctl/internal/telemetry"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// L6470 power-on KVAL_HOLD and KVAL_RUN
const simKval = 0x29

// hardware is the opened sensor and driver backend
type hardware struct {
	sensor  hal.PositionSensor
	driver  hal.StepperDriver
	motors  []int
	closers []io.Closer
}

func (h *hardware) Close() {
	for _, c := range h.closers {
		if err := c.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close bus")
		}
	}
	h.closers = nil
}

func openHardware(c *config.Config) (*hardware, error) {
	errFactory := errors.New()

	h := &hardware{}
	for _, m := range c.Hardware.Motors {
		h.motors = append(h.motors, m.ID)
	}

	switch c.Hardware.Backend {
	case config.BackendSim:
		motors := make(map[int]sim.MotorConfig, len(c.Hardware.Motors))
		for _, m := range c.Hardware.Motors {
			motors[m.ID] = sim.MotorConfig{
				InitialAngle: m.SimInitialAngle,
				VelocityDps:  m.SimVelocityDps,
				KvalHold:     simKval,
				KvalRun:      simKval,
			}
		}
		rig := sim.New(motors)
		h.sensor = rig
		h.driver = rig

		logger.Info().Int("motors", len(motors)).Msg("Using simulated hardware")

	case config.BackendPeriph:
		if _, err := host.Init(); err != nil {
			return nil, errFactory.Wrap(errors.ErrInitFailed, err)
		}

		buses := make(map[int]i2c.Bus, len(c.Hardware.Motors))
		conns := make(map[int]spi.Conn, len(c.Hardware.Motors))
		for _, m := range c.Hardware.Motors {
			bus, err := i2creg.Open(m.I2CBus)
			if err != nil {
				h.Close()
				return nil, errFactory.Wrap(errors.ErrInitFailed, err)
			}
			h.closers = append(h.closers, bus)
			buses[m.ID] = bus

			port, err := spireg.Open(m.SPIPort)
			if err != nil {
				h.Close()
				return nil, errFactory.Wrap(errors.ErrInitFailed, err)
			}
			h.closers = append(h.closers, port)

			conn, err := l6470.Connect(port)
			if err != nil {
				h.Close()
				return nil, err
			}
			conns[m.ID] = conn

			logger.Info().
				Int("motor", m.ID).
				Str("i2c_bus", bus.String()).
				Str("spi_port", port.String()).
				Msg("Motor buses opened")
		}
		h.sensor = as5600.New(buses)
		h.driver = l6470.New(conns)

	default:
		return nil, errFactory.WithData(errors.ErrInvalidBackend, c.Hardware.Backend)
	}

	return h, nil
}

// newEngine builds the engine over h and initializes every configured motor
func newEngine(c *config.Config, h *hardware, stop hal.EmergencyStop) (*telemetry.Engine, error) {
	errFactory := errors.New()

	eng, err := telemetry.New(c.Engine(), hal.Devices{
		Timer:  hal.NewMonotonicTimer(),
		Sensor: h.sensor,
		Driver: h.driver,
		Clock:  hal.NewMonotonicClock(),
		Stop:   stop,
	},
		telemetry.WithLogger(logger.Default().With("telemetry")),
		telemetry.WithCurrentEstimator(c.Estimator()),
	)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	for _, m := range c.Hardware.Motors {
		if err := eng.InitMotor(m.ID, m.Motor()); err != nil {
			if cerr := eng.Close(); cerr != nil {
				logger.Warn().Err(cerr).Msg("Failed to stop sample timer")
			}
			return nil, errFactory.Wrap(errors.ErrInitMotor, err)
		}
	}

	return eng, nil
}

// seedCommandedPosition takes one unchecked sample and holds the motor at
// the angle it reports, so the position error starts at zero.
func seedCommandedPosition(eng *telemetry.Engine, id int) error {
	if err := eng.EnableSafety(id, false); err != nil {
		return err
	}
	defer func() {
		_ = eng.EnableSafety(id, true)
	}()

	var s telemetry.Sample
	if err := eng.CollectSample(id, &s); err != nil {
		return err
	}

	return eng.SetCommandedPosition(id, s.PositionDeg)
}

// stopMotors hard-stops every motor on the way out
func stopMotors(driver hal.StepperDriver, motors []int) {
	for _, id := range motors {
		if err := driver.HardStop(id); err != nil {
			logger.ErrorWithCode(errors.New().Wrap(errors.ErrStopMotors, err)).Int("motor", id).Msg("Failed to stop motor")
		}
	}
}
