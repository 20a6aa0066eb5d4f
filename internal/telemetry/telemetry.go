package telemetry

import (
	"unsafe"

	"codeberg.org/mutker/stepperctl/internal/errors"
	"codeberg.org/mutker/stepperctl/internal/hal"
	"codeberg.org/mutker/stepperctl/internal/logger"
)

// Engine samples every configured motor and enforces its safety envelope.
//
// Calls for one motor id must be strictly sequential. Different motor ids
// own disjoint contexts and may be driven from separate goroutines. The
// engine does not lock the devices it is given.
type Engine struct {
	cfg       Config
	dev       hal.Devices
	estimator CurrentEstimator
	contexts  []Context
	log       logger.Logger
}

// Option configures an Engine
type Option func(*Engine)

func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithCurrentEstimator replaces the default KVAL based estimate
func WithCurrentEstimator(est CurrentEstimator) Option {
	return func(e *Engine) {
		e.estimator = est
	}
}

// New validates cfg and starts the sample timer.
func New(cfg Config, dev hal.Devices, opts ...Option) (*Engine, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidParameter, err)
	}
	if dev.Timer == nil || dev.Sensor == nil || dev.Driver == nil || dev.Clock == nil || dev.Stop == nil {
		return nil, errFactory.WithData(ErrInvalidParameter, "missing device collaborator")
	}

	e := &Engine{
		cfg: cfg,
		dev: dev,
		estimator: KvalEstimator{
			SupplyVoltage:      cfg.SupplyVoltage,
			PhaseResistanceOhm: cfg.PhaseResistanceOhm,
		},
		contexts: make([]Context, cfg.MaxMotors),
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := dev.Timer.Init(hal.TimerConfig{ResolutionUs: 1}); err != nil {
		return nil, errFactory.Wrap(ErrTimerInitFailed, err)
	}
	if err := dev.Timer.Start(); err != nil {
		return nil, errFactory.Wrap(ErrTimerStartFailed, err)
	}

	e.log.Debug().
		Int("motors", cfg.MaxMotors).
		Int("dataset_capacity", cfg.DatasetCapacity).
		Uint32("max_sample_rate_hz", cfg.MaxSampleRateHz).
		Msg("Telemetry engine initialized")

	return e, nil
}

// Close stops the sample timer
func (e *Engine) Close() error {
	if err := e.dev.Timer.Stop(); err != nil {
		return errors.New().Wrap(ErrTimerShutdownFail, err)
	}

	return nil
}

// Config returns the engine constants
func (e *Engine) Config() Config {
	return e.cfg
}

// InitMotor (re)initializes the context of a motor and its devices.
func (e *Engine) InitMotor(id int, mc MotorConfig) error {
	errFactory := errors.New()

	if id < 0 || id >= len(e.contexts) {
		return errFactory.WithData(ErrInvalidParameter, id)
	}

	rate := mc.SampleRateHz
	if rate == 0 {
		rate = e.cfg.DefaultSampleRateHz
	}
	if rate > e.cfg.MaxSampleRateHz {
		return errFactory.WithData(ErrInvalidParameter, "sample rate above maximum")
	}

	if err := e.dev.Sensor.Init(id); err != nil {
		return errFactory.Wrap(ErrSensorInitFailed, err)
	}
	if err := e.dev.Driver.Init(id); err != nil {
		return errFactory.Wrap(ErrDriverInitFailed, err)
	}

	maxCurrent := orDefault(mc.MaxCurrentA, e.cfg.MotorMaxCurrentA)
	maxSpeed := orDefault(mc.MaxSpeedDps, e.cfg.MotorMaxSpeedDps)

	c := Context{
		Initialized:              true,
		SampleRateHz:             rate,
		EncoderCalibrationOffset: mc.EncoderOffsetDeg,
		MaxCurrentA:              maxCurrent,
	}
	c.applyLimits(defaultLimits(e.cfg, maxCurrent, maxSpeed))
	c.KvalHold = e.readKval(id, hal.ParamKvalHold)
	c.KvalRun = e.readKval(id, hal.ParamKvalRun)
	c.Performance.MemoryUsageBytes = uint32(unsafe.Sizeof(c))

	e.contexts[id] = c

	e.log.Info().
		Int("motor", id).
		Uint32("sample_rate_hz", rate).
		Float64("encoder_offset_deg", mc.EncoderOffsetDeg).
		Float64("current_limit_a", c.SafetyCurrentLimitA).
		Float64("speed_limit_dps", c.SafetySpeedLimitDps).
		Float64("error_limit_deg", c.SafetyErrorLimitDeg).
		Msg("Motor telemetry initialized")

	return nil
}

// readKval caches a driver register for reporting; failures are not fatal
func (e *Engine) readKval(id int, addr uint8) uint8 {
	v, err := e.dev.Driver.Param(id, addr)
	if err != nil {
		e.log.Warn().Err(err).Int("motor", id).Uint8("param", addr).Msg("Failed to read driver parameter")
		return 0
	}

	return uint8(v & 0xFF)
}

// context returns the slot for id, checking it is usable
func (e *Engine) context(id int) (*Context, error) {
	errFactory := errors.New()

	if id < 0 || id >= len(e.contexts) {
		return nil, errFactory.WithData(ErrInvalidParameter, id)
	}

	c := &e.contexts[id]
	if !c.Initialized {
		return nil, errFactory.WithData(ErrNotInitialized, id)
	}

	return c, nil
}

// Context returns a copy of the motor state
func (e *Engine) Context(id int) (Context, error) {
	c, err := e.context(id)
	if err != nil {
		return Context{}, err
	}

	return *c, nil
}

// Metrics returns the performance monitor of a motor
func (e *Engine) Metrics(id int) (PerformanceMetrics, error) {
	c, err := e.context(id)
	if err != nil {
		return PerformanceMetrics{}, err
	}

	return c.Performance, nil
}

// Health returns the performance verdicts of a motor
func (e *Engine) Health(id int) (Health, error) {
	c, err := e.context(id)
	if err != nil {
		return Health{}, err
	}

	return health(id, c, e.cfg), nil
}

// Motors returns the ids of all initialized motors
func (e *Engine) Motors() []int {
	ids := make([]int, 0, len(e.contexts))
	for id := range e.contexts {
		if e.contexts[id].Initialized {
			ids = append(ids, id)
		}
	}

	return ids
}

func (e *Engine) SetCommandedPosition(id int, deg float64) error {
	c, err := e.context(id)
	if err != nil {
		return err
	}
	c.CommandedPosition = deg

	return nil
}

// SetSafetyLimits replaces the envelope of a motor
func (e *Engine) SetSafetyLimits(id int, l SafetyLimits) error {
	c, err := e.context(id)
	if err != nil {
		return err
	}
	if l.CurrentA < 0 || l.SpeedDps < 0 || l.ErrorDeg < 0 {
		return errors.New().WithData(ErrInvalidParameter, "negative safety limit")
	}
	c.applyLimits(l)

	return nil
}

// EnableSafety turns the monitor on or off without touching the limits
func (e *Engine) EnableSafety(id int, enabled bool) error {
	c, err := e.context(id)
	if err != nil {
		return err
	}
	c.SafetyLimitsEnabled = enabled

	e.log.Info().Int("motor", id).Bool("enabled", enabled).Msg("Safety monitor state changed")

	return nil
}

func (e *Engine) StartStreaming(id int, rateHz uint32) error {
	c, err := e.context(id)
	if err != nil {
		return err
	}
	if rateHz == 0 || rateHz > e.cfg.MaxSampleRateHz {
		return errors.New().WithData(ErrInvalidParameter, rateHz)
	}
	c.SampleRateHz = rateHz
	c.StreamingActive = true

	return nil
}

func (e *Engine) StopStreaming(id int) error {
	c, err := e.context(id)
	if err != nil {
		return err
	}
	c.StreamingActive = false

	return nil
}

// CollectSample takes one full sample of motor id into out.
//
// On a sensor failure out only carries the timestamp and sequence id. On a
// safety violation out is fully populated and the emergency stop has been
// triggered before the error is returned.
func (e *Engine) CollectSample(id int, out *Sample) error {
	errFactory := errors.New()

	if out == nil {
		return errFactory.WithData(ErrInvalidParameter, "nil sample")
	}
	c, err := e.context(id)
	if err != nil {
		return err
	}

	start := e.dev.Timer.Counter()

	*out = Sample{
		TimestampUs: start,
		SequenceID:  c.Performance.TotalSamplesCollected + 1,
	}

	raw, err := e.dev.Sensor.ReadAngle(id)
	if err != nil {
		out.DataQualityScore = 0
		return errFactory.Wrap(ErrSensorReadFailed, err)
	}
	out.PositionDeg = normalizeAngle(float64(raw) - c.EncoderCalibrationOffset)

	var intervalUs int32
	var dt float64
	if c.hasHistory {
		dt, intervalUs = elapsedSeconds(c.LastSampleTimestampUs, start)
	}
	out.VelocityDps, out.AccelerationDps2 = estimateDerivatives(c.LastPositionDeg, c.LastVelocityDps, out.PositionDeg, dt)

	c.LastPositionDeg = out.PositionDeg
	c.LastVelocityDps = out.VelocityDps
	c.LastSampleTimestampUs = start
	c.hasHistory = true

	base := qualityFull
	status, err := e.dev.Driver.Status(id)
	if err != nil {
		base = qualityDriverMissing
		e.log.Debug().Err(errFactory.Wrap(ErrDriverReadFailed, err)).Int("motor", id).Msg("Driver status unavailable")
	} else {
		out.StatusFlags = uint8(status >> 8)
		out.ThermalWarning = status&hal.StatusThWarn == 0
		out.StallDetected = status&(hal.StatusStepLossA|hal.StatusStepLossB) != hal.StatusStepLossA|hal.StatusStepLossB
		out.OvercurrentDetected = status&hal.StatusOCD == 0
		out.MotorCurrentA = e.estimator.Estimate(CurrentInput{
			Status:   status,
			KvalHold: c.KvalHold,
			KvalRun:  c.KvalRun,
		})
	}

	out.KvalHold = c.KvalHold
	out.KvalRun = c.KvalRun
	out.PowerConsumptionW = out.MotorCurrentA * e.cfg.SupplyVoltage
	out.ThermalPerformance = thermalPerformance(out.MotorCurrentA, c.MaxCurrentA, out.ThermalWarning, out.StallDetected)

	out.CommandedPosition = c.CommandedPosition
	out.PositionError = c.CommandedPosition - out.PositionDeg

	out.SafetyBoundsOK = CheckSafetyBounds(c, out)
	violation := c.SafetyLimitsEnabled && !out.SafetyBoundsOK
	if violation {
		c.SafetyViolationCount++
		e.dev.Stop.Trigger(hal.SourceSoftware)
	}

	out.DataQualityScore = qualityScore(base, out)

	out.ControlLoopTimeUs = e.dev.Timer.Counter() - start
	updatePerformance(&c.Performance, c.SampleRateHz, e.cfg.RealtimeRatio, out.ControlLoopTimeUs, intervalUs)
	c.Performance.TotalSamplesCollected++

	if violation {
		e.log.Warn().
			Int("motor", id).
			Uint32("sequence", out.SequenceID).
			Float64("current_a", out.MotorCurrentA).
			Float64("velocity_dps", out.VelocityDps).
			Float64("position_error", out.PositionError).
			Bool("thermal_warning", out.ThermalWarning).
			Bool("stall", out.StallDetected).
			Bool("overcurrent", out.OvercurrentDetected).
			Msg("Safety limit violated")

		return errFactory.WithData(ErrSafetyLimitViolation, struct {
			Motor    int
			Sequence uint32
		}{
			Motor:    id,
			Sequence: out.SequenceID,
		})
	}

	return nil
}

func orDefault(v, def float64) float64 {
	if v > 0 {
		return v
	}

	return def
}
