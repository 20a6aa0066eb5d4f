package telemetry

import (
	"codeberg.org/mutker/stepperctl/internal/errors"
)

const (
	defaultMaxMotors          = 2
	defaultDatasetCapacity    = 2000
	defaultMaxSampleRateHz    = 10000
	defaultSampleRateHz       = 1000
	defaultSupplyVoltage      = 12.0
	defaultPhaseResistanceOhm = 2.8
	defaultSafetyCurrentRatio = 0.9
	defaultSafetySpeedRatio   = 0.9
	defaultMotorMaxCurrentA   = 2.0
	defaultMotorMaxSpeedDps   = 3600.0
	defaultPositionErrorLimit = 30.0
	defaultCPUOverheadTarget  = 25.0
	defaultTimingTolerance    = 5.0
	defaultRealtimeRatio      = 0.8
)

// Config carries the build-time constants of the sampling engine
type Config struct {
	MaxMotors                int
	DatasetCapacity          int
	MaxSampleRateHz          uint32
	DefaultSampleRateHz      uint32
	SupplyVoltage            float64
	PhaseResistanceOhm       float64
	SafetyCurrentRatio       float64
	SafetySpeedRatio         float64
	MotorMaxCurrentA         float64
	MotorMaxSpeedDps         float64
	PositionErrorLimitDeg    float64
	CPUOverheadTargetPercent float64
	TimingTolerancePercent   float64
	RealtimeRatio            float64
}

func DefaultConfig() Config {
	return Config{
		MaxMotors:                defaultMaxMotors,
		DatasetCapacity:          defaultDatasetCapacity,
		MaxSampleRateHz:          defaultMaxSampleRateHz,
		DefaultSampleRateHz:      defaultSampleRateHz,
		SupplyVoltage:            defaultSupplyVoltage,
		PhaseResistanceOhm:       defaultPhaseResistanceOhm,
		SafetyCurrentRatio:       defaultSafetyCurrentRatio,
		SafetySpeedRatio:         defaultSafetySpeedRatio,
		MotorMaxCurrentA:         defaultMotorMaxCurrentA,
		MotorMaxSpeedDps:         defaultMotorMaxSpeedDps,
		PositionErrorLimitDeg:    defaultPositionErrorLimit,
		CPUOverheadTargetPercent: defaultCPUOverheadTarget,
		TimingTolerancePercent:   defaultTimingTolerance,
		RealtimeRatio:            defaultRealtimeRatio,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	switch {
	case c.MaxMotors <= 0:
		return errFactory.WithData(ErrInvalidConfig, "max_motors must be positive")
	case c.DatasetCapacity <= 0:
		return errFactory.WithData(ErrInvalidConfig, "dataset_capacity must be positive")
	case c.MaxSampleRateHz == 0 || c.MaxSampleRateHz > 1_000_000:
		return errFactory.WithData(ErrInvalidConfig, "max_sample_rate_hz out of range")
	case c.DefaultSampleRateHz == 0 || c.DefaultSampleRateHz > c.MaxSampleRateHz:
		return errFactory.WithData(ErrInvalidConfig, "default_sample_rate_hz out of range")
	case c.SupplyVoltage <= 0:
		return errFactory.WithData(ErrInvalidConfig, "supply_voltage must be positive")
	case c.MotorMaxCurrentA <= 0 || c.MotorMaxSpeedDps <= 0:
		return errFactory.WithData(ErrInvalidConfig, "motor limits must be positive")
	case c.SafetyCurrentRatio <= 0 || c.SafetySpeedRatio <= 0:
		return errFactory.WithData(ErrInvalidConfig, "safety ratios must be positive")
	case c.PositionErrorLimitDeg <= 0:
		return errFactory.WithData(ErrInvalidConfig, "position_error_limit_deg must be positive")
	case c.RealtimeRatio <= 0 || c.RealtimeRatio > 1:
		return errFactory.WithData(ErrInvalidConfig, "realtime_ratio must be in (0, 1]")
	}

	return nil
}

// MotorConfig holds per-motor settings applied by InitMotor. Zero values
// fall back to the engine Config.
type MotorConfig struct {
	EncoderOffsetDeg float64
	MaxCurrentA      float64
	MaxSpeedDps      float64
	SampleRateHz     uint32
}
