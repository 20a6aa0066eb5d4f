package api

import "codeberg.org/mutker/stepperctl/internal/telemetry"

type performanceView struct {
	CPUOverheadPercent    float64 `json:"cpu_overhead_percent"`
	MemoryUsageBytes      uint32  `json:"memory_usage_bytes"`
	AverageSampleTimeUs   uint32  `json:"average_sample_time_us"`
	MaxSampleTimeUs       uint32  `json:"max_sample_time_us"`
	MissedSamplesCount    uint32  `json:"missed_samples_count"`
	TimingAccuracyPercent float64 `json:"timing_accuracy_percent"`
	RealTimeCompatible    bool    `json:"real_time_compatible"`
	TotalSamplesCollected uint32  `json:"total_samples_collected"`
}

type healthView struct {
	MotorID          int             `json:"motor_id"`
	Streaming        bool            `json:"streaming"`
	SafetyTrips      uint32          `json:"safety_trips"`
	OverheadExceeded bool            `json:"overhead_exceeded"`
	TimingDegraded   bool            `json:"timing_degraded"`
	Performance      performanceView `json:"performance"`
}

type contextView struct {
	MotorID               int             `json:"motor_id"`
	Initialized           bool            `json:"initialized"`
	StreamingActive       bool            `json:"streaming_active"`
	SampleRateHz          uint32          `json:"sample_rate_hz"`
	LastSampleTimestampUs uint32          `json:"last_sample_timestamp_us"`
	LastPositionDeg       float64         `json:"last_position_degrees"`
	LastVelocityDps       float64         `json:"last_velocity_dps"`
	EncoderCalibrationDeg float64         `json:"encoder_calibration_offset"`
	KvalHold              uint8           `json:"kval_hold"`
	KvalRun               uint8           `json:"kval_run"`
	CommandedPosition     float64         `json:"commanded_position"`
	SafetyLimitsEnabled   bool            `json:"safety_limits_enabled"`
	SafetyCurrentLimitA   float64         `json:"safety_current_limit_a"`
	SafetySpeedLimitDps   float64         `json:"safety_speed_limit_dps"`
	SafetyErrorLimitDeg   float64         `json:"safety_error_limit_deg"`
	SafetyViolationCount  uint32          `json:"safety_violation_count"`
	Performance           performanceView `json:"performance"`
}

func newPerformanceView(m telemetry.PerformanceMetrics) performanceView {
	return performanceView{
		CPUOverheadPercent:    m.CPUOverheadPercent,
		MemoryUsageBytes:      m.MemoryUsageBytes,
		AverageSampleTimeUs:   m.AverageSampleTimeUs,
		MaxSampleTimeUs:       m.MaxSampleTimeUs,
		MissedSamplesCount:    m.MissedSamplesCount,
		TimingAccuracyPercent: m.TimingAccuracyPercent,
		RealTimeCompatible:    m.RealTimeCompatible,
		TotalSamplesCollected: m.TotalSamplesCollected,
	}
}

func newHealthView(h telemetry.Health) healthView {
	return healthView{
		MotorID:          h.MotorID,
		Streaming:        h.Streaming,
		SafetyTrips:      h.SafetyTrips,
		OverheadExceeded: h.OverheadExceeded,
		TimingDegraded:   h.TimingDegraded,
		Performance:      newPerformanceView(h.Metrics),
	}
}

func newContextView(id int, c telemetry.Context) contextView {
	return contextView{
		MotorID:               id,
		Initialized:           c.Initialized,
		StreamingActive:       c.StreamingActive,
		SampleRateHz:          c.SampleRateHz,
		LastSampleTimestampUs: c.LastSampleTimestampUs,
		LastPositionDeg:       c.LastPositionDeg,
		LastVelocityDps:       c.LastVelocityDps,
		EncoderCalibrationDeg: c.EncoderCalibrationOffset,
		KvalHold:              c.KvalHold,
		KvalRun:               c.KvalRun,
		CommandedPosition:     c.CommandedPosition,
		SafetyLimitsEnabled:   c.SafetyLimitsEnabled,
		SafetyCurrentLimitA:   c.SafetyCurrentLimitA,
		SafetySpeedLimitDps:   c.SafetySpeedLimitDps,
		SafetyErrorLimitDeg:   c.SafetyErrorLimitDeg,
		SafetyViolationCount:  c.SafetyViolationCount,
		Performance:           newPerformanceView(c.Performance),
	}
}
