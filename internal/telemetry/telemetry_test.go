package telemetry_test

import (
	"math"
	"testing"

	"codeberg.org/mutker/stepperctl/internal/errors"
	"codeberg.org/mutker/stepperctl/internal/hal"
	"codeberg.org/mutker/stepperctl/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		cfg := telemetry.DefaultConfig()
		cfg.MaxMotors = 0

		_, err := telemetry.New(cfg, newRig().devices())
		assert.True(t, errors.HasCode(err, telemetry.ErrInvalidParameter), "Expected invalid parameter, got %v", err)
	})

	t.Run("missing device", func(t *testing.T) {
		dev := newRig().devices()
		dev.Stop = nil

		_, err := telemetry.New(telemetry.DefaultConfig(), dev)
		assert.True(t, errors.HasCode(err, telemetry.ErrInvalidParameter), "Expected invalid parameter, got %v", err)
	})

	t.Run("timer init failure", func(t *testing.T) {
		r := newRig()
		r.timer.initErr = errors.New().New(hal.ErrTimerResolution)

		_, err := telemetry.New(telemetry.DefaultConfig(), r.devices())
		assert.True(t, errors.HasCode(err, telemetry.ErrTimerInitFailed), "Expected timer init failure, got %v", err)
	})

	t.Run("timer start failure", func(t *testing.T) {
		r := newRig()
		r.timer.startErr = errors.New().New(hal.ErrTimerNotInitialized)

		_, err := telemetry.New(telemetry.DefaultConfig(), r.devices())
		assert.True(t, errors.HasCode(err, telemetry.ErrTimerStartFailed), "Expected timer start failure, got %v", err)
	})

	t.Run("close stops timer", func(t *testing.T) {
		r := newRig()
		e, err := telemetry.New(telemetry.DefaultConfig(), r.devices())
		require.NoError(t, err)
		assert.True(t, r.timer.started)

		require.NoError(t, e.Close())
		assert.True(t, r.timer.stopped)
	})
}

func TestInitMotor(t *testing.T) {
	r := newRig(45)
	e := newEngine(t, r)

	c, err := e.Context(0)
	require.NoError(t, err)

	assert.True(t, c.Initialized)
	assert.Equal(t, uint32(1000), c.SampleRateHz, "Expected default sample rate")
	assert.True(t, c.SafetyLimitsEnabled)
	assert.InDelta(t, 1.8, c.SafetyCurrentLimitA, 1e-9, "Expected 90% of max current")
	assert.InDelta(t, 3240.0, c.SafetySpeedLimitDps, 1e-9, "Expected 90% of max speed")
	assert.InDelta(t, 30.0, c.SafetyErrorLimitDeg, 1e-9)
	assert.Equal(t, uint8(0x29), c.KvalHold)
	assert.Equal(t, uint8(0x29), c.KvalRun)
	assert.Positive(t, c.Performance.MemoryUsageBytes)
	assert.Equal(t, []int{0}, e.Motors())

	err = e.InitMotor(2, telemetry.MotorConfig{})
	assert.True(t, errors.HasCode(err, telemetry.ErrInvalidParameter), "Expected invalid motor id, got %v", err)

	err = e.InitMotor(1, telemetry.MotorConfig{SampleRateHz: 20000})
	assert.True(t, errors.HasCode(err, telemetry.ErrInvalidParameter), "Expected rate above maximum rejected, got %v", err)

	r.driver.initErr = errors.New().New(hal.ErrDeviceNotReady)
	err = e.InitMotor(1, telemetry.MotorConfig{})
	assert.True(t, errors.HasCode(err, telemetry.ErrDriverInitFailed), "Expected driver init failure, got %v", err)
}

func TestInitMotorOverrides(t *testing.T) {
	r := newRig(10)
	e := newEngine(t, r)

	require.NoError(t, e.InitMotor(1, telemetry.MotorConfig{
		EncoderOffsetDeg: 20,
		MaxCurrentA:      1.0,
		MaxSpeedDps:      100,
		SampleRateHz:     250,
	}))

	c, err := e.Context(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(250), c.SampleRateHz)
	assert.InDelta(t, 0.9, c.SafetyCurrentLimitA, 1e-9)
	assert.InDelta(t, 90.0, c.SafetySpeedLimitDps, 1e-9)

	require.NoError(t, e.EnableSafety(1, false))

	var s telemetry.Sample
	require.NoError(t, e.CollectSample(1, &s))
	assert.InDelta(t, 350.0, s.PositionDeg, 1e-9, "Expected offset applied and normalized")
}

func TestCollectSampleUninitialized(t *testing.T) {
	e := newEngine(t, newRig(0))

	var s telemetry.Sample
	err := e.CollectSample(1, &s)
	assert.True(t, errors.HasCode(err, telemetry.ErrNotInitialized), "Expected not initialized, got %v", err)

	err = e.CollectSample(5, &s)
	assert.True(t, errors.HasCode(err, telemetry.ErrInvalidParameter), "Expected invalid motor id, got %v", err)

	err = e.CollectSample(0, nil)
	assert.True(t, errors.HasCode(err, telemetry.ErrInvalidParameter), "Expected nil sample rejected, got %v", err)
}

func TestCollectSampleSequence(t *testing.T) {
	r := newRig(45)
	e := newEngine(t, r)
	require.NoError(t, e.SetCommandedPosition(0, 45))

	var prev uint32
	for i := 1; i <= 5; i++ {
		var s telemetry.Sample
		require.NoError(t, e.CollectSample(0, &s))

		assert.Equal(t, uint32(i), s.SequenceID, "Expected sequence ids to count from 1")
		if i > 1 {
			assert.Greater(t, s.TimestampUs, prev)
		}
		prev = s.TimestampUs
	}

	m, err := e.Metrics(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), m.TotalSamplesCollected)
}

func TestCollectSampleZeroInterval(t *testing.T) {
	r := newRig(10, 20)
	r.timer.step = 0
	e := newEngine(t, r)

	var s telemetry.Sample
	require.NoError(t, e.CollectSample(0, &s))
	require.NoError(t, e.CollectSample(0, &s))

	assert.Zero(t, s.VelocityDps, "Expected zero velocity for a zero interval")
	assert.Zero(t, s.AccelerationDps2, "Expected zero acceleration for a zero interval")
	assert.False(t, math.IsNaN(s.VelocityDps))
	assert.False(t, math.IsInf(s.AccelerationDps2, 0))
}

func TestCollectSampleWraparound(t *testing.T) {
	r := newRig(359, 1)
	e := newEngine(t, r)
	require.NoError(t, e.EnableSafety(0, false))

	var s telemetry.Sample
	require.NoError(t, e.CollectSample(0, &s))
	assert.Zero(t, s.VelocityDps, "Expected no velocity without history")

	require.NoError(t, e.CollectSample(0, &s))
	// +2 degrees over 20us
	assert.InDelta(t, 100000.0, s.VelocityDps, 1e-3)
}

func TestCollectSampleSafetyGate(t *testing.T) {
	r := newRig(0)
	e := newEngine(t, r, telemetry.WithCurrentEstimator(fixedCurrent(2.5)))
	require.NoError(t, e.SetSafetyLimits(0, telemetry.SafetyLimits{
		Enabled:  true,
		CurrentA: 2.0,
		SpeedDps: 3240,
		ErrorDeg: 30,
	}))

	var s telemetry.Sample
	err := e.CollectSample(0, &s)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, telemetry.ErrSafetyLimitViolation), "Expected safety violation, got %v", err)

	assert.False(t, s.SafetyBoundsOK)
	assert.InDelta(t, 2.5, s.MotorCurrentA, 1e-9, "Expected sample populated for diagnostics")
	assert.Equal(t, uint8(70), s.DataQualityScore)
	assert.Equal(t, []hal.StopSource{hal.SourceSoftware}, r.stop.sources, "Expected exactly one emergency stop")

	c, err := e.Context(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), c.SafetyViolationCount)
	assert.Equal(t, uint32(1), c.Performance.TotalSamplesCollected)
}

func TestCollectSampleNonFiniteReadings(t *testing.T) {
	t.Run("nan angle", func(t *testing.T) {
		r := newRig(float32(math.NaN()))
		e := newEngine(t, r)

		var s telemetry.Sample
		err := e.CollectSample(0, &s)
		assert.True(t, errors.HasCode(err, telemetry.ErrSafetyLimitViolation), "Expected NaN position rejected, got %v", err)
		assert.False(t, s.SafetyBoundsOK)
		assert.Less(t, s.DataQualityScore, uint8(100))
		assert.Len(t, r.stop.sources, 1, "Expected an emergency stop")
	})

	t.Run("nan current", func(t *testing.T) {
		r := newRig(0)
		e := newEngine(t, r, telemetry.WithCurrentEstimator(fixedCurrent(math.NaN())))

		var s telemetry.Sample
		err := e.CollectSample(0, &s)
		assert.True(t, errors.HasCode(err, telemetry.ErrSafetyLimitViolation), "Expected NaN current rejected, got %v", err)
		assert.Len(t, r.stop.sources, 1, "Expected an emergency stop")
	})
}

func TestCollectSampleBypass(t *testing.T) {
	r := newRig(0)
	e := newEngine(t, r, telemetry.WithCurrentEstimator(fixedCurrent(100)))
	require.NoError(t, e.EnableSafety(0, false))

	var s telemetry.Sample
	require.NoError(t, e.CollectSample(0, &s))

	assert.True(t, s.SafetyBoundsOK)
	assert.InDelta(t, 1200.0, s.PowerConsumptionW, 1e-9)
	assert.Empty(t, r.stop.sources)

	c, err := e.Context(0)
	require.NoError(t, err)
	assert.InDelta(t, 1.8, c.SafetyCurrentLimitA, 1e-9, "Expected limits untouched by disabling")
}

func TestCollectSampleSensorFailure(t *testing.T) {
	r := newRig(0)
	r.sensor.fail[0] = true
	e := newEngine(t, r)

	var s telemetry.Sample
	err := e.CollectSample(0, &s)
	assert.True(t, errors.HasCode(err, telemetry.ErrSensorReadFailed), "Expected sensor failure, got %v", err)
	assert.Equal(t, uint32(1), s.SequenceID)
	assert.Zero(t, s.DataQualityScore)

	require.NoError(t, e.CollectSample(0, &s))
	assert.Equal(t, uint32(1), s.SequenceID, "Expected failed sample not counted")
}

func TestCollectSampleDriverFailure(t *testing.T) {
	r := newRig(0)
	r.driver.statusErr = errors.New().New(hal.ErrBusTransfer)
	e := newEngine(t, r)

	var s telemetry.Sample
	require.NoError(t, e.CollectSample(0, &s))

	assert.Equal(t, uint8(20), s.DataQualityScore)
	assert.Zero(t, s.MotorCurrentA)
	assert.True(t, s.SafetyBoundsOK)
}

func TestCollectSampleStatusDecoding(t *testing.T) {
	r := newRig(0)
	r.driver.status = hal.StatusHealthy &^ hal.StatusThWarn
	e := newEngine(t, r)

	var s telemetry.Sample
	err := e.CollectSample(0, &s)
	assert.True(t, errors.HasCode(err, telemetry.ErrSafetyLimitViolation), "Expected thermal warning to trip, got %v", err)

	assert.True(t, s.ThermalWarning)
	assert.False(t, s.StallDetected)
	assert.False(t, s.OvercurrentDetected)
	assert.Equal(t, uint8(r.driver.status>>8), s.StatusFlags)
	assert.Equal(t, uint8(50), s.DataQualityScore)
	assert.InDelta(t, 0.5, s.ThermalPerformance, 1e-9)
	assert.Equal(t, uint8(0x29), s.KvalHold)
}

func TestStreamingAndHealth(t *testing.T) {
	r := newRig(45)
	e := newEngine(t, r)
	require.NoError(t, e.SetCommandedPosition(0, 45))

	err := e.StartStreaming(0, 0)
	assert.True(t, errors.HasCode(err, telemetry.ErrInvalidParameter))

	require.NoError(t, e.StartStreaming(0, 2000))

	var s telemetry.Sample
	for i := 0; i < 3; i++ {
		require.NoError(t, e.CollectSample(0, &s))
	}

	h, err := e.Health(0)
	require.NoError(t, err)
	assert.True(t, h.Streaming)
	assert.Equal(t, uint32(3), h.Metrics.TotalSamplesCollected)
	assert.Equal(t, uint32(10), h.Metrics.AverageSampleTimeUs)
	assert.InDelta(t, 2.0, h.Metrics.CPUOverheadPercent, 1e-9)
	assert.True(t, h.Metrics.RealTimeCompatible)
	assert.False(t, h.OverheadExceeded)
	assert.True(t, h.TimingDegraded, "Expected 20us spacing at 2kHz to be off schedule")

	require.NoError(t, e.StopStreaming(0))
	c, err := e.Context(0)
	require.NoError(t, err)
	assert.False(t, c.StreamingActive)
	assert.Equal(t, uint32(2000), c.SampleRateHz)
}
