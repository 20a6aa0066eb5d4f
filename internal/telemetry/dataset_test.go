package telemetry_test

import (
	"testing"

	"codeberg.org/mutker/stepperctl/internal/errors"
	"codeberg.org/mutker/stepperctl/internal/hal"
	"codeberg.org/mutker/stepperctl/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baselineTest(rateHz, durationMs uint32) *telemetry.TestConfig {
	return &telemetry.TestConfig{
		TestType:     telemetry.TestBaseline,
		SampleRateHz: rateHz,
		DurationMs:   durationMs,
		Parameters:   [4]float64{1.5},
	}
}

func TestCollectDatasetEndToEnd(t *testing.T) {
	r := newRig(45)
	e := newEngine(t, r)
	require.NoError(t, e.SetCommandedPosition(0, 45))

	ds := telemetry.NewDataSet(2000)
	require.NoError(t, e.CollectDataset(0, baselineTest(500, 10), ds))

	assert.Equal(t, telemetry.StateCompleted, ds.State)
	assert.True(t, ds.DataValid)
	require.Equal(t, 5, ds.SampleCount, "Expected 10ms at 500Hz to yield 5 samples")
	assert.Equal(t, telemetry.TestBaseline, ds.TestType)
	assert.Equal(t, uint32(500), ds.SampleRateHz)
	assert.Equal(t, uint32(10), ds.TestDurationMs)
	assert.Equal(t, uint32(42), ds.TestStartTimestamp, "Expected start stamped from the clock tick")
	assert.InDelta(t, 1.5, ds.TestParameters[0], 1e-9)

	for i, s := range ds.Records() {
		assert.Equal(t, uint32(i+1), s.SequenceID)
		assert.InDelta(t, 45.0, s.PositionDeg, 1e-9)
		assert.InDelta(t, 0.0, s.VelocityDps, 1e-9)
		assert.True(t, s.SafetyBoundsOK)
		if i > 0 {
			spacing := s.TimestampUs - ds.Samples[i-1].TimestampUs
			assert.InDelta(t, 2000, spacing, 20, "Expected samples paced at the 500Hz interval")
		}
	}

	assert.Equal(t, telemetry.Checksum(ds), ds.Checksum)
	assert.True(t, ds.Verify())

	c, err := e.Context(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), c.Performance.TotalSamplesCollected)
	assert.Equal(t, uint32(10), c.Performance.AverageSampleTimeUs)
	assert.Equal(t, uint32(10), c.Performance.MaxSampleTimeUs)
	assert.InDelta(t, 100.0, c.Performance.TimingAccuracyPercent, 1.0)
	assert.Equal(t, uint32(1000), c.SampleRateHz, "Expected motor rate restored after the run")
}

func TestCollectDatasetCapacity(t *testing.T) {
	r := newRig(45)
	e := newEngine(t, r)

	ds := telemetry.NewDataSet(2000)
	err := e.CollectDataset(0, baselineTest(1000, 10000), ds)
	assert.True(t, errors.HasCode(err, telemetry.ErrBufferOverflow), "Expected buffer overflow, got %v", err)
	assert.Zero(t, ds.SampleCount)
	assert.Equal(t, telemetry.StateIdle, ds.State)
	assert.Zero(t, r.sensor.reads, "Expected rejection before any sample")

	small := telemetry.NewDataSet(3)
	err = e.CollectDataset(0, baselineTest(500, 10), small)
	assert.True(t, errors.HasCode(err, telemetry.ErrBufferOverflow), "Expected caller buffer size honored, got %v", err)
}

func TestCollectDatasetInvalid(t *testing.T) {
	e := newEngine(t, newRig(0))
	ds := telemetry.NewDataSet(10)

	tests := []struct {
		name string
		id   int
		tc   *telemetry.TestConfig
		ds   *telemetry.DataSet
		code errors.ErrorCode
	}{
		{"nil config", 0, nil, ds, telemetry.ErrInvalidParameter},
		{"nil dataset", 0, baselineTest(100, 10), nil, telemetry.ErrInvalidParameter},
		{"zero rate", 0, baselineTest(0, 10), ds, telemetry.ErrInvalidParameter},
		{"rate above maximum", 0, baselineTest(20000, 10), ds, telemetry.ErrInvalidParameter},
		{"zero duration", 0, baselineTest(100, 0), ds, telemetry.ErrInvalidParameter},
		{"no samples", 0, baselineTest(1, 10), ds, telemetry.ErrInvalidParameter},
		{"uninitialized motor", 1, baselineTest(100, 10), ds, telemetry.ErrNotInitialized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.CollectDataset(tt.id, tt.tc, tt.ds)
			assert.True(t, errors.HasCode(err, tt.code), "Expected %s, got %v", tt.code, err)
		})
	}
}

func TestCollectDatasetSafetyAbort(t *testing.T) {
	r := newRig(45)
	e := newEngine(t, r)
	require.NoError(t, e.SetCommandedPosition(0, 45))

	tc := baselineTest(500, 10)
	tc.CurrentLimitA = 0.5

	ds := telemetry.NewDataSet(100)
	err := e.CollectDataset(0, tc, ds)
	assert.True(t, errors.HasCode(err, telemetry.ErrSafetyLimitViolation), "Expected safety violation, got %v", err)

	assert.Equal(t, telemetry.StateAborted, ds.State)
	assert.False(t, ds.DataValid)
	assert.Zero(t, ds.SampleCount)
	assert.Equal(t, []hal.StopSource{hal.SourceSoftware}, r.stop.sources)
	assert.False(t, ds.Verify())

	c, err := e.Context(0)
	require.NoError(t, err)
	assert.InDelta(t, 1.8, c.SafetyCurrentLimitA, 1e-9, "Expected run limits restored")
	assert.True(t, c.SafetyLimitsEnabled)
}

func TestCollectDatasetMissedSamples(t *testing.T) {
	r := newRig(45)
	r.sensor.fail[1] = true
	e := newEngine(t, r)
	require.NoError(t, e.SetCommandedPosition(0, 45))

	ds := telemetry.NewDataSet(100)
	require.NoError(t, e.CollectDataset(0, baselineTest(500, 10), ds))

	assert.Equal(t, telemetry.StateCompleted, ds.State)
	assert.True(t, ds.DataValid)
	assert.Equal(t, 4, ds.SampleCount, "Expected the failed slot skipped and the run continued")

	m, err := e.Metrics(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), m.MissedSamplesCount)
	assert.Equal(t, uint32(4), m.TotalSamplesCollected)
}

func TestCollectDatasetAllMissed(t *testing.T) {
	r := newRig(45)
	for i := 0; i < 5; i++ {
		r.sensor.fail[i] = true
	}
	e := newEngine(t, r)

	ds := telemetry.NewDataSet(100)
	require.NoError(t, e.CollectDataset(0, baselineTest(500, 10), ds))

	assert.Equal(t, telemetry.StateCompleted, ds.State)
	assert.False(t, ds.DataValid, "Expected an empty run to be invalid")
}

func TestCollectDatasetBypassSafety(t *testing.T) {
	r := newRig(45)
	e := newEngine(t, r, telemetry.WithCurrentEstimator(fixedCurrent(100)))

	tc := baselineTest(500, 10)
	tc.TestType = telemetry.TestStepResponse
	tc.DisableSafety = true

	ds := telemetry.NewDataSet(100)
	require.NoError(t, e.CollectDataset(0, tc, ds))
	assert.Equal(t, 5, ds.SampleCount)
	assert.Empty(t, r.stop.sources)

	c, err := e.Context(0)
	require.NoError(t, err)
	assert.True(t, c.SafetyLimitsEnabled, "Expected monitor re-enabled after the run")
}

func TestChecksum(t *testing.T) {
	build := func(middle float64) *telemetry.DataSet {
		ds := telemetry.NewDataSet(3)
		ds.SampleCount = 3
		ds.SampleRateHz = 1000
		ds.TestDurationMs = 3
		ds.TestType = telemetry.TestEndurance
		ds.MotorID = 1
		ds.Samples[0] = telemetry.Sample{TimestampUs: 100, PositionDeg: 12.3456}
		ds.Samples[1] = telemetry.Sample{TimestampUs: 1100, PositionDeg: middle, VelocityDps: middle}
		ds.Samples[2] = telemetry.Sample{TimestampUs: 2100, PositionDeg: 90.5}

		return ds
	}

	a := build(1)
	b := build(270)
	assert.Equal(t, telemetry.Checksum(a), telemetry.Checksum(b), "Expected intermediate samples ignored")

	b.Samples[2].TimestampUs++
	assert.NotEqual(t, telemetry.Checksum(a), telemetry.Checksum(b), "Expected last timestamp folded in")

	c := build(1)
	c.SampleCount = 2
	assert.NotEqual(t, telemetry.Checksum(a), telemetry.Checksum(c), "Expected truncation detected")

	assert.Zero(t, telemetry.Checksum(nil))
}
