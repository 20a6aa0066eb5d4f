package telemetry

import (
	"codeberg.org/mutker/stepperctl/internal/errors"
)

// CollectDataset runs one characterization test on motor id into ds.
//
// The call blocks for the whole run and paces samples by spinning on the
// timer counter. Limits from tc apply only for the duration of the run. A
// safety violation aborts the run and is returned; any other per-sample
// error is counted as a missed sample and the run continues.
func (e *Engine) CollectDataset(id int, tc *TestConfig, ds *DataSet) error {
	errFactory := errors.New()

	c, err := e.context(id)
	if err != nil {
		return err
	}
	if tc == nil || ds == nil {
		return errFactory.WithData(ErrInvalidParameter, "nil test config or dataset")
	}
	if tc.SampleRateHz == 0 || tc.SampleRateHz > e.cfg.MaxSampleRateHz {
		return errFactory.WithData(ErrInvalidParameter, tc.SampleRateHz)
	}
	if tc.DurationMs == 0 {
		return errFactory.WithData(ErrInvalidParameter, "zero test duration")
	}

	ds.Reset()

	expected := uint64(tc.DurationMs) * uint64(tc.SampleRateHz) / 1000
	if expected == 0 {
		return errFactory.WithData(ErrInvalidParameter, "test yields no samples")
	}
	capacity := e.cfg.DatasetCapacity
	if ds.Capacity() < capacity {
		capacity = ds.Capacity()
	}
	if expected > uint64(capacity) {
		return errFactory.WithData(ErrBufferOverflow, struct {
			Expected uint64
			Capacity int
		}{
			Expected: expected,
			Capacity: capacity,
		})
	}

	ds.TestType = tc.TestType
	ds.SampleRateHz = tc.SampleRateHz
	ds.TestDurationMs = tc.DurationMs
	ds.MotorID = id
	ds.TestParameters = tc.Parameters
	ds.TestStartTimestamp = e.dev.Clock.Tick()
	ds.State = StateRunning

	savedLimits := c.Limits()
	savedRate := c.SampleRateHz
	defer func() {
		c.applyLimits(savedLimits)
		c.SampleRateHz = savedRate
	}()

	c.applyLimits(testLimits(savedLimits, tc))
	c.SampleRateHz = tc.SampleRateHz

	if tc.DisableSafety {
		e.log.Warn().Int("motor", id).Str("test_type", tc.TestType.String()).Msg("Safety monitor bypassed for dataset run")
	}

	e.log.Info().
		Int("motor", id).
		Str("test_type", tc.TestType.String()).
		Uint32("sample_rate_hz", tc.SampleRateHz).
		Uint32("duration_ms", tc.DurationMs).
		Uint64("expected_samples", expected).
		Msg("Dataset run started")

	intervalUs := 1_000_000 / tc.SampleRateHz
	next := e.dev.Timer.Counter()
	missed := 0

	var runErr error
	for i := uint64(0); i < expected; i++ {
		e.waitUntil(next)
		next += intervalUs

		err := e.CollectSample(id, &ds.Samples[ds.SampleCount])
		if err == nil {
			ds.SampleCount++
			continue
		}
		if errors.HasCode(err, ErrSafetyLimitViolation) {
			runErr = err
			break
		}

		c.Performance.MissedSamplesCount++
		missed++
	}

	ds.Checksum = Checksum(ds)

	if runErr != nil {
		ds.State = StateAborted
		ds.DataValid = false

		e.log.Warn().
			Int("motor", id).
			Int("samples", ds.SampleCount).
			Int("missed", missed).
			Msg("Dataset run aborted")

		return runErr
	}

	ds.State = StateCompleted
	ds.DataValid = ds.SampleCount > 0

	e.log.Info().
		Int("motor", id).
		Int("samples", ds.SampleCount).
		Int("missed", missed).
		Uint32("checksum", ds.Checksum).
		Bool("valid", ds.DataValid).
		Msg("Dataset run completed")

	return nil
}

// waitUntil spins until the timer counter reaches deadline. The comparison
// is done on the signed difference so it survives counter wrap.
func (e *Engine) waitUntil(deadline uint32) {
	//nolint:gosec // G115: intentional two's complement reinterpretation
	for int32(e.dev.Timer.Counter()-deadline) < 0 {
		continue
	}
}

// Checksum XOR-folds the dataset header with the position and timestamp of
// its first and last sample. It detects truncation, not tampering.
func Checksum(d *DataSet) uint32 {
	if d == nil {
		return 0
	}

	//nolint:gosec // G115: header fields are folded bitwise
	sum := uint32(d.SampleCount) ^
		d.SampleRateHz ^
		d.TestDurationMs ^
		uint32(d.TestType) ^
		uint32(d.MotorID)

	if d.SampleCount > 0 && d.SampleCount <= len(d.Samples) {
		first := &d.Samples[0]
		last := &d.Samples[d.SampleCount-1]
		sum ^= quantizePosition(first.PositionDeg) ^ first.TimestampUs
		sum ^= quantizePosition(last.PositionDeg) ^ last.TimestampUs
	}

	return sum
}

// quantizePosition truncates deg to thousandths of a degree
func quantizePosition(deg float64) uint32 {
	//nolint:gosec // G115: two's complement bits of the truncated value
	return uint32(int32(deg * 1000))
}
