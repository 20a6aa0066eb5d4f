package telemetry_test

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"codeberg.org/mutker/stepperctl/internal/errors"
	"codeberg.org/mutker/stepperctl/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoSampleDocument = `{
  "motor_id": 0,
  "test_type": 1,
  "sample_rate_hz": 1000,
  "test_duration_ms": 100,
  "test_start_timestamp": 12,
  "checksum": 3735928559,
  "sample_count": 2,
  "samples": [
    {"timestamp_us": 10, "position": 45.0, "velocity_dps": 0.00, "motor_current_a": 0.000, "power_consumption_w": 0.00, "position_error": 0.00, "data_quality_score": 100, "safety_bounds_ok": true},
    {"timestamp_us": 20, "position": 45.0, "velocity_dps": 0.00, "motor_current_a": 0.000, "power_consumption_w": 0.00, "position_error": 0.00, "data_quality_score": 100, "safety_bounds_ok": true}
  ]
}
`

type exported struct {
	MotorID     int    `json:"motor_id"`
	Checksum    uint32 `json:"checksum"`
	SampleCount int    `json:"sample_count"`
	Samples     []struct {
		TimestampUs uint32  `json:"timestamp_us"`
		Position    float64 `json:"position"`
		SafetyOK    bool    `json:"safety_bounds_ok"`
	} `json:"samples"`
}

func twoSampleDataSet() *telemetry.DataSet {
	ds := telemetry.NewDataSet(2)
	ds.SampleCount = 2
	ds.TestType = telemetry.TestBaseline
	ds.SampleRateHz = 1000
	ds.TestDurationMs = 100
	ds.TestStartTimestamp = 12
	ds.Checksum = 0xDEADBEEF
	ds.DataValid = true
	ds.State = telemetry.StateCompleted
	for i := range ds.Samples {
		ds.Samples[i] = telemetry.Sample{
			TimestampUs:      uint32(10 * (i + 1)),
			SequenceID:       uint32(i + 1),
			PositionDeg:      45,
			DataQualityScore: 100,
			SafetyBoundsOK:   true,
		}
	}

	return ds
}

func largeDataSet(n int) *telemetry.DataSet {
	ds := telemetry.NewDataSet(n)
	ds.SampleCount = n
	ds.MotorID = 1
	ds.TestType = telemetry.TestFrequencySweep
	ds.SampleRateHz = 2000
	ds.TestDurationMs = 5
	ds.DataValid = true
	for i := range ds.Samples {
		ds.Samples[i] = telemetry.Sample{
			TimestampUs:       uint32(500 * i),
			PositionDeg:       float64(i) * 3.7,
			VelocityDps:       -12.345,
			MotorCurrentA:     0.6891,
			PowerConsumptionW: 8.27,
			PositionError:     -1.5,
			DataQualityScore:  70,
		}
	}
	ds.Checksum = telemetry.Checksum(ds)

	return ds
}

func TestExportJSONFormat(t *testing.T) {
	ds := twoSampleDataSet()

	buf := make([]byte, 4096)
	n, err := telemetry.ExportJSON(ds, buf)
	require.NoError(t, err)
	assert.Equal(t, twoSampleDocument, string(buf[:n]))

	var w bytes.Buffer
	require.NoError(t, telemetry.WriteJSON(&w, ds))
	assert.Equal(t, twoSampleDocument, w.String())
}

func TestExportJSONInvalid(t *testing.T) {
	ds := twoSampleDataSet()
	ds.DataValid = false

	buf := make([]byte, 4096)
	n, err := telemetry.ExportJSON(ds, buf)
	assert.True(t, errors.HasCode(err, telemetry.ErrInvalidData), "Expected invalid data, got %v", err)
	assert.Zero(t, n)

	var w bytes.Buffer
	err = telemetry.WriteJSON(&w, ds)
	assert.True(t, errors.HasCode(err, telemetry.ErrInvalidData))
	assert.Zero(t, w.Len(), "Expected no output")

	_, err = telemetry.ExportJSON(nil, buf)
	assert.True(t, errors.HasCode(err, telemetry.ErrInvalidParameter))
}

func TestExportJSONTruncation(t *testing.T) {
	ds := largeDataSet(10)

	var full bytes.Buffer
	require.NoError(t, telemetry.WriteJSON(&full, ds))

	buf := make([]byte, full.Len()-1)
	n, err := telemetry.ExportJSON(ds, buf)
	require.NoError(t, err)
	assert.LessOrEqual(t, n, len(buf))

	var doc exported
	require.NoError(t, json.Unmarshal(buf[:n], &doc), "Expected valid JSON, got %q", buf[:n])
	assert.Equal(t, 9, doc.SampleCount, "Expected the last record dropped")
	assert.Equal(t, ds.Checksum, doc.Checksum, "Expected the header to keep the full dataset checksum")
	assert.Len(t, doc.Samples, doc.SampleCount)
	for i, s := range doc.Samples {
		assert.Equal(t, uint32(500*i), s.TimestampUs, "Expected a prefix of the samples")
	}

	// Exactly the empty document
	empty := *ds
	empty.SampleCount = 0
	var emptyDoc bytes.Buffer
	require.NoError(t, telemetry.WriteJSON(&emptyDoc, &empty))

	buf = make([]byte, emptyDoc.Len())
	n, err = telemetry.ExportJSON(ds, buf)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(buf[:n], &doc))
	assert.Zero(t, doc.SampleCount)
	assert.Empty(t, doc.Samples)
}

func TestExportJSONBufferTooSmall(t *testing.T) {
	ds := largeDataSet(3)

	n, err := telemetry.ExportJSON(ds, make([]byte, 16))
	assert.True(t, errors.HasCode(err, telemetry.ErrBufferOverflow), "Expected buffer overflow, got %v", err)
	assert.Zero(t, n)
}

func TestExportJSONNonFinite(t *testing.T) {
	ds := largeDataSet(1)
	ds.Samples[0].VelocityDps = math.Inf(1)
	ds.Samples[0].PositionError = math.NaN()

	var w bytes.Buffer
	require.NoError(t, telemetry.WriteJSON(&w, ds))

	var doc exported
	require.NoError(t, json.Unmarshal(w.Bytes(), &doc))
	assert.Len(t, doc.Samples, 1)
}
