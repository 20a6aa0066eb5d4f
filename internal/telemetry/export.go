package telemetry

import (
	"io"
	"math"
	"strconv"

	"codeberg.org/mutker/stepperctl/internal/errors"
)

const (
	recordIndent    = "\n    "
	recordSeparator = ",\n    "
	documentFooter  = "\n  ]\n}\n"

	// maxRecordLen is the scratch size for one rendered sample record
	maxRecordLen = 320
)

// ExportJSON writes ds into buf and returns the number of bytes written.
//
// When buf cannot hold every sample the document carries the longest
// prefix of samples that fits, and sample_count reports that prefix. The
// checksum in the header still covers the whole dataset, so a truncated
// document does not verify against its own records. The output is always a
// complete JSON document.
func ExportJSON(ds *DataSet, buf []byte) (int, error) {
	errFactory := errors.New()

	if ds == nil {
		return 0, errFactory.WithData(ErrInvalidParameter, "nil dataset")
	}
	if !ds.DataValid {
		return 0, errFactory.New(ErrInvalidData)
	}
	records := exportable(ds)

	var scratch [maxRecordLen]byte

	size := documentLen(ds, 0, scratch[:0])
	if size > len(buf) {
		return 0, errFactory.WithData(ErrBufferOverflow, struct {
			Needed    int
			Available int
		}{
			Needed:    size,
			Available: len(buf),
		})
	}

	// Each added record grows the document by more than the extra digit
	// sample_count may need, so the size is monotonic in n.
	body := 0
	n := 0
	for n < len(records) {
		recLen := len(separator(n)) + len(appendRecord(scratch[:0], &records[n]))
		if documentLen(ds, n+1, scratch[:0])+body+recLen > len(buf) {
			break
		}
		body += recLen
		n++
	}

	out := appendDocument(buf[:0], ds, records[:n])

	return len(out), nil
}

// WriteJSON writes the complete document for ds to w.
func WriteJSON(w io.Writer, ds *DataSet) error {
	errFactory := errors.New()

	if ds == nil {
		return errFactory.WithData(ErrInvalidParameter, "nil dataset")
	}
	if !ds.DataValid {
		return errFactory.New(ErrInvalidData)
	}
	records := exportable(ds)

	out := appendDocument(make([]byte, 0, len(records)*maxRecordLen/2+256), ds, records)
	if _, err := w.Write(out); err != nil {
		return errFactory.Wrap(errors.ErrExportFailed, err)
	}

	return nil
}

func exportable(ds *DataSet) []Sample {
	n := ds.SampleCount
	if n > len(ds.Samples) {
		n = len(ds.Samples)
	}
	if n < 0 {
		n = 0
	}

	return ds.Samples[:n]
}

// documentLen is the size of the header and footer for n samples
func documentLen(ds *DataSet, n int, scratch []byte) int {
	return len(appendHeader(scratch, ds, n)) + len(documentFooter)
}

func separator(i int) string {
	if i == 0 {
		return recordIndent
	}

	return recordSeparator
}

func appendDocument(dst []byte, ds *DataSet, records []Sample) []byte {
	dst = appendHeader(dst, ds, len(records))
	for i := range records {
		dst = append(dst, separator(i)...)
		dst = appendRecord(dst, &records[i])
	}

	return append(dst, documentFooter...)
}

func appendHeader(dst []byte, ds *DataSet, n int) []byte {
	dst = append(dst, "{\n  \"motor_id\": "...)
	dst = strconv.AppendInt(dst, int64(ds.MotorID), 10)
	dst = append(dst, ",\n  \"test_type\": "...)
	dst = strconv.AppendUint(dst, uint64(ds.TestType), 10)
	dst = append(dst, ",\n  \"sample_rate_hz\": "...)
	dst = strconv.AppendUint(dst, uint64(ds.SampleRateHz), 10)
	dst = append(dst, ",\n  \"test_duration_ms\": "...)
	dst = strconv.AppendUint(dst, uint64(ds.TestDurationMs), 10)
	dst = append(dst, ",\n  \"test_start_timestamp\": "...)
	dst = strconv.AppendUint(dst, uint64(ds.TestStartTimestamp), 10)
	dst = append(dst, ",\n  \"checksum\": "...)
	dst = strconv.AppendUint(dst, uint64(ds.Checksum), 10)
	dst = append(dst, ",\n  \"sample_count\": "...)
	dst = strconv.AppendInt(dst, int64(n), 10)

	return append(dst, ",\n  \"samples\": ["...)
}

func appendRecord(dst []byte, s *Sample) []byte {
	dst = append(dst, `{"timestamp_us": `...)
	dst = strconv.AppendUint(dst, uint64(s.TimestampUs), 10)
	dst = append(dst, `, "position": `...)
	dst = appendFixed(dst, s.PositionDeg, 1)
	dst = append(dst, `, "velocity_dps": `...)
	dst = appendFixed(dst, s.VelocityDps, 2)
	dst = append(dst, `, "motor_current_a": `...)
	dst = appendFixed(dst, s.MotorCurrentA, 3)
	dst = append(dst, `, "power_consumption_w": `...)
	dst = appendFixed(dst, s.PowerConsumptionW, 2)
	dst = append(dst, `, "position_error": `...)
	dst = appendFixed(dst, s.PositionError, 2)
	dst = append(dst, `, "data_quality_score": `...)
	dst = strconv.AppendUint(dst, uint64(s.DataQualityScore), 10)
	dst = append(dst, `, "safety_bounds_ok": `...)
	dst = strconv.AppendBool(dst, s.SafetyBoundsOK)

	return append(dst, '}')
}

// appendFixed writes v with prec decimals. NaN and infinities are not
// valid JSON numbers and are written as zero.
func appendFixed(dst []byte, v float64, prec int) []byte {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}

	return strconv.AppendFloat(dst, v, 'f', prec, 64)
}
