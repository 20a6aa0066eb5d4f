package telemetry

// PerformanceMetrics tracks how long sample collection takes relative to
// the sampling period.
type PerformanceMetrics struct {
	CPUOverheadPercent    float64
	MemoryUsageBytes      uint32
	AverageSampleTimeUs   uint32
	MaxSampleTimeUs       uint32
	MissedSamplesCount    uint32
	TimingAccuracyPercent float64
	RealTimeCompatible    bool
	TotalSamplesCollected uint32
}

// SafetyLimits is the envelope a sample must stay within
type SafetyLimits struct {
	Enabled  bool
	CurrentA float64
	SpeedDps float64
	ErrorDeg float64
}

// Context is the per-motor state of the engine
type Context struct {
	Initialized     bool
	StreamingActive bool
	SampleRateHz    uint32

	LastSampleTimestampUs uint32
	LastPositionDeg       float64
	LastVelocityDps       float64
	hasHistory            bool

	EncoderCalibrationOffset float64
	KvalHold                 uint8
	KvalRun                  uint8
	CommandedPosition        float64
	MaxCurrentA              float64

	SafetyLimitsEnabled  bool
	SafetyCurrentLimitA  float64
	SafetySpeedLimitDps  float64
	SafetyErrorLimitDeg  float64
	SafetyViolationCount uint32

	Performance PerformanceMetrics
}

// Limits returns the safety envelope currently in force
func (c *Context) Limits() SafetyLimits {
	return SafetyLimits{
		Enabled:  c.SafetyLimitsEnabled,
		CurrentA: c.SafetyCurrentLimitA,
		SpeedDps: c.SafetySpeedLimitDps,
		ErrorDeg: c.SafetyErrorLimitDeg,
	}
}

func (c *Context) applyLimits(l SafetyLimits) {
	c.SafetyLimitsEnabled = l.Enabled
	c.SafetyCurrentLimitA = l.CurrentA
	c.SafetySpeedLimitDps = l.SpeedDps
	c.SafetyErrorLimitDeg = l.ErrorDeg
}

// Sample is one timestamped snapshot of sensed and derived motor state
type Sample struct {
	TimestampUs uint32
	SequenceID  uint32

	PositionDeg      float64
	VelocityDps      float64
	AccelerationDps2 float64

	MotorCurrentA       float64
	StatusFlags         uint8
	ThermalWarning      bool
	StallDetected       bool
	OvercurrentDetected bool
	KvalHold            uint8
	KvalRun             uint8

	PowerConsumptionW  float64
	ThermalPerformance float64

	CommandedPosition float64
	PositionError     float64

	DataQualityScore  uint8
	SafetyBoundsOK    bool
	ControlLoopTimeUs uint32
}

// TestType identifies the characterization run a dataset belongs to
type TestType uint8

const (
	TestBaseline TestType = iota + 1
	TestStepResponse
	TestFrequencySweep
	TestEndurance
	TestCustom
)

func (t TestType) String() string {
	switch t {
	case TestBaseline:
		return "baseline"
	case TestStepResponse:
		return "step_response"
	case TestFrequencySweep:
		return "frequency_sweep"
	case TestEndurance:
		return "endurance"
	case TestCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// ParseTestType maps a test type name back to its value
func ParseTestType(name string) (TestType, bool) {
	for t := TestBaseline; t <= TestCustom; t++ {
		if t.String() == name {
			return t, true
		}
	}

	return 0, false
}

// DataSetState is the batch capture state machine
type DataSetState uint8

const (
	StateIdle DataSetState = iota
	StateRunning
	StateCompleted
	StateAborted
)

func (s DataSetState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

const maxTestParameters = 4

// DataSet is caller-owned storage for one characterization run
type DataSet struct {
	Samples            []Sample
	SampleCount        int
	TestType           TestType
	SampleRateHz       uint32
	TestDurationMs     uint32
	MotorID            int
	TestStartTimestamp uint32
	TestParameters     [maxTestParameters]float64
	DataValid          bool
	Checksum           uint32
	State              DataSetState
}

// NewDataSet allocates a dataset able to hold capacity samples
func NewDataSet(capacity int) *DataSet {
	if capacity < 0 {
		capacity = 0
	}

	return &DataSet{Samples: make([]Sample, capacity)}
}

// Capacity is the number of sample slots
func (d *DataSet) Capacity() int {
	return len(d.Samples)
}

// Records returns the collected samples
func (d *DataSet) Records() []Sample {
	return d.Samples[:d.SampleCount]
}

// Reset clears the header and sample count; slot contents are left as is
func (d *DataSet) Reset() {
	samples := d.Samples
	*d = DataSet{Samples: samples}
}

// Verify reports whether the stored checksum matches the contents
func (d *DataSet) Verify() bool {
	return d.DataValid && Checksum(d) == d.Checksum
}

// TestConfig describes one dataset run. Zero limit fields keep the
// motor's normal limits.
type TestConfig struct {
	TestType      TestType
	SampleRateHz  uint32
	DurationMs    uint32
	Parameters    [maxTestParameters]float64
	CurrentLimitA float64
	SpeedLimitDps float64
	ErrorLimitDeg float64
	// DisableSafety bypasses the monitor for open-loop runs; set only with
	// operator consent.
	DisableSafety bool
}

// Health summarizes the performance monitor for reporting
type Health struct {
	MotorID          int
	Metrics          PerformanceMetrics
	SafetyTrips      uint32
	Streaming        bool
	OverheadExceeded bool
	TimingDegraded   bool
}
