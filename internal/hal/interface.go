package hal

// Timer is a free-running microsecond counter
type Timer interface {
	Init(cfg TimerConfig) error
	Start() error
	Stop() error
	// Counter returns elapsed microseconds; wraps at 2^32
	Counter() uint32
}

// PositionSensor reads absolute rotor angle per motor slot
type PositionSensor interface {
	Init(motorID int) error
	ReadAngle(motorID int) (float32, error)
}

// StepperDriver exposes the status and parameter registers of a driver chip
type StepperDriver interface {
	Init(motorID int) error
	Status(motorID int) (uint32, error)
	Param(motorID int, addr uint8) (uint32, error)
	HardStop(motorID int) error
}

// Clock is the coarse millisecond system tick
type Clock interface {
	Tick() uint32
	Delay(ms uint32)
}

// EmergencyStop receives safety trips. Implementations must not block the
// caller for longer than it takes to issue the stop.
type EmergencyStop interface {
	Trigger(source StopSource)
}

// StopSource tags the origin of an emergency stop request
type StopSource uint8

const (
	SourceSoftware StopSource = iota + 1
	SourceWatchdog
	SourceExternal
)

func (s StopSource) String() string {
	switch s {
	case SourceSoftware:
		return "software"
	case SourceWatchdog:
		return "watchdog"
	case SourceExternal:
		return "external"
	default:
		return "unknown"
	}
}

type TimerConfig struct {
	// ResolutionUs is the counter period; only 1 is supported on host
	ResolutionUs uint32
}

// Devices bundles the collaborators the telemetry engine consumes
type Devices struct {
	Timer  Timer
	Sensor PositionSensor
	Driver StepperDriver
	Clock  Clock
	Stop   EmergencyStop
}
