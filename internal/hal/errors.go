package hal

import "codeberg.org/mutker/stepperctl/internal/errors"

const (
	ErrTimerNotInitialized = errors.ErrorCode("hal_timer_not_initialized")
	ErrTimerResolution     = errors.ErrorCode("hal_timer_unsupported_resolution")
	ErrUnknownMotor        = errors.ErrorCode("hal_unknown_motor")
	ErrBusTransfer         = errors.ErrorCode("hal_bus_transfer_failed")
	ErrDeviceNotReady      = errors.ErrorCode("hal_device_not_ready")
	ErrHardStopFailed      = errors.ErrorCode("hal_hard_stop_failed")
)
