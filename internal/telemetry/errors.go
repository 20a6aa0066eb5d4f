package telemetry

import "codeberg.org/mutker/stepperctl/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig    = errors.ErrorCode("telemetry_invalid_config")
	ErrInvalidParameter = errors.ErrorCode("telemetry_invalid_parameter")

	// Lifecycle Errors
	ErrNotInitialized    = errors.ErrorCode("telemetry_not_initialized")
	ErrTimerInitFailed   = errors.ErrorCode("telemetry_timer_init_failed")
	ErrTimerStartFailed  = errors.ErrorCode("telemetry_timer_start_failed")
	ErrSensorInitFailed  = errors.ErrorCode("telemetry_sensor_init_failed")
	ErrDriverInitFailed  = errors.ErrorCode("telemetry_driver_init_failed")
	ErrTimerShutdownFail = errors.ErrorCode("telemetry_timer_shutdown_failed")

	// Collection Errors
	ErrSensorReadFailed     = errors.ErrorCode("telemetry_sensor_read_failed")
	ErrDriverReadFailed     = errors.ErrorCode("telemetry_driver_read_failed")
	ErrSafetyLimitViolation = errors.ErrorCode("telemetry_safety_limit_violation")

	// Dataset Errors
	ErrBufferOverflow = errors.ErrorCode("telemetry_buffer_overflow")
	ErrInvalidData    = errors.ErrorCode("telemetry_invalid_data")
)
