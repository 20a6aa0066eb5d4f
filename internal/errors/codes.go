package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"

	// Configuration errors
	ErrInvalidConfig  ErrorCode = "invalid_configuration"
	ErrBindFlags      ErrorCode = "bind_flags_failed"
	ErrReadConfig     ErrorCode = "read_config_failed"
	ErrInvalidBackend ErrorCode = "invalid_hardware_backend"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrAlreadyRunning ErrorCode = "already_running"

	// Resource errors
	ErrResourceBusy     ErrorCode = "resource_busy"
	ErrResourceNotFound ErrorCode = "resource_not_found"

	// Application errors
	ErrInitApp      ErrorCode = "init_app_failed"
	ErrMainLoop     ErrorCode = "main_loop_failed"
	ErrInitMotor    ErrorCode = "init_motor_failed"
	ErrStopMotors   ErrorCode = "stop_motors_failed"
	ErrCaptureRun   ErrorCode = "capture_run_failed"
	ErrExportFailed ErrorCode = "export_failed"

	// Operation errors
	ErrOperationFailed ErrorCode = "operation_failed"
	ErrTimeout         ErrorCode = "operation_timeout"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:         "Internal error occurred",
	ErrInvalidArgument:  "Invalid argument provided",
	ErrInvalidConfig:    "Invalid configuration",
	ErrBindFlags:        "Failed to bind flags",
	ErrReadConfig:       "Failed to read config file",
	ErrInvalidBackend:   "Unknown hardware backend",
	ErrInvalidLogLevel:  "Invalid log level",
	ErrInitFailed:       "Initialization failed",
	ErrShutdownFailed:   "Shutdown failed",
	ErrAlreadyRunning:   "Another instance is already running",
	ErrResourceBusy:     "Resource is busy",
	ErrResourceNotFound: "Resource not found",
	ErrOperationFailed:  "Operation failed",
	ErrTimeout:          "Operation timed out",
	ErrInitApp:          "Failed to initialize application",
	ErrMainLoop:         "Error in main loop",
	ErrInitMotor:        "Failed to initialize motor",
	ErrStopMotors:       "Failed to stop motors",
	ErrCaptureRun:       "Dataset capture failed",
	ErrExportFailed:     "Dataset export failed",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
