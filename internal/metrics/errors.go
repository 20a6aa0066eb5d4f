package metrics

import "codeberg.org/mutker/stepperctl/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig

	// Registration Errors
	ErrRegistration = errors.ErrorCode("metrics_registration_failed")

	// Export Errors
	ErrWriteTextfile = errors.ErrorCode("metrics_write_textfile_failed")
)
