package api

import "codeberg.org/mutker/stepperctl/internal/errors"

const (
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrServe         = errors.ErrorCode("api_serve_failed")
	ErrShutdown      = errors.ErrShutdownFailed
)
