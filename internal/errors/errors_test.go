package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"codeberg.org/mutker/stepperctl/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	f := errors.New()

	assert.Equal(t, "Invalid argument provided", f.New(errors.ErrInvalidArgument).Error())
	assert.Equal(t, "custom", f.WithMessage(errors.ErrInternal, "custom").Error())
	assert.Equal(t, "Invalid argument provided: motor 7", f.WithData(errors.ErrInvalidArgument, "motor 7").Error())

	cause := stderrors.New("bus timeout")
	assert.Equal(t, "Initialization failed: bus timeout", f.Wrap(errors.ErrInitFailed, cause).Error())
}

func TestUnknownCodeFallsBackToCode(t *testing.T) {
	code := errors.ErrorCode("some_unlisted_code")
	assert.Equal(t, "some_unlisted_code", errors.New().New(code).Error())
}

func TestApplicationCodesHaveMessages(t *testing.T) {
	codes := []errors.ErrorCode{
		errors.ErrInvalidConfig,
		errors.ErrReadConfig,
		errors.ErrInvalidBackend,
		errors.ErrAlreadyRunning,
		errors.ErrInitMotor,
		errors.ErrStopMotors,
		errors.ErrCaptureRun,
		errors.ErrExportFailed,
	}

	for _, code := range codes {
		assert.NotEqual(t, string(code), errors.GetErrorMessage(code), "Expected a message for %s", code)
	}
}

func TestHasCodeThroughWrapping(t *testing.T) {
	f := errors.New()
	inner := f.New(errors.ErrTimeout)
	outer := f.Wrap(errors.ErrOperationFailed, inner)
	wrapped := fmt.Errorf("context: %w", outer)

	assert.True(t, errors.HasCode(wrapped, errors.ErrOperationFailed))
	assert.True(t, errors.HasCode(wrapped, errors.ErrTimeout))
	assert.False(t, errors.HasCode(wrapped, errors.ErrInvalidArgument))
	assert.False(t, errors.HasCode(nil, errors.ErrTimeout))
	assert.False(t, errors.HasCode(stderrors.New("plain"), errors.ErrTimeout))
}

func TestIsComparesCodes(t *testing.T) {
	f := errors.New()
	err := f.Wrap(errors.ErrResourceBusy, stderrors.New("locked"))

	assert.ErrorIs(t, err, f.New(errors.ErrResourceBusy))
	assert.NotErrorIs(t, err, f.New(errors.ErrResourceNotFound))
	assert.Equal(t, errors.ErrResourceBusy, errors.CodeOf(err))
	assert.Equal(t, errors.ErrInternal, errors.CodeOf(stderrors.New("plain")))
}

func TestDataOf(t *testing.T) {
	f := errors.New()
	inner := f.WithData(errors.ErrInvalidArgument, 42)
	err := fmt.Errorf("load: %w", f.Wrap(errors.ErrInitFailed, inner))

	data, ok := errors.DataOf(err, errors.ErrInvalidArgument)
	assert.True(t, ok)
	assert.Equal(t, 42, data)

	_, ok = errors.DataOf(err, errors.ErrTimeout)
	assert.False(t, ok, "Expected no payload for an absent code")
	assert.Equal(t, "invalid_argument", errors.ErrInvalidArgument.String())
}
