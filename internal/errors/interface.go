package errors

// ErrorCode identifies a failure independent of its message. Codes are
// snake_case and prefixed with the owning package outside this package.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Error is a coded error that may wrap a cause or carry a payload
type Error interface {
	error
	Code() ErrorCode
	WithMessage(msg string) Error
	WithData(data any) Error
	GetData() any
	Unwrap() error
}

// Factory builds coded errors
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}
