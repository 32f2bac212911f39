package common

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Pipeline failure kinds. Every component fails fast with exactly one of
// these; callers branch on them to decide between rejecting the input,
// retrying, or prompting the user to upgrade.
var (
	// ErrUnsupportedInput: bad MIME type or encoding. Not retryable.
	ErrUnsupportedInput = errors.New("unsupported input")
	// ErrOCRFailure: recognition engine error or timeout. Retryable by caller.
	ErrOCRFailure = errors.New("ocr failure")
	// ErrModelUnavailable: network, rate-limit or non-2xx from the model
	// backend. Retryable with backoff.
	ErrModelUnavailable = errors.New("model backend unavailable")
	// ErrExtractionParse: model returned non-JSON or unparseable JSON.
	// Retrying with the same prompt is expected to fail identically.
	ErrExtractionParse = errors.New("extraction parse error")
	// ErrUnsupportedDataShape: spreadsheet generation received a shape it
	// cannot serialize. Not retryable.
	ErrUnsupportedDataShape = errors.New("unsupported data shape")
	// ErrQuotaExceeded: authorization or charge-time ceiling violation.
	// Not retryable without a plan change or invite bonus.
	ErrQuotaExceeded = errors.New("page quota exceeded")

	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Retryable reports whether the failure is transient from the caller's
// point of view (worth re-submitting the same request later).
func Retryable(err error) bool {
	return errors.Is(err, ErrOCRFailure) || errors.Is(err, ErrModelUnavailable)
}

// ToStatus maps a pipeline error onto a gRPC status for transport surfaces.
func ToStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrQuotaExceeded):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, ErrUnsupportedInput), errors.Is(err, ErrUnsupportedDataShape), errors.Is(err, ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrModelUnavailable), errors.Is(err, ErrOCRFailure):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
