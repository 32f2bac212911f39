package common

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestRetryable(t *testing.T) {
	if !Retryable(fmt.Errorf("wrapped: %w", ErrOCRFailure)) {
		t.Fatal("OCR failures should be retryable")
	}
	if !Retryable(ErrModelUnavailable) {
		t.Fatal("model backend outages should be retryable")
	}
	for _, err := range []error{ErrUnsupportedInput, ErrExtractionParse, ErrUnsupportedDataShape, ErrQuotaExceeded} {
		if Retryable(err) {
			t.Fatalf("Retryable(%v) = true", err)
		}
	}
}

func TestToStatusCodes(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("need 3 pages: %w", ErrQuotaExceeded), codes.ResourceExhausted},
		{ErrUnsupportedInput, codes.InvalidArgument},
		{ErrUnsupportedDataShape, codes.InvalidArgument},
		{ErrInvalidInput, codes.InvalidArgument},
		{ErrModelUnavailable, codes.Unavailable},
		{ErrOCRFailure, codes.Unavailable},
		{ErrNotFound, codes.NotFound},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		got := status.Code(ToStatus(tt.err))
		if got != tt.want {
			t.Fatalf("ToStatus(%v) code = %v, want %v", tt.err, got, tt.want)
		}
	}
	if ToStatus(nil) != nil {
		t.Fatal("ToStatus(nil) should be nil")
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := ErrOCRFailure
	err := NewAppError("OCR_TIMEOUT", "recognition timed out", cause)
	if !errors.Is(err, ErrOCRFailure) {
		t.Fatal("AppError should unwrap to its cause")
	}
	if err.Error() != "OCR_TIMEOUT: recognition timed out: ocr failure" {
		t.Fatalf("Error() = %q", err.Error())
	}
}
