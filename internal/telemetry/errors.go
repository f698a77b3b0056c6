package telemetry

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork: endpoint unreachable or non-success status
	ErrNetwork = errors.New("network failure")
	// ErrMalformedResponse: body does not match the expected shape
	ErrMalformedResponse = errors.New("malformed response")
	// ErrInvalidSample: parsed, but semantically unusable
	ErrInvalidSample = errors.New("invalid sample")
)

// InvalidSampleError names the field that made a sample unusable.
type InvalidSampleError struct {
	Field  string
	Reason string
}

func (e *InvalidSampleError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid sample: %s", e.Reason)
	}
	return fmt.Sprintf("invalid sample: %s: %s", e.Field, e.Reason)
}

func (e *InvalidSampleError) Is(target error) bool {
	return target == ErrInvalidSample
}

func invalid(field, reason string) error {
	return &InvalidSampleError{Field: field, Reason: reason}
}
