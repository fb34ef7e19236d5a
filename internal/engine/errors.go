package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while preparing or running a
// program.
//
// RuntimeError includes structured fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Position is the tape position of the leaf involved, or -1.
	Position int

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeCursorDrift indicates a leaf was entered with ordered cursors
	// that do not match its recorded ranges.
	ErrCodeCursorDrift RuntimeErrorCode = "CURSOR_DRIFT"

	// ErrCodeDataShape indicates the shared array does not fit the program.
	ErrCodeDataShape RuntimeErrorCode = "DATA_SHAPE"

	// ErrCodeBackend indicates a backend failed to compile or execute a
	// segment.
	ErrCodeBackend RuntimeErrorCode = "BACKEND_FAILURE"

	// ErrCodeInvalidProgram indicates the program or tree failed validation.
	ErrCodeInvalidProgram RuntimeErrorCode = "INVALID_PROGRAM"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Position >= 0 {
		msg = fmt.Sprintf("%s (position=%d)", msg, e.Position)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error { return e.Err }

// IsCursorDrift returns true if the error is a cursor drift error.
// Uses errors.As to handle wrapped errors.
func IsCursorDrift(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeCursorDrift
	}
	return false
}

// IsDataShapeError returns true if the array did not fit the program.
func IsDataShapeError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeDataShape
	}
	return false
}

// IsBackendError returns true if a backend failed.
func IsBackendError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeBackend
	}
	return false
}

// NewCursorDriftError creates a RuntimeError for a leaf entered with the
// wrong cursors.
func NewCursorDriftError(pos, src, wantSrc, dst, wantDst int) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeCursorDrift,
		Message:  fmt.Sprintf("leaf entered with cursors (%d,%d), recorded (%d,%d)", src, dst, wantSrc, wantDst),
		Position: pos,
		Details: map[string]string{
			"source":           fmt.Sprintf("%d", src),
			"want_source":      fmt.Sprintf("%d", wantSrc),
			"destination":      fmt.Sprintf("%d", dst),
			"want_destination": fmt.Sprintf("%d", wantDst),
		},
	}
}

func newDataShapeError(err error, format string, args ...any) *RuntimeError {
	return &RuntimeError{Code: ErrCodeDataShape, Message: fmt.Sprintf(format, args...), Position: -1, Err: err}
}

func newBackendError(pos int, backend string, err error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeBackend,
		Message:  fmt.Sprintf("backend %s failed", backend),
		Position: pos,
		Details:  map[string]string{"backend": backend},
		Err:      err,
	}
}

func newInvalidProgramError(err error) *RuntimeError {
	return &RuntimeError{Code: ErrCodeInvalidProgram, Message: "program rejected", Position: -1, Err: err}
}

// IsInvalidProgram returns true if New rejected the program or tree.
func IsInvalidProgram(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidProgram
	}
	return false
}
