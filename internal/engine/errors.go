package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/formulary/internal/expr"
)

// FieldError reports a formula that could not produce a value for one record.
// The derived field is written as null.
type FieldError struct {
	// FormulaID identifies the failing formula.
	FormulaID string

	// FieldName is the derived attribute the formula produces.
	FieldName string

	// Err is the evaluation error, usually an *expr.EvalError.
	Err error
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: %v", e.FieldName, e.Err)
}

// Unwrap returns the evaluation error.
func (e *FieldError) Unwrap() error {
	return e.Err
}

// Kind returns the evaluation error kind, or "" if Err is not an EvalError.
func (e *FieldError) Kind() expr.ErrorKind {
	return expr.KindOf(e.Err)
}

// RecordError represents a record that was not updated during a bulk pass.
//
// RecordError includes structured fields for diagnostics and retry.
type RecordError struct {
	// Code identifies the error category.
	Code RecordErrorCode

	// RecordID identifies the affected record.
	RecordID string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// RecordErrorCode categorizes per-record failures.
type RecordErrorCode string

const (
	// ErrCodeWriteFailed indicates the record store rejected the write.
	ErrCodeWriteFailed RecordErrorCode = "WRITE_FAILED"

	// ErrCodeWriteTimeout indicates the write did not finish within the write timeout.
	ErrCodeWriteTimeout RecordErrorCode = "WRITE_TIMEOUT"

	// ErrCodeCancelled indicates the pass was cancelled before the record was started.
	ErrCodeCancelled RecordErrorCode = "CANCELLED"
)

// Error implements the error interface.
func (e *RecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (record=%s): %v", e.Code, e.Message, e.RecordID, e.Err)
	}
	return fmt.Sprintf("%s: %s (record=%s)", e.Code, e.Message, e.RecordID)
}

// Unwrap returns the underlying cause.
func (e *RecordError) Unwrap() error {
	return e.Err
}

// IsTimeoutError returns true if err is a write timeout.
// Uses errors.As to handle wrapped errors.
func IsTimeoutError(err error) bool {
	var re *RecordError
	if errors.As(err, &re) {
		return re.Code == ErrCodeWriteTimeout
	}
	return false
}

// IsCancelledError returns true if err marks a record skipped by cancellation.
func IsCancelledError(err error) bool {
	var re *RecordError
	if errors.As(err, &re) {
		return re.Code == ErrCodeCancelled
	}
	return false
}

// NewWriteError creates a RecordError for a failed or timed-out write.
func NewWriteError(recordID string, err error, timedOut bool) *RecordError {
	if timedOut {
		return &RecordError{
			Code:     ErrCodeWriteTimeout,
			RecordID: recordID,
			Message:  "write timed out",
			Err:      err,
		}
	}
	return &RecordError{
		Code:     ErrCodeWriteFailed,
		RecordID: recordID,
		Message:  "write failed",
		Err:      err,
	}
}

// NewCancelledError creates a RecordError for a record that was never started.
func NewCancelledError(recordID string, cause error) *RecordError {
	return &RecordError{
		Code:     ErrCodeCancelled,
		RecordID: recordID,
		Message:  "recompute cancelled before record was processed",
		Err:      cause,
	}
}
