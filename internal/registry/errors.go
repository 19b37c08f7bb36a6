package registry

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes registry errors.
type ErrorCode string

const (
	// CodeInvalidInput indicates an empty or malformed field name or expression.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeNotFound indicates the formula id does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeDuplicate indicates an active formula already produces the field.
	// Only returned when the registry was created WithDuplicateCheck.
	CodeDuplicate ErrorCode = "DUPLICATE"

	// CodeStore indicates the underlying store failed.
	CodeStore ErrorCode = "STORE"
)

// RegistryError describes a rejected registry operation.
type RegistryError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// FormulaID identifies the affected formula, when known.
	FormulaID string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *RegistryError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.FormulaID != "" {
		msg = fmt.Sprintf("%s (formula=%s)", msg, e.FormulaID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RegistryError) Unwrap() error {
	return e.Err
}

// IsInvalidInput returns true if err is an InvalidInput registry error.
// Uses errors.As to handle wrapped errors.
func IsInvalidInput(err error) bool {
	return codeOf(err) == CodeInvalidInput
}

// IsNotFound returns true if err is a NotFound registry error.
func IsNotFound(err error) bool {
	return codeOf(err) == CodeNotFound
}

// IsDuplicate returns true if err is a Duplicate registry error.
func IsDuplicate(err error) bool {
	return codeOf(err) == CodeDuplicate
}

func codeOf(err error) ErrorCode {
	var re *RegistryError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

func invalidInput(format string, args ...any) *RegistryError {
	return &RegistryError{Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}
