// Package apperrors defines the error vocabulary shared by the core and its collaborators.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an application error
type Kind string

const (
	KindNotFound   Kind = "NOT_FOUND"
	KindValidation Kind = "VALIDATION_ERROR"
	KindDatabase   Kind = "DATABASE_ERROR"
	KindDuplicate  Kind = "DUPLICATE"
)

// NotFound codes let callers tell which record was missing.
const (
	CodeUserNotFound     = "USER_NOT_FOUND"
	CodeProgressNotFound = "PROGRESS_NOT_FOUND"
	CodeCardNotFound     = "CARD_NOT_FOUND"
	CodeSetNotFound      = "SET_NOT_FOUND"
)

// Sentinels matched by errors.Is against any AppError of the same kind.
var (
	ErrNotFound   = &AppError{Kind: KindNotFound}
	ErrValidation = &AppError{Kind: KindValidation}
	ErrDatabase   = &AppError{Kind: KindDatabase}
	ErrDuplicate  = &AppError{Kind: KindDuplicate}

	ErrUserNotFound     = &AppError{Kind: KindNotFound, Code: CodeUserNotFound}
	ErrProgressNotFound = &AppError{Kind: KindNotFound, Code: CodeProgressNotFound}
)

// AppError represents an application error with a kind, an optional code and a wrapped cause
type AppError struct {
	Kind    Kind   // Error kind (e.g., NOT_FOUND)
	Code    string // Finer-grained code (e.g., USER_NOT_FOUND), optional
	Message string // Human-readable error message
	Err     error  // Wrapped underlying error (optional)
}

// Error implements the error interface
func (e *AppError) Error() string {
	label := string(e.Kind)
	if e.Code != "" {
		label = e.Code
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", label, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", label, e.Message)
}

// Unwrap returns the underlying error for error wrapping support
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind, and by code when the target carries one.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// NewNotFoundError creates a NOT_FOUND error for the given resource code
func NewNotFoundError(code string, resource string, id interface{}) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Code:    code,
		Message: fmt.Sprintf("%s not found: %v", resource, id),
	}
}

// NewUserNotFound creates a USER_NOT_FOUND error
func NewUserNotFound(userID int64) *AppError {
	return NewNotFoundError(CodeUserNotFound, "user", userID)
}

// NewProgressNotFound creates a PROGRESS_NOT_FOUND error
func NewProgressNotFound(progressID int64) *AppError {
	return NewNotFoundError(CodeProgressNotFound, "progress", progressID)
}

// NewValidationError creates a VALIDATION_ERROR
func NewValidationError(field string, reason string) *AppError {
	return &AppError{
		Kind:    KindValidation,
		Message: fmt.Sprintf("validation failed for %s: %s", field, reason),
	}
}

// NewDatabaseError wraps a persistence failure
func NewDatabaseError(op string, err error) *AppError {
	return &AppError{
		Kind:    KindDatabase,
		Message: op,
		Err:     err,
	}
}

// NewDuplicateError reports a constraint violation on write
func NewDuplicateError(op string, err error) *AppError {
	return &AppError{
		Kind:    KindDuplicate,
		Message: op,
		Err:     err,
	}
}

// KindOf returns the kind of the first AppError in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// IsNotFound reports whether err is any NOT_FOUND error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
