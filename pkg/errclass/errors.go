// Package errclass defines the stable, machine-readable error classes
// surfaced by the engine to its callers.
package errclass

import "fmt"

// ClassError is a stable error class with an optional free-form message
// and an optional payload (e.g. the version id behind a NotModified signal).
type ClassError struct {
	Code    string
	Message string
	Extra   string
}

func (e *ClassError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ClassError) Is(target error) bool {
	t, ok := target.(*ClassError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new ClassError with the same Code but a given message.
func (e *ClassError) WithMessage(msg string) *ClassError {
	return &ClassError{Code: e.Code, Message: msg, Extra: e.Extra}
}

// WithMessagef returns a new ClassError with a formatted message.
func (e *ClassError) WithMessagef(format string, args ...any) *ClassError {
	return &ClassError{Code: e.Code, Message: fmt.Sprintf(format, args...), Extra: e.Extra}
}

// WithExtra returns a new ClassError carrying a payload value (e.g. a version id).
func (e *ClassError) WithExtra(extra string) *ClassError {
	return &ClassError{Code: e.Code, Message: e.Message, Extra: extra}
}

// Stable error classes, per the error handling design (§7).
var (
	ErrNotFound           = &ClassError{Code: "E_NOT_FOUND"}
	ErrInvalidName        = &ClassError{Code: "E_INVALID_NAME"}
	ErrNameConflict       = &ClassError{Code: "E_NAME_CONFLICT"}
	ErrBusyTryLater       = &ClassError{Code: "E_BUSY_TRY_LATER"}
	ErrNotModified        = &ClassError{Code: "E_NOT_MODIFIED"}
	ErrVersionInUse       = &ClassError{Code: "E_VERSION_IN_USE"}
	ErrStorageError       = &ClassError{Code: "E_STORAGE_ERROR"}
	ErrFilesystemError    = &ClassError{Code: "E_FILESYSTEM_ERROR"}
	ErrConflict           = &ClassError{Code: "E_CONFLICT"}
	ErrStorageUnavailable = &ClassError{Code: "E_STORAGE_UNAVAILABLE"}
)
