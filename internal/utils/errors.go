package utils

import (
	"errors"
	"fmt"
)

// Failure taxonomy shared by the relay components. Callers match with errors.Is.
var (
	// ErrBackendUnavailable marks an unreachable or erroring dedup, blob or identity backend.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrAuthenticationMissing marks absent ticketing credentials where they are required.
	ErrAuthenticationMissing = errors.New("ticketing credentials missing")
	// ErrSchemaViolation marks a malformed ticket summary.
	ErrSchemaViolation = errors.New("schema violation")
	// ErrTicketCreate marks a rejected create or comment call.
	ErrTicketCreate = errors.New("ticket create failed")
	// ErrUploadFailed marks an archive upload that exhausted its attempts.
	ErrUploadFailed = errors.New("archive upload failed")
)

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}
