package util

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes used across the service.
const (
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeNotFound              = "NOT_FOUND"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeForbidden             = "FORBIDDEN"
	CodeConflict              = "CONFLICT"
	CodeInternalError         = "INTERNAL_ERROR"
	CodeQueueUnavailable      = "QUEUE_UNAVAILABLE"
	CodeClassificationTimeout = "CLASSIFICATION_TIMEOUT"
	CodeClassificationError   = "CLASSIFICATION_ERROR"
	CodeInvalidTransition     = "INVALID_TRANSITION"
	CodePersistenceError      = "PERSISTENCE_ERROR"
	CodeAuditWriteError       = "AUDIT_WRITE_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternalError,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewQueueUnavailable signals the triage queue rejected a job.
func NewQueueUnavailable(err error) error {
	return &DomainError{
		Code:       CodeQueueUnavailable,
		Message:    "triage queue unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewClassificationTimeout signals the classifier call exceeded its deadline.
func NewClassificationTimeout(err error) error {
	return &DomainError{
		Code:       CodeClassificationTimeout,
		Message:    "classification request timed out",
		HTTPStatus: http.StatusGatewayTimeout,
		Err:        err,
	}
}

// NewClassificationError signals a non-success response or transport fault.
func NewClassificationError(message string, err error) error {
	return &DomainError{
		Code:       CodeClassificationError,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewInvalidTransition signals a disallowed ticket status transition.
func NewInvalidTransition(from, to string) error {
	return &DomainError{
		Code:       CodeInvalidTransition,
		Message:    fmt.Sprintf("invalid status transition %s -> %s", from, to),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"from": from, "to": to},
	}
}

// NewPersistenceError wraps a storage failure on ticket or suggestion writes.
func NewPersistenceError(err error) error {
	return &DomainError{
		Code:       CodePersistenceError,
		Message:    "persistence failure",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewAuditWriteError wraps an audit store failure. Callers log it and move on.
func NewAuditWriteError(err error) error {
	return &DomainError{
		Code:       CodeAuditWriteError,
		Message:    "audit write failure",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsRetryable reports whether a triage job attempt failing with err should be
// retried under the queue's backoff policy.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeClassificationTimeout, CodeClassificationError, CodePersistenceError, CodeInternalError:
		return true
	}
	return false
}

// CodeOf returns the domain error code for err, or empty for nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return ToDomainError(err).Code
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternalError,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// MapError normalizes err into a DomainError.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
