package shared

import (
	"errors"
	"fmt"
)

// Error codes shared by every bounded context.
const (
	CodeNotFound         = "NOT_FOUND"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeQuotaExceeded    = "QUOTA_EXCEEDED"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeStorageError     = "STORAGE_ERROR"
	CodePublishError     = "PUBLISH_ERROR"

	// CodeConcurrentModification means the record changed since it was read
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	cause   error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a DomainError with the same code, so that
// errors.Is(err, shared.ErrNotFound) works for freshly built errors too.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WrapDomainError creates a domain error carrying an underlying cause
func WrapDomainError(code, message string, cause error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common domain errors
var (
	ErrNotFound         = NewDomainError(CodeNotFound, "Resource not found")
	ErrPermissionDenied = NewDomainError(CodePermissionDenied, "Not allowed to perform this action")
	ErrQuotaExceeded    = NewDomainError(CodeQuotaExceeded, "Quota exceeded")
	ErrInvalidArgument  = NewDomainError(CodeInvalidArgument, "Invalid argument provided")
)

// NewNotFoundError builds a NOT_FOUND error for a resource kind and id.
func NewNotFoundError(resource string, id any) *DomainError {
	return NewDomainError(CodeNotFound, fmt.Sprintf("%s with id %v not found", resource, id))
}

// NewPermissionDeniedError builds a PERMISSION_DENIED error.
func NewPermissionDeniedError(message string) *DomainError {
	return NewDomainError(CodePermissionDenied, message)
}

// NewQuotaExceededError builds a QUOTA_EXCEEDED error.
func NewQuotaExceededError(message string) *DomainError {
	return NewDomainError(CodeQuotaExceeded, message)
}

// NewInvalidArgumentError builds an INVALID_ARGUMENT error.
func NewInvalidArgumentError(message string) *DomainError {
	return NewDomainError(CodeInvalidArgument, message)
}

// NewStorageError wraps a persistence failure.
func NewStorageError(op string, cause error) *DomainError {
	return WrapDomainError(CodeStorageError, "storage failure during "+op, cause)
}

// NewPublishError wraps an event delivery failure.
func NewPublishError(eventType string, cause error) *DomainError {
	return WrapDomainError(CodePublishError, "failed to publish "+eventType, cause)
}

// NewConcurrentModificationError reports a write that lost an optimistic version check.
func NewConcurrentModificationError(resource string, id any) *DomainError {
	return NewDomainError(CodeConcurrentModification, fmt.Sprintf("%s with id %v was modified concurrently", resource, id))
}

// ErrorCode extracts the domain error code from err, or "" if err is not a DomainError.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

func IsNotFound(err error) bool         { return ErrorCode(err) == CodeNotFound }
func IsPermissionDenied(err error) bool { return ErrorCode(err) == CodePermissionDenied }
func IsQuotaExceeded(err error) bool    { return ErrorCode(err) == CodeQuotaExceeded }
func IsInvalidArgument(err error) bool  { return ErrorCode(err) == CodeInvalidArgument }
func IsStorageError(err error) bool     { return ErrorCode(err) == CodeStorageError }
func IsPublishError(err error) bool     { return ErrorCode(err) == CodePublishError }
func IsConcurrentModification(err error) bool {
	return ErrorCode(err) == CodeConcurrentModification
}
