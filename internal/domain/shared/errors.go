package shared

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain error for callers at the service boundary
type ErrorKind string

const (
	KindInvalidState ErrorKind = "INVALID_STATE" // Wrong status for the requested transition
	KindValidation   ErrorKind = "VALIDATION"    // Input violates a business rule
	KindNotFound     ErrorKind = "NOT_FOUND"     // Unknown entity within the tenant
	KindConcurrency  ErrorKind = "CONCURRENCY"   // Lock contention or lost update, retryable
)

// DomainError represents a domain-level error
type DomainError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches on kind and code so sentinel errors work with errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// WithField returns a copy of the error carrying the offending field name
func (e *DomainError) WithField(field string) *DomainError {
	cp := *e
	cp.Field = field
	return &cp
}

// Retryable reports whether the caller may retry the operation
func (e *DomainError) Retryable() bool {
	return e.Kind == KindConcurrency
}

// NewDomainError creates a new domain error. Errors created without an
// explicit kind are treated as validation errors.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Kind:    KindValidation,
		Code:    code,
		Message: message,
	}
}

// NewInvalidStateError creates an error for a forbidden status transition
func NewInvalidStateError(code, message string) *DomainError {
	return &DomainError{Kind: KindInvalidState, Code: code, Message: message}
}

// NewValidationError creates an error for input that breaks a business rule
func NewValidationError(code, message, field string) *DomainError {
	return &DomainError{Kind: KindValidation, Code: code, Message: message, Field: field}
}

// NewNotFoundError creates a tenant-scoped not-found error
func NewNotFoundError(resource string, id fmt.Stringer) *DomainError {
	return &DomainError{
		Kind:    KindNotFound,
		Code:    resource + "_NOT_FOUND",
		Message: fmt.Sprintf("%s %s not found", resource, id),
	}
}

// NewConcurrencyError creates a retryable lock/contention error
func NewConcurrencyError(code, message string) *DomainError {
	return &DomainError{Kind: KindConcurrency, Code: code, Message: message}
}

// IsKind reports whether err (or any error it wraps) is a DomainError of kind
func IsKind(err error, kind ErrorKind) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// IsRetryable reports whether err is a CONCURRENCY domain error
func IsRetryable(err error) bool {
	return IsKind(err, KindConcurrency)
}

// Common domain errors
var (
	ErrNotFound            = &DomainError{Kind: KindNotFound, Code: "NOT_FOUND", Message: "Resource not found"}
	ErrAlreadyExists       = &DomainError{Kind: KindValidation, Code: "ALREADY_EXISTS", Message: "Resource already exists"}
	ErrInvalidInput        = &DomainError{Kind: KindValidation, Code: "INVALID_INPUT", Message: "Invalid input provided"}
	ErrConcurrencyConflict = &DomainError{Kind: KindConcurrency, Code: "CONCURRENCY_CONFLICT", Message: "Resource was modified by another process"}
	ErrLockTimeout         = &DomainError{Kind: KindConcurrency, Code: "LOCK_TIMEOUT", Message: "Timed out waiting for a ledger lock"}
	ErrInvalidState        = &DomainError{Kind: KindInvalidState, Code: "INVALID_STATE", Message: "Operation not allowed in current state"}
)
