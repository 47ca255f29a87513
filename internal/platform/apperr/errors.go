// Package apperr defines the error taxonomy shared by the domain services:
// validation failures, rate-limit rejections, dependency outages, version
// conflicts, and generic internal errors with an alerting severity.
package apperr

import (
	"errors"
	"fmt"
)

// Severity is used for alerting, never for control flow.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
)

// Error codes surfaced to callers in the error envelope.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeRateLimit          = "RATE_LIMIT_EXCEEDED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeVersionConflict    = "VERSION_CONFLICT"
	CodeNotFound           = "NOT_FOUND"
	CodeInternal           = "INTERNAL_ERROR"
)

// ValidationError reports malformed or out-of-range input. It is surfaced
// immediately and never retried.
type ValidationError struct {
	Field          string
	ValidationType string
	Message        string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidation builds a ValidationError for a single field.
func NewValidation(field, validationType, format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Field:          field,
		ValidationType: validationType,
		Message:        fmt.Sprintf(format, args...),
	}
}

// RateLimitError reports a rejected request together with retry guidance.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %ds", e.RetryAfterSeconds)
}

// ServiceUnavailableError is raised when a circuit breaker is open or when
// retries against a dependency are exhausted.
type ServiceUnavailableError struct {
	Dependency string
	Reason     string
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %s", e.Dependency, e.Reason)
}

// ConflictError reports a stale-version write that was rejected.
type ConflictError struct {
	Resource        string
	ExpectedVersion int
	ActualVersion   int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s version conflict: expected %d, stored %d",
		e.Resource, e.ExpectedVersion, e.ActualVersion)
}

// NotFoundError reports a missing record.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// InternalError wraps an unexpected error at the facade boundary so that
// internals are not leaked to callers.
type InternalError struct {
	Code string
	Err  error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error (%s)", e.Code)
}

func (e *InternalError) Unwrap() error { return e.Err }

// Code maps an error to its caller-facing code.
func Code(err error) string {
	var ve *ValidationError
	var rle *RateLimitError
	var sue *ServiceUnavailableError
	var ce *ConflictError
	var nfe *NotFoundError
	var ie *InternalError
	switch {
	case errors.As(err, &ve):
		return CodeValidation
	case errors.As(err, &rle):
		return CodeRateLimit
	case errors.As(err, &sue):
		return CodeServiceUnavailable
	case errors.As(err, &ce):
		return CodeVersionConflict
	case errors.As(err, &nfe):
		return CodeNotFound
	case errors.As(err, &ie):
		if ie.Code != "" {
			return ie.Code
		}
		return CodeInternal
	default:
		return CodeInternal
	}
}

// SeverityFor derives an alerting severity from an error code.
func SeverityFor(code string) Severity {
	switch code {
	case CodeServiceUnavailable, CodeInternal:
		return SeverityCritical
	case CodeVersionConflict:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPermanent reports whether err is a domain outcome rather than a
// dependency failure. Validation, conflict, not-found and rate-limit errors
// complete a full round trip; retrying them cannot change the result and they
// say nothing about dependency health.
func IsPermanent(err error) bool {
	var ve *ValidationError
	var ce *ConflictError
	var nfe *NotFoundError
	var rle *RateLimitError
	return errors.As(err, &ve) || errors.As(err, &ce) ||
		errors.As(err, &nfe) || errors.As(err, &rle)
}
