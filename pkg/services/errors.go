// Package services exposes the engine's operations to transport layers and
// owns the error taxonomy those layers map onto responses.
package services

import (
	"errors"
	"fmt"

	"github.com/gestia/gestia/pkg/persistence"
)

// Business logic errors; these indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidSortField = errors.New("invalid sort field")
	ErrInvalidSortOrder = errors.New("invalid sort order")
	ErrEmptyActor       = errors.New("actor cannot be empty")
	ErrTemplateNil      = errors.New("template cannot be nil")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSortField) ||
		errors.Is(err, ErrInvalidSortOrder) ||
		errors.Is(err, ErrEmptyActor) ||
		errors.Is(err, ErrTemplateNil) ||
		errors.Is(err, &persistence.ValidationError{})
}

// IsNotFoundError checks if an error should map to HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsTemplateNotFound(err) ||
		persistence.IsRecordNotFound(err) ||
		persistence.IsStateNotFound(err)
}

// IsConflictError checks if an error should map to HTTP 409.
func IsConflictError(err error) bool {
	return persistence.IsConcurrencyConflict(err) ||
		persistence.IsDuplicateCode(err) ||
		errors.Is(err, persistence.ErrRecordLocked)
}

// IsTransitionError checks if an error is a rejected state change, which
// maps to HTTP 422: the request was well-formed but the move is not allowed.
func IsTransitionError(err error) bool {
	return errors.Is(err, persistence.ErrInvalidTransition) ||
		errors.Is(err, persistence.ErrCommentRequired) ||
		errors.Is(err, persistence.ErrPermissionDenied) ||
		errors.Is(err, &persistence.TransitionConditionError{})
}
