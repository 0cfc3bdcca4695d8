// Package persistence provides standardized error types for storage
// operations and the domain error kinds shared by the engine.
package persistence

import (
	"errors"
	"fmt"

	"github.com/gestia/gestia/pkg/models"
)

// Standard error kinds that all implementations and engine layers use.
var (
	// ErrTemplateNotFound indicates a template was not found by id or code.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrRecordNotFound indicates a record was not found by id.
	ErrRecordNotFound = errors.New("record not found")

	// ErrStateNotFound indicates a record references a state that no longer
	// exists in its owning template.
	ErrStateNotFound = errors.New("state not found")

	// ErrInvalidTransition indicates no transition with the requested target
	// exists among the current state's transitions.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrCommentRequired indicates the transition requires a non-empty comment.
	ErrCommentRequired = errors.New("comment required")

	// ErrPermissionDenied indicates the actor's roles do not intersect the
	// transition's allowed-role set.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrRecordLocked indicates the record carries the cooperative business lock.
	ErrRecordLocked = errors.New("record locked")

	// ErrConcurrencyConflict indicates the caller's expected version is stale.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrDuplicateCode indicates a unique code collided at write time.
	ErrDuplicateCode = errors.New("duplicate code")

	// ErrSequenceFailure indicates the counter storage failed to issue a number.
	ErrSequenceFailure = errors.New("sequence failure")

	// ErrInvalidSortField indicates a list request used a non-allowlisted sort field.
	ErrInvalidSortField = errors.New("invalid sort field")
)

// ConditionViolation describes the guard condition that blocked a transition.
type ConditionViolation struct {
	FieldID  string                   `json:"field_id"`
	Operator models.ConditionOperator `json:"operator"`
	Expected any                      `json:"expected,omitempty"`
}

// TransitionConditionError reports the first failing guard condition of a
// requested state change.
type TransitionConditionError struct {
	TargetStateID string
	Violation     ConditionViolation
}

func (e *TransitionConditionError) Error() string {
	return fmt.Sprintf("transition to %s blocked: condition %s %s failed",
		e.TargetStateID, e.Violation.FieldID, e.Violation.Operator)
}

// Is allows errors.Is comparison against a bare *TransitionConditionError.
func (e *TransitionConditionError) Is(target error) bool {
	_, ok := target.(*TransitionConditionError)
	return ok
}

// FieldViolation is one failed field validation.
type FieldViolation struct {
	FieldCode string `json:"field_code"`
	Reason    string `json:"reason"`
}

// ValidationError carries the complete list of field violations so a form
// can render all problems at once. It is never truncated to the first field.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d field violation(s)", len(e.Violations))
}

// Is allows errors.Is comparison against a bare *ValidationError.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// TemplateError wraps template storage errors with operation context.
type TemplateError struct {
	Op         string
	TemplateID string
	Err        error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("%s operation failed for template %s: %v", e.Op, e.TemplateID, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

func (e *TemplateError) Is(target error) bool { return errors.Is(e.Err, target) }

// NewTemplateError creates a template error with context.
func NewTemplateError(op, templateID string, err error) *TemplateError {
	return &TemplateError{Op: op, TemplateID: templateID, Err: err}
}

// RecordError wraps record storage errors with operation context.
type RecordError struct {
	Op       string
	RecordID string
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s operation failed for record %s: %v", e.Op, e.RecordID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

func (e *RecordError) Is(target error) bool { return errors.Is(e.Err, target) }

// NewRecordError creates a record error with context.
func NewRecordError(op, recordID string, err error) *RecordError {
	return &RecordError{Op: op, RecordID: recordID, Err: err}
}

// SequenceError wraps counter storage errors with the scope key.
type SequenceError struct {
	Op  string
	Key string
	Err error
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("%s operation failed for counter %s: %v", e.Op, e.Key, e.Err)
}

func (e *SequenceError) Unwrap() error { return e.Err }

func (e *SequenceError) Is(target error) bool { return errors.Is(e.Err, target) }

// NewSequenceError creates a sequence error with context.
func NewSequenceError(op, key string, err error) *SequenceError {
	return &SequenceError{Op: op, Key: key, Err: err}
}

// IsTemplateNotFound checks if an error indicates a missing template.
func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

// IsRecordNotFound checks if an error indicates a missing record.
func IsRecordNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

// IsStateNotFound checks if an error indicates a stale state reference.
func IsStateNotFound(err error) bool {
	return errors.Is(err, ErrStateNotFound)
}

// IsConcurrencyConflict checks if an error indicates a stale record version.
func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsDuplicateCode checks if an error indicates a unique code collision.
func IsDuplicateCode(err error) bool {
	return errors.Is(err, ErrDuplicateCode)
}

// IsSequenceFailure checks if an error came from the counter storage.
func IsSequenceFailure(err error) bool {
	return errors.Is(err, ErrSequenceFailure)
}
