package util

import (
	"errors"
	"fmt"
)

// Error codes surfaced by the engine.
const (
	CodeNotFound            = "NOT_FOUND"
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodePermissionDenied    = "PERMISSION_DENIED"
	CodeInvalidTarget       = "INVALID_TARGET"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeStorageFailure      = "STORAGE_FAILURE"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
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
func NewDomainError(code, message string, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Details: details,
	}
}

// NewInvalidTransition reports an operation that is structurally
// invalid for the ticket's current status. The message names both so
// callers can tell what they raced against.
func NewInvalidTransition(operation, currentStatus, ticketID string) error {
	return NewDomainError(
		CodeInvalidTransition,
		fmt.Sprintf("operation %q is not valid while ticket is %s", operation, currentStatus),
		map[string]any{"ticket_id": ticketID, "operation": operation, "current_status": currentStatus},
	)
}

func NewPermissionDenied(operation, actorID string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	details["operation"] = operation
	details["actor_id"] = actorID
	return NewDomainError(
		CodePermissionDenied,
		fmt.Sprintf("actor %s may not perform %q", actorID, operation),
		details,
	)
}

// NewInvalidTarget reports a structurally valid operation aimed at a
// target that does not exist or is inactive.
func NewInvalidTarget(kind, id, reason string) error {
	return NewDomainError(
		CodeInvalidTarget,
		fmt.Sprintf("%s %s is not a valid target: %s", kind, id, reason),
		map[string]any{"target_kind": kind, "target_id": id},
	)
}

// NewConcurrencyConflict reports a write conflict that the per-ticket
// lock discipline should have made impossible. It is never retried.
func NewConcurrencyConflict(ticketID, operation string) error {
	return NewDomainError(
		CodeConcurrencyConflict,
		fmt.Sprintf("conflicting concurrent write on ticket %s during %q", ticketID, operation),
		map[string]any{"ticket_id": ticketID, "operation": operation},
	)
}

// NewStorageFailure wraps a persistence error that survived the
// engine's bounded retries.
func NewStorageFailure(err error, details map[string]any) error {
	return &DomainError{
		Code:    CodeStorageFailure,
		Message: "storage operation failed",
		Details: details,
		Err:     err,
	}
}

// CodeOf extracts the domain error code, or empty string for
// non-domain errors.
func CodeOf(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given domain error code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}

// ToDomainError converts generic errors to DomainError. Unknown errors
// are treated as storage failures since persistence is the only
// non-domain failure source inside the engine.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if de, ok := NewStorageFailure(err, nil).(*DomainError); ok {
		return de
	}
	return &DomainError{Code: CodeStorageFailure, Message: "storage operation failed", Err: err}
}
