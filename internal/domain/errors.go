package domain

import (
	"fmt"
	"strings"
)

// Error types for consistent error handling across the API.

// ErrNotFound indicates a resource was not found for the requesting owner.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrNoResults indicates a filtered read matched nothing where at least one
// row is required (CSV export).
type ErrNoResults struct {
	Message string
}

func (e *ErrNoResults) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "No transactions found matching the criteria"
}

// ErrExternalService indicates a failure in a backing service (store, broker).
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrValidation indicates invalid request input. Errors carries every field
// problem found; Field/Message are used for single-field failures.
type ErrValidation struct {
	Field   string
	Message string
	Errors  []FieldError
}

func (e *ErrValidation) Error() string {
	if len(e.Errors) > 0 {
		parts := make([]string, 0, len(e.Errors))
		for _, fe := range e.Errors {
			parts = append(parts, fe.Field+": "+fe.Message)
		}
		return "validation failed: " + strings.Join(parts, "; ")
	}
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrInvalidQuery indicates a query that cannot be executed as requested,
// e.g. a missing owner or a non-sortable field.
type ErrInvalidQuery struct {
	Reason string
}

func (e *ErrInvalidQuery) Error() string {
	return "invalid query: " + e.Reason
}

// ErrInvalidFilter indicates a filter value that could not be parsed.
type ErrInvalidFilter struct {
	Field  string
	Value  string
	Reason string
}

func (e *ErrInvalidFilter) Error() string {
	return fmt.Sprintf("invalid filter '%s' (%q): %s", e.Field, e.Value, e.Reason)
}

// ErrForbidden indicates the user lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrUnauthorized indicates missing, invalid or expired credentials.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict indicates a resource already exists (duplicate email or username).
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}
