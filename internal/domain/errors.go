package domain

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned for malformed input, unknown enum values and
// duplicate unique fields.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

func NewValidationError(message string, fields ...FieldError) *ValidationError {
	return &ValidationError{Message: message, Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, "; "))
}

// NotFoundError is returned when a referenced resource does not exist.
type NotFoundError struct {
	Resource string
	Key      string
}

func NewNotFoundError(resource, key string) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: key}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}

// PreconditionError is returned when a transition is attempted against an
// invariant of the current state.
type PreconditionError struct {
	Reason string
}

func NewPreconditionError(format string, args ...any) *PreconditionError {
	return &PreconditionError{Reason: fmt.Sprintf(format, args...)}
}

func (e *PreconditionError) Error() string {
	return e.Reason
}

// ConflictError is returned when concurrent writers kept racing on the same
// record and the update could not be applied.
type ConflictError struct {
	Resource string
	Key      string
}

func NewConflictError(resource, key string) *ConflictError {
	return &ConflictError{Resource: resource, Key: key}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently, retry the request", e.Resource, e.Key)
}

// Storage-level sentinels. Adapters translate driver errors into these.
var (
	ErrVersionConflict      = errors.New("version conflict")
	ErrDuplicateTransaction = errors.New("duplicate transaction reference")
	ErrDuplicateOrderNumber = errors.New("duplicate order number")
	ErrDuplicateReview      = errors.New("duplicate review")
	ErrAlreadyArchived      = errors.New("order already archived")
)

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
