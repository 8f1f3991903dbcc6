package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the core and its persistence adapters.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrInvalidState = errors.New("invalid state")
	ErrPersistence  = errors.New("persistence error")
	ErrConflict     = errors.New("conflict")
)

// FieldError describes a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError contains a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation: %d errors", len(e.Errors))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Errors: []FieldError{{Field: field, Message: message}},
	}
}

// PersistenceError reports a failed storage call. It matches both
// ErrPersistence and the underlying cause through errors.Is.
type PersistenceError struct {
	Op      string
	PlantID string
	Err     error
}

func (e *PersistenceError) Error() string {
	if e.PlantID == "" {
		return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persistence: %s plant %s: %v", e.Op, e.PlantID, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// WrapPersistence classifies an error returned by a store. Not-found,
// validation and invalid-state errors keep their kind; anything else becomes
// a *PersistenceError carrying the operation and plant id.
func WrapPersistence(op, plantID string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidState) || errors.Is(err, ErrPersistence) {
		return err
	}
	return &PersistenceError{Op: op, PlantID: plantID, Err: err}
}

// NotFound returns an ErrNotFound-wrapping error naming the entity.
func NotFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}
