// Package apperr holds the error taxonomy shared by the services and stores.
package apperr

import (
	"errors"
	"fmt"
)

// ErrUniqueViolation is returned by stores when an insert hits a uniqueness
// constraint. Services translate it into a domain error.
var ErrUniqueViolation = errors.New("unique constraint violation")

// ValidationError reports an input the caller must correct.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// DuplicateItemError is returned when a record already has a line item for the procedure.
type DuplicateItemError struct {
	RecordID    int64
	ProcedureID int64
}

func (e *DuplicateItemError) Error() string {
	return fmt.Sprintf("production record %d already has an item for procedure %d", e.RecordID, e.ProcedureID)
}

// NotFoundError reports a missing referenced entity.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(entity string, id any) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConflictError reports a write that collides with existing data, such as a
// second tariff entry for the same scope and start date.
type ConflictError struct {
	Entity string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Entity, e.Reason)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err is a conflict of any kind, including duplicate items.
func IsConflict(err error) bool {
	var ce *ConflictError
	var de *DuplicateItemError
	return errors.As(err, &ce) || errors.As(err, &de) || errors.Is(err, ErrUniqueViolation)
}
