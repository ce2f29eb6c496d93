package models

import (
	"errors"
	"fmt"
)

// ValidationError rejects malformed input before anything is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func newValidationError(field string, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InvalidAnswerError rejects an answer that does not fit its item's kind or options.
type InvalidAnswerError struct {
	ItemId int
	Kind   AnswerKind
	Reason string
}

func (e *InvalidAnswerError) Error() string {
	return fmt.Sprintf("invalid %s answer for item %d: %s", e.Kind, e.ItemId, e.Reason)
}

type NotFoundError struct {
	Entity string
	Id     int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.Id)
}

// PersistenceError wraps a failure of the underlying store unchanged.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ErrConcurrencyConflict is reserved for optimistic locking; nothing returns it yet.
var ErrConcurrencyConflict = errors.New("concurrent modification conflict")

// isDomainError reports whether err already carries a typed engine error.
func isDomainError(err error) bool {
	var (
		ve  *ValidationError
		iae *InvalidAnswerError
		nfe *NotFoundError
		pe  *PersistenceError
	)
	return errors.As(err, &ve) || errors.As(err, &iae) || errors.As(err, &nfe) ||
		errors.As(err, &pe) || errors.Is(err, ErrConcurrencyConflict)
}

func wrapPersistence(op string, err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
