package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrStorage    = errors.New("storage error")

	ErrInvalidCoefficients = errors.New("invalid coefficients")
	ErrUnauthorized        = errors.New("unauthorized access to resource")

	ErrReportNotFound       = &NotFoundError{Entity: "daily report"}
	ErrHabitNotFound        = &NotFoundError{Entity: "tracked habit"}
	ErrCoefficientsNotFound = &NotFoundError{Entity: "coefficients"}
	ErrMetricsNotFound      = &NotFoundError{Entity: "system metrics"}

	ErrLockHeld       = &ConflictError{Reason: "user lock already held"}
	ErrAlreadySettled = &ConflictError{Reason: "report already settled"}
)

// ValidationError is a malformed per-habit payload. It never aborts a run:
// the habit is degraded to FAIL and the error is attached as a diagnostic.
type ValidationError struct {
	HabitKey string
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.HabitKey == "" {
		return fmt.Sprintf("invalid request: field %q %s", e.Field, e.Reason)
	}
	if e.Field == "" {
		return fmt.Sprintf("invalid report for %s: %s", e.HabitKey, e.Reason)
	}
	return fmt.Sprintf("invalid report for %s: field %q %s", e.HabitKey, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Is matches any NotFoundError for the same entity, so callers can compare
// against the package-level sentinels regardless of the id.
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	return ok && t.Entity == e.Entity
}

func (e *NotFoundError) WithID(id string) *NotFoundError {
	return &NotFoundError{Entity: e.Entity, ID: id}
}

// ConflictError is benign: the caller treats it as a no-op and does not retry.
type ConflictError struct {
	Reason string
	Key    string
}

func (e *ConflictError) Error() string {
	if e.Key == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Key)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

func (e *ConflictError) Is(target error) bool {
	t, ok := target.(*ConflictError)
	return ok && t.Reason == e.Reason
}

func (e *ConflictError) WithKey(key string) *ConflictError {
	return &ConflictError{Reason: e.Reason, Key: key}
}

// StorageError wraps a read or write failure against the transactional store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
