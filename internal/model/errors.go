package model

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when a comment (or parent) does not exist in the
// requested scope.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// ConflictError is returned when a mutation lost a race for its scope. The
// transaction was rolled back and the caller may retry.
type ConflictError struct {
	Scope Scope
	Err   error
}

func (e *ConflictError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("conflicting mutation on %s", e.Scope)
	}
	return fmt.Sprintf("conflicting mutation on %s: %v", e.Scope, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// ConsistencyError reports a violated nested-set invariant. It is never
// repaired automatically.
type ConsistencyError struct {
	Scope  Scope
	Detail string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("forest %s is inconsistent: %s", e.Scope, e.Detail)
}

// StorageError wraps a failure of the underlying store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is or wraps a *ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConsistency reports whether err is or wraps a *ConsistencyError.
func IsConsistency(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}

// IsStorage reports whether err is or wraps a *StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
