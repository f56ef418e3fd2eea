package report

import (
	"errors"
	"fmt"
)

// NotFoundError covers both a missing search and one the caller does not
// own; the two cases are deliberately indistinguishable so probing for
// other users' searches reveals nothing.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConflictError signals a duplicate report request: a running job already
// exists for the same user and query inside the duplicate window.
type ConflictError struct {
	JobID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("report already running: job %s", e.JobID)
}

// PersistenceError wraps a store failure. Unlike provider and parse
// failures it always escapes to the caller.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return "persistence failure: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}
