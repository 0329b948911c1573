package domain

import (
	"errors"
	"fmt"
)

// ValidationError is a caller correctable rejection. Reason is safe to show
// to the end user verbatim.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// StateError rejects an operation the current state forbids, such as bidding
// on a closed auction or the moderator acting as a participant.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string { return e.Reason }

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// TransportFault means a remote call or delivery failed for reasons that are
// not attributable to caller input.
type TransportFault struct {
	Op  string
	Err error
}

func (e *TransportFault) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportFault) Unwrap() error { return e.Err }

// PersistenceFault wraps an error raised by the backing store.
type PersistenceFault struct {
	Op  string
	Err error
}

func (e *PersistenceFault) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceFault) Unwrap() error { return e.Err }

func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func NewStateError(format string, args ...interface{}) error {
	return &StateError{Reason: fmt.Sprintf(format, args...)}
}

func NewNotFound(entity string, id interface{}) error {
	return &NotFoundError{Entity: entity, ID: fmt.Sprint(id)}
}

// Persistence wraps err as a PersistenceFault unless it already carries a
// domain classification.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsCallerError(err) || IsNotFound(err) {
		return err
	}
	var pf *PersistenceFault
	if errors.As(err, &pf) {
		return err
	}
	return &PersistenceFault{Op: op, Err: err}
}

// IsCallerError reports whether err is a validation or state rejection.
func IsCallerError(err error) bool {
	var ve *ValidationError
	var se *StateError
	return errors.As(err, &ve) || errors.As(err, &se)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
