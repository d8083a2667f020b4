package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by flag toggles on an unknown item id.
var ErrNotFound = errors.New("item not found")

// PersistenceError is a failed commit against the local store. The
// sync scheduler treats it as recoverable; user-initiated flag
// toggles surface it to the caller.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
