package repository

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a lookup by id matches no record.
var ErrNotFound = errors.New("notification not found")

// ValidationError reports required notification fields that were missing at
// create time.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("notification is missing required fields: %s", strings.Join(e.Missing, ", "))
}

// PersistenceError wraps a store-level failure. The dispatch pipeline treats
// it as fatal for the current message: a best-effort error record is written
// and the message is rejected.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
