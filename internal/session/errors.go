package session

import (
	"errors"
	"fmt"
)

// Engine contract violations. These surface synchronously and retrying the
// same call cannot succeed; the call site has to change.
var (
	// ErrConflict: a live in-progress session already exists for the
	// (user, exam) pair.
	ErrConflict = errors.New("an in-progress attempt already exists for this exam")
	// ErrInvalidState: the operation is illegal for the attempt's current
	// lifecycle state, e.g. answering a completed attempt.
	ErrInvalidState = errors.New("operation not allowed in the attempt's current state")
	// ErrOutOfRange: a question index or id outside the attempt's bounds.
	ErrOutOfRange = errors.New("out of range")
)

// StorageError wraps a persistence collaborator failure. The engine performs
// no in-memory transition until the corresponding write is acknowledged, so
// the failed operation may always be retried as-is.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err is (or wraps) a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
