package store

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrStorageWrite marks a failed write to the persistence medium.
	// Every *StorageWriteError matches it with errors.Is.
	ErrStorageWrite = errors.New("storage write failed")

	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrConversationNotFound is returned when a conversation id is unknown.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrDimensionMismatch is returned when a vector does not match the
	// store's established embedding dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidArgument is returned for requests that fail validation.
	ErrInvalidArgument = errors.New("invalid argument")
)

// StorageWriteError is returned when a save, create or close could not be
// made durable. The caller may retry.
type StorageWriteError struct {
	Op  string
	Err error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorageWrite, e.Op, e.Err)
}

func (e *StorageWriteError) Unwrap() []error {
	return []error{ErrStorageWrite, e.Err}
}

// NewStorageWriteError wraps err for operation op. A nil err yields nil.
func NewStorageWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageWriteError{Op: op, Err: err}
}
