// Package repository defines the persistence layer of the reservation
// service and the error values shared by every store implementation.
// Higher layers distinguish a lost seat (ErrConflict) from an
// infrastructure fault (*StorageError) with errors.Is and errors.As.
package repository

import (
    "errors"
    "fmt"
)

// ErrConflict is returned when a write would violate a uniqueness
// constraint, e.g. inserting a reservation for a seat that is already
// taken.  Booking treats it as a lost race for that seat, not as a failure
// of the whole request.
var ErrConflict = errors.New("conflict")

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrUsernameExists is returned by user stores when the username is taken.
var ErrUsernameExists = errors.New("username already exists")

// StorageError wraps a fault of the underlying store that is unrelated to
// uniqueness: connection loss, timeouts, failed commits.
type StorageError struct {
    Op  string
    Err error
}

func (e *StorageError) Error() string {
    return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// storageErr wraps err as a *StorageError for op.  A nil err stays nil.
func storageErr(op string, err error) error {
    if err == nil {
        return nil
    }
    return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err carries a *StorageError.
func IsStorageError(err error) bool {
    var se *StorageError
    return errors.As(err, &se)
}
