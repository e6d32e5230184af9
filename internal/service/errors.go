package service

import (
    "errors"
    "fmt"
)

// ValidationError reports a request whose shape is wrong before any seat is
// considered: no seats, or a malformed slot.
type ValidationError struct {
    Field   string
    Message string
}

func (e *ValidationError) Error() string {
    return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

var (
    // ErrNoSeatsAvailable is returned with the outcome when no seat was
    // accepted and at least one was lost to an existing reservation.
    ErrNoSeatsAvailable = errors.New("no requested seat is available")

    // ErrAllInvalid is returned with the outcome when every requested seat
    // was rejected for reasons of its own (out of range or repeated).
    ErrAllInvalid = errors.New("no valid seat in request")

    // ErrStorageUnavailable is returned with the outcome when nothing was
    // accepted because the store kept failing.
    ErrStorageUnavailable = errors.New("reservation storage unavailable")
)
