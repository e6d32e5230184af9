package model

import "time"

// Reservation records that one seat of one slot belongs to a user.  Rows are
// created only by a successful booking commit and are never mutated or
// deleted by the booking core.
//
// Fields:
//  ID        – surrogate key assigned by the store, never reused.
//  Owner     – username that made the reservation.
//  Key       – the reserved seat.
//  CreatedAt – commit timestamp.
type Reservation struct {
    ID        uint64    // reservations.id
    Owner     string    // reservations.owner
    Key       SeatKey   // reservations.(bus_id, travel_date, schedule, seat_number)
    CreatedAt time.Time // reservations.created_at
}

// RejectReason explains why a requested seat was not booked.
type RejectReason string

const (
    // ReasonInvalidSeat marks a seat number outside [1, N].
    ReasonInvalidSeat RejectReason = "INVALID_SEAT"
    // ReasonAlreadyReserved marks a seat held by an existing reservation,
    // including one committed by a concurrent request.
    ReasonAlreadyReserved RejectReason = "ALREADY_RESERVED"
    // ReasonDuplicateInRequest marks the second and later occurrences of a
    // seat number inside a single request.
    ReasonDuplicateInRequest RejectReason = "DUPLICATE_IN_REQUEST"
    // ReasonStorageFailure marks a seat whose commit failed twice for a
    // reason other than a uniqueness conflict.
    ReasonStorageFailure RejectReason = "STORAGE_FAILURE"
)

// Rejection pairs a requested seat with the reason it was not booked.
type Rejection struct {
    Seat   int          `json:"seat"`
    Reason RejectReason `json:"reason"`
}

// BookingRequest asks for a set of seats in one slot.  Seats are kept exactly
// as submitted: duplicates and out-of-range values are expected.
type BookingRequest struct {
    Credential string
    Slot       Slot
    Seats      []int
}

// BookingOutcome reports, per seat, what happened to a booking request.
// Accepted and Rejected both follow the order of the request's seats.
type BookingOutcome struct {
    Slot     Slot
    Owner    string
    Accepted []int
    Rejected []Rejection
}

// Partial reports whether some but not all requested seats were booked.
func (o BookingOutcome) Partial() bool {
    return len(o.Accepted) > 0 && len(o.Rejected) > 0
}
