package model

import (
    "errors"
    "fmt"
    "time"
)

// DefaultSeatCount is the number of seats on a bus when SEAT_COUNT is not
// configured.
const DefaultSeatCount = 40

const (
    dateLayout     = "2006-01-02"
    scheduleLayout = "15:04"
)

// Slot identifies one bookable departure of a bus.  The triple is opaque to
// the booking core: only its syntax is checked, never whether the bus
// actually runs on that date and time.
//
// Fields:
//  BusID    – vehicle identifier, must be positive.
//  Date     – travel date as YYYY-MM-DD.
//  Schedule – departure time of day as HH:MM (24h).
type Slot struct {
    BusID    int64  // reservations.bus_id
    Date     string // reservations.travel_date
    Schedule string // reservations.schedule
}

// Validate reports whether the slot is syntactically well formed.
func (s Slot) Validate() error {
    if s.BusID <= 0 {
        return errors.New("bus_id must be a positive integer")
    }
    if _, err := time.Parse(dateLayout, s.Date); err != nil {
        return fmt.Errorf("date must be formatted as YYYY-MM-DD: %q", s.Date)
    }
    if len(s.Schedule) != len(scheduleLayout) {
        return fmt.Errorf("schedule must be formatted as HH:MM: %q", s.Schedule)
    }
    if _, err := time.Parse(scheduleLayout, s.Schedule); err != nil {
        return fmt.Errorf("schedule must be formatted as HH:MM: %q", s.Schedule)
    }
    return nil
}

func (s Slot) String() string {
    return fmt.Sprintf("bus=%d date=%s schedule=%s", s.BusID, s.Date, s.Schedule)
}

// SeatKey is a slot plus a seat number; it is the unit of reservation and no
// two live reservations may share one.
type SeatKey struct {
    Slot
    Seat int // reservations.seat_number
}

// Key returns the SeatKey of seat within the slot.
func (s Slot) Key(seat int) SeatKey { return SeatKey{Slot: s, Seat: seat} }

// ValidSeat reports whether seat lies in the seat universe [1, n].
func ValidSeat(seat, n int) bool { return seat >= 1 && seat <= n }

// SeatUniverse returns every seat number of a bus with n seats in ascending
// order.
func SeatUniverse(n int) []int {
    if n < 1 {
        return []int{}
    }
    out := make([]int, n)
    for i := range out {
        out[i] = i + 1
    }
    return out
}

// FreeSeats returns the ascending complement of booked within [1, n].
// Booked values outside the universe are ignored.  A slot with no bookings
// yields the whole universe.
func FreeSeats(n int, booked []int) []int {
    taken := make(map[int]struct{}, len(booked))
    for _, s := range booked {
        taken[s] = struct{}{}
    }
    out := make([]int, 0, n)
    for _, s := range SeatUniverse(n) {
        if _, ok := taken[s]; !ok {
            out = append(out, s)
        }
    }
    return out
}
