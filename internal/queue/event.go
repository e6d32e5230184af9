// Package queue defines message payloads exchanged over the message broker
// and the background consumer of booking events.
package queue

// BookingQueueName is the durable queue booking events are routed to.
const BookingQueueName = "booking.confirmed"

// BookingConfirmedEvent is published after a booking commits at least one
// seat.  It carries everything a downstream consumer needs to log or notify
// without querying the reservation store.
type BookingConfirmedEvent struct {
    EventID     string `json:"event_id"`
    Username    string `json:"username"`
    BusID       int64  `json:"bus_id"`
    Date        string `json:"date"`
    Schedule    string `json:"schedule"`
    Seats       []int  `json:"seats"`
    ConfirmedAt string `json:"confirmed_at"` // RFC3339, UTC
}
