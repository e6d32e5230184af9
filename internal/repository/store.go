package repository

import (
    "context"
    "time"

    "github.com/iliyamo/bus-seat-reservation/internal/model"
)

// ReservationStore is the durable table of seat reservations.  Every
// implementation enforces that no two reservations share a SeatKey.
//
// Ordering expectations:
//  - ListByOwner returns reservations in insertion order.
//  - BookedSeats returns seat numbers in ascending order.
type ReservationStore interface {
    // RunInTx runs fn inside one atomic unit with at least read-committed
    // isolation.  If fn returns an error every write made through the
    // ReservationTx is rolled back and that error is returned unchanged.
    // Commit failures are returned as ErrConflict or *StorageError.
    RunInTx(ctx context.Context, fn func(tx ReservationTx) error) error

    ListByOwner(ctx context.Context, owner string) ([]model.Reservation, error)
    BookedSeats(ctx context.Context, slot model.Slot) ([]int, error)
}

// ReservationTx is the view of the store inside one RunInTx call.
type ReservationTx interface {
    // Exists reports whether a reservation holds key.  Writes made earlier
    // in the same transaction are visible.
    Exists(ctx context.Context, key model.SeatKey) (bool, error)

    // InsertAll inserts one reservation per key for owner as a single
    // statement.  Nothing is inserted when any key is taken; in that case
    // ErrConflict is returned.
    InsertAll(ctx context.Context, owner string, keys []model.SeatKey) (int, error)
}

// UserStore persists accounts of the login collaborator.
type UserStore interface {
    // Create hashes password with bcrypt at cost and inserts the user,
    // returning its ID.  ErrUsernameExists reports a taken username.
    Create(ctx context.Context, username, email, password string, cost int) (uint64, error)
    GetByUsername(ctx context.Context, username string) (model.User, error)
    GetByID(ctx context.Context, id uint64) (model.User, error)
}

// TokenStore persists hashed refresh tokens.
type TokenStore interface {
    StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
    // ValidateRefresh returns the owning user ID of a non-revoked,
    // non-expired token, or ErrNotFound.
    ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
    RevokeByHash(ctx context.Context, tokenHash string) error
    RevokeAllForUser(ctx context.Context, userID uint64) error
}
