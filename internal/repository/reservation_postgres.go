package repository

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgconn"
    "github.com/jackc/pgx/v5/pgxpool"

    "github.com/iliyamo/bus-seat-reservation/internal/model"
)

// pgUniqueViolation is the SQLSTATE raised on a unique constraint violation.
const pgUniqueViolation = "23505"

// PgReservationRepo is a Postgres implementation of ReservationStore.
type PgReservationRepo struct {
    pool *pgxpool.Pool
}

func NewPgReservationRepo(pool *pgxpool.Pool) *PgReservationRepo {
    return &PgReservationRepo{pool: pool}
}

func (r *PgReservationRepo) RunInTx(ctx context.Context, fn func(tx ReservationTx) error) error {
    if r.pool == nil {
        return storageErr("begin", errors.New("nil postgres pool"))
    }
    tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
    if err != nil {
        return storageErr("begin", err)
    }
    // Rollback after a successful commit is a no-op.
    defer func() { _ = tx.Rollback(ctx) }()

    if err := fn(&pgReservationTx{tx: tx}); err != nil {
        return err
    }
    if err := tx.Commit(ctx); err != nil {
        if isPgUniqueViolation(err) {
            return ErrConflict
        }
        return storageErr("commit", err)
    }
    return nil
}

type pgReservationTx struct {
    tx pgx.Tx
}

func (t *pgReservationTx) Exists(ctx context.Context, key model.SeatKey) (bool, error) {
    date, err := travelDate(key.Date)
    if err != nil {
        return false, err
    }
    var exists bool
    err = t.tx.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM reservations
            WHERE bus_id = $1 AND travel_date = $2 AND schedule = $3 AND seat_number = $4
        )
    `, key.BusID, date, key.Schedule, key.Seat).Scan(&exists)
    if err != nil {
        return false, storageErr("exists", err)
    }
    return exists, nil
}

func (t *pgReservationTx) InsertAll(ctx context.Context, owner string, keys []model.SeatKey) (int, error) {
    if len(keys) == 0 {
        return 0, nil
    }
    var b strings.Builder
    b.WriteString(`INSERT INTO reservations (owner, bus_id, travel_date, schedule, seat_number) VALUES `)
    args := make([]any, 0, len(keys)*5)
    for i, k := range keys {
        date, err := travelDate(k.Date)
        if err != nil {
            return 0, err
        }
        if i > 0 {
            b.WriteString(",")
        }
        n := i * 5
        fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5)
        args = append(args, owner, k.BusID, date, k.Schedule, k.Seat)
    }
    ct, err := t.tx.Exec(ctx, b.String(), args...)
    if err != nil {
        if isPgUniqueViolation(err) {
            return 0, ErrConflict
        }
        return 0, storageErr("insert", err)
    }
    return int(ct.RowsAffected()), nil
}

func (r *PgReservationRepo) ListByOwner(ctx context.Context, owner string) ([]model.Reservation, error) {
    if r.pool == nil {
        return nil, storageErr("list", errors.New("nil postgres pool"))
    }
    rows, err := r.pool.Query(ctx, `
        SELECT id, owner, bus_id, travel_date, schedule, seat_number, created_at
        FROM reservations
        WHERE owner = $1
        ORDER BY id ASC
    `, owner)
    if err != nil {
        return nil, storageErr("list", err)
    }
    defer rows.Close()

    out := make([]model.Reservation, 0)
    for rows.Next() {
        var (
            id        int64
            res       model.Reservation
            date      time.Time
            createdAt time.Time
        )
        if err := rows.Scan(&id, &res.Owner, &res.Key.BusID, &date, &res.Key.Schedule, &res.Key.Seat, &createdAt); err != nil {
            return nil, storageErr("list", err)
        }
        res.ID = uint64(id)
        res.Key.Date = date.Format("2006-01-02")
        res.CreatedAt = createdAt.UTC()
        out = append(out, res)
    }
    if err := rows.Err(); err != nil {
        return nil, storageErr("list", err)
    }
    return out, nil
}

func (r *PgReservationRepo) BookedSeats(ctx context.Context, slot model.Slot) ([]int, error) {
    if r.pool == nil {
        return nil, storageErr("booked seats", errors.New("nil postgres pool"))
    }
    date, err := travelDate(slot.Date)
    if err != nil {
        return nil, err
    }
    rows, err := r.pool.Query(ctx, `
        SELECT seat_number FROM reservations
        WHERE bus_id = $1 AND travel_date = $2 AND schedule = $3
        ORDER BY seat_number ASC
    `, slot.BusID, date, slot.Schedule)
    if err != nil {
        return nil, storageErr("booked seats", err)
    }
    defer rows.Close()
    seats := make([]int, 0)
    for rows.Next() {
        var s int
        if err := rows.Scan(&s); err != nil {
            return nil, storageErr("booked seats", err)
        }
        seats = append(seats, s)
    }
    if err := rows.Err(); err != nil {
        return nil, storageErr("booked seats", err)
    }
    return seats, nil
}

// travelDate converts a YYYY-MM-DD slot date into the value bound to a DATE
// column.
func travelDate(s string) (time.Time, error) {
    d, err := time.Parse("2006-01-02", s)
    if err != nil {
        return time.Time{}, fmt.Errorf("invalid travel date %q: %w", s, err)
    }
    return d, nil
}

func isPgUniqueViolation(err error) bool {
    var pe *pgconn.PgError
    return errors.As(err, &pe) && pe.Code == pgUniqueViolation
}
