package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"
    "time"

    "github.com/go-sql-driver/mysql"

    "github.com/iliyamo/bus-seat-reservation/internal/model"
)

// mysqlDuplicateEntry is the MySQL error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// ReservationRepo is the MySQL implementation of ReservationStore.  Seat
// uniqueness is enforced by the uq_reservation_seat key on
// (bus_id, travel_date, schedule, seat_number).  All timestamps are UTC.
type ReservationRepo struct {
    db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// RunInTx starts a READ COMMITTED transaction, hands it to fn and commits
// when fn succeeds.  Any error from fn rolls the transaction back.
func (r *ReservationRepo) RunInTx(ctx context.Context, fn func(tx ReservationTx) error) error {
    tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
    if err != nil {
        return storageErr("begin", err)
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    if err := fn(&mysqlReservationTx{tx: tx}); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        if isMySQLDuplicate(err) {
            return ErrConflict
        }
        return storageErr("commit", err)
    }
    committed = true
    return nil
}

type mysqlReservationTx struct {
    tx *sql.Tx
}

func (t *mysqlReservationTx) Exists(ctx context.Context, key model.SeatKey) (bool, error) {
    const q = `SELECT 1 FROM reservations
               WHERE bus_id = ? AND travel_date = ? AND schedule = ? AND seat_number = ?
               LIMIT 1`
    var one int
    err := t.tx.QueryRowContext(ctx, q, key.BusID, key.Date, key.Schedule, key.Seat).Scan(&one)
    if errors.Is(err, sql.ErrNoRows) {
        return false, nil
    }
    if err != nil {
        return false, storageErr("exists", err)
    }
    return true, nil
}

// InsertAll inserts every key in a single multi-row statement so the
// unique key rejects the whole batch when any seat is taken.  Passing an
// empty slice has no effect.
func (t *mysqlReservationTx) InsertAll(ctx context.Context, owner string, keys []model.SeatKey) (int, error) {
    if len(keys) == 0 {
        return 0, nil
    }
    var b strings.Builder
    b.WriteString(`INSERT INTO reservations (owner, bus_id, travel_date, schedule, seat_number) VALUES `)
    args := make([]interface{}, 0, len(keys)*5)
    for i, k := range keys {
        if i > 0 {
            b.WriteString(",")
        }
        b.WriteString("(?, ?, ?, ?, ?)")
        args = append(args, owner, k.BusID, k.Date, k.Schedule, k.Seat)
    }
    res, err := t.tx.ExecContext(ctx, b.String(), args...)
    if err != nil {
        if isMySQLDuplicate(err) {
            return 0, ErrConflict
        }
        return 0, storageErr("insert", err)
    }
    n, err := res.RowsAffected()
    if err != nil {
        return 0, storageErr("insert", err)
    }
    return int(n), nil
}

// ListByOwner returns all reservations of owner in insertion order.
func (r *ReservationRepo) ListByOwner(ctx context.Context, owner string) ([]model.Reservation, error) {
    const q = `SELECT id, owner, bus_id, travel_date, schedule, seat_number, created_at
               FROM reservations
               WHERE owner = ?
               ORDER BY id ASC`
    rows, err := r.db.QueryContext(ctx, q, owner)
    if err != nil {
        return nil, storageErr("list", err)
    }
    defer rows.Close()
    out := make([]model.Reservation, 0)
    for rows.Next() {
        var (
            res        model.Reservation
            travelDate time.Time
        )
        if err := rows.Scan(&res.ID, &res.Owner, &res.Key.BusID, &travelDate,
            &res.Key.Schedule, &res.Key.Seat, &res.CreatedAt); err != nil {
            return nil, storageErr("list", err)
        }
        res.Key.Date = travelDate.Format("2006-01-02")
        res.CreatedAt = res.CreatedAt.UTC()
        out = append(out, res)
    }
    if err := rows.Err(); err != nil {
        return nil, storageErr("list", err)
    }
    return out, nil
}

// BookedSeats returns the reserved seat numbers of slot in ascending order.
func (r *ReservationRepo) BookedSeats(ctx context.Context, slot model.Slot) ([]int, error) {
    const q = `SELECT seat_number FROM reservations
               WHERE bus_id = ? AND travel_date = ? AND schedule = ?
               ORDER BY seat_number ASC`
    rows, err := r.db.QueryContext(ctx, q, slot.BusID, slot.Date, slot.Schedule)
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

func isMySQLDuplicate(err error) bool {
    var me *mysql.MySQLError
    return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
