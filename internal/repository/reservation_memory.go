package repository

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/iliyamo/bus-seat-reservation/internal/model"
)

// MemoryReservationStore is an in-memory ReservationStore.  A transaction
// holds the write lock for its whole duration, so transactions are
// serialized; inserts are staged and only become visible to other callers
// when fn returns nil.  It is safe for concurrent use.
type MemoryReservationStore struct {
    mu     sync.RWMutex
    nextID uint64
    rows   []model.Reservation
    taken  map[model.SeatKey]struct{}
    now    func() time.Time
}

func NewMemoryReservationStore() *MemoryReservationStore {
    return &MemoryReservationStore{
        taken: make(map[model.SeatKey]struct{}),
        now:   func() time.Time { return time.Now().UTC() },
    }
}

func (s *MemoryReservationStore) RunInTx(ctx context.Context, fn func(tx ReservationTx) error) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    tx := &memoryReservationTx{store: s, staged: make(map[model.SeatKey]struct{})}
    if err := fn(tx); err != nil {
        return err
    }
    if err := ctx.Err(); err != nil {
        return storageErr("commit", err)
    }
    now := s.now()
    for _, p := range tx.pending {
        s.nextID++
        s.rows = append(s.rows, model.Reservation{
            ID:        s.nextID,
            Owner:     p.owner,
            Key:       p.key,
            CreatedAt: now,
        })
        s.taken[p.key] = struct{}{}
    }
    return nil
}

type pendingReservation struct {
    owner string
    key   model.SeatKey
}

type memoryReservationTx struct {
    store   *MemoryReservationStore
    pending []pendingReservation
    staged  map[model.SeatKey]struct{}
}

func (t *memoryReservationTx) Exists(ctx context.Context, key model.SeatKey) (bool, error) {
    if err := ctx.Err(); err != nil {
        return false, storageErr("exists", err)
    }
    return t.has(key), nil
}

func (t *memoryReservationTx) has(key model.SeatKey) bool {
    if _, ok := t.store.taken[key]; ok {
        return true
    }
    _, ok := t.staged[key]
    return ok
}

func (t *memoryReservationTx) InsertAll(ctx context.Context, owner string, keys []model.SeatKey) (int, error) {
    if err := ctx.Err(); err != nil {
        return 0, storageErr("insert", err)
    }
    batch := make(map[model.SeatKey]struct{}, len(keys))
    for _, k := range keys {
        if _, dup := batch[k]; dup || t.has(k) {
            return 0, ErrConflict
        }
        batch[k] = struct{}{}
    }
    for _, k := range keys {
        t.staged[k] = struct{}{}
        t.pending = append(t.pending, pendingReservation{owner: owner, key: k})
    }
    return len(keys), nil
}

func (s *MemoryReservationStore) ListByOwner(ctx context.Context, owner string) ([]model.Reservation, error) {
    _ = ctx
    s.mu.RLock()
    defer s.mu.RUnlock()
    out := make([]model.Reservation, 0)
    for _, r := range s.rows {
        if r.Owner == owner {
            out = append(out, r)
        }
    }
    return out, nil
}

func (s *MemoryReservationStore) BookedSeats(ctx context.Context, slot model.Slot) ([]int, error) {
    _ = ctx
    s.mu.RLock()
    defer s.mu.RUnlock()
    seats := make([]int, 0)
    for _, r := range s.rows {
        if r.Key.Slot == slot {
            seats = append(seats, r.Key.Seat)
        }
    }
    sort.Ints(seats)
    return seats, nil
}
