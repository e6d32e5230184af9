package service

import (
    "context"
    "errors"
    "strings"
    "sync"
    "sync/atomic"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/bus-seat-reservation/internal/identity"
    "github.com/iliyamo/bus-seat-reservation/internal/model"
    "github.com/iliyamo/bus-seat-reservation/internal/queue"
    "github.com/iliyamo/bus-seat-reservation/internal/repository"
)

// tokenResolver accepts credentials of the form "Bearer <username>".
var tokenResolver = identity.ResolverFunc(func(_ context.Context, credential string) (string, error) {
    user, ok := strings.CutPrefix(credential, "Bearer ")
    if credential == "" {
        return "", identity.ErrMissingCredential
    }
    if !ok || user == "" || user == "forged" {
        return "", identity.ErrInvalid
    }
    return user, nil
})

var slot1 = model.Slot{BusID: 1, Date: "2024-01-01", Schedule: "08:00"}

type recordingPublisher struct {
    mu     sync.Mutex
    events []queue.BookingConfirmedEvent
    err    error
}

func (p *recordingPublisher) PublishBookingConfirmed(_ context.Context, ev queue.BookingConfirmedEvent) error {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.events = append(p.events, ev)
    return p.err
}

// countingStore counts every call that reaches the store.
type countingStore struct {
    repository.ReservationStore
    calls atomic.Int64
}

func (c *countingStore) RunInTx(ctx context.Context, fn func(tx repository.ReservationTx) error) error {
    c.calls.Add(1)
    return c.ReservationStore.RunInTx(ctx, fn)
}

func (c *countingStore) ListByOwner(ctx context.Context, owner string) ([]model.Reservation, error) {
    c.calls.Add(1)
    return c.ReservationStore.ListByOwner(ctx, owner)
}

func (c *countingStore) BookedSeats(ctx context.Context, slot model.Slot) ([]int, error) {
    c.calls.Add(1)
    return c.ReservationStore.BookedSeats(ctx, slot)
}

// staleReadStore makes the first transaction's Exists miss hidden, as if
// a rival committed the seat between the check and the insert.
type staleReadStore struct {
    repository.ReservationStore
    hidden model.SeatKey
    txs    int
}

func (s *staleReadStore) RunInTx(ctx context.Context, fn func(tx repository.ReservationTx) error) error {
    s.txs++
    first := s.txs == 1
    return s.ReservationStore.RunInTx(ctx, func(tx repository.ReservationTx) error {
        if first {
            return fn(staleTx{ReservationTx: tx, hidden: s.hidden})
        }
        return fn(tx)
    })
}

type staleTx struct {
    repository.ReservationTx
    hidden model.SeatKey
}

func (t staleTx) Exists(ctx context.Context, key model.SeatKey) (bool, error) {
    if key == t.hidden {
        return false, nil
    }
    return t.ReservationTx.Exists(ctx, key)
}

// flakyStore fails the listed transactions (1-based) with a storage fault.
type flakyStore struct {
    repository.ReservationStore
    fail map[int]bool
    txs  int
}

func (s *flakyStore) RunInTx(ctx context.Context, fn func(tx repository.ReservationTx) error) error {
    s.txs++
    if s.fail[s.txs] {
        return &repository.StorageError{Op: "commit", Err: errors.New("connection reset")}
    }
    return s.ReservationStore.RunInTx(ctx, fn)
}

func seed(t *testing.T, store repository.ReservationStore, owner string, slot model.Slot, seats ...int) {
    t.Helper()
    keys := make([]model.SeatKey, 0, len(seats))
    for _, seat := range seats {
        keys = append(keys, slot.Key(seat))
    }
    err := store.RunInTx(context.Background(), func(tx repository.ReservationTx) error {
        _, err := tx.InsertAll(context.Background(), owner, keys)
        return err
    })
    require.NoError(t, err)
}

func newService(store repository.ReservationStore, pub EventPublisher) *BookingService {
    return NewBookingService(store, tokenResolver, pub, 40, nil)
}

func book(svc *BookingService, user string, slot model.Slot, seats ...int) (model.BookingOutcome, error) {
    return svc.Book(context.Background(), model.BookingRequest{
        Credential: "Bearer " + user,
        Slot:       slot,
        Seats:      seats,
    })
}

func TestBook_DuplicateAndInvalidSeats(t *testing.T) {
    pub := &recordingPublisher{}
    svc := newService(repository.NewMemoryReservationStore(), pub)

    out, err := book(svc, "alice", slot1, 5, 5, 41)
    require.NoError(t, err)
    assert.Equal(t, "alice", out.Owner)
    assert.Equal(t, []int{5}, out.Accepted)
    assert.Equal(t, []model.Rejection{
        {Seat: 5, Reason: model.ReasonDuplicateInRequest},
        {Seat: 41, Reason: model.ReasonInvalidSeat},
    }, out.Rejected)
    assert.True(t, out.Partial())

    require.Len(t, pub.events, 1)
    ev := pub.events[0]
    assert.NotEmpty(t, ev.EventID)
    assert.Equal(t, "alice", ev.Username)
    assert.Equal(t, int64(1), ev.BusID)
    assert.Equal(t, "2024-01-01", ev.Date)
    assert.Equal(t, "08:00", ev.Schedule)
    assert.Equal(t, []int{5}, ev.Seats)
}

func TestBook_ConcurrentSameSeat(t *testing.T) {
    store := repository.NewMemoryReservationStore()
    svc := newService(store, nil)

    const callers = 16
    var (
        wg       sync.WaitGroup
        winners  atomic.Int64
        losers   atomic.Int64
        start    = make(chan struct{})
        failures = make(chan error, callers)
    )
    for i := 0; i < callers; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            <-start
            out, err := book(svc, "user"+string(rune('a'+i)), slot1, 7)
            switch {
            case err == nil && len(out.Accepted) == 1 && out.Accepted[0] == 7:
                winners.Add(1)
            case errors.Is(err, ErrNoSeatsAvailable) &&
                len(out.Rejected) == 1 && out.Rejected[0] == (model.Rejection{Seat: 7, Reason: model.ReasonAlreadyReserved}):
                losers.Add(1)
            default:
                failures <- err
            }
        }(i)
    }
    close(start)
    wg.Wait()
    close(failures)

    for err := range failures {
        t.Errorf("unexpected outcome: %v", err)
    }
    assert.Equal(t, int64(1), winners.Load())
    assert.Equal(t, int64(callers-1), losers.Load())

    booked, err := store.BookedSeats(context.Background(), slot1)
    require.NoError(t, err)
    assert.Equal(t, []int{7}, booked)
}

func TestAvailability_EmptySlot(t *testing.T) {
    svc := newService(repository.NewMemoryReservationStore(), nil)

    free, err := svc.Availability(context.Background(), model.Slot{BusID: 2, Date: "2024-03-03", Schedule: "10:00"})
    require.NoError(t, err)
    assert.Equal(t, model.SeatUniverse(40), free)
}

func TestBook_AuthFailureTouchesNoStore(t *testing.T) {
    store := &countingStore{ReservationStore: repository.NewMemoryReservationStore()}
    svc := newService(store, nil)

    for _, cred := range []string{"", "Bearer forged", "Token x"} {
        out, err := svc.Book(context.Background(), model.BookingRequest{
            Credential: cred,
            Slot:       slot1,
            Seats:      []int{1, 2},
        })
        var ae *identity.AuthError
        require.ErrorAs(t, err, &ae, "credential %q", cred)
        assert.Empty(t, out.Accepted)
    }
    _, err := svc.ListMyReservations(context.Background(), "Bearer forged")
    require.Error(t, err)

    assert.Zero(t, store.calls.Load())
}

func TestBook_Validation(t *testing.T) {
    store := &countingStore{ReservationStore: repository.NewMemoryReservationStore()}
    svc := newService(store, nil)

    _, err := book(svc, "alice", slot1)
    var ve *ValidationError
    require.ErrorAs(t, err, &ve)
    assert.Equal(t, "seat_numbers", ve.Field)

    for _, bad := range []model.Slot{
        {BusID: 0, Date: "2024-01-01", Schedule: "08:00"},
        {BusID: 1, Date: "01/01/2024", Schedule: "08:00"},
        {BusID: 1, Date: "2024-01-01", Schedule: "8am"},
    } {
        _, err := book(svc, "alice", bad, 1)
        require.ErrorAs(t, err, &ve, "slot %+v", bad)
        assert.Equal(t, "slot", ve.Field)

        _, err = svc.Availability(context.Background(), bad)
        assert.ErrorAs(t, err, &ve, "slot %+v", bad)
    }
    assert.Zero(t, store.calls.Load())
}

func TestBook_OutcomeErrors(t *testing.T) {
    store := repository.NewMemoryReservationStore()
    seed(t, store, "bob", slot1, 3)
    pub := &recordingPublisher{}
    svc := newService(store, pub)

    out, err := book(svc, "alice", slot1, 0, 41, 0)
    assert.ErrorIs(t, err, ErrAllInvalid)
    assert.Empty(t, out.Accepted)
    assert.Equal(t, []model.Rejection{
        {Seat: 0, Reason: model.ReasonInvalidSeat},
        {Seat: 41, Reason: model.ReasonInvalidSeat},
        {Seat: 0, Reason: model.ReasonInvalidSeat},
    }, out.Rejected)

    out, err = book(svc, "alice", slot1, 3, 99)
    assert.ErrorIs(t, err, ErrNoSeatsAvailable)
    assert.Equal(t, []model.Rejection{
        {Seat: 3, Reason: model.ReasonAlreadyReserved},
        {Seat: 99, Reason: model.ReasonInvalidSeat},
    }, out.Rejected)

    assert.Empty(t, pub.events)
}

func TestBook_PreservesRequestOrder(t *testing.T) {
    store := repository.NewMemoryReservationStore()
    seed(t, store, "bob", slot1, 12)
    svc := newService(store, nil)

    out, err := book(svc, "alice", slot1, 30, 12, 2, 45, 17, 2)
    require.NoError(t, err)
    assert.Equal(t, []int{30, 2, 17}, out.Accepted)
    assert.Equal(t, []model.Rejection{
        {Seat: 12, Reason: model.ReasonAlreadyReserved},
        {Seat: 45, Reason: model.ReasonInvalidSeat},
        {Seat: 2, Reason: model.ReasonDuplicateInRequest},
    }, out.Rejected)

    mine, err := svc.ListMyReservations(context.Background(), "Bearer alice")
    require.NoError(t, err)
    require.Len(t, mine, 3)
    for i, seat := range []int{30, 2, 17} {
        assert.Equal(t, slot1.Key(seat), mine[i].Key)
        assert.Equal(t, "alice", mine[i].Owner)
    }
}

func TestAvailability_DualityAndIdempotentRead(t *testing.T) {
    store := repository.NewMemoryReservationStore()
    svc := newService(store, nil)
    other := model.Slot{BusID: 1, Date: "2024-01-01", Schedule: "09:30"}

    _, err := book(svc, "alice", slot1, 1, 8, 40)
    require.NoError(t, err)
    _, err = book(svc, "bob", other, 2)
    require.NoError(t, err)

    free, err := svc.Availability(context.Background(), slot1)
    require.NoError(t, err)
    again, err := svc.Availability(context.Background(), slot1)
    require.NoError(t, err)
    assert.Equal(t, free, again)

    booked, err := store.BookedSeats(context.Background(), slot1)
    require.NoError(t, err)
    assert.Equal(t, []int{1, 8, 40}, booked)

    seen := make(map[int]int)
    for _, s := range free {
        seen[s]++
    }
    for _, s := range booked {
        seen[s]++
    }
    assert.Len(t, seen, 40)
    for seat, n := range seen {
        assert.Equal(t, 1, n, "seat %d", seat)
    }
    assert.NotContains(t, free, 1)
    assert.Contains(t, free, 2)
}

func TestBook_RaceFallsBackPerSeat(t *testing.T) {
    mem := repository.NewMemoryReservationStore()
    seed(t, mem, "bob", slot1, 9)
    store := &staleReadStore{ReservationStore: mem, hidden: slot1.Key(9)}
    svc := newService(store, nil)

    out, err := book(svc, "alice", slot1, 8, 9, 10)
    require.NoError(t, err)
    assert.Equal(t, []int{8, 10}, out.Accepted)
    assert.Equal(t, []model.Rejection{{Seat: 9, Reason: model.ReasonAlreadyReserved}}, out.Rejected)
    // one failed batch plus one transaction per candidate
    assert.Equal(t, 4, store.txs)

    mine, err := mem.ListByOwner(context.Background(), "alice")
    require.NoError(t, err)
    assert.Len(t, mine, 2)
}

func TestBook_StorageFaultRetriedOnce(t *testing.T) {
    mem := repository.NewMemoryReservationStore()
    // tx 1: batch, tx 2: seat 4 first try, tx 3: seat 4 retry
    store := &flakyStore{ReservationStore: mem, fail: map[int]bool{1: true, 2: true}}
    svc := newService(store, nil)

    out, err := book(svc, "alice", slot1, 4, 5)
    require.NoError(t, err)
    assert.Equal(t, []int{4, 5}, out.Accepted)
    assert.Empty(t, out.Rejected)
    assert.Equal(t, 4, store.txs)
}

func TestBook_StorageFailureSurfaces(t *testing.T) {
    mem := repository.NewMemoryReservationStore()
    // batch, then both attempts for seat 4 fail; seat 5 succeeds
    store := &flakyStore{ReservationStore: mem, fail: map[int]bool{1: true, 2: true, 3: true}}
    svc := newService(store, nil)

    out, err := book(svc, "alice", slot1, 4, 5)
    require.NoError(t, err)
    assert.Equal(t, []int{5}, out.Accepted)
    assert.Equal(t, []model.Rejection{{Seat: 4, Reason: model.ReasonStorageFailure}}, out.Rejected)

    // every transaction fails: nothing accepted, storage error surfaces
    down := &flakyStore{ReservationStore: mem, fail: map[int]bool{1: true, 2: true, 3: true}}
    svc = newService(down, nil)
    out, err = book(svc, "alice", slot1, 6)
    require.Error(t, err)
    assert.ErrorIs(t, err, ErrStorageUnavailable)
    assert.True(t, repository.IsStorageError(err))
    assert.Equal(t, []model.Rejection{{Seat: 6, Reason: model.ReasonStorageFailure}}, out.Rejected)
}

func TestIdentityResolvedOncePerBooking(t *testing.T) {
    var calls atomic.Int32
    counting := identity.ResolverFunc(func(ctx context.Context, credential string) (string, error) {
        calls.Add(1)
        return tokenResolver(ctx, credential)
    })
    mem := repository.NewMemoryReservationStore()
    seed(t, mem, "bob", slot1, 2)
    // batch fails, so every seat goes through the per-seat path with a retry
    store := &flakyStore{ReservationStore: mem, fail: map[int]bool{1: true, 2: true}}
    svc := NewBookingService(store, counting, nil, 40, nil)

    out, err := book(svc, "alice", slot1, 1, 2, 3, 3, 99)
    require.NoError(t, err)
    assert.Equal(t, []int{1, 3}, out.Accepted)
    assert.Equal(t, int32(1), calls.Load())

    free, err := svc.Availability(context.Background(), slot1)
    require.NoError(t, err)
    assert.Len(t, free, 37)
    assert.Equal(t, int32(1), calls.Load(), "availability must not resolve identity")

    _, err = book(svc, "forged", slot1, 4)
    require.Error(t, err)
    assert.Equal(t, int32(2), calls.Load())

    _, err = svc.ListMyReservations(context.Background(), "Bearer alice")
    require.NoError(t, err)
    assert.Equal(t, int32(3), calls.Load())
}

func TestBook_PublishFailureIsIgnored(t *testing.T) {
    pub := &recordingPublisher{err: errors.New("broker down")}
    svc := newService(repository.NewMemoryReservationStore(), pub)

    out, err := book(svc, "alice", slot1, 1)
    require.NoError(t, err)
    assert.Equal(t, []int{1}, out.Accepted)
    assert.Len(t, pub.events, 1)
}

func TestNewBookingService_Defaults(t *testing.T) {
    svc := NewBookingService(repository.NewMemoryReservationStore(), tokenResolver, nil, 0, nil)
    assert.Equal(t, model.DefaultSeatCount, svc.SeatCount())
}
