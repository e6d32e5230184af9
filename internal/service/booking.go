// Package service holds the reservation core: batch booking, availability
// and per-user listing on top of a repository.ReservationStore.
package service

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/google/uuid"
    "go.uber.org/zap"

    "github.com/iliyamo/bus-seat-reservation/internal/identity"
    "github.com/iliyamo/bus-seat-reservation/internal/model"
    "github.com/iliyamo/bus-seat-reservation/internal/queue"
    "github.com/iliyamo/bus-seat-reservation/internal/repository"
)

// seatAttempts bounds the per-seat fallback: a storage fault is retried
// once before the seat is reported as STORAGE_FAILURE.
const seatAttempts = 2

const publishTimeout = 5 * time.Second

// BookingService books seats for authenticated users.  It holds no lock
// across calls; the store's uniqueness constraint decides every race.
type BookingService struct {
    store     repository.ReservationStore
    resolver  identity.Resolver
    publisher EventPublisher
    seatCount int
    logger    *zap.Logger
    now       func() time.Time
}

// NewBookingService wires the core.  A seatCount below 1 falls back to
// model.DefaultSeatCount; nil publisher and logger become no-ops.
func NewBookingService(store repository.ReservationStore, resolver identity.Resolver, publisher EventPublisher, seatCount int, logger *zap.Logger) *BookingService {
    if seatCount < 1 {
        seatCount = model.DefaultSeatCount
    }
    if publisher == nil {
        publisher = NoopPublisher{}
    }
    if logger == nil {
        logger = zap.NewNop()
    }
    return &BookingService{
        store:     store,
        resolver:  resolver,
        publisher: publisher,
        seatCount: seatCount,
        logger:    logger.Named("booking"),
        now:       func() time.Time { return time.Now().UTC() },
    }
}

// SeatCount returns N, the number of seats on every bus.
func (s *BookingService) SeatCount() int { return s.seatCount }

// seatResult tracks one entry of the request's seat list.
type seatResult struct {
    seat     int
    accepted bool
    reason   model.RejectReason
}

// Book reserves as many of req.Seats as possible for the caller.  The
// returned outcome is always populated once identity and shape checks pass;
// when no seat was accepted the error is ErrNoSeatsAvailable, ErrAllInvalid
// or ErrStorageUnavailable (wrapping the last *repository.StorageError).
func (s *BookingService) Book(ctx context.Context, req model.BookingRequest) (model.BookingOutcome, error) {
    owner, err := s.resolver.ResolveIdentity(ctx, req.Credential)
    if err != nil {
        return model.BookingOutcome{}, err
    }
    if len(req.Seats) == 0 {
        return model.BookingOutcome{}, &ValidationError{Field: "seat_numbers", Message: "at least one seat is required"}
    }
    if err := req.Slot.Validate(); err != nil {
        return model.BookingOutcome{}, &ValidationError{Field: "slot", Message: err.Error()}
    }

    log := s.logger.With(zap.String("username", owner), zap.Stringer("slot", req.Slot))

    results := make([]seatResult, len(req.Seats))
    seen := make(map[int]struct{}, len(req.Seats))
    var candidates []int // indexes into results
    for i, seat := range req.Seats {
        results[i].seat = seat
        switch _, dup := seen[seat]; {
        case !model.ValidSeat(seat, s.seatCount):
            results[i].reason = model.ReasonInvalidSeat
        case dup:
            results[i].reason = model.ReasonDuplicateInRequest
        default:
            seen[seat] = struct{}{}
            candidates = append(candidates, i)
        }
    }

    var lastStorageErr error
    if len(candidates) > 0 {
        taken, err := s.bookBatch(ctx, owner, req.Slot, results, candidates)
        if err == nil {
            for _, i := range candidates {
                if _, ok := taken[i]; ok {
                    results[i].reason = model.ReasonAlreadyReserved
                } else {
                    results[i].accepted = true
                }
            }
        } else {
            log.Info("batch booking failed, falling back to per-seat",
                zap.Int("candidates", len(candidates)),
                zap.Error(err),
            )
            for _, i := range candidates {
                reason, accepted, serr := s.bookSeat(ctx, owner, req.Slot.Key(results[i].seat))
                results[i].accepted, results[i].reason = accepted, reason
                if serr != nil {
                    lastStorageErr = serr
                }
            }
        }
    }

    out := model.BookingOutcome{
        Slot:     req.Slot,
        Owner:    owner,
        Accepted: make([]int, 0, len(candidates)),
        Rejected: make([]model.Rejection, 0),
    }
    var anyReserved, anyStorage bool
    for _, r := range results {
        if r.accepted {
            out.Accepted = append(out.Accepted, r.seat)
            continue
        }
        out.Rejected = append(out.Rejected, model.Rejection{Seat: r.seat, Reason: r.reason})
        switch r.reason {
        case model.ReasonAlreadyReserved:
            anyReserved = true
        case model.ReasonStorageFailure:
            anyStorage = true
        }
    }

    if len(out.Accepted) > 0 {
        log.Info("seats booked",
            zap.Ints("accepted", out.Accepted),
            zap.Int("rejected", len(out.Rejected)),
        )
        s.publish(ctx, out)
        return out, nil
    }

    switch {
    case anyReserved:
        return out, ErrNoSeatsAvailable
    case anyStorage:
        if lastStorageErr == nil {
            lastStorageErr = &repository.StorageError{Op: "book", Err: errors.New("unknown storage fault")}
        }
        log.Error("booking failed on storage", zap.Error(lastStorageErr))
        return out, fmt.Errorf("%w: %w", ErrStorageUnavailable, lastStorageErr)
    default:
        return out, ErrAllInvalid
    }
}

// bookBatch checks and inserts every candidate in one transaction.  On
// success it returns the set of candidate indexes that were already taken.
// Any error means nothing was written.
func (s *BookingService) bookBatch(ctx context.Context, owner string, slot model.Slot, results []seatResult, candidates []int) (map[int]struct{}, error) {
    var taken map[int]struct{}
    err := s.store.RunInTx(ctx, func(tx repository.ReservationTx) error {
        taken = make(map[int]struct{})
        keys := make([]model.SeatKey, 0, len(candidates))
        for _, i := range candidates {
            key := slot.Key(results[i].seat)
            exists, err := tx.Exists(ctx, key)
            if err != nil {
                return err
            }
            if exists {
                taken[i] = struct{}{}
                continue
            }
            keys = append(keys, key)
        }
        if len(keys) == 0 {
            return nil
        }
        _, err := tx.InsertAll(ctx, owner, keys)
        return err
    })
    if err != nil {
        return nil, err
    }
    return taken, nil
}

// bookSeat books a single seat in its own transaction.  A conflict is final;
// a storage fault is retried once.  The returned error is the last storage
// fault when the seat ends up STORAGE_FAILURE.
func (s *BookingService) bookSeat(ctx context.Context, owner string, key model.SeatKey) (model.RejectReason, bool, error) {
    var lastErr error
    for attempt := 1; attempt <= seatAttempts; attempt++ {
        err := s.store.RunInTx(ctx, func(tx repository.ReservationTx) error {
            exists, err := tx.Exists(ctx, key)
            if err != nil {
                return err
            }
            if exists {
                return repository.ErrConflict
            }
            _, err = tx.InsertAll(ctx, owner, []model.SeatKey{key})
            return err
        })
        switch {
        case err == nil:
            return "", true, nil
        case errors.Is(err, repository.ErrConflict):
            return model.ReasonAlreadyReserved, false, nil
        }
        if !repository.IsStorageError(err) {
            err = &repository.StorageError{Op: "book seat", Err: err}
        }
        lastErr = err
        s.logger.Warn("seat booking attempt failed",
            zap.Int("seat", key.Seat),
            zap.Int("attempt", attempt),
            zap.Error(err),
        )
    }
    return model.ReasonStorageFailure, false, lastErr
}

func (s *BookingService) publish(ctx context.Context, out model.BookingOutcome) {
    ev := queue.BookingConfirmedEvent{
        EventID:     uuid.NewString(),
        Username:    out.Owner,
        BusID:       out.Slot.BusID,
        Date:        out.Slot.Date,
        Schedule:    out.Slot.Schedule,
        Seats:       append([]int(nil), out.Accepted...),
        ConfirmedAt: s.now().Format(time.RFC3339),
    }
    pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
    defer cancel()
    if err := s.publisher.PublishBookingConfirmed(pctx, ev); err != nil {
        s.logger.Warn("publish booking event failed",
            zap.String("event_id", ev.EventID),
            zap.Error(err),
        )
    }
}

// Availability returns the free seats of slot in ascending order.  It never
// writes and needs no identity.
func (s *BookingService) Availability(ctx context.Context, slot model.Slot) ([]int, error) {
    if err := slot.Validate(); err != nil {
        return nil, &ValidationError{Field: "slot", Message: err.Error()}
    }
    booked, err := s.store.BookedSeats(ctx, slot)
    if err != nil {
        return nil, err
    }
    return model.FreeSeats(s.seatCount, booked), nil
}

// ListMyReservations returns the caller's reservations in insertion order.
func (s *BookingService) ListMyReservations(ctx context.Context, credential string) ([]model.Reservation, error) {
    owner, err := s.resolver.ResolveIdentity(ctx, credential)
    if err != nil {
        return nil, err
    }
    return s.store.ListByOwner(ctx, owner)
}
