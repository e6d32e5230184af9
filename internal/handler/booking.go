package handler

import (
    "errors"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/bus-seat-reservation/internal/identity"
    "github.com/iliyamo/bus-seat-reservation/internal/middleware"
    "github.com/iliyamo/bus-seat-reservation/internal/model"
    "github.com/iliyamo/bus-seat-reservation/internal/repository"
    "github.com/iliyamo/bus-seat-reservation/internal/service"
)

// BookingHandler exposes the booking core over HTTP.  Booking and listing
// pass the raw Authorization header to the service, which resolves the
// caller itself; availability is public.
type BookingHandler struct {
    Service *service.BookingService
    Logger  *zap.Logger
}

func NewBookingHandler(svc *service.BookingService, logger *zap.Logger) *BookingHandler {
    if logger == nil {
        logger = zap.NewNop()
    }
    return &BookingHandler{Service: svc, Logger: logger.Named("booking-handler")}
}

type bookReq struct {
    BusID       int64  `json:"bus_id"`
    Date        string `json:"date"`
    Schedule    string `json:"schedule"`
    SeatNumbers []int  `json:"seat_numbers"`
}

type outcomeResp struct {
    Username string            `json:"username"`
    BusID    int64             `json:"bus_id"`
    Date     string            `json:"date"`
    Schedule string            `json:"schedule"`
    Accepted []int             `json:"accepted"`
    Rejected []model.Rejection `json:"rejected"`
    Error    string            `json:"error,omitempty"`
}

func toOutcomeResp(o model.BookingOutcome) outcomeResp {
    return outcomeResp{
        Username: o.Owner,
        BusID:    o.Slot.BusID,
        Date:     o.Slot.Date,
        Schedule: o.Slot.Schedule,
        Accepted: o.Accepted,
        Rejected: o.Rejected,
    }
}

type reservationResp struct {
    ID         uint64    `json:"id"`
    BusID      int64     `json:"bus_id"`
    Date       string    `json:"date"`
    Schedule   string    `json:"schedule"`
    SeatNumber int       `json:"seat_number"`
    CreatedAt  time.Time `json:"created_at"`
}

// Book handles POST /v1/reservations.
//
// Status codes: 201 every seat booked, 200 some seats booked, 409 none
// available, 400 malformed request or no valid seat, 401 bad credential,
// 503 storage down.  The outcome body is returned whenever one exists.
func (h *BookingHandler) Book(c echo.Context) error {
    var req bookReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }

    out, err := h.Service.Book(c.Request().Context(), model.BookingRequest{
        Credential: c.Request().Header.Get(echo.HeaderAuthorization),
        Slot:       model.Slot{BusID: req.BusID, Date: req.Date, Schedule: req.Schedule},
        Seats:      req.SeatNumbers,
    })
    if err == nil {
        status := http.StatusCreated
        if out.Partial() {
            status = http.StatusOK
        }
        return c.JSON(status, toOutcomeResp(out))
    }

    resp := toOutcomeResp(out)
    switch {
    case errors.Is(err, service.ErrNoSeatsAvailable):
        resp.Error = "no requested seat is available"
        return c.JSON(http.StatusConflict, resp)
    case errors.Is(err, service.ErrAllInvalid):
        resp.Error = "no valid seat in request"
        return c.JSON(http.StatusBadRequest, resp)
    case errors.Is(err, service.ErrStorageUnavailable):
        resp.Error = "reservation storage unavailable"
        return c.JSON(http.StatusServiceUnavailable, resp)
    }
    return h.writeError(c, err)
}

// Availability handles GET /v1/availability/:bus_id/:date?schedule=HH:MM.
func (h *BookingHandler) Availability(c echo.Context) error {
    busID, err := strconv.ParseInt(c.Param("bus_id"), 10, 64)
    if err != nil || busID <= 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid bus id"})
    }
    schedule := c.QueryParam("schedule")
    if schedule == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "schedule is required"})
    }

    free, err := h.Service.Availability(c.Request().Context(), model.Slot{
        BusID:    busID,
        Date:     c.Param("date"),
        Schedule: schedule,
    })
    if err != nil {
        return h.writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"available_seats": free})
}

// ListMyReservations handles GET /v1/my-reservations.
func (h *BookingHandler) ListMyReservations(c echo.Context) error {
    rows, err := h.Service.ListMyReservations(c.Request().Context(), c.Request().Header.Get(echo.HeaderAuthorization))
    if err != nil {
        return h.writeError(c, err)
    }
    items := make([]reservationResp, 0, len(rows))
    for _, r := range rows {
        items = append(items, reservationResp{
            ID:         r.ID,
            BusID:      r.Key.BusID,
            Date:       r.Key.Date,
            Schedule:   r.Key.Schedule,
            SeatNumber: r.Key.Seat,
            CreatedAt:  r.CreatedAt,
        })
    }
    return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// writeError maps core errors that carry no outcome to a status code.
func (h *BookingHandler) writeError(c echo.Context, err error) error {
    var (
        ae *identity.AuthError
        ve *service.ValidationError
    )
    switch {
    case errors.As(err, &ae):
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": middleware.AuthErrorMessage(err)})
    case errors.As(err, &ve):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": ve.Error(), "field": ve.Field})
    case repository.IsStorageError(err):
        h.Logger.Error("storage failure", zap.String("path", c.Path()), zap.Error(err))
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "reservation storage unavailable"})
    }
    h.Logger.Error("unexpected error", zap.String("path", c.Path()), zap.Error(err))
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
