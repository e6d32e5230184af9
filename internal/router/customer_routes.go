package router

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/bus-seat-reservation/internal/handler"
)

// RegisterCustomer registers the booking endpoints.  They carry no JWT
// middleware: the booking service resolves the Authorization header itself,
// exactly once per call.
func RegisterCustomer(e *echo.Echo, b *handler.BookingHandler, mw ...echo.MiddlewareFunc) {
    g := e.Group("/v1", mw...)
    g.POST("/reservations", b.Book)
    g.GET("/my-reservations", b.ListMyReservations)
}
