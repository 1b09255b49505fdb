package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"cultureticks/internal/status"

	"github.com/labstack/echo/v5"
)

// httpError maps domain errors to response codes. State conflicts are
// 409 so buyers can distinguish "sold out" from a bad request.
func httpError(err error) error {
	switch {
	case errors.Is(err, status.ErrInsufficientInventory),
		errors.Is(err, status.ErrTicketNotPending),
		errors.Is(err, status.ErrNotRefundable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())

	case errors.Is(err, status.ErrTicketNotFound),
		errors.Is(err, status.ErrEventNotFound),
		errors.Is(err, status.ErrReservationNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())

	case errors.Is(err, status.ErrInvalidQuantity):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())

	case errors.Is(err, status.ErrBadSignature):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())

	case errors.Is(err, status.ErrFailedPayment):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())

	default:
		slog.Error("unhandled request error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
