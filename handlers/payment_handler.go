package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"cultureticks/internal/services"
	"cultureticks/internal/status"
	"cultureticks/models"
	"cultureticks/security"

	"github.com/labstack/echo/v5"
)

type checkoutService interface {
	Checkout(ctx context.Context, in services.CheckoutInput) (*services.CheckoutResult, error)
	HandleNotification(ctx context.Context, reference string, succeeded bool) error
	Cancel(ctx context.Context, reference string) error
	Status(ctx context.Context, reference string) (*models.Reservation, error)
}

type PaymentHandler struct {
	checkout   checkoutService
	webhookKey []byte
}

func NewPaymentHandler(checkout checkoutService, webhookKey []byte) *PaymentHandler {
	return &PaymentHandler{checkout: checkout, webhookKey: webhookKey}
}

// Checkout - reserve tickets and start the charge
func (h *PaymentHandler) Checkout(c echo.Context) error {
	var in services.CheckoutInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if in.EventID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "event_id is required")
	}
	for _, item := range in.Items {
		if item.Quantity <= 0 || item.TicketType == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "each item needs a ticket_type and a positive quantity")
		}
	}

	result, err := h.checkout.Checkout(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

// Webhook - provider payment notification, delivered at least once
func (h *PaymentHandler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	if !security.VerifyBody(body, h.webhookKey, c.Request().Header.Get("X-Signature")) {
		return httpError(status.ErrBadSignature)
	}

	var notif models.PaymentNotification
	if err := json.Unmarshal(body, &notif); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid notification body")
	}
	if notif.Reference == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reference is required")
	}

	if err := h.checkout.HandleNotification(c.Request().Context(), notif.Reference, notif.Outcome == "succeeded"); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "ok"})
}

// PaymentStatus - reservation state for a payment reference
func (h *PaymentHandler) PaymentStatus(c echo.Context) error {
	r, err := h.checkout.Status(c.Request().Context(), c.PathParam("reference"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"reference":  r.Reference,
		"status":     r.Status,
		"amount":     r.Amount,
		"currency":   r.Currency,
		"expires_at": r.ExpiresAt,
	})
}

// CancelPayment - buyer-initiated release of a pending reservation
func (h *PaymentHandler) CancelPayment(c echo.Context) error {
	if err := h.checkout.Cancel(c.Request().Context(), c.PathParam("reference")); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Payment cancelled"})
}
