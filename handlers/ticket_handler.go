package handlers

import (
	"context"
	"net/http"
	"time"

	"cultureticks/models"
	"cultureticks/monitoring"
	"cultureticks/utils"

	"github.com/labstack/echo/v5"
)

type ticketLedger interface {
	Availability(ctx context.Context, eventID string) ([]models.TypeAvailability, error)
	ProvisionBatch(ctx context.Context, eventID string, specs []models.TicketTypeSpec) (models.ProvisionSummary, error)
	Refund(ctx context.Context, ticketID string) (models.Ticket, error)
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, error)
}

type eventGetter interface {
	Get(ctx context.Context, id string) (*models.Event, error)
}

type TicketHandler struct {
	ledger     ticketLedger
	events     eventGetter
	signingKey []byte
}

func NewTicketHandler(ledger ticketLedger, events eventGetter, signingKey []byte) *TicketHandler {
	return &TicketHandler{ledger: ledger, events: events, signingKey: signingKey}
}

// GetAvailability - remaining inventory per ticket type
func (h *TicketHandler) GetAvailability(c echo.Context) error {
	eventID := c.PathParam("id")
	groups, err := h.ledger.Availability(c.Request().Context(), eventID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"event_id": eventID,
		"tickets":  groups,
	})
}

// Provision - create inventory for an event in type groups
func (h *TicketHandler) Provision(c echo.Context) error {
	var req struct {
		EventID string                  `json:"event_id"`
		Tickets []models.TicketTypeSpec `json:"tickets"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.EventID == "" || len(req.Tickets) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "event_id and tickets are required")
	}

	summary, err := h.ledger.ProvisionBatch(c.Request().Context(), req.EventID, req.Tickets)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, summary)
}

// Refund - move a sold ticket to refunded
func (h *TicketHandler) Refund(c echo.Context) error {
	var req struct {
		TicketID string `json:"ticket_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.TicketID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ticket_id is required")
	}

	ticket, err := h.ledger.Refund(c.Request().Context(), req.TicketID)
	if err != nil {
		return httpError(err)
	}

	monitoring.TicketsRefunded.Inc()
	return c.JSON(http.StatusOK, ticket)
}

// GetDocument - signed entry document for a sold ticket
func (h *TicketHandler) GetDocument(c echo.Context) error {
	ctx := c.Request().Context()

	ticket, err := h.ledger.GetTicket(ctx, c.PathParam("id"))
	if err != nil {
		return httpError(err)
	}
	if ticket.Status != models.TicketSold {
		return echo.NewHTTPError(http.StatusConflict, "ticket is not sold")
	}

	event, err := h.events.Get(ctx, ticket.EventID)
	if err != nil {
		return httpError(err)
	}

	doc := utils.BuildTicketDocument(h.signingKey, ticket.EventID, event.Name, ticket.TicketType, ticket.ID, time.Now())
	return c.JSON(http.StatusOK, doc)
}
