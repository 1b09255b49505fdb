package handlers

import (
	"context"
	"net/http"
	"strconv"

	"cultureticks/models"

	"github.com/labstack/echo/v5"
)

// availabilityReader is the slice of the ledger the event surface uses.
type availabilityReader interface {
	Availability(ctx context.Context, eventID string) ([]models.TypeAvailability, error)
}

type eventCatalog interface {
	Create(ctx context.Context, e *models.Event) error
	Get(ctx context.Context, id string) (*models.Event, error)
	List(ctx context.Context, eventStatus, eventType string, limit, offset int) ([]models.EventListing, error)
	Update(ctx context.Context, e *models.Event) error
	Delete(ctx context.Context, id string) error
	SeatingSections(ctx context.Context, eventID string, groups []models.TypeAvailability) ([]models.SeatingSection, error)
}

type EventHandler struct {
	events eventCatalog
	ledger availabilityReader
}

func NewEventHandler(events eventCatalog, ledger availabilityReader) *EventHandler {
	return &EventHandler{events: events, ledger: ledger}
}

func (h *EventHandler) ListEvents(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}

	listings, err := h.events.List(c.Request().Context(), c.QueryParam("status"), c.QueryParam("type"), limit, (page-1)*limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"events": listings,
		"page":   page,
		"limit":  limit,
	})
}

func (h *EventHandler) GetEvent(c echo.Context) error {
	event, err := h.events.Get(c.Request().Context(), c.PathParam("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, event)
}

func (h *EventHandler) CreateEvent(c echo.Context) error {
	var event models.Event
	if err := c.Bind(&event); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if event.Name == "" || event.StartDate.IsZero() || event.EndDate.IsZero() {
		return echo.NewHTTPError(http.StatusBadRequest, "name, start_date and end_date are required")
	}

	if err := h.events.Create(c.Request().Context(), &event); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, event)
}

func (h *EventHandler) UpdateEvent(c echo.Context) error {
	var event models.Event
	if err := c.Bind(&event); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	event.ID = c.PathParam("id")

	if err := h.events.Update(c.Request().Context(), &event); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, event)
}

func (h *EventHandler) DeleteEvent(c echo.Context) error {
	if err := h.events.Delete(c.Request().Context(), c.PathParam("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetSeating returns the section view of an event's availability for
// the client-side venue map.
func (h *EventHandler) GetSeating(c echo.Context) error {
	ctx := c.Request().Context()
	eventID := c.PathParam("id")

	groups, err := h.ledger.Availability(ctx, eventID)
	if err != nil {
		return httpError(err)
	}
	sections, err := h.events.SeatingSections(ctx, eventID, groups)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"event_id": eventID,
		"sections": sections,
	})
}
