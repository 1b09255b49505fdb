package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cultureticks/internal/status"
	"cultureticks/models"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"
)

// EventService owns the event catalog. Ticket inventory lives with the
// ledger; this service only reads aggregate availability for listings.
type EventService struct {
	db *dbx.DB
}

func NewEventService(db *dbx.DB) *EventService {
	return &EventService{db: db}
}

func (s *EventService) Create(ctx context.Context, e *models.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = "upcoming"
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err := s.db.NewQuery(`
		INSERT INTO events (id, name, description, event_type, venue, start_date, end_date, status, image_url, created_at, updated_at)
		VALUES ({:id}, {:name}, {:description}, {:event_type}, {:venue}, {:start_date}, {:end_date}, {:status}, {:image_url}, {:created_at}, {:updated_at})
	`).Bind(dbx.Params{
		"id":          e.ID,
		"name":        e.Name,
		"description": e.Description,
		"event_type":  e.EventType,
		"venue":       e.Venue,
		"start_date":  e.StartDate,
		"end_date":    e.EndDate,
		"status":      e.Status,
		"image_url":   e.ImageURL,
		"created_at":  e.CreatedAt,
		"updated_at":  e.UpdatedAt,
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	var e models.Event
	err := s.db.NewQuery(`
		SELECT id, name, description, event_type, venue, start_date, end_date, status, image_url, created_at, updated_at
		FROM events WHERE id = {:id}
	`).Bind(dbx.Params{"id": id}).WithContext(ctx).One(&e)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}

// List returns a page of events with their cheapest on-sale price and
// remaining availability, optionally filtered by status and type.
func (s *EventService) List(ctx context.Context, eventStatus, eventType string, limit, offset int) ([]models.EventListing, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT
			e.id, e.name, e.description, e.event_type, e.venue,
			e.start_date, e.end_date, e.status, e.image_url, e.created_at, e.updated_at,
			MIN(t.price) FILTER (WHERE t.status = 'available') AS min_price,
			COUNT(t.id) FILTER (WHERE t.status = 'available') AS available_tickets
		FROM events e
		LEFT JOIN tickets t ON t.event_id = e.id
		WHERE 1=1`
	params := dbx.Params{}
	if eventStatus != "" {
		query += ` AND e.status = {:status}`
		params["status"] = eventStatus
	}
	if eventType != "" {
		query += ` AND e.event_type = {:event_type}`
		params["event_type"] = eventType
	}
	query += `
		GROUP BY e.id
		ORDER BY e.start_date ASC
		LIMIT {:limit} OFFSET {:offset}`
	params["limit"] = limit
	params["offset"] = offset

	var listings []models.EventListing
	if err := s.db.NewQuery(query).Bind(params).WithContext(ctx).All(&listings); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return listings, nil
}

func (s *EventService) Update(ctx context.Context, e *models.Event) error {
	e.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewQuery(`
		UPDATE events SET
			name = {:name}, description = {:description}, event_type = {:event_type},
			venue = {:venue}, start_date = {:start_date}, end_date = {:end_date},
			status = {:status}, image_url = {:image_url}, updated_at = {:updated_at}
		WHERE id = {:id}
	`).Bind(dbx.Params{
		"id":          e.ID,
		"name":        e.Name,
		"description": e.Description,
		"event_type":  e.EventType,
		"venue":       e.Venue,
		"start_date":  e.StartDate,
		"end_date":    e.EndDate,
		"status":      e.Status,
		"image_url":   e.ImageURL,
		"updated_at":  e.UpdatedAt,
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return status.ErrEventNotFound
	}
	return nil
}

func (s *EventService) Delete(ctx context.Context, id string) error {
	res, err := s.db.NewQuery(`DELETE FROM events WHERE id = {:id}`).
		Bind(dbx.Params{"id": id}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return status.ErrEventNotFound
	}
	return nil
}

// SeatingSections derives the venue map sections from ticket-type
// availability, cheapest section first. Rendering stays client-side.
func (s *EventService) SeatingSections(ctx context.Context, eventID string, groups []models.TypeAvailability) ([]models.SeatingSection, error) {
	if _, err := s.Get(ctx, eventID); err != nil {
		return nil, err
	}

	sections := make([]models.SeatingSection, 0, len(groups))
	for i, g := range groups {
		sections = append(sections, models.SeatingSection{
			ID:         g.TicketType,
			Name:       g.TicketType,
			Available:  g.Available,
			PriceLevel: i + 1,
			Price:      g.Price.StringFixed(2),
		})
	}
	return sections, nil
}
