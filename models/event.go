package models

import "time"

type Event struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	EventType   string    `db:"event_type" json:"event_type"`
	Venue       string    `db:"venue" json:"venue"`
	StartDate   time.Time `db:"start_date" json:"start_date"`
	EndDate     time.Time `db:"end_date" json:"end_date"`
	Status      string    `db:"status" json:"status"` // upcoming, ongoing, completed, cancelled
	ImageURL    string    `db:"image_url" json:"image_url"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// EventListing is an Event plus the aggregate ticket columns shown on
// the listing page.
type EventListing struct {
	Event
	MinPrice         *string `db:"min_price" json:"starting_price,omitempty"`
	AvailableTickets int     `db:"available_tickets" json:"available_count"`
}

// SeatingSection is the availability view of one ticket type rendered
// as a section of the seating map. Geometry stays client side.
type SeatingSection struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Available  int    `json:"available"`
	PriceLevel int    `json:"price_level"`
	Price      string `json:"price"`
}
