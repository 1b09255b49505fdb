package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketStatus is the closed status enumeration of a ticket record.
type TicketStatus string

const (
	TicketAvailable TicketStatus = "available"
	TicketPending   TicketStatus = "pending"
	TicketSold      TicketStatus = "sold"
	TicketRefunded  TicketStatus = "refunded"
)

type Ticket struct {
	ID         string          `db:"id" json:"id"`
	EventID    string          `db:"event_id" json:"event_id"`
	TicketType string          `db:"ticket_type" json:"ticket_type"`
	Price      decimal.Decimal `db:"price" json:"price"`
	Status     TicketStatus    `db:"status" json:"status"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// TicketTypeSpec describes one type group in a provisioning request.
type TicketTypeSpec struct {
	Type     string          `json:"type"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// TypeCount is the per-group result of a provisioning call.
type TypeCount struct {
	Type     string          `json:"ticket_type"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Err      string          `json:"error,omitempty"`
}

type ProvisionSummary struct {
	EventID string      `json:"event_id"`
	Groups  []TypeCount `json:"tickets"`
}

// TypeAvailability is the grouped availability view used by event
// listings and the seating endpoint.
type TypeAvailability struct {
	TicketType string          `db:"ticket_type" json:"ticket_type"`
	Price      decimal.Decimal `db:"price" json:"price"`
	Available  int             `db:"available_count" json:"available_count"`
}
