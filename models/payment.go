package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReservationStatus tracks a payment reference from authorization to
// its terminal outcome.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationCompleted ReservationStatus = "completed"
	ReservationReleased  ReservationStatus = "released"
)

// Reservation ties a payment-provider reference to the set of ticket
// rows it holds pending.
type Reservation struct {
	Reference string            `json:"reference"`
	EventID   string            `json:"event_id"`
	TicketIDs []string          `json:"ticket_ids"`
	Amount    decimal.Decimal   `json:"amount"`
	Currency  string            `json:"currency"`
	Status    ReservationStatus `json:"status"`
	QRCode    string            `json:"qr_code,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// PaymentNotification is the webhook body delivered by the payment
// provider, at least once per transaction.
type PaymentNotification struct {
	Reference     string    `json:"reference"`
	Outcome       string    `json:"outcome"` // succeeded, failed
	TransactionID string    `json:"transaction_id"`
	Timestamp     time.Time `json:"timestamp"`
}
