package status

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientInventory = errors.New("ledger: not enough tickets available")
	ErrTicketNotPending      = errors.New("ledger: ticket is not pending")
	ErrNotRefundable         = errors.New("ledger: ticket is not refundable")
	ErrTicketNotFound        = errors.New("ledger: ticket not found")
	ErrEventNotFound         = errors.New("event: event not found")
	ErrInvalidQuantity       = errors.New("ledger: quantity must be positive")
	ErrReservationNotFound   = errors.New("payment: reservation not found")
	ErrFailedPayment         = errors.New("payment: payment failed")
	ErrBadSignature          = errors.New("payment: webhook signature mismatch")
)

// Transaction is a payment-provider transaction as reported back to us,
// either by an async notification or a status poll.
type Transaction struct {
	RefID     string          `json:"ref_id"`
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
}
