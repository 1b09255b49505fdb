package bank

import (
	"context"

	"cultureticks/internal/status"

	"github.com/shopspring/decimal"
)

// Provider represents the configured payment backend
type Provider string

const (
	ProviderCulturePay Provider = "culturepay"
	ProviderMockPay    Provider = "mockpay"
)

// PaymentRequest represents a generic payment authorization request
type PaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Reference     string          `json:"reference"`
	Description   string          `json:"description,omitempty"`
	ExpiryMinutes int             `json:"expiry_minutes,omitempty"`
}

// Authorization is the provider's answer to an authorization request.
// QRCode carries the payment artifact the buyer scans to complete the
// charge.
type Authorization struct {
	TransactionID string `json:"transaction_id"`
	QRCode        string `json:"qr_code"`
}

// PaymentProvider defines the common interface for payment backends
type PaymentProvider interface {
	// GetProvider returns the provider type
	GetProvider() Provider

	// Authorize starts a charge for the given reference
	Authorize(ctx context.Context, req *PaymentRequest) (*Authorization, error)

	// CheckTransaction checks the status of a transaction by reference
	CheckTransaction(ctx context.Context, reference string) (*status.Transaction, error)

	// SetTransactionChannel sets the channel for receiving asynchronous
	// settlement notifications
	SetTransactionChannel(ch chan *status.Transaction)

	// Close gracefully closes any connections
	Close(ctx context.Context) error
}
