package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cultureticks/internal/ledger"
	"cultureticks/internal/services/bank"
	"cultureticks/internal/status"
	"cultureticks/models"
	"cultureticks/monitoring"
	"cultureticks/utils"

	"github.com/shopspring/decimal"
)

// Inventory is the slice of the ticket ledger checkout needs.
type Inventory interface {
	Reserve(ctx context.Context, eventID, ticketType string, quantity int) ([]string, error)
	Finalize(ctx context.Context, ticketIDs []string, outcome ledger.Outcome) error
	AmountFor(ctx context.Context, ticketIDs []string) (decimal.Decimal, error)
}

type reservationStore interface {
	Save(ctx context.Context, r *models.Reservation, ttl time.Duration) error
	Get(ctx context.Context, reference string) (*models.Reservation, error)
	MarkResolved(ctx context.Context, reference string, st models.ReservationStatus) error
}

type CheckoutItem struct {
	TicketType string `json:"ticket_type"`
	Quantity   int    `json:"quantity"`
}

type CheckoutInput struct {
	EventID     string         `json:"event_id"`
	Items       []CheckoutItem `json:"items"`
	Description string         `json:"description,omitempty"`
}

type CheckoutResult struct {
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	QRCode    string          `json:"qr_code"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// CheckoutService drives the purchase flow: claim tickets, authorize
// the charge, and resolve the claim when the payment outcome arrives.
// The payment call always happens outside any ticket transaction; a
// slow provider holds no row locks.
type CheckoutService struct {
	inv       Inventory
	store     reservationStore
	provider  bank.PaymentProvider
	publisher Publisher
	breaker   *utils.CircuitBreaker

	currency   string
	pendingTTL time.Duration
}

func NewCheckoutService(inv Inventory, store reservationStore, provider bank.PaymentProvider, publisher Publisher, currency string, pendingTTL time.Duration) *CheckoutService {
	return &CheckoutService{
		inv:        inv,
		store:      store,
		provider:   provider,
		publisher:  publisher,
		breaker:    utils.NewCircuitBreaker("payments"),
		currency:   currency,
		pendingTTL: pendingTTL,
	}
}

// Checkout reserves every requested type group, then authorizes the
// charge. A short group releases everything claimed so far; a failed
// authorization releases the whole claim.
func (s *CheckoutService) Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if len(in.Items) == 0 {
		return nil, status.ErrInvalidQuantity
	}

	var all []string
	for _, item := range in.Items {
		ids, err := s.inv.Reserve(ctx, in.EventID, item.TicketType, item.Quantity)
		if err != nil {
			s.release(ctx, all)
			monitoring.CheckoutAttempts.WithLabelValues("rejected").Inc()
			return nil, err
		}
		all = append(all, ids...)
	}

	amount, err := s.inv.AmountFor(ctx, all)
	if err != nil {
		s.release(ctx, all)
		return nil, err
	}

	reference, err := utils.GenerateCode(12)
	if err != nil {
		s.release(ctx, all)
		return nil, fmt.Errorf("generate reference: %w", err)
	}

	// Provider calls go through the breaker so a dead backend fails
	// checkouts fast instead of tying tickets up in pending.
	result, err := s.breaker.Execute(ctx, func() (interface{}, error) {
		return s.provider.Authorize(ctx, &bank.PaymentRequest{
			Amount:        amount,
			Currency:      s.currency,
			Reference:     reference,
			Description:   in.Description,
			ExpiryMinutes: int(s.pendingTTL.Minutes()),
		})
	})
	if err != nil {
		s.release(ctx, all)
		monitoring.CheckoutAttempts.WithLabelValues("payment_failed").Inc()
		return nil, fmt.Errorf("%w: %v", status.ErrFailedPayment, err)
	}
	auth := result.(*bank.Authorization)

	now := time.Now().UTC()
	reservation := &models.Reservation{
		Reference: reference,
		EventID:   in.EventID,
		TicketIDs: all,
		Amount:    amount,
		Currency:  s.currency,
		Status:    models.ReservationPending,
		QRCode:    auth.QRCode,
		CreatedAt: now,
		ExpiresAt: now.Add(s.pendingTTL),
	}
	// Slack past the pending lifetime so the sweep returns the tickets
	// before the record disappears.
	if err := s.store.Save(ctx, reservation, s.pendingTTL+time.Minute); err != nil {
		s.release(ctx, all)
		return nil, err
	}

	monitoring.CheckoutAttempts.WithLabelValues("accepted").Inc()
	s.publishAvailability(ctx, in.EventID)

	return &CheckoutResult{
		Reference: reference,
		Amount:    amount,
		Currency:  s.currency,
		QRCode:    auth.QRCode,
		ExpiresAt: reservation.ExpiresAt,
	}, nil
}

// HandleNotification resolves a reservation from a payment outcome.
// Deliveries are at-least-once: a reservation already resolved to the
// same or any outcome is left untouched.
func (s *CheckoutService) HandleNotification(ctx context.Context, reference string, succeeded bool) error {
	r, err := s.store.Get(ctx, reference)
	if err != nil {
		return err
	}
	if r.Status != models.ReservationPending {
		slog.Info("duplicate payment notification ignored", "reference", reference, "status", r.Status)
		return nil
	}

	// Past expiry the sweep has already returned these tickets, and they
	// may be claimed by another buyer. Never touch the ledger here; a
	// paid-but-expired reference needs a manual refund.
	if time.Now().UTC().After(r.ExpiresAt) {
		if succeeded {
			slog.Error("payment succeeded after reservation expiry, refund required",
				"reference", reference, "amount", r.Amount, "currency", r.Currency)
		}
		if err := s.store.MarkResolved(ctx, reference, models.ReservationReleased); err != nil {
			return err
		}
		monitoring.WebhookDeliveries.WithLabelValues("expired").Inc()
		return nil
	}

	outcome := ledger.OutcomeReleased
	resolved := models.ReservationReleased
	if succeeded {
		outcome = ledger.OutcomeSold
		resolved = models.ReservationCompleted
	}

	if err := s.inv.Finalize(ctx, r.TicketIDs, outcome); err != nil {
		monitoring.WebhookDeliveries.WithLabelValues("error").Inc()
		return err
	}
	if err := s.store.MarkResolved(ctx, reference, resolved); err != nil {
		return err
	}

	if succeeded {
		monitoring.TicketsSold.Add(float64(len(r.TicketIDs)))
		monitoring.WebhookDeliveries.WithLabelValues("completed").Inc()
	} else {
		monitoring.TicketsReleased.Add(float64(len(r.TicketIDs)))
		monitoring.WebhookDeliveries.WithLabelValues("released").Inc()
		s.publishAvailability(ctx, r.EventID)
	}

	_ = s.publisher.Publish(ctx, "payments."+reference, map[string]interface{}{
		"reference": reference,
		"status":    string(resolved),
	})
	return nil
}

// Cancel releases a pending reservation at the buyer's request. The
// provider is consulted first: a charge that settled while the cancel
// was in flight completes the sale instead.
func (s *CheckoutService) Cancel(ctx context.Context, reference string) error {
	r, err := s.store.Get(ctx, reference)
	if err != nil {
		return err
	}
	if r.Status != models.ReservationPending {
		return status.ErrTicketNotPending
	}

	if txn, err := s.provider.CheckTransaction(ctx, reference); err == nil && strings.EqualFold(txn.Status, "SUCCESS") {
		if err := s.HandleNotification(ctx, reference, true); err != nil {
			return err
		}
		return status.ErrTicketNotPending
	}

	// An expired reservation was already swept; only the record needs
	// closing out.
	if time.Now().UTC().After(r.ExpiresAt) {
		return s.store.MarkResolved(ctx, reference, models.ReservationReleased)
	}

	if err := s.inv.Finalize(ctx, r.TicketIDs, ledger.OutcomeReleased); err != nil {
		return err
	}
	if err := s.store.MarkResolved(ctx, reference, models.ReservationReleased); err != nil {
		return err
	}

	monitoring.TicketsReleased.Add(float64(len(r.TicketIDs)))
	s.publishAvailability(ctx, r.EventID)
	return nil
}

// Status returns the reservation for a payment reference.
func (s *CheckoutService) Status(ctx context.Context, reference string) (*models.Reservation, error) {
	return s.store.Get(ctx, reference)
}

// Run consumes the provider's settlement channel until ctx ends. The
// channel covers providers that notify in-process; the HTTP webhook
// covers the rest. Both paths converge on HandleNotification.
func (s *CheckoutService) Run(ctx context.Context) {
	ch := make(chan *status.Transaction, 16)
	s.provider.SetTransactionChannel(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case txn := <-ch:
			succeeded := strings.EqualFold(txn.Status, "SUCCESS")
			if err := s.HandleNotification(ctx, txn.Reference, succeeded); err != nil {
				slog.Error("settlement notification failed", "reference", txn.Reference, "error", err)
			}
		}
	}
}

func (s *CheckoutService) release(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := s.inv.Finalize(ctx, ids, ledger.OutcomeReleased); err != nil {
		slog.Error("release after failed checkout", "error", err)
	}
}

func (s *CheckoutService) publishAvailability(ctx context.Context, eventID string) {
	_ = s.publisher.Publish(ctx, "availability."+eventID, map[string]interface{}{
		"event_id": eventID,
		"changed":  time.Now().UTC().Format(time.RFC3339),
	})
}
