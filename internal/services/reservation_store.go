package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cultureticks/internal/status"
	"cultureticks/models"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const reservationKeyPrefix = "reservation:"

// resolvedGraceTTL keeps a resolved reservation around long enough for
// duplicate webhook deliveries to see it and no-op.
const resolvedGraceTTL = 24 * time.Hour

// ReservationStore keeps the payment-reference to ticket-set mapping in
// Redis hashes. The hash TTL tracks the pending lifetime, so an
// abandoned checkout disappears on its own once the pending sweep has
// returned its tickets.
type ReservationStore struct {
	rdb *redis.Client
}

func NewReservationStore(rdb *redis.Client) *ReservationStore {
	return &ReservationStore{rdb: rdb}
}

func reservationKey(reference string) string {
	return reservationKeyPrefix + reference
}

func (s *ReservationStore) Save(ctx context.Context, r *models.Reservation, ttl time.Duration) error {
	key := reservationKey(r.Reference)

	// Ordered pairs, not a map: the wire command stays deterministic.
	fields := []interface{}{
		"event_id", r.EventID,
		"ticket_ids", strings.Join(r.TicketIDs, ","),
		"amount", r.Amount.String(),
		"currency", r.Currency,
		"status", string(r.Status),
		"qr_code", r.QRCode,
		"created_at", r.CreatedAt.UTC().Format(time.RFC3339),
		"expires_at", r.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if err := s.rdb.HSet(ctx, key, fields...).Err(); err != nil {
		return fmt.Errorf("save reservation: %w", err)
	}
	if err := s.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("expire reservation: %w", err)
	}
	return nil
}

func (s *ReservationStore) Get(ctx context.Context, reference string) (*models.Reservation, error) {
	fields, err := s.rdb.HGetAll(ctx, reservationKey(reference)).Result()
	if err != nil {
		return nil, fmt.Errorf("load reservation: %w", err)
	}
	if len(fields) == 0 {
		return nil, status.ErrReservationNotFound
	}

	amount, err := decimal.NewFromString(fields["amount"])
	if err != nil {
		return nil, fmt.Errorf("reservation amount: %w", err)
	}
	createdAt, _ := time.Parse(time.RFC3339, fields["created_at"])
	expiresAt, _ := time.Parse(time.RFC3339, fields["expires_at"])

	r := &models.Reservation{
		Reference: reference,
		EventID:   fields["event_id"],
		Amount:    amount,
		Currency:  fields["currency"],
		Status:    models.ReservationStatus(fields["status"]),
		QRCode:    fields["qr_code"],
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}
	if ids := fields["ticket_ids"]; ids != "" {
		r.TicketIDs = strings.Split(ids, ",")
	}
	return r, nil
}

// MarkResolved flips a reservation's status and extends its key with
// the duplicate-delivery grace window.
func (s *ReservationStore) MarkResolved(ctx context.Context, reference string, st models.ReservationStatus) error {
	key := reservationKey(reference)
	if err := s.rdb.HSet(ctx, key, "status", string(st)).Err(); err != nil {
		return fmt.Errorf("mark reservation %s: %w", st, err)
	}
	if err := s.rdb.Expire(ctx, key, resolvedGraceTTL).Err(); err != nil {
		return fmt.Errorf("extend reservation: %w", err)
	}
	return nil
}
