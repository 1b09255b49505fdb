package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cultureticks/internal/status"
	"cultureticks/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"
)

// Outcome is the resolution of a reservation.
type Outcome string

const (
	OutcomeSold     Outcome = "sold"
	OutcomeReleased Outcome = "released"
)

const (
	maxRetries  = 3
	insertChunk = 500
)

// Ledger is the authoritative ticket-inventory store. Every status
// mutation runs inside a transaction with row-level locks on the
// affected ticket rows, so concurrent buyers can never claim the same
// ticket twice.
type Ledger struct {
	db *dbx.DB
}

func New(db *dbx.DB) *Ledger {
	return &Ledger{db: db}
}

// Reserve claims up to quantity available tickets of the given type and
// moves them to pending in a single transaction. Rows locked by a
// concurrent reservation are skipped rather than waited on: a contended
// buyer sees fewer candidates and fails fast with
// ErrInsufficientInventory instead of queueing behind a lock.
//
// All-or-nothing: on a short count nothing is left pending.
func (l *Ledger) Reserve(ctx context.Context, eventID, ticketType string, quantity int) ([]string, error) {
	if quantity <= 0 {
		return nil, status.ErrInvalidQuantity
	}

	var ids []string
	err := l.withRetry(ctx, "reserve", func() error {
		ids = nil
		return l.db.TransactionalContext(ctx, nil, func(tx *dbx.Tx) error {
			err := tx.NewQuery(`
				SELECT id FROM tickets
				WHERE event_id = {:event}
				AND ticket_type = {:type}
				AND status = 'available'
				ORDER BY id
				LIMIT {:limit}
				FOR UPDATE SKIP LOCKED
			`).Bind(dbx.Params{
				"event": eventID,
				"type":  ticketType,
				"limit": quantity,
			}).WithContext(ctx).Column(&ids)
			if err != nil {
				return fmt.Errorf("select available: %w", err)
			}

			if len(ids) < quantity {
				return status.ErrInsufficientInventory
			}

			if _, err := tx.Update("tickets", dbx.Params{
				"status":     string(models.TicketPending),
				"updated_at": time.Now().UTC(),
			}, dbx.In("id", toAny(ids)...)).WithContext(ctx).Execute(); err != nil {
				return fmt.Errorf("mark pending: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Finalize resolves a reserved ticket set: Sold commits the sale,
// Released returns the set to available inventory. The call is
// idempotent so a redelivered webhook is a no-op, not an error.
func (l *Ledger) Finalize(ctx context.Context, ticketIDs []string, outcome Outcome) error {
	if len(ticketIDs) == 0 {
		return nil
	}

	target := models.TicketSold
	if outcome == OutcomeReleased {
		target = models.TicketAvailable
	}

	return l.withRetry(ctx, "finalize", func() error {
		return l.db.TransactionalContext(ctx, nil, func(tx *dbx.Tx) error {
			var rows []models.Ticket
			err := tx.NewQuery(`
				SELECT id, status FROM tickets
				WHERE id IN (` + placeholderList(len(ticketIDs)) + `)
				FOR UPDATE
			`).Bind(bindList(ticketIDs)).WithContext(ctx).All(&rows)
			if err != nil {
				return fmt.Errorf("lock ticket set: %w", err)
			}
			if len(rows) != len(ticketIDs) {
				return status.ErrTicketNotFound
			}

			toUpdate := make([]string, 0, len(rows))
			for _, t := range rows {
				switch t.Status {
				case models.TicketPending:
					toUpdate = append(toUpdate, t.ID)
				case target:
					// Already finalized by an earlier delivery.
				default:
					return status.ErrTicketNotPending
				}
			}
			if len(toUpdate) == 0 {
				return nil
			}

			if _, err := tx.Update("tickets", dbx.Params{
				"status":     string(target),
				"updated_at": time.Now().UTC(),
			}, dbx.In("id", toAny(toUpdate)...)).WithContext(ctx).Execute(); err != nil {
				return fmt.Errorf("finalize %s: %w", outcome, err)
			}
			return nil
		})
	})
}

// Refund moves a sold ticket to refunded and returns the updated row.
// Refunded tickets do not re-enter available inventory; putting the
// seat back on sale is an explicit provisioning action.
func (l *Ledger) Refund(ctx context.Context, ticketID string) (models.Ticket, error) {
	var ticket models.Ticket
	err := l.withRetry(ctx, "refund", func() error {
		return l.db.TransactionalContext(ctx, nil, func(tx *dbx.Tx) error {
			err := tx.NewQuery(`
				SELECT id, event_id, ticket_type, price, status, updated_at
				FROM tickets WHERE id = {:id} FOR UPDATE
			`).Bind(dbx.Params{"id": ticketID}).WithContext(ctx).One(&ticket)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return status.ErrTicketNotFound
				}
				return fmt.Errorf("lock ticket: %w", err)
			}

			if ticket.Status != models.TicketSold {
				return status.ErrNotRefundable
			}

			now := time.Now().UTC()
			if _, err := tx.Update("tickets", dbx.Params{
				"status":     string(models.TicketRefunded),
				"updated_at": now,
			}, dbx.HashExp{"id": ticketID}).WithContext(ctx).Execute(); err != nil {
				return fmt.Errorf("mark refunded: %w", err)
			}
			ticket.Status = models.TicketRefunded
			ticket.UpdatedAt = now
			return nil
		})
	})
	if err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

// ProvisionBatch creates available inventory for an event, one
// transaction per type group so a huge batch never pins row locks for
// the whole call. Group failures are reported per group.
func (l *Ledger) ProvisionBatch(ctx context.Context, eventID string, specs []models.TicketTypeSpec) (models.ProvisionSummary, error) {
	exists, err := l.EventExists(ctx, eventID)
	if err != nil {
		return models.ProvisionSummary{}, err
	}
	if !exists {
		return models.ProvisionSummary{}, status.ErrEventNotFound
	}

	summary := models.ProvisionSummary{EventID: eventID}
	for _, spec := range specs {
		group := models.TypeCount{Type: spec.Type, Price: spec.Price}
		if spec.Quantity <= 0 {
			group.Err = status.ErrInvalidQuantity.Error()
			summary.Groups = append(summary.Groups, group)
			continue
		}

		if err := l.insertGroup(ctx, eventID, spec); err != nil {
			slog.Error("provision group failed", "event_id", eventID, "ticket_type", spec.Type, "error", err)
			group.Err = err.Error()
		} else {
			group.Quantity = spec.Quantity
		}
		summary.Groups = append(summary.Groups, group)
	}
	return summary, nil
}

func (l *Ledger) insertGroup(ctx context.Context, eventID string, spec models.TicketTypeSpec) error {
	return l.db.TransactionalContext(ctx, nil, func(tx *dbx.Tx) error {
		now := time.Now().UTC()
		for offset := 0; offset < spec.Quantity; offset += insertChunk {
			n := min(insertChunk, spec.Quantity-offset)

			query := `INSERT INTO tickets (id, event_id, ticket_type, price, status, updated_at) VALUES `
			params := dbx.Params{
				"event":  eventID,
				"type":   spec.Type,
				"price":  spec.Price,
				"status": string(models.TicketAvailable),
				"now":    now,
			}
			for i := 0; i < n; i++ {
				if i > 0 {
					query += ", "
				}
				idKey := fmt.Sprintf("id%d", i)
				query += fmt.Sprintf("({:%s}, {:event}, {:type}, {:price}, {:status}, {:now})", idKey)
				params[idKey] = uuid.NewString()
			}

			if _, err := tx.NewQuery(query).Bind(params).WithContext(ctx).Execute(); err != nil {
				return fmt.Errorf("insert %s chunk: %w", spec.Type, err)
			}
		}
		return nil
	})
}

// Availability returns (type, price, available count) groups for an
// event, cheapest first.
func (l *Ledger) Availability(ctx context.Context, eventID string) ([]models.TypeAvailability, error) {
	var groups []models.TypeAvailability
	err := l.db.NewQuery(`
		SELECT
			ticket_type,
			price,
			COUNT(*) FILTER (WHERE status = 'available') AS available_count
		FROM tickets
		WHERE event_id = {:event}
		GROUP BY ticket_type, price
		ORDER BY price ASC
	`).Bind(dbx.Params{"event": eventID}).WithContext(ctx).All(&groups)
	if err != nil {
		return nil, fmt.Errorf("availability: %w", err)
	}
	return groups, nil
}

// SweepExpiredPending returns pending tickets older than maxAge to
// available inventory. This is the recovery path for reservations whose
// payment outcome never arrived.
func (l *Ledger) SweepExpiredPending(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	res, err := l.db.NewQuery(`
		UPDATE tickets
		SET status = 'available', updated_at = NOW()
		WHERE status = 'pending' AND updated_at < {:cutoff}
	`).Bind(dbx.Params{"cutoff": cutoff}).WithContext(ctx).Execute()
	if err != nil {
		return 0, fmt.Errorf("sweep pending: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// EventExists reports whether the event id references a stored event.
func (l *Ledger) EventExists(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := l.db.NewQuery(`SELECT EXISTS (SELECT 1 FROM events WHERE id = {:id})`).
		Bind(dbx.Params{"id": eventID}).WithContext(ctx).Row(&exists)
	if err != nil {
		return false, fmt.Errorf("event exists: %w", err)
	}
	return exists, nil
}

// GetTicket looks up a single ticket record.
func (l *Ledger) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	var ticket models.Ticket
	err := l.db.NewQuery(`
		SELECT id, event_id, ticket_type, price, status, updated_at
		FROM tickets WHERE id = {:id}
	`).Bind(dbx.Params{"id": ticketID}).WithContext(ctx).One(&ticket)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Ticket{}, status.ErrTicketNotFound
		}
		return models.Ticket{}, fmt.Errorf("get ticket: %w", err)
	}
	return ticket, nil
}

// AmountFor sums the prices of the given ticket set.
func (l *Ledger) AmountFor(ctx context.Context, ticketIDs []string) (decimal.Decimal, error) {
	if len(ticketIDs) == 0 {
		return decimal.Zero, nil
	}

	var total decimal.Decimal
	err := l.db.NewQuery(`
		SELECT COALESCE(SUM(price), 0) FROM tickets
		WHERE id IN (` + placeholderList(len(ticketIDs)) + `)
	`).Bind(bindList(ticketIDs)).WithContext(ctx).Row(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount for tickets: %w", err)
	}
	return total, nil
}

// withRetry re-runs a unit of work on transient storage failures
// (deadlock, serialization conflict, lock timeout). Anything else is
// surfaced immediately.
func (l *Ledger) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = fn()
		if err == nil || !isTransient(err) {
			return err
		}
		slog.Warn("transient storage failure, retrying", "op", op, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
	return err
}

func isTransient(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "40001", "40P01", "55P03": // serialization, deadlock, lock_not_available
		return true
	}
	return false
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// placeholderList renders "{:t0}, {:t1}, ..." for IN clauses over a
// dynamic ticket set.
func placeholderList(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("{:t%d}", i)
	}
	return out
}

func bindList(ids []string) dbx.Params {
	params := make(dbx.Params, len(ids))
	for i, id := range ids {
		params[fmt.Sprintf("t%d", i)] = id
	}
	return params
}
