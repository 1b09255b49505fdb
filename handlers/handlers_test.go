package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cultureticks/internal/services"
	"cultureticks/internal/status"
	"cultureticks/models"
	"cultureticks/security"
	"cultureticks/utils"

	"github.com/labstack/echo/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var webhookKey = []byte("test-webhook-key")

type fakeLedger struct {
	tickets map[string]models.Ticket
	groups  []models.TypeAvailability

	provisionErr error
	refundErr    error
}

func (f *fakeLedger) Availability(context.Context, string) ([]models.TypeAvailability, error) {
	return f.groups, nil
}

func (f *fakeLedger) ProvisionBatch(_ context.Context, eventID string, specs []models.TicketTypeSpec) (models.ProvisionSummary, error) {
	if f.provisionErr != nil {
		return models.ProvisionSummary{}, f.provisionErr
	}
	summary := models.ProvisionSummary{EventID: eventID}
	for _, spec := range specs {
		summary.Groups = append(summary.Groups, models.TypeCount{Type: spec.Type, Price: spec.Price, Quantity: spec.Quantity})
	}
	return summary, nil
}

func (f *fakeLedger) Refund(_ context.Context, ticketID string) (models.Ticket, error) {
	if f.refundErr != nil {
		return models.Ticket{}, f.refundErr
	}
	t := f.tickets[ticketID]
	t.Status = models.TicketRefunded
	return t, nil
}

func (f *fakeLedger) GetTicket(_ context.Context, ticketID string) (models.Ticket, error) {
	t, ok := f.tickets[ticketID]
	if !ok {
		return models.Ticket{}, status.ErrTicketNotFound
	}
	return t, nil
}

type fakeCatalog struct {
	events map[string]*models.Event

	gotLimit  int
	gotOffset int
}

func (f *fakeCatalog) Create(_ context.Context, e *models.Event) error {
	if e.ID == "" {
		e.ID = "evt-new"
	}
	f.events[e.ID] = e
	return nil
}

func (f *fakeCatalog) Get(_ context.Context, id string) (*models.Event, error) {
	e, ok := f.events[id]
	if !ok {
		return nil, status.ErrEventNotFound
	}
	return e, nil
}

func (f *fakeCatalog) List(_ context.Context, _, _ string, limit, offset int) ([]models.EventListing, error) {
	f.gotLimit, f.gotOffset = limit, offset
	var out []models.EventListing
	for _, e := range f.events {
		out = append(out, models.EventListing{Event: *e})
	}
	return out, nil
}

func (f *fakeCatalog) Update(_ context.Context, e *models.Event) error {
	if _, ok := f.events[e.ID]; !ok {
		return status.ErrEventNotFound
	}
	f.events[e.ID] = e
	return nil
}

func (f *fakeCatalog) Delete(_ context.Context, id string) error {
	if _, ok := f.events[id]; !ok {
		return status.ErrEventNotFound
	}
	delete(f.events, id)
	return nil
}

func (f *fakeCatalog) SeatingSections(_ context.Context, eventID string, groups []models.TypeAvailability) ([]models.SeatingSection, error) {
	if _, ok := f.events[eventID]; !ok {
		return nil, status.ErrEventNotFound
	}
	sections := make([]models.SeatingSection, 0, len(groups))
	for i, g := range groups {
		sections = append(sections, models.SeatingSection{ID: g.TicketType, Name: g.TicketType, Available: g.Available, PriceLevel: i + 1})
	}
	return sections, nil
}

type fakeCheckout struct {
	checkoutErr error
	notifyErr   error
	cancelErr   error
	reservation *models.Reservation

	notified []string
}

func (f *fakeCheckout) Checkout(_ context.Context, in services.CheckoutInput) (*services.CheckoutResult, error) {
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	return &services.CheckoutResult{
		Reference: "REF1",
		Amount:    decimal.NewFromInt(100),
		Currency:  "USD",
		QRCode:    "QR|REF1",
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}, nil
}

func (f *fakeCheckout) HandleNotification(_ context.Context, reference string, succeeded bool) error {
	if f.notifyErr != nil {
		return f.notifyErr
	}
	f.notified = append(f.notified, reference)
	return nil
}

func (f *fakeCheckout) Cancel(context.Context, string) error {
	return f.cancelErr
}

func (f *fakeCheckout) Status(_ context.Context, reference string) (*models.Reservation, error) {
	if f.reservation == nil {
		return nil, status.ErrReservationNotFound
	}
	return f.reservation, nil
}

func newTestServer(led *fakeLedger, cat *fakeCatalog, co *fakeCheckout) *echo.Echo {
	return newTestServerWithAdminHash(led, cat, co, "")
}

func newTestServerWithAdminHash(led *fakeLedger, cat *fakeCatalog, co *fakeCheckout, adminHash string) *echo.Echo {
	e := echo.New()
	RegisterRoutes(e,
		NewEventHandler(cat, led),
		NewTicketHandler(led, cat, []byte("doc-key")),
		NewPaymentHandler(co, webhookKey),
		security.AdminKeyMiddleware(adminHash),
	)
	return e
}

func do(e *echo.Echo, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func defaultFixtures() (*fakeLedger, *fakeCatalog, *fakeCheckout) {
	led := &fakeLedger{
		tickets: map[string]models.Ticket{
			"tck-sold":    {ID: "tck-sold", EventID: "evt-1", TicketType: "vip", Status: models.TicketSold},
			"tck-pending": {ID: "tck-pending", EventID: "evt-1", TicketType: "vip", Status: models.TicketPending},
		},
		groups: []models.TypeAvailability{
			{TicketType: "standard", Price: decimal.NewFromInt(50), Available: 10},
			{TicketType: "vip", Price: decimal.NewFromInt(150), Available: 2},
		},
	}
	cat := &fakeCatalog{events: map[string]*models.Event{
		"evt-1": {ID: "evt-1", Name: "Jazz Night"},
	}}
	return led, cat, &fakeCheckout{}
}

func TestCheckoutEndpoint(t *testing.T) {
	led, cat, co := defaultFixtures()
	e := newTestServer(led, cat, co)

	rec := do(e, http.MethodPost, "/api/v1/checkout",
		`{"event_id":"evt-1","items":[{"ticket_type":"vip","quantity":1}]}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var res services.CheckoutResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "REF1", res.Reference)
	assert.Equal(t, "QR|REF1", res.QRCode)
}

func TestCheckoutEndpointSoldOut(t *testing.T) {
	led, cat, co := defaultFixtures()
	co.checkoutErr = status.ErrInsufficientInventory
	e := newTestServer(led, cat, co)

	rec := do(e, http.MethodPost, "/api/v1/checkout",
		`{"event_id":"evt-1","items":[{"ticket_type":"vip","quantity":5}]}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCheckoutEndpointValidation(t *testing.T) {
	led, cat, co := defaultFixtures()
	e := newTestServer(led, cat, co)

	rec := do(e, http.MethodPost, "/api/v1/checkout",
		`{"items":[{"ticket_type":"vip","quantity":1}]}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/v1/checkout",
		`{"event_id":"evt-1","items":[{"ticket_type":"vip","quantity":0}]}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookEndpoint(t *testing.T) {
	led, cat, co := defaultFixtures()
	e := newTestServer(led, cat, co)

	body := `{"reference":"REF1","outcome":"succeeded"}`
	rec := do(e, http.MethodPost, "/api/v1/payments/webhook", body, map[string]string{
		"X-Signature": security.SignBody([]byte(body), webhookKey),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"REF1"}, co.notified)
}

func TestWebhookEndpointBadSignature(t *testing.T) {
	led, cat, co := defaultFixtures()
	e := newTestServer(led, cat, co)

	body := `{"reference":"REF1","outcome":"succeeded"}`
	rec := do(e, http.MethodPost, "/api/v1/payments/webhook", body, map[string]string{
		"X-Signature": "forged",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, co.notified)
}

func TestWebhookEndpointUnknownReference(t *testing.T) {
	led, cat, co := defaultFixtures()
	co.notifyErr = status.ErrReservationNotFound
	e := newTestServer(led, cat, co)

	body := `{"reference":"NOPE","outcome":"succeeded"}`
	rec := do(e, http.MethodPost, "/api/v1/payments/webhook", body, map[string]string{
		"X-Signature": security.SignBody([]byte(body), webhookKey),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAvailabilityEndpoint(t *testing.T) {
	led, cat, co := defaultFixtures()
	e := newTestServer(led, cat, co)

	rec := do(e, http.MethodGet, "/api/v1/events/evt-1/tickets", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Tickets []models.TypeAvailability `json:"tickets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Len(t, res.Tickets, 2)
}

func TestProvisionEndpoint(t *testing.T) {
	led, cat, co := defaultFixtures()
	e := newTestServer(led, cat, co)

	rec := do(e, http.MethodPost, "/api/v1/tickets/provision",
		`{"event_id":"evt-1","tickets":[{"type":"vip","price":"150","quantity":10}]}`, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	led.provisionErr = status.ErrEventNotFound
	rec = do(e, http.MethodPost, "/api/v1/tickets/provision",
		`{"event_id":"missing","tickets":[{"type":"vip","price":"150","quantity":10}]}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefundEndpoint(t *testing.T) {
	led, cat, co := defaultFixtures()
	e := newTestServer(led, cat, co)

	rec := do(e, http.MethodPost, "/api/v1/tickets/refund", `{"ticket_id":"tck-sold"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var ticket models.Ticket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ticket))
	assert.Equal(t, models.TicketRefunded, ticket.Status)

	led.refundErr = status.ErrNotRefundable
	rec = do(e, http.MethodPost, "/api/v1/tickets/refund", `{"ticket_id":"tck-pending"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDocumentEndpoint(t *testing.T) {
	led, cat, co := defaultFixtures()
	e := newTestServer(led, cat, co)

	rec := do(e, http.MethodGet, "/api/v1/tickets/tck-sold/document", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var doc utils.TicketDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "Jazz Night", doc.EventName)
	assert.True(t, utils.VerifyTicketDocument([]byte("doc-key"), doc))

	// Only sold tickets have a document.
	rec = do(e, http.MethodGet, "/api/v1/tickets/tck-pending/document", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/tickets/missing/document", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaymentStatusEndpoint(t *testing.T) {
	led, cat, co := defaultFixtures()
	co.reservation = &models.Reservation{
		Reference: "REF1",
		Status:    models.ReservationPending,
		Amount:    decimal.NewFromInt(100),
		Currency:  "USD",
	}
	e := newTestServer(led, cat, co)

	rec := do(e, http.MethodGet, "/api/v1/payments/REF1/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pending")

	co.reservation = nil
	rec = do(e, http.MethodGet, "/api/v1/payments/NOPE/status", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelEndpoint(t *testing.T) {
	led, cat, co := defaultFixtures()
	e := newTestServer(led, cat, co)

	rec := do(e, http.MethodPost, "/api/v1/payments/REF1/cancel", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	co.cancelErr = status.ErrTicketNotPending
	rec = do(e, http.MethodPost, "/api/v1/payments/REF1/cancel", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestEventEndpoints(t *testing.T) {
	led, cat, co := defaultFixtures()
	e := newTestServer(led, cat, co)

	rec := do(e, http.MethodPost, "/api/v1/events",
		`{"name":"Opera Gala","start_date":"2026-06-01T19:00:00Z","end_date":"2026-06-01T22:00:00Z"}`, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = do(e, http.MethodPost, "/api/v1/events", `{"description":"missing name"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/events/evt-1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/events/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/events/evt-1/seating", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sections")

	rec = do(e, http.MethodDelete, "/api/v1/events/evt-1", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestListEventsPagination(t *testing.T) {
	led, cat, co := defaultFixtures()
	e := newTestServer(led, cat, co)

	rec := do(e, http.MethodGet, "/api/v1/events?limit=5&page=3", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, cat.gotLimit)
	assert.Equal(t, 10, cat.gotOffset)

	var res struct {
		Page  int `json:"page"`
		Limit int `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 3, res.Page)
	assert.Equal(t, 5, res.Limit)

	// Absent or out-of-range params fall back to the defaults.
	rec = do(e, http.MethodGet, "/api/v1/events?limit=1000&page=0", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, cat.gotLimit)
	assert.Equal(t, 0, cat.gotOffset)
}

func TestAdminKeyGuardsMutations(t *testing.T) {
	led, cat, co := defaultFixtures()
	hash, err := security.HashSecret("letmein")
	require.NoError(t, err)
	e := newTestServerWithAdminHash(led, cat, co, hash)

	body := `{"event_id":"evt-1","tickets":[{"type":"vip","price":"150","quantity":1}]}`

	rec := do(e, http.MethodPost, "/api/v1/tickets/provision", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(e, http.MethodPost, "/api/v1/tickets/provision", body, map[string]string{"X-Admin-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(e, http.MethodPost, "/api/v1/tickets/provision", body, map[string]string{"X-Admin-Key": "letmein"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Read endpoints stay open.
	rec = do(e, http.MethodGet, "/api/v1/events/evt-1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
