package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// TicketDocument is the downloadable ticket artifact. QRPayload is what
// gate scanners read; the signature lets the gate verify a ticket
// offline without calling back into the inventory store.
type TicketDocument struct {
	EventID    string `json:"eventId"`
	EventName  string `json:"eventName,omitempty"`
	TicketType string `json:"ticketType"`
	TicketID   string `json:"ticketId"`
	IssuedAt   string `json:"issuedAt"`
	Signature  string `json:"signature"`
}

// BuildTicketDocument issues a signed document for a ticket at the
// given instant. The same inputs always produce the same signature.
func BuildTicketDocument(key []byte, eventID, eventName, ticketType, ticketID string, issuedAt time.Time) TicketDocument {
	issued := issuedAt.UTC().Format(time.RFC3339)
	return TicketDocument{
		EventID:    eventID,
		EventName:  eventName,
		TicketType: ticketType,
		TicketID:   ticketID,
		IssuedAt:   issued,
		Signature:  signTicket(key, eventID, ticketType, ticketID, issued),
	}
}

// VerifyTicketDocument reports whether the document's signature matches
// its fields under the given key.
func VerifyTicketDocument(key []byte, doc TicketDocument) bool {
	want := signTicket(key, doc.EventID, doc.TicketType, doc.TicketID, doc.IssuedAt)
	return hmac.Equal([]byte(want), []byte(doc.Signature))
}

func signTicket(key []byte, fields ...string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}
