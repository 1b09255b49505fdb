package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(16)
	require.NoError(t, err)
	assert.Len(t, code, 32)
	assert.Regexp(t, "^[0-9A-F]+$", code)

	other, err := GenerateCode(16)
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}

func TestTicketDocumentRoundTrip(t *testing.T) {
	key := []byte("gate-scanner-key")
	issued := time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)

	doc := BuildTicketDocument(key, "evt-1", "Jazz Night", "vip", "tck-1", issued)
	assert.Equal(t, "2026-03-14T19:30:00Z", doc.IssuedAt)
	assert.True(t, VerifyTicketDocument(key, doc))

	// Same inputs, same signature.
	again := BuildTicketDocument(key, "evt-1", "Jazz Night", "vip", "tck-1", issued)
	assert.Equal(t, doc.Signature, again.Signature)

	// Any field change breaks verification.
	tampered := doc
	tampered.TicketType = "standard"
	assert.False(t, VerifyTicketDocument(key, tampered))

	assert.False(t, VerifyTicketDocument([]byte("wrong-key"), doc))
}

func TestCircuitBreakerOpensOnFailures(t *testing.T) {
	cb := NewCircuitBreaker("payments")
	ctx := context.Background()
	boom := errors.New("provider down")

	for i := 0; i < 100; i++ {
		_, err := cb.Execute(ctx, func() (interface{}, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	}

	_, err := cb.Execute(ctx, func() (interface{}, error) { return "ok", nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreakerPassesThroughSuccess(t *testing.T) {
	cb := NewCircuitBreaker("payments")

	res, err := cb.Execute(context.Background(), func() (interface{}, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, res)
}
