package mockpay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cultureticks/internal/services/bank"
	"cultureticks/internal/status"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// declineCents marks an authorization for simulated decline. Any amount
// whose fractional part equals .99 settles as failed.
var declineCents = decimal.RequireFromString("0.99")

// MockPay is an in-process payment simulator for development and tests.
// Authorizations settle asynchronously after SettleAfter, mirroring the
// hosted backend's notification flow without any network calls.
type MockPay struct {
	// SettleAfter is the simulated settlement delay.
	SettleAfter time.Duration

	mu           sync.Mutex
	transactions map[string]*status.Transaction
	ch           chan *status.Transaction
	ctx          context.Context
	cancel       context.CancelFunc
}

func New(ctx context.Context) *MockPay {
	ctx, cancel := context.WithCancel(ctx)
	return &MockPay{
		SettleAfter:  2 * time.Second,
		transactions: make(map[string]*status.Transaction),
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (m *MockPay) GetProvider() bank.Provider {
	return bank.ProviderMockPay
}

func (m *MockPay) Authorize(_ context.Context, req *bank.PaymentRequest) (*bank.Authorization, error) {
	txn := &status.Transaction{
		RefID:     uuid.NewString(),
		Reference: req.Reference,
		Status:    "PENDING",
		Amount:    req.Amount,
		Currency:  req.Currency,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.transactions[req.Reference] = txn
	m.mu.Unlock()

	go m.settle(req.Reference)

	return &bank.Authorization{
		TransactionID: txn.RefID,
		QRCode:        fmt.Sprintf("MOCKPAY|%s|%s|%s", req.Reference, req.Amount, req.Currency),
	}, nil
}

func (m *MockPay) settle(reference string) {
	select {
	case <-m.ctx.Done():
		return
	case <-time.After(m.SettleAfter):
	}

	m.mu.Lock()
	txn, ok := m.transactions[reference]
	if !ok {
		m.mu.Unlock()
		return
	}

	outcome := "SUCCESS"
	if txn.Amount.Mod(decimal.NewFromInt(1)).Equal(declineCents) {
		outcome = "FAILED"
	}
	txn.Status = outcome
	settled := *txn
	ch := m.ch
	m.mu.Unlock()

	if ch != nil {
		ch <- &settled
	}
}

func (m *MockPay) CheckTransaction(_ context.Context, reference string) (*status.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.transactions[reference]
	if !ok {
		return nil, status.ErrFailedPayment
	}
	copied := *txn
	return &copied, nil
}

func (m *MockPay) SetTransactionChannel(ch chan *status.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ch = ch
}

func (m *MockPay) Close(context.Context) error {
	m.cancel()
	return nil
}
