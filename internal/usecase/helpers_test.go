package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"reconledger/internal/domain"
	"reconledger/internal/fingerprint"
	"reconledger/internal/infra/db"
	"reconledger/internal/infra/db/dbtest"
	"reconledger/internal/variance"

	"github.com/shopspring/decimal"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.LedgerEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []domain.LedgerEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.LedgerEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type countingMetrics struct {
	mu      sync.Mutex
	results map[string]int
	flagged int
}

func (m *countingMetrics) ObserveOperation(ledger, op, result string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results == nil {
		m.results = map[string]int{}
	}
	m.results[ledger+"."+op+"."+result]++
}

func (m *countingMetrics) ObserveFlagged(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flagged++
}

// stepClock returns a strictly increasing time on every call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(time.Second)
		return now
	}
}

var testStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store     *db.Store
	publisher *recordingPublisher
	metrics   *countingMetrics
	tickets   *TicketLedger
	payments  *PaymentReconciler
	cashBags  *CashBagLedger
	gateway   *Gateway
}

func newFixture(t *testing.T, threshold variance.Threshold) *fixture {
	t.Helper()
	f := &fixture{
		store:     dbtest.Open(t),
		publisher: &recordingPublisher{},
		metrics:   &countingMetrics{},
	}
	opts := []Option{WithPublisher(f.publisher), WithMetrics(f.metrics), WithClock(stepClock(testStart))}
	f.tickets = NewTicketLedger(f.store.Tickets, fingerprint.New("fetched_at"), opts...)
	f.payments = NewPaymentReconciler(f.store.PaymentAudits, ThresholdPolicy{Threshold: threshold}, opts...)
	cashBags, err := NewCashBagLedger(f.store.CashBags, CashBagConfig{
		Sources: []string{"loyverse", "aronium"},
		Policy:  ThresholdPolicy{Threshold: threshold},
	}, opts...)
	if err != nil {
		t.Fatalf("cash bag ledger: %v", err)
	}
	f.cashBags = cashBags
	f.gateway = NewGateway(f.tickets, f.payments, f.cashBags)
	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(n int) time.Time {
	return time.Date(2026, 3, n, 0, 0, 0, 0, time.UTC)
}
