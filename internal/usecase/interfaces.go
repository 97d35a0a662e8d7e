package usecase

import (
	"context"
	"encoding/json"
	"time"

	"reconledger/internal/domain"
	"reconledger/internal/variance"
)

type TicketStore interface {
	Create(ctx context.Context, ticket domain.Ticket) (domain.Ticket, bool, error)
	Get(ctx context.Context, ticketID string) (domain.Ticket, error)
	UpdatePayload(ctx context.Context, ticketID string, payload json.RawMessage, payloadHash string, now time.Time) (domain.Ticket, error)
	Close(ctx context.Context, ticketID string, now time.Time) (domain.Ticket, error)
	History(ctx context.Context, ticketID string) ([]domain.TicketEvent, error)
	ListOpen(ctx context.Context) ([]domain.Ticket, error)
}

type PaymentAuditStore interface {
	Upsert(ctx context.Context, audit domain.DailyPaymentAudit, now time.Time) (domain.DailyPaymentAudit, error)
	Get(ctx context.Context, date time.Time) (domain.DailyPaymentAudit, error)
	List(ctx context.Context, rng domain.DateRange) ([]domain.DailyPaymentAudit, error)
	Revisions(ctx context.Context, date time.Time) ([]domain.DailyPaymentAuditRevision, error)
}

type CashBagStore interface {
	Assign(ctx context.Context, assignments []domain.BagAssignment) ([]domain.BagAssignment, error)
	Verify(ctx context.Context, bagID string, build func(domain.BagAssignment) (domain.BagVerification, error)) (domain.BagVerification, error)
	Get(ctx context.Context, bagID string) (domain.CashBag, error)
	ListUnverified(ctx context.Context) ([]domain.BlindBag, error)
	Verified(ctx context.Context, rng domain.DateRange) ([]domain.Discrepancy, error)
	Delete(ctx context.Context, bagID string) error
}

// MaterialityPolicy decides whether a variance is worth flagging for the
// named ledger.
type MaterialityPolicy interface {
	Classify(ctx context.Context, ledger string, v variance.Variance) (variance.Status, error)
}

// Metrics receives operation outcomes. Result is "ok" or an error code.
type Metrics interface {
	ObserveOperation(ledger, op, result string, elapsed time.Duration)
	ObserveFlagged(ledger string)
}

const (
	LedgerTickets  = "tickets"
	LedgerPayments = "payments"
	LedgerCashBags = "cash_bags"
)

// ThresholdPolicy is the built-in materiality rule.
type ThresholdPolicy struct {
	Threshold variance.Threshold
}

func (p ThresholdPolicy) Classify(_ context.Context, _ string, v variance.Variance) (variance.Status, error) {
	return variance.Classify(v, p.Threshold), nil
}

type nopMetrics struct{}

func (nopMetrics) ObserveOperation(string, string, string, time.Duration) {}

func (nopMetrics) ObserveFlagged(string) {}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.LedgerEvent) error { return nil }
