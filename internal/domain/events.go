package domain

import (
	"context"
	"time"
)

type LedgerEventType string

const (
	EventTicketCreated        LedgerEventType = "ledger.ticket.created"
	EventTicketModified       LedgerEventType = "ledger.ticket.modified"
	EventTicketClosed         LedgerEventType = "ledger.ticket.closed"
	EventPaymentAuditRecorded LedgerEventType = "ledger.payment_audit.recorded"
	EventCashBagAssigned      LedgerEventType = "ledger.cash_bag.assigned"
	EventCashBagVerified      LedgerEventType = "ledger.cash_bag.verified"
	EventCashBagDeleted       LedgerEventType = "ledger.cash_bag.deleted"
)

// LedgerEvent is a post-commit notification. The ledger tables stay the
// source of truth; subscribers must tolerate missed or repeated events.
type LedgerEvent struct {
	Type       LedgerEventType `json:"type"`
	Key        string          `json:"key"`
	Flagged    bool            `json:"flagged,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       any             `json:"data,omitempty"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event LedgerEvent) error
}
