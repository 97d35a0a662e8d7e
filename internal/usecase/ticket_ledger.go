package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"reconledger/internal/domain"
	"reconledger/internal/fingerprint"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type IngestTicketInput struct {
	TicketID string          `json:"ticket_id,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

type ConsistencyReport struct {
	TicketID   string         `json:"ticket_id"`
	Consistent bool           `json:"consistent"`
	Events     int            `json:"events"`
	Stored     domain.Ticket  `json:"stored"`
	Replayed   *domain.Ticket `json:"replayed,omitempty"`
	Problem    string         `json:"problem,omitempty"`
}

// TicketLedger tracks tickets from first sighting to close. Ingestion is
// idempotent on the payload fingerprint.
type TicketLedger struct {
	store TicketStore
	fp    *fingerprint.Fingerprinter
	newID func() string
	deps
}

func NewTicketLedger(store TicketStore, fp *fingerprint.Fingerprinter, opts ...Option) *TicketLedger {
	if fp == nil {
		fp = fingerprint.New()
	}
	return &TicketLedger{
		store: store,
		fp:    fp,
		newID: uuid.NewString,
		deps:  applyOptions(opts),
	}
}

func (l *TicketLedger) CreateOrIngest(ctx context.Context, in IngestTicketInput) (ticket domain.Ticket, isNew bool, err error) {
	defer l.observe(LedgerTickets, "ingest", time.Now(), &err)

	result, err := l.fp.Of(in.Payload)
	if err != nil {
		return domain.Ticket{}, false, err
	}
	id := strings.TrimSpace(in.TicketID)
	if id == "" {
		id = l.newID()
	}
	ticket, isNew, err = l.store.Create(ctx, domain.Ticket{
		TicketID:     id,
		SemanticHash: result.Hash,
		PayloadHash:  result.Hash,
		Payload:      result.Canonical,
		OpenedAt:     l.now(),
	})
	if err != nil {
		return domain.Ticket{}, false, err
	}
	if isNew {
		l.publish(ctx, domain.LedgerEvent{Type: domain.EventTicketCreated, Key: ticket.TicketID, Data: ticket})
	} else {
		l.log.Debug("duplicate ticket ingestion",
			zap.String("ticket_id", ticket.TicketID),
			zap.String("semantic_hash", ticket.SemanticHash),
		)
	}
	return ticket, isNew, nil
}

// Modify replaces the payload of an open ticket. Re-submitting the current
// payload is a no-op and appends nothing.
func (l *TicketLedger) Modify(ctx context.Context, ticketID string, payload json.RawMessage) (ticket domain.Ticket, err error) {
	defer l.observe(LedgerTickets, "modify", time.Now(), &err)

	result, err := l.fp.Of(payload)
	if err != nil {
		return domain.Ticket{}, err
	}
	current, err := l.store.Get(ctx, ticketID)
	if err != nil {
		return domain.Ticket{}, err
	}
	if current.IsClosed() {
		return domain.Ticket{}, fmt.Errorf("%w: ticket %s is closed", domain.ErrInvalidTransition, ticketID)
	}
	if current.PayloadHash == result.Hash {
		return current, nil
	}
	ticket, err = l.store.UpdatePayload(ctx, ticketID, result.Canonical, result.Hash, l.now())
	if err != nil {
		return domain.Ticket{}, err
	}
	l.publish(ctx, domain.LedgerEvent{Type: domain.EventTicketModified, Key: ticket.TicketID, Data: ticket})
	return ticket, nil
}

func (l *TicketLedger) Close(ctx context.Context, ticketID string) (ticket domain.Ticket, err error) {
	defer l.observe(LedgerTickets, "close", time.Now(), &err)

	ticket, err = l.store.Close(ctx, ticketID, l.now())
	if err != nil {
		return domain.Ticket{}, err
	}
	l.publish(ctx, domain.LedgerEvent{Type: domain.EventTicketClosed, Key: ticket.TicketID, Data: ticket})
	return ticket, nil
}

func (l *TicketLedger) GetHistory(ctx context.Context, ticketID string) (events []domain.TicketEvent, err error) {
	defer l.observe(LedgerTickets, "history", time.Now(), &err)
	return l.store.History(ctx, ticketID)
}

func (l *TicketLedger) Get(ctx context.Context, ticketID string) (domain.Ticket, error) {
	return l.store.Get(ctx, ticketID)
}

func (l *TicketLedger) ListOpen(ctx context.Context) ([]domain.Ticket, error) {
	return l.store.ListOpen(ctx)
}

// CloseMissing closes every open ticket whose id is absent from the
// upstream heartbeat. Tickets closed concurrently by someone else are
// skipped.
func (l *TicketLedger) CloseMissing(ctx context.Context, heartbeat []string) (closed []string, err error) {
	defer l.observe(LedgerTickets, "close_missing", time.Now(), &err)

	alive := make(map[string]struct{}, len(heartbeat))
	for _, id := range heartbeat {
		alive[strings.TrimSpace(id)] = struct{}{}
	}
	open, err := l.store.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	closed = []string{}
	for _, t := range open {
		if _, ok := alive[t.TicketID]; ok {
			continue
		}
		if _, err := l.Close(ctx, t.TicketID); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return closed, err
		}
		closed = append(closed, t.TicketID)
	}
	if len(closed) > 0 {
		l.log.Info("closed tickets missing from heartbeat", zap.Int("count", len(closed)))
	}
	return closed, nil
}

// CheckConsistency replays the ticket's history and compares the result
// with the stored row.
func (l *TicketLedger) CheckConsistency(ctx context.Context, ticketID string) (ConsistencyReport, error) {
	stored, err := l.store.Get(ctx, ticketID)
	if err != nil {
		return ConsistencyReport{}, err
	}
	events, err := l.store.History(ctx, ticketID)
	if err != nil {
		return ConsistencyReport{}, err
	}
	report := ConsistencyReport{TicketID: ticketID, Events: len(events), Stored: stored}
	replayed, err := domain.ReplayTicket(events)
	if err != nil {
		report.Problem = err.Error()
		return report, nil
	}
	report.Replayed = &replayed
	if !ticketsEqual(stored, replayed) {
		report.Problem = "replayed history does not match stored ticket"
		return report, nil
	}
	report.Consistent = true
	return report, nil
}

func ticketsEqual(a, b domain.Ticket) bool {
	if a.TicketID != b.TicketID || a.SemanticHash != b.SemanticHash || a.PayloadHash != b.PayloadHash || a.Status != b.Status {
		return false
	}
	if !a.OpenedAt.Equal(b.OpenedAt) || !a.LastModifiedAt.Equal(b.LastModifiedAt) {
		return false
	}
	if (a.ClosedAt == nil) != (b.ClosedAt == nil) {
		return false
	}
	if a.ClosedAt != nil && !a.ClosedAt.Equal(*b.ClosedAt) {
		return false
	}
	return bytes.Equal(a.Payload, b.Payload)
}
