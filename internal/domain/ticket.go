package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type TicketStatus string

const (
	TicketOpen   TicketStatus = "open"
	TicketClosed TicketStatus = "closed"
)

type TicketEventType string

const (
	TicketCreated  TicketEventType = "created"
	TicketModified TicketEventType = "modified"
	TicketClosedEv TicketEventType = "closed"
)

type Ticket struct {
	TicketID       string          `json:"ticket_id"`
	SemanticHash   string          `json:"semantic_hash"`
	PayloadHash    string          `json:"payload_hash"`
	Status         TicketStatus    `json:"status"`
	Payload        json.RawMessage `json:"payload"`
	OpenedAt       time.Time       `json:"opened_at"`
	LastModifiedAt time.Time       `json:"last_modified_at"`
	ClosedAt       *time.Time      `json:"closed_at,omitempty"`
}

func (t Ticket) IsClosed() bool {
	return t.Status == TicketClosed
}

type TicketEvent struct {
	Seq          int64           `json:"seq"`
	TicketID     string          `json:"ticket_id"`
	SemanticHash string          `json:"semantic_hash"`
	EventType    TicketEventType `json:"event_type"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	ObservedAt   time.Time       `json:"observed_at"`
}

// ReplayTicket rebuilds the current-state row of a ticket from its ordered
// history. It fails when the sequence breaks the lifecycle.
func ReplayTicket(events []TicketEvent) (Ticket, error) {
	var t Ticket
	for i, ev := range events {
		if i == 0 && ev.EventType != TicketCreated {
			return Ticket{}, fmt.Errorf("%w: history must start with %s, got %s", ErrInvalidTransition, TicketCreated, ev.EventType)
		}
		if t.TicketID != "" && ev.TicketID != t.TicketID {
			return Ticket{}, fmt.Errorf("%w: event %d belongs to ticket %s", ErrConflict, ev.Seq, ev.TicketID)
		}
		switch ev.EventType {
		case TicketCreated:
			if i != 0 {
				return Ticket{}, fmt.Errorf("%w: duplicate %s event", ErrInvalidTransition, TicketCreated)
			}
			t = Ticket{
				TicketID:       ev.TicketID,
				SemanticHash:   ev.SemanticHash,
				PayloadHash:    ev.SemanticHash,
				Status:         TicketOpen,
				Payload:        ev.Payload,
				OpenedAt:       ev.ObservedAt,
				LastModifiedAt: ev.ObservedAt,
			}
		case TicketModified:
			if t.IsClosed() {
				return Ticket{}, fmt.Errorf("%w: %s after close", ErrInvalidTransition, TicketModified)
			}
			t.PayloadHash = ev.SemanticHash
			t.Payload = ev.Payload
			t.LastModifiedAt = ev.ObservedAt
		case TicketClosedEv:
			if t.IsClosed() {
				return Ticket{}, fmt.Errorf("%w: ticket closed twice", ErrInvalidTransition)
			}
			closedAt := ev.ObservedAt
			t.Status = TicketClosed
			t.ClosedAt = &closedAt
		default:
			return Ticket{}, fmt.Errorf("%w: unknown event type %q", ErrValidation, ev.EventType)
		}
	}
	if t.TicketID == "" {
		return Ticket{}, ErrNotFound
	}
	return t, nil
}
