package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reconledger/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errFingerprintTaken = errors.New("fingerprint already recorded")
	errTicketChanged    = errors.New("ticket changed concurrently")
)

type TicketRepository struct {
	db      *gorm.DB
	journal *Journal[TicketModel, TicketEventModel]
}

func NewTicketRepository(db *gorm.DB) *TicketRepository {
	return &TicketRepository{
		db:      db,
		journal: NewJournal[TicketModel, TicketEventModel](db, "observed_at ASC, seq ASC"),
	}
}

// Create inserts an open ticket and its created event. When the semantic
// hash is already recorded the stored ticket is returned with created=false
// and nothing is appended.
func (r *TicketRepository) Create(ctx context.Context, ticket domain.Ticket) (domain.Ticket, bool, error) {
	if r.db == nil {
		return domain.Ticket{}, false, errDBUnavailable
	}
	ticket.OpenedAt = normalizeTime(ticket.OpenedAt)
	ticket.LastModifiedAt = ticket.OpenedAt
	ticket.Status = domain.TicketOpen
	ticket.ClosedAt = nil
	model := ticketModelFromDomain(ticket)

	_, err := r.journal.Record(ctx, func(tx *gorm.DB) ([]TicketEventModel, error) {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "semantic_hash"}},
			DoNothing: true,
		}).Create(&model)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, errFingerprintTaken
		}
		payload := model.Payload
		return []TicketEventModel{{
			TicketID:     model.TicketID,
			SemanticHash: model.SemanticHash,
			EventType:    string(domain.TicketCreated),
			Payload:      &payload,
			ObservedAt:   model.OpenedAt,
		}}, nil
	})
	switch {
	case errors.Is(err, errFingerprintTaken):
		existing, err := r.GetBySemanticHash(ctx, ticket.SemanticHash)
		if err != nil {
			return domain.Ticket{}, false, err
		}
		return existing, false, nil
	case isUniqueViolation(err):
		return domain.Ticket{}, false, fmt.Errorf("%w: ticket_id %s already used by another payload", domain.ErrConflict, ticket.TicketID)
	case err != nil:
		return domain.Ticket{}, false, translate("create ticket", err)
	}
	return ticketFromModel(model), true, nil
}

func (r *TicketRepository) Get(ctx context.Context, ticketID string) (domain.Ticket, error) {
	model, err := r.journal.State(ctx, "ticket_id = ?", ticketID)
	if err != nil {
		return domain.Ticket{}, translate("get ticket", err)
	}
	return ticketFromModel(model), nil
}

func (r *TicketRepository) GetBySemanticHash(ctx context.Context, semanticHash string) (domain.Ticket, error) {
	model, err := r.journal.State(ctx, "semantic_hash = ?", semanticHash)
	if err != nil {
		return domain.Ticket{}, translate("get ticket by hash", err)
	}
	return ticketFromModel(model), nil
}

// UpdatePayload replaces the payload of an open ticket and appends a
// modified event.
func (r *TicketRepository) UpdatePayload(ctx context.Context, ticketID string, payload json.RawMessage, payloadHash string, now time.Time) (domain.Ticket, error) {
	if r.db == nil {
		return domain.Ticket{}, errDBUnavailable
	}
	var updated TicketModel
	_, err := r.journal.Record(ctx, func(tx *gorm.DB) ([]TicketEventModel, error) {
		current, err := lockedTicket(tx, ticketID)
		if err != nil {
			return nil, err
		}
		at := later(normalizeTime(now), current.LastModifiedAt.UTC())
		res := tx.Model(&TicketModel{}).
			Where("ticket_id = ? AND status = ?", ticketID, string(domain.TicketOpen)).
			Updates(map[string]any{
				"payload":          string(payload),
				"payload_hash":     payloadHash,
				"last_modified_at": at,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, errTicketChanged
		}
		current.Payload = string(payload)
		current.PayloadHash = payloadHash
		current.LastModifiedAt = at
		updated = current

		snapshot := string(payload)
		return []TicketEventModel{{
			TicketID:     ticketID,
			SemanticHash: payloadHash,
			EventType:    string(domain.TicketModified),
			Payload:      &snapshot,
			ObservedAt:   at,
		}}, nil
	})
	if err != nil {
		return domain.Ticket{}, r.classifyTransitionFailure(ctx, "modify ticket", ticketID, err)
	}
	return ticketFromModel(updated), nil
}

// Close moves an open ticket to closed. Closing is not idempotent.
func (r *TicketRepository) Close(ctx context.Context, ticketID string, now time.Time) (domain.Ticket, error) {
	if r.db == nil {
		return domain.Ticket{}, errDBUnavailable
	}
	var closed TicketModel
	_, err := r.journal.Record(ctx, func(tx *gorm.DB) ([]TicketEventModel, error) {
		current, err := lockedTicket(tx, ticketID)
		if err != nil {
			return nil, err
		}
		at := later(normalizeTime(now), current.LastModifiedAt.UTC())
		res := tx.Model(&TicketModel{}).
			Where("ticket_id = ? AND status = ?", ticketID, string(domain.TicketOpen)).
			Updates(map[string]any{
				"status":    string(domain.TicketClosed),
				"closed_at": at,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, errTicketChanged
		}
		current.Status = string(domain.TicketClosed)
		current.ClosedAt = &at
		closed = current

		return []TicketEventModel{{
			TicketID:     ticketID,
			SemanticHash: current.PayloadHash,
			EventType:    string(domain.TicketClosedEv),
			ObservedAt:   at,
		}}, nil
	})
	if err != nil {
		return domain.Ticket{}, r.classifyTransitionFailure(ctx, "close ticket", ticketID, err)
	}
	return ticketFromModel(closed), nil
}

func (r *TicketRepository) History(ctx context.Context, ticketID string) ([]domain.TicketEvent, error) {
	if _, err := r.Get(ctx, ticketID); err != nil {
		return nil, err
	}
	models, err := r.journal.Entries(ctx, "ticket_id = ?", ticketID)
	if err != nil {
		return nil, translate("ticket history", err)
	}
	out := make([]domain.TicketEvent, 0, len(models))
	for _, model := range models {
		out = append(out, ticketEventFromModel(model))
	}
	return out, nil
}

func (r *TicketRepository) ListOpen(ctx context.Context) ([]domain.Ticket, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []TicketModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(domain.TicketOpen)).
		Order("opened_at ASC, ticket_id ASC").
		Find(&models).Error; err != nil {
		return nil, translate("list open tickets", err)
	}
	out := make([]domain.Ticket, 0, len(models))
	for _, model := range models {
		out = append(out, ticketFromModel(model))
	}
	return out, nil
}

// lockedTicket reads the row inside a transition. Postgres takes a row lock;
// SQLite already serializes writers.
func lockedTicket(tx *gorm.DB, ticketID string) (TicketModel, error) {
	var current TicketModel
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.Where("ticket_id = ?", ticketID).Take(&current).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TicketModel{}, fmt.Errorf("%w: ticket %s", domain.ErrNotFound, ticketID)
		}
		return TicketModel{}, err
	}
	if current.Status != string(domain.TicketOpen) {
		return TicketModel{}, fmt.Errorf("%w: ticket %s is %s", domain.ErrInvalidTransition, ticketID, current.Status)
	}
	return current, nil
}

// classifyTransitionFailure turns a lost conditional update into the
// error the caller would have seen had it arrived second.
func (r *TicketRepository) classifyTransitionFailure(ctx context.Context, op, ticketID string, err error) error {
	if !errors.Is(err, errTicketChanged) {
		return translate(op, err)
	}
	current, getErr := r.Get(ctx, ticketID)
	if getErr != nil {
		return getErr
	}
	if current.IsClosed() {
		return fmt.Errorf("%w: ticket %s is closed", domain.ErrInvalidTransition, ticketID)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func ticketModelFromDomain(t domain.Ticket) TicketModel {
	return TicketModel{
		TicketID:       t.TicketID,
		SemanticHash:   t.SemanticHash,
		PayloadHash:    t.PayloadHash,
		Status:         string(t.Status),
		Payload:        string(t.Payload),
		OpenedAt:       normalizeTime(t.OpenedAt),
		LastModifiedAt: normalizeTime(t.LastModifiedAt),
		ClosedAt:       t.ClosedAt,
	}
}

func ticketFromModel(m TicketModel) domain.Ticket {
	var closedAt *time.Time
	if m.ClosedAt != nil {
		c := m.ClosedAt.UTC()
		closedAt = &c
	}
	return domain.Ticket{
		TicketID:       m.TicketID,
		SemanticHash:   m.SemanticHash,
		PayloadHash:    m.PayloadHash,
		Status:         domain.TicketStatus(m.Status),
		Payload:        json.RawMessage(m.Payload),
		OpenedAt:       m.OpenedAt.UTC(),
		LastModifiedAt: m.LastModifiedAt.UTC(),
		ClosedAt:       closedAt,
	}
}

func ticketEventFromModel(m TicketEventModel) domain.TicketEvent {
	var payload json.RawMessage
	if m.Payload != nil {
		payload = json.RawMessage(*m.Payload)
	}
	return domain.TicketEvent{
		Seq:          m.Seq,
		TicketID:     m.TicketID,
		SemanticHash: m.SemanticHash,
		EventType:    domain.TicketEventType(m.EventType),
		Payload:      payload,
		ObservedAt:   m.ObservedAt.UTC(),
	}
}
