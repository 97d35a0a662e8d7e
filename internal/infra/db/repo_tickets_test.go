package db_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"reconledger/internal/domain"
	"reconledger/internal/infra/db/dbtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTicket(id, hash, payload string, at time.Time) domain.Ticket {
	return domain.Ticket{
		TicketID:     id,
		SemanticHash: hash,
		PayloadHash:  hash,
		Payload:      json.RawMessage(payload),
		OpenedAt:     at,
	}
}

func TestTicketRepository_CreateDeduplicatesByHash(t *testing.T) {
	store := dbtest.Open(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	first, created, err := store.Tickets.Create(ctx, newTicket("t-1", "h-1", `{"a":1}`, at))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.TicketOpen, first.Status)

	again, created, err := store.Tickets.Create(ctx, newTicket("t-2", "h-1", `{"a":1}`, at.Add(time.Minute)))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "t-1", again.TicketID)

	history, err := store.Tickets.History(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.TicketCreated, history[0].EventType)

	_, err = store.Tickets.Get(ctx, "t-2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTicketRepository_CreateRejectsReusedID(t *testing.T) {
	store := dbtest.Open(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	_, _, err := store.Tickets.Create(ctx, newTicket("t-1", "h-1", `{"a":1}`, at))
	require.NoError(t, err)
	_, _, err = store.Tickets.Create(ctx, newTicket("t-1", "h-2", `{"a":2}`, at))
	assert.ErrorIs(t, err, domain.ErrConflict)

	history, err := store.Tickets.History(ctx, "t-1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestTicketRepository_Lifecycle(t *testing.T) {
	store := dbtest.Open(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	_, _, err := store.Tickets.Create(ctx, newTicket("t-1", "h-1", `{"a":1}`, at))
	require.NoError(t, err)

	modified, err := store.Tickets.UpdatePayload(ctx, "t-1", json.RawMessage(`{"a":2}`), "h-2", at.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "h-1", modified.SemanticHash)
	assert.Equal(t, "h-2", modified.PayloadHash)
	assert.Equal(t, at.Add(time.Hour), modified.LastModifiedAt)

	closed, err := store.Tickets.Close(ctx, "t-1", at.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, closed.IsClosed())
	require.NotNil(t, closed.ClosedAt)
	assert.Equal(t, at.Add(time.Hour), closed.LastModifiedAt)

	_, err = store.Tickets.Close(ctx, "t-1", at.Add(3*time.Hour))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = store.Tickets.UpdatePayload(ctx, "t-1", json.RawMessage(`{"a":3}`), "h-3", at.Add(3*time.Hour))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	history, err := store.Tickets.History(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, domain.TicketModified, history[1].EventType)
	assert.Equal(t, domain.TicketClosedEv, history[2].EventType)

	replayed, err := domain.ReplayTicket(history)
	require.NoError(t, err)
	stored, err := store.Tickets.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, stored, replayed)
}

func TestTicketRepository_UnknownTicket(t *testing.T) {
	store := dbtest.Open(t)
	ctx := context.Background()

	_, err := store.Tickets.Close(ctx, "missing", time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.Tickets.UpdatePayload(ctx, "missing", json.RawMessage(`{"a":1}`), "h", time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.Tickets.History(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestTicketRepository_ModifyNeverMovesBackwards(t *testing.T) {
	store := dbtest.Open(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	_, _, err := store.Tickets.Create(ctx, newTicket("t-1", "h-1", `{"a":1}`, at))
	require.NoError(t, err)
	modified, err := store.Tickets.UpdatePayload(ctx, "t-1", json.RawMessage(`{"a":2}`), "h-2", at.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, at, modified.LastModifiedAt)
}

func TestTicketRepository_ListOpen(t *testing.T) {
	store := dbtest.Open(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"t-1", "t-2", "t-3"} {
		_, _, err := store.Tickets.Create(ctx, newTicket(id, "h-"+id, `{"id":"`+id+`"}`, at.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}
	_, err := store.Tickets.Close(ctx, "t-2", at.Add(time.Hour))
	require.NoError(t, err)

	open, err := store.Tickets.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "t-1", open[0].TicketID)
	assert.Equal(t, "t-3", open[1].TicketID)
}
