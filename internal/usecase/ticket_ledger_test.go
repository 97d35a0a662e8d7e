package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"reconledger/internal/domain"
	"reconledger/internal/variance"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketLedger_IngestIsIdempotentOnContent(t *testing.T) {
	f := newFixture(t, variance.Threshold{})
	ctx := context.Background()

	first, isNew, err := f.tickets.CreateOrIngest(ctx, IngestTicketInput{Payload: json.RawMessage(`{"table":4,"items":[1,2]}`)})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NotEmpty(t, first.TicketID)
	assert.Equal(t, first.SemanticHash, first.PayloadHash)

	again, isNew, err := f.tickets.CreateOrIngest(ctx, IngestTicketInput{Payload: json.RawMessage(`{ "items":[1,2], "table":4, "fetched_at":"now" }`)})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, first.TicketID, again.TicketID)

	history, err := f.tickets.GetHistory(ctx, first.TicketID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, []domain.LedgerEventType{domain.EventTicketCreated}, f.publisher.types())
}

func TestTicketLedger_IngestRejectsBadPayload(t *testing.T) {
	f := newFixture(t, variance.Threshold{})
	for _, payload := range []string{``, `[]`, `{}`, `{"a":`} {
		_, _, err := f.tickets.CreateOrIngest(context.Background(), IngestTicketInput{Payload: json.RawMessage(payload)})
		assert.ErrorIs(t, err, domain.ErrValidation, "payload %q", payload)
	}
}

func TestTicketLedger_ExplicitIDConflict(t *testing.T) {
	f := newFixture(t, variance.Threshold{})
	ctx := context.Background()

	_, _, err := f.tickets.CreateOrIngest(ctx, IngestTicketInput{TicketID: "pos-1", Payload: json.RawMessage(`{"a":1}`)})
	require.NoError(t, err)
	_, _, err = f.tickets.CreateOrIngest(ctx, IngestTicketInput{TicketID: "pos-1", Payload: json.RawMessage(`{"a":2}`)})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestTicketLedger_Lifecycle(t *testing.T) {
	f := newFixture(t, variance.Threshold{})
	ctx := context.Background()

	created, _, err := f.tickets.CreateOrIngest(ctx, IngestTicketInput{TicketID: "pos-1", Payload: json.RawMessage(`{"a":1}`)})
	require.NoError(t, err)

	same, err := f.tickets.Modify(ctx, "pos-1", json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, created.LastModifiedAt, same.LastModifiedAt)

	modified, err := f.tickets.Modify(ctx, "pos-1", json.RawMessage(`{"a":2}`))
	require.NoError(t, err)
	assert.Equal(t, created.SemanticHash, modified.SemanticHash)
	assert.NotEqual(t, created.PayloadHash, modified.PayloadHash)
	assert.True(t, modified.LastModifiedAt.After(created.LastModifiedAt))
	assert.JSONEq(t, `{"a":2}`, string(modified.Payload))

	closed, err := f.tickets.Close(ctx, "pos-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketClosed, closed.Status)
	assert.Equal(t, modified.LastModifiedAt, closed.LastModifiedAt)

	_, err = f.tickets.Close(ctx, "pos-1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.tickets.Modify(ctx, "pos-1", json.RawMessage(`{"a":3}`))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	history, err := f.tickets.GetHistory(ctx, "pos-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, domain.TicketCreated, history[0].EventType)
	assert.Equal(t, domain.TicketModified, history[1].EventType)
	assert.Equal(t, domain.TicketClosedEv, history[2].EventType)

	report, err := f.tickets.CheckConsistency(ctx, "pos-1")
	require.NoError(t, err)
	assert.True(t, report.Consistent, report.Problem)
	assert.Equal(t, 3, report.Events)
}

func TestTicketLedger_UnknownTicket(t *testing.T) {
	f := newFixture(t, variance.Threshold{})
	ctx := context.Background()

	_, err := f.tickets.Modify(ctx, "nope", json.RawMessage(`{"a":1}`))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.tickets.Close(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.tickets.GetHistory(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 1, f.metrics.results["tickets.close.NOT_FOUND"])
}

func TestTicketLedger_CloseMissing(t *testing.T) {
	f := newFixture(t, variance.Threshold{})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, _, err := f.tickets.CreateOrIngest(ctx, IngestTicketInput{TicketID: id, Payload: json.RawMessage(`{"id":"` + id + `"}`)})
		require.NoError(t, err)
	}
	closed, err := f.tickets.CloseMissing(ctx, []string{"b"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, closed)

	open, err := f.tickets.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "b", open[0].TicketID)

	closed, err = f.tickets.CloseMissing(ctx, []string{"b"})
	require.NoError(t, err)
	assert.Empty(t, closed)
}

func TestTicketLedger_ConcurrentIngestCreatesOnce(t *testing.T) {
	f := newFixture(t, variance.Threshold{})
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	results := make(chan bool, workers)
	ids := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, isNew, err := f.tickets.CreateOrIngest(ctx, IngestTicketInput{Payload: json.RawMessage(`{"order":42}`)})
			if err != nil {
				t.Errorf("ingest: %v", err)
				return
			}
			results <- isNew
			ids <- ticket.TicketID
		}()
	}
	wg.Wait()
	close(results)
	close(ids)

	created := 0
	for isNew := range results {
		if isNew {
			created++
		}
	}
	assert.Equal(t, 1, created)
	var first string
	for id := range ids {
		if first == "" {
			first = id
		}
		assert.Equal(t, first, id)
	}
}

func TestTicketLedger_ConcurrentCloseHasOneWinner(t *testing.T) {
	f := newFixture(t, variance.Threshold{})
	ctx := context.Background()
	_, _, err := f.tickets.CreateOrIngest(ctx, IngestTicketInput{TicketID: "t", Payload: json.RawMessage(`{"a":1}`)})
	require.NoError(t, err)

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.tickets.Close(ctx, "t")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		}
	}
	assert.Equal(t, 1, wins)
	history, err := f.tickets.GetHistory(ctx, "t")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
