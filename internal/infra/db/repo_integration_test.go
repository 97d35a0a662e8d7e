//go:build integration
// +build integration

package db_test

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"reconledger/internal/domain"
	"reconledger/internal/infra/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
)

func setupPostgres(t *testing.T) *db.Store {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN_TEST"))
	if dsn == "" {
		t.Skip("POSTGRES_DSN_TEST not set")
	}
	gdb, err := db.Open(postgres.Open(dsn), zaptest.NewLogger(t))
	require.NoError(t, err)
	store := db.NewStoreFromDB(gdb)
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, gdb.Exec(`
		TRUNCATE tickets,
			ticket_events,
			daily_payment_audits,
			daily_payment_audit_revisions,
			cash_bag_verifications,
			cash_bag_assignments,
			cash_bag_ids
		RESTART IDENTITY CASCADE`).Error)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPostgres_ConcurrentCloseHasOneWinner(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	_, _, err := store.Tickets.Create(ctx, domain.Ticket{
		TicketID:     "t-1",
		SemanticHash: "h-1",
		PayloadHash:  "h-1",
		Payload:      json.RawMessage(`{"a":1}`),
		OpenedAt:     time.Now(),
	})
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Tickets.Close(ctx, "t-1", time.Now())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	}
	assert.Equal(t, 1, wins)

	history, err := store.Tickets.History(ctx, "t-1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestPostgres_ConcurrentIngestCreatesOneTicket(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	created := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, isNew, err := store.Tickets.Create(ctx, domain.Ticket{
				TicketID:     "t-" + string(rune('a'+i)),
				SemanticHash: "same",
				PayloadHash:  "same",
				Payload:      json.RawMessage(`{"a":1}`),
				OpenedAt:     time.Now(),
			})
			require.NoError(t, err)
			created <- isNew
		}(i)
	}
	wg.Wait()
	close(created)

	n := 0
	for isNew := range created {
		if isNew {
			n++
		}
	}
	assert.Equal(t, 1, n)
}
