package usecase

import (
	"context"
	"encoding/json"
	"testing"

	"reconledger/internal/domain"
	"reconledger/internal/variance"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestGateway_SpansCarryResultCodes(t *testing.T) {
	f := newFixture(t, variance.Threshold{})
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	f.gateway.tracer = tp.Tracer(tracerName)
	ctx := context.Background()

	_, isNew, err := f.gateway.IngestTicket(ctx, IngestTicketInput{TicketID: "t-1", Payload: json.RawMessage(`{"a":1}`)})
	require.NoError(t, err)
	assert.True(t, isNew)
	_, err = f.gateway.CloseTicket(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "ledger.IngestTicket", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, "ledger.CloseTicket", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "NOT_FOUND", spans[1].Status().Description)
}

func TestGateway_DiscrepanciesDefaultToMateriality(t *testing.T) {
	threshold := variance.Threshold{Absolute: dec("10")}
	f := newFixture(t, threshold)
	ctx := context.Background()

	for _, counted := range []string{"95.00", "80.00"} {
		a, err := f.gateway.AssignBag(ctx, bagInput("loyverse", "100.00"))
		require.NoError(t, err)
		_, err = f.gateway.VerifyBag(ctx, VerifyBagInput{BagID: a.BagID, CountedAmount: dec(counted), CountedBy: "auditor"})
		require.NoError(t, err)
	}
	rng := domain.DateRange{From: day(1), To: day(1)}

	records, err := f.gateway.ListDiscrepancies(ctx, rng, nil)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	zero := variance.Threshold{}
	records, err = f.gateway.ListDiscrepancies(ctx, rng, &zero)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestResultCode(t *testing.T) {
	assert.Equal(t, "ok", ResultCode(nil))
	assert.Equal(t, "ALREADY_VERIFIED", ResultCode(domain.ErrAlreadyVerified))
	assert.Equal(t, "VALIDATION_ERROR", ResultCode(domain.ErrValidation))
	assert.Equal(t, "INTERNAL", ResultCode(assert.AnError))
}
