package usecase

import (
	"context"
	"encoding/json"
	"time"

	"reconledger/internal/domain"
	"reconledger/internal/variance"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "reconledger/usecase"

// Gateway is the narrow surface collaborators use. The HTTP server and the
// CLI both call it; neither reaches a sub-ledger directly.
type Gateway struct {
	tickets  *TicketLedger
	payments *PaymentReconciler
	cashBags *CashBagLedger
	tracer   trace.Tracer
}

func NewGateway(tickets *TicketLedger, payments *PaymentReconciler, cashBags *CashBagLedger) *Gateway {
	return &Gateway{
		tickets:  tickets,
		payments: payments,
		cashBags: cashBags,
		tracer:   otel.Tracer(tracerName),
	}
}

func (g *Gateway) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return g.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ResultCode(err))
	}
	span.End()
}

func (g *Gateway) IngestTicket(ctx context.Context, in IngestTicketInput) (ticket domain.Ticket, isNew bool, err error) {
	ctx, span := g.start(ctx, "IngestTicket", attribute.String("ticket.id", in.TicketID))
	defer func() {
		span.SetAttributes(attribute.Bool("ticket.is_new", isNew))
		endSpan(span, err)
	}()
	return g.tickets.CreateOrIngest(ctx, in)
}

func (g *Gateway) ModifyTicket(ctx context.Context, ticketID string, payload json.RawMessage) (ticket domain.Ticket, err error) {
	ctx, span := g.start(ctx, "ModifyTicket", attribute.String("ticket.id", ticketID))
	defer func() { endSpan(span, err) }()
	return g.tickets.Modify(ctx, ticketID, payload)
}

func (g *Gateway) CloseTicket(ctx context.Context, ticketID string) (ticket domain.Ticket, err error) {
	ctx, span := g.start(ctx, "CloseTicket", attribute.String("ticket.id", ticketID))
	defer func() { endSpan(span, err) }()
	return g.tickets.Close(ctx, ticketID)
}

func (g *Gateway) GetTicketHistory(ctx context.Context, ticketID string) (events []domain.TicketEvent, err error) {
	ctx, span := g.start(ctx, "GetTicketHistory", attribute.String("ticket.id", ticketID))
	defer func() { endSpan(span, err) }()
	return g.tickets.GetHistory(ctx, ticketID)
}

func (g *Gateway) GetTicket(ctx context.Context, ticketID string) (ticket domain.Ticket, err error) {
	ctx, span := g.start(ctx, "GetTicket", attribute.String("ticket.id", ticketID))
	defer func() { endSpan(span, err) }()
	return g.tickets.Get(ctx, ticketID)
}

func (g *Gateway) ListOpenTickets(ctx context.Context) (tickets []domain.Ticket, err error) {
	ctx, span := g.start(ctx, "ListOpenTickets")
	defer func() { endSpan(span, err) }()
	return g.tickets.ListOpen(ctx)
}

func (g *Gateway) TicketHeartbeat(ctx context.Context, openIDs []string) (closed []string, err error) {
	ctx, span := g.start(ctx, "TicketHeartbeat", attribute.Int("heartbeat.size", len(openIDs)))
	defer func() { endSpan(span, err) }()
	return g.tickets.CloseMissing(ctx, openIDs)
}

func (g *Gateway) CheckTicketConsistency(ctx context.Context, ticketID string) (report ConsistencyReport, err error) {
	ctx, span := g.start(ctx, "CheckTicketConsistency", attribute.String("ticket.id", ticketID))
	defer func() { endSpan(span, err) }()
	return g.tickets.CheckConsistency(ctx, ticketID)
}

func (g *Gateway) RecordDailyAudit(ctx context.Context, in RecordDailyInput) (audit domain.DailyPaymentAudit, err error) {
	ctx, span := g.start(ctx, "RecordDailyAudit", attribute.String("audit.date", domain.FormatDate(in.Date)))
	defer func() { endSpan(span, err) }()
	return g.payments.RecordDaily(ctx, in)
}

func (g *Gateway) GetPaymentVariance(ctx context.Context, date time.Time) (res VarianceResult, err error) {
	ctx, span := g.start(ctx, "GetPaymentVariance", attribute.String("audit.date", domain.FormatDate(date)))
	defer func() { endSpan(span, err) }()
	return g.payments.GetVariance(ctx, date)
}

func (g *Gateway) ListPaymentAudits(ctx context.Context, rng domain.DateRange) (audits []domain.DailyPaymentAudit, err error) {
	ctx, span := g.start(ctx, "ListPaymentAudits")
	defer func() { endSpan(span, err) }()
	return g.payments.ListAudits(ctx, rng)
}

func (g *Gateway) PaymentAuditReport(ctx context.Context, rng domain.DateRange) (report domain.PaymentAuditReport, err error) {
	ctx, span := g.start(ctx, "PaymentAuditReport")
	defer func() { endSpan(span, err) }()
	return g.payments.Report(ctx, rng)
}

func (g *Gateway) ListPaymentAuditRevisions(ctx context.Context, date time.Time) (revisions []domain.DailyPaymentAuditRevision, err error) {
	ctx, span := g.start(ctx, "ListPaymentAuditRevisions", attribute.String("audit.date", domain.FormatDate(date)))
	defer func() { endSpan(span, err) }()
	return g.payments.ListRevisions(ctx, date)
}

func (g *Gateway) AssignBag(ctx context.Context, in AssignBagInput) (assignment domain.BagAssignment, err error) {
	ctx, span := g.start(ctx, "AssignBag", attribute.String("bag.source_system", in.SourceSystem))
	defer func() { endSpan(span, err) }()
	return g.cashBags.Assign(ctx, in)
}

func (g *Gateway) AssignBags(ctx context.Context, ins []AssignBagInput) (assignments []domain.BagAssignment, err error) {
	ctx, span := g.start(ctx, "AssignBags", attribute.Int("batch.size", len(ins)))
	defer func() { endSpan(span, err) }()
	return g.cashBags.AssignBatch(ctx, ins)
}

func (g *Gateway) VerifyBag(ctx context.Context, in VerifyBagInput) (verification domain.BagVerification, err error) {
	ctx, span := g.start(ctx, "VerifyBag", attribute.String("bag.id", in.BagID))
	defer func() { endSpan(span, err) }()
	return g.cashBags.Verify(ctx, in)
}

// ListDiscrepancies uses the configured materiality policy when threshold
// is nil.
func (g *Gateway) ListDiscrepancies(ctx context.Context, rng domain.DateRange, threshold *variance.Threshold) (records []domain.Discrepancy, err error) {
	ctx, span := g.start(ctx, "ListDiscrepancies", attribute.Bool("threshold.override", threshold != nil))
	defer func() { endSpan(span, err) }()
	return g.cashBags.GetDiscrepancies(ctx, rng, threshold)
}

func (g *Gateway) GetBag(ctx context.Context, bagID string) (bag domain.CashBag, err error) {
	ctx, span := g.start(ctx, "GetBag", attribute.String("bag.id", bagID))
	defer func() { endSpan(span, err) }()
	return g.cashBags.Get(ctx, bagID)
}

func (g *Gateway) ListUnverifiedBags(ctx context.Context) (bags []domain.BlindBag, err error) {
	ctx, span := g.start(ctx, "ListUnverifiedBags")
	defer func() { endSpan(span, err) }()
	return g.cashBags.ListUnverified(ctx)
}

func (g *Gateway) DeleteBag(ctx context.Context, bagID string) (err error) {
	ctx, span := g.start(ctx, "DeleteBag", attribute.String("bag.id", bagID))
	defer func() { endSpan(span, err) }()
	return g.cashBags.Delete(ctx, bagID)
}
