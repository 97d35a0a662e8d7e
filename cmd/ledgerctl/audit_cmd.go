package main

import (
	"context"
	"time"

	"reconledger/internal/domain"
	"reconledger/internal/usecase"
	"reconledger/internal/variance"
)

func runAuditRecord(ctx context.Context, e env, args []string) int {
	f := newFlags("audit record", e)
	var date, sourceA, sourceB, sourceC string
	f.StringVar(&date, "date", "", "audit date (YYYY-MM-DD)")
	f.StringVar(&sourceA, "source-a", "", "payment processor total")
	f.StringVar(&sourceB, "source-b", "", "first POS total")
	f.StringVar(&sourceC, "source-c", "", "second POS total")
	if !f.parse(args) {
		return 1
	}
	in, err := auditInput(date, sourceA, sourceB, sourceC)
	if err != nil {
		return fail(e, err)
	}
	a, ok := f.open(ctx, e)
	if !ok {
		return 1
	}
	defer a.Close()

	audit, err := a.Gateway.RecordDailyAudit(ctx, in)
	if err != nil {
		return fail(e, err)
	}
	res, err := a.Gateway.GetPaymentVariance(ctx, audit.AuditDate)
	if err != nil {
		return fail(e, err)
	}
	return writeJSON(e, res)
}

func auditInput(date, sourceA, sourceB, sourceC string) (usecase.RecordDailyInput, error) {
	var in usecase.RecordDailyInput
	var err error
	if in.Date, err = domain.ParseDate(date); err != nil {
		return in, err
	}
	if in.SourceA, err = variance.ParseAmount("source-a", sourceA); err != nil {
		return in, err
	}
	if in.SourceB, err = variance.ParseAmount("source-b", sourceB); err != nil {
		return in, err
	}
	in.SourceC, err = variance.ParseAmount("source-c", sourceC)
	return in, err
}

func runAuditGet(ctx context.Context, e env, args []string) int {
	return runAuditByDate(ctx, e, args, "get", func(ctx context.Context, g *usecase.Gateway, date time.Time) (any, error) {
		return g.GetPaymentVariance(ctx, date)
	})
}

func runAuditRevisions(ctx context.Context, e env, args []string) int {
	return runAuditByDate(ctx, e, args, "revisions", func(ctx context.Context, g *usecase.Gateway, date time.Time) (any, error) {
		return g.ListPaymentAuditRevisions(ctx, date)
	})
}

func runAuditList(ctx context.Context, e env, args []string) int {
	return runAuditByRange(ctx, e, args, "list", func(ctx context.Context, g *usecase.Gateway, rng domain.DateRange) (any, error) {
		audits, err := g.ListPaymentAudits(ctx, rng)
		if audits == nil {
			audits = []domain.DailyPaymentAudit{}
		}
		return audits, err
	})
}

func runAuditReport(ctx context.Context, e env, args []string) int {
	return runAuditByRange(ctx, e, args, "report", func(ctx context.Context, g *usecase.Gateway, rng domain.DateRange) (any, error) {
		return g.PaymentAuditReport(ctx, rng)
	})
}

func runAuditByDate(ctx context.Context, e env, args []string, name string, call func(context.Context, *usecase.Gateway, time.Time) (any, error)) int {
	f := newFlags("audit "+name, e)
	var date string
	f.StringVar(&date, "date", "", "audit date (YYYY-MM-DD)")
	if !f.parse(args) {
		return 1
	}
	day, err := domain.ParseDate(date)
	if err != nil {
		return fail(e, err)
	}
	a, ok := f.open(ctx, e)
	if !ok {
		return 1
	}
	defer a.Close()

	out, err := call(ctx, a.Gateway, day)
	if err != nil {
		return fail(e, err)
	}
	return writeJSON(e, out)
}

func runAuditByRange(ctx context.Context, e env, args []string, name string, call func(context.Context, *usecase.Gateway, domain.DateRange) (any, error)) int {
	f := newFlags("audit "+name, e)
	var from, to string
	f.StringVar(&from, "from", "", "first day (YYYY-MM-DD)")
	f.StringVar(&to, "to", "", "last day (YYYY-MM-DD)")
	if !f.parse(args) {
		return 1
	}
	rng, err := parseRange(from, to)
	if err != nil {
		return fail(e, err)
	}
	a, ok := f.open(ctx, e)
	if !ok {
		return 1
	}
	defer a.Close()

	out, err := call(ctx, a.Gateway, rng)
	if err != nil {
		return fail(e, err)
	}
	return writeJSON(e, out)
}

func parseRange(from, to string) (domain.DateRange, error) {
	start, err := domain.ParseDate(from)
	if err != nil {
		return domain.DateRange{}, err
	}
	end, err := domain.ParseDate(to)
	if err != nil {
		return domain.DateRange{}, err
	}
	return domain.NewDateRange(start, end)
}
