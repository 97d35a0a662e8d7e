package usecase

import (
	"context"
	"fmt"
	"time"

	"reconledger/internal/domain"
	"reconledger/internal/variance"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RecordDailyInput carries the three reported totals for one day. There is no
// variance field; it is always derived here.
type RecordDailyInput struct {
	Date    time.Time
	SourceA decimal.Decimal
	SourceB decimal.Decimal
	SourceC decimal.Decimal
}

type VarianceResult struct {
	Audit    domain.DailyPaymentAudit `json:"audit"`
	Variance variance.Variance        `json:"variance"`
	Status   variance.Status          `json:"status"`
	Flagged  bool                     `json:"flagged"`
}

// PaymentReconciler compares the payment processor total (source A) with
// the sum of the two POS totals for each day.
type PaymentReconciler struct {
	store  PaymentAuditStore
	policy MaterialityPolicy
	deps
}

func NewPaymentReconciler(store PaymentAuditStore, policy MaterialityPolicy, opts ...Option) *PaymentReconciler {
	if policy == nil {
		policy = ThresholdPolicy{}
	}
	return &PaymentReconciler{store: store, policy: policy, deps: applyOptions(opts)}
}

func (r *PaymentReconciler) RecordDaily(ctx context.Context, in RecordDailyInput) (audit domain.DailyPaymentAudit, err error) {
	defer r.observe(LedgerPayments, "record", time.Now(), &err)

	if in.Date.IsZero() {
		return domain.DailyPaymentAudit{}, fmt.Errorf("%w: audit date is required", domain.ErrValidation)
	}
	a, err := variance.NormalizeNonNegative("source_a_amount", in.SourceA)
	if err != nil {
		return domain.DailyPaymentAudit{}, err
	}
	b, err := variance.NormalizeNonNegative("source_b_amount", in.SourceB)
	if err != nil {
		return domain.DailyPaymentAudit{}, err
	}
	c, err := variance.NormalizeNonNegative("source_c_amount", in.SourceC)
	if err != nil {
		return domain.DailyPaymentAudit{}, err
	}
	if err := variance.CheckRange("pos_total", b.Add(c)); err != nil {
		return domain.DailyPaymentAudit{}, err
	}
	v := variance.Compute(a, b.Add(c))
	if err := variance.CheckRange("variance", v.Amount); err != nil {
		return domain.DailyPaymentAudit{}, err
	}

	audit, err = r.store.Upsert(ctx, domain.DailyPaymentAudit{
		AuditDate: domain.Date(in.Date),
		SourceA:   a,
		SourceB:   b,
		SourceC:   c,
		POSTotal:  v.Actual,
		Variance:  v.Amount,
	}, r.now())
	if err != nil {
		return domain.DailyPaymentAudit{}, err
	}

	status, err := r.policy.Classify(ctx, LedgerPayments, v)
	if err != nil {
		r.log.Warn("classify payment variance", zap.String("audit_date", domain.FormatDate(audit.AuditDate)), zap.Error(err))
	}
	if status.Flagged() {
		r.metrics.ObserveFlagged(LedgerPayments)
	}
	r.publish(ctx, domain.LedgerEvent{
		Type:    domain.EventPaymentAuditRecorded,
		Key:     domain.FormatDate(audit.AuditDate),
		Flagged: status.Flagged(),
		Data:    audit,
	})
	return audit, nil
}

func (r *PaymentReconciler) GetVariance(ctx context.Context, date time.Time) (res VarianceResult, err error) {
	defer r.observe(LedgerPayments, "variance", time.Now(), &err)

	audit, err := r.store.Get(ctx, date)
	if err != nil {
		return VarianceResult{}, err
	}
	v := auditVariance(audit)
	status, err := r.policy.Classify(ctx, LedgerPayments, v)
	if err != nil {
		return VarianceResult{}, fmt.Errorf("classify variance: %w", err)
	}
	return VarianceResult{Audit: audit, Variance: v, Status: status, Flagged: status.Flagged()}, nil
}

func (r *PaymentReconciler) ListAudits(ctx context.Context, rng domain.DateRange) ([]domain.DailyPaymentAudit, error) {
	return r.store.List(ctx, rng)
}

func (r *PaymentReconciler) ListRevisions(ctx context.Context, date time.Time) ([]domain.DailyPaymentAuditRevision, error) {
	return r.store.Revisions(ctx, date)
}

// Report summarises the audits in rng. LargestVariance is the signed
// variance with the greatest magnitude.
func (r *PaymentReconciler) Report(ctx context.Context, rng domain.DateRange) (report domain.PaymentAuditReport, err error) {
	defer r.observe(LedgerPayments, "report", time.Now(), &err)

	audits, err := r.store.List(ctx, rng)
	if err != nil {
		return domain.PaymentAuditReport{}, err
	}
	report = domain.PaymentAuditReport{
		From:            rng.From,
		To:              rng.To,
		TotalDays:       len(audits),
		TotalVariance:   decimal.Zero,
		LargestVariance: decimal.Zero,
		Records:         audits,
	}
	for _, audit := range audits {
		if !audit.Variance.IsZero() {
			report.DaysWithVariance++
		}
		report.TotalVariance = report.TotalVariance.Add(audit.Variance)
		if audit.Variance.Abs().GreaterThan(report.LargestVariance.Abs()) {
			report.LargestVariance = audit.Variance
		}
		status, err := r.policy.Classify(ctx, LedgerPayments, auditVariance(audit))
		if err != nil {
			return domain.PaymentAuditReport{}, fmt.Errorf("classify variance: %w", err)
		}
		if status.Flagged() {
			report.DaysFlagged++
		}
	}
	return report, nil
}

func auditVariance(audit domain.DailyPaymentAudit) variance.Variance {
	return variance.Compute(audit.SourceA, audit.POSTotal)
}
