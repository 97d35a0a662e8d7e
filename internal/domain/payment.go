package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyPaymentAudit compares the payment processor total (SourceA) against
// the sum of the two POS system totals for one calendar day.
type DailyPaymentAudit struct {
	AuditDate time.Time       `json:"audit_date"`
	SourceA   decimal.Decimal `json:"source_a_amount"`
	SourceB   decimal.Decimal `json:"source_b_amount"`
	SourceC   decimal.Decimal `json:"source_c_amount"`
	POSTotal  decimal.Decimal `json:"pos_total"`
	Variance  decimal.Decimal `json:"variance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type DailyPaymentAuditRevision struct {
	Seq        int64           `json:"seq"`
	AuditDate  time.Time       `json:"audit_date"`
	SourceA    decimal.Decimal `json:"source_a_amount"`
	SourceB    decimal.Decimal `json:"source_b_amount"`
	SourceC    decimal.Decimal `json:"source_c_amount"`
	POSTotal   decimal.Decimal `json:"pos_total"`
	Variance   decimal.Decimal `json:"variance"`
	RecordedAt time.Time       `json:"recorded_at"`
}

type PaymentAuditReport struct {
	From             time.Time           `json:"from"`
	To               time.Time           `json:"to"`
	TotalDays        int                 `json:"total_days"`
	DaysWithVariance int                 `json:"days_with_variance"`
	DaysFlagged      int                 `json:"days_flagged"`
	TotalVariance    decimal.Decimal     `json:"total_variance"`
	LargestVariance  decimal.Decimal     `json:"largest_variance"`
	Records          []DailyPaymentAudit `json:"records"`
}
