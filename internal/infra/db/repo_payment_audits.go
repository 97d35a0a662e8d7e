package db

import (
	"context"
	"fmt"
	"time"

	"reconledger/internal/domain"
	"reconledger/internal/variance"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentAuditRepository struct {
	db      *gorm.DB
	journal *Journal[DailyPaymentAuditModel, DailyPaymentAuditRevisionModel]
}

func NewPaymentAuditRepository(db *gorm.DB) *PaymentAuditRepository {
	return &PaymentAuditRepository{
		db:      db,
		journal: NewJournal[DailyPaymentAuditModel, DailyPaymentAuditRevisionModel](db, "seq ASC"),
	}
}

// Upsert writes the day's row, replacing any earlier statement, and appends
// the revision in the same transaction. created_at survives restatements.
func (r *PaymentAuditRepository) Upsert(ctx context.Context, audit domain.DailyPaymentAudit, now time.Time) (domain.DailyPaymentAudit, error) {
	if r.db == nil {
		return domain.DailyPaymentAudit{}, errDBUnavailable
	}
	now = normalizeTime(now)
	model := paymentAuditModelFromDomain(audit)
	model.CreatedAt = now
	model.UpdatedAt = now

	var stored DailyPaymentAuditModel
	_, err := r.journal.Record(ctx, func(tx *gorm.DB) ([]DailyPaymentAuditRevisionModel, error) {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "audit_date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"source_a_amount_cents",
				"source_b_amount_cents",
				"source_c_amount_cents",
				"pos_total_cents",
				"variance_cents",
				"updated_at",
			}),
		}).Create(&model).Error; err != nil {
			return nil, err
		}
		if err := tx.Where("audit_date = ?", model.AuditDate).Take(&stored).Error; err != nil {
			return nil, err
		}
		return []DailyPaymentAuditRevisionModel{{
			AuditDate:     stored.AuditDate,
			SourceACents:  stored.SourceACents,
			SourceBCents:  stored.SourceBCents,
			SourceCCents:  stored.SourceCCents,
			POSTotalCents: stored.POSTotalCents,
			VarianceCents: stored.VarianceCents,
			RecordedAt:    now,
		}}, nil
	})
	if err != nil {
		return domain.DailyPaymentAudit{}, translate("record payment audit", err)
	}
	return paymentAuditFromModel(stored), nil
}

func (r *PaymentAuditRepository) Get(ctx context.Context, date time.Time) (domain.DailyPaymentAudit, error) {
	model, err := r.journal.State(ctx, "audit_date = ?", domain.FormatDate(date))
	if err != nil {
		return domain.DailyPaymentAudit{}, translate("get payment audit", fmt.Errorf("audit for %s: %w", domain.FormatDate(date), err))
	}
	return paymentAuditFromModel(model), nil
}

// List returns the audits in the inclusive date range, oldest first.
func (r *PaymentAuditRepository) List(ctx context.Context, rng domain.DateRange) ([]domain.DailyPaymentAudit, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []DailyPaymentAuditModel
	if err := r.db.WithContext(ctx).
		Where("audit_date >= ? AND audit_date <= ?", domain.FormatDate(rng.From), domain.FormatDate(rng.To)).
		Order("audit_date ASC").
		Find(&models).Error; err != nil {
		return nil, translate("list payment audits", err)
	}
	out := make([]domain.DailyPaymentAudit, 0, len(models))
	for _, model := range models {
		out = append(out, paymentAuditFromModel(model))
	}
	return out, nil
}

func (r *PaymentAuditRepository) Revisions(ctx context.Context, date time.Time) ([]domain.DailyPaymentAuditRevision, error) {
	if _, err := r.Get(ctx, date); err != nil {
		return nil, err
	}
	models, err := r.journal.Entries(ctx, "audit_date = ?", domain.FormatDate(date))
	if err != nil {
		return nil, translate("list payment audit revisions", err)
	}
	out := make([]domain.DailyPaymentAuditRevision, 0, len(models))
	for _, m := range models {
		out = append(out, domain.DailyPaymentAuditRevision{
			Seq:        m.Seq,
			AuditDate:  parseStoredDate(m.AuditDate),
			SourceA:    variance.FromMinorUnits(m.SourceACents),
			SourceB:    variance.FromMinorUnits(m.SourceBCents),
			SourceC:    variance.FromMinorUnits(m.SourceCCents),
			POSTotal:   variance.FromMinorUnits(m.POSTotalCents),
			Variance:   variance.FromMinorUnits(m.VarianceCents),
			RecordedAt: m.RecordedAt.UTC(),
		})
	}
	return out, nil
}

func paymentAuditModelFromDomain(a domain.DailyPaymentAudit) DailyPaymentAuditModel {
	return DailyPaymentAuditModel{
		AuditDate:     domain.FormatDate(a.AuditDate),
		SourceACents:  variance.MinorUnits(a.SourceA),
		SourceBCents:  variance.MinorUnits(a.SourceB),
		SourceCCents:  variance.MinorUnits(a.SourceC),
		POSTotalCents: variance.MinorUnits(a.POSTotal),
		VarianceCents: variance.MinorUnits(a.Variance),
	}
}

func paymentAuditFromModel(m DailyPaymentAuditModel) domain.DailyPaymentAudit {
	return domain.DailyPaymentAudit{
		AuditDate: parseStoredDate(m.AuditDate),
		SourceA:   variance.FromMinorUnits(m.SourceACents),
		SourceB:   variance.FromMinorUnits(m.SourceBCents),
		SourceC:   variance.FromMinorUnits(m.SourceCCents),
		POSTotal:  variance.FromMinorUnits(m.POSTotalCents),
		Variance:  variance.FromMinorUnits(m.VarianceCents),
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}
