package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reconledger/internal/domain"
	"reconledger/internal/variance"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CashBagRepository struct {
	db *gorm.DB
}

func NewCashBagRepository(db *gorm.DB) *CashBagRepository {
	return &CashBagRepository{db: db}
}

// Assign registers every bag identifier and inserts the assignments in one
// transaction. An identifier that was ever issued before fails the whole
// batch with ErrDuplicateIdentifier.
func (r *CashBagRepository) Assign(ctx context.Context, assignments []domain.BagAssignment) ([]domain.BagAssignment, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	models := make([]BagAssignmentModel, 0, len(assignments))
	for _, a := range assignments {
		a.CreatedAt = normalizeTime(a.CreatedAt)
		models = append(models, bagAssignmentModelFromDomain(a))
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range models {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&IssuedBagIDModel{
				BagID:    models[i].BagID,
				IssuedAt: models[i].CreatedAt,
			})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: %s", domain.ErrDuplicateIdentifier, models[i].BagID)
			}
			if err := tx.Create(&models[i]).Error; err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: %s", domain.ErrDuplicateIdentifier, models[i].BagID)
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, translate("assign cash bags", err)
	}
	out := make([]domain.BagAssignment, 0, len(models))
	for _, m := range models {
		out = append(out, bagAssignmentFromModel(m))
	}
	return out, nil
}

// Verify records the single count for a bag. build receives the stored
// assignment and returns the verification to persist, so the variance is
// derived from the committed expected amount inside the transaction.
func (r *CashBagRepository) Verify(ctx context.Context, bagID string, build func(domain.BagAssignment) (domain.BagVerification, error)) (domain.BagVerification, error) {
	if r.db == nil {
		return domain.BagVerification{}, errDBUnavailable
	}
	var out domain.BagVerification
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var assignment BagAssignmentModel
		if err := tx.Where("bag_id = ?", bagID).Take(&assignment).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: bag %s", domain.ErrNotFound, bagID)
			}
			return err
		}
		verification, err := build(bagAssignmentFromModel(assignment))
		if err != nil {
			return err
		}
		verification.BagID = assignment.BagID
		verification.VerifiedAt = normalizeTime(verification.VerifiedAt)
		model := bagVerificationModelFromDomain(verification)
		if err := tx.Omit(clause.Associations).Create(&model).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: bag %s", domain.ErrAlreadyVerified, bagID)
			}
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: bag %s", domain.ErrNotFound, bagID)
			}
			return err
		}
		out = bagVerificationFromModel(model)
		return nil
	})
	if err != nil {
		return domain.BagVerification{}, translate("verify cash bag", err)
	}
	return out, nil
}

func (r *CashBagRepository) Get(ctx context.Context, bagID string) (domain.CashBag, error) {
	if r.db == nil {
		return domain.CashBag{}, errDBUnavailable
	}
	var assignment BagAssignmentModel
	if err := r.db.WithContext(ctx).Where("bag_id = ?", bagID).Take(&assignment).Error; err != nil {
		return domain.CashBag{}, translate("get cash bag", err)
	}
	bag := domain.CashBag{Assignment: bagAssignmentFromModel(assignment)}

	var verifications []BagVerificationModel
	if err := r.db.WithContext(ctx).Where("bag_id = ?", bagID).Limit(1).Find(&verifications).Error; err != nil {
		return domain.CashBag{}, translate("get cash bag verification", err)
	}
	if len(verifications) == 1 {
		v := bagVerificationFromModel(verifications[0])
		bag.Verification = &v
	}
	return bag, nil
}

// ListUnverified exposes only identifiers and dates; expected amounts stay
// hidden from whoever performs the count.
func (r *CashBagRepository) ListUnverified(ctx context.Context) ([]domain.BlindBag, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var rows []struct {
		BagID          string
		AssignmentDate string
	}
	if err := r.db.WithContext(ctx).
		Table("cash_bag_assignments AS a").
		Select("a.bag_id, a.assignment_date").
		Joins("LEFT JOIN cash_bag_verifications AS v ON v.bag_id = a.bag_id").
		Where("v.id IS NULL").
		Order("a.assignment_date ASC, a.bag_id ASC").
		Scan(&rows).Error; err != nil {
		return nil, translate("list unverified cash bags", err)
	}
	out := make([]domain.BlindBag, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.BlindBag{BagID: row.BagID, AssignmentDate: parseStoredDate(row.AssignmentDate)})
	}
	return out, nil
}

type verifiedBagRow struct {
	BagID            string
	AssignmentDate   string
	SourceSystem     string
	SourceIdentifier string
	ExpectedCents    int64
	CountedCents     int64
	VarianceCents    int64
	CountedBy        string
	VerifiedAt       time.Time
}

// Verified returns every verified bag assigned within rng, oldest first.
func (r *CashBagRepository) Verified(ctx context.Context, rng domain.DateRange) ([]domain.Discrepancy, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var rows []verifiedBagRow
	if err := r.db.WithContext(ctx).
		Table("cash_bag_assignments AS a").
		Select(`a.bag_id, a.assignment_date, a.source_system, a.source_identifier,
			a.expected_amount_cents AS expected_cents,
			v.counted_amount_cents AS counted_cents,
			v.variance_cents, v.counted_by, v.verified_at`).
		Joins("JOIN cash_bag_verifications AS v ON v.bag_id = a.bag_id").
		Where("a.assignment_date >= ? AND a.assignment_date <= ?", domain.FormatDate(rng.From), domain.FormatDate(rng.To)).
		Order("a.assignment_date ASC, a.bag_id ASC").
		Scan(&rows).Error; err != nil {
		return nil, translate("list verified cash bags", err)
	}
	out := make([]domain.Discrepancy, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Discrepancy{
			BagID:            row.BagID,
			AssignmentDate:   parseStoredDate(row.AssignmentDate),
			SourceSystem:     row.SourceSystem,
			SourceIdentifier: row.SourceIdentifier,
			ExpectedAmount:   variance.FromMinorUnits(row.ExpectedCents),
			CountedAmount:    variance.FromMinorUnits(row.CountedCents),
			Variance:         variance.FromMinorUnits(row.VarianceCents),
			CountedBy:        row.CountedBy,
			VerifiedAt:       row.VerifiedAt.UTC(),
		})
	}
	return out, nil
}

// Delete removes an unverified assignment. A counted bag stays on record so
// its variance remains auditable. The identifier stays in cash_bag_ids and
// is never issued again.
func (r *CashBagRepository) Delete(ctx context.Context, bagID string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var verified int64
		if err := tx.Model(&BagVerificationModel{}).Where("bag_id = ?", bagID).Count(&verified).Error; err != nil {
			return err
		}
		if verified > 0 {
			return fmt.Errorf("%w: bag %s is already verified", domain.ErrInvalidTransition, bagID)
		}
		res := tx.Where("bag_id = ?", bagID).Delete(&BagAssignmentModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: bag %s", domain.ErrNotFound, bagID)
		}
		return nil
	})
	return translate("delete cash bag", err)
}

// Issued reports whether an identifier was ever handed out.
func (r *CashBagRepository) Issued(ctx context.Context, bagID string) (bool, error) {
	if r.db == nil {
		return false, errDBUnavailable
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&IssuedBagIDModel{}).Where("bag_id = ?", bagID).Count(&count).Error; err != nil {
		return false, translate("lookup bag id", err)
	}
	return count > 0, nil
}

func bagAssignmentModelFromDomain(a domain.BagAssignment) BagAssignmentModel {
	return BagAssignmentModel{
		BagID:            a.BagID,
		AssignmentDate:   domain.FormatDate(a.AssignmentDate),
		SourceSystem:     a.SourceSystem,
		SourceIdentifier: a.SourceIdentifier,
		ExpectedCents:    variance.MinorUnits(a.ExpectedAmount),
		EmployeeID:       stringPtrIfNotEmpty(a.EmployeeID),
		POSDeviceID:      stringPtrIfNotEmpty(a.POSDeviceID),
		ShiftID:          stringPtrIfNotEmpty(a.ShiftID),
		CreatedAt:        normalizeTime(a.CreatedAt),
	}
}

func bagAssignmentFromModel(m BagAssignmentModel) domain.BagAssignment {
	return domain.BagAssignment{
		BagID:            m.BagID,
		AssignmentDate:   parseStoredDate(m.AssignmentDate),
		SourceSystem:     m.SourceSystem,
		SourceIdentifier: m.SourceIdentifier,
		ExpectedAmount:   variance.FromMinorUnits(m.ExpectedCents),
		EmployeeID:       stringValue(m.EmployeeID),
		POSDeviceID:      stringValue(m.POSDeviceID),
		ShiftID:          stringValue(m.ShiftID),
		CreatedAt:        m.CreatedAt.UTC(),
	}
}

func bagVerificationModelFromDomain(v domain.BagVerification) BagVerificationModel {
	return BagVerificationModel{
		BagID:         v.BagID,
		CountedCents:  variance.MinorUnits(v.CountedAmount),
		CountedBy:     v.CountedBy,
		VarianceCents: variance.MinorUnits(v.Variance),
		Notes:         stringPtrIfNotEmpty(v.Notes),
		VerifiedAt:    v.VerifiedAt,
	}
}

func bagVerificationFromModel(m BagVerificationModel) domain.BagVerification {
	return domain.BagVerification{
		BagID:         m.BagID,
		CountedAmount: variance.FromMinorUnits(m.CountedCents),
		CountedBy:     m.CountedBy,
		Variance:      variance.FromMinorUnits(m.VarianceCents),
		Notes:         stringValue(m.Notes),
		VerifiedAt:    m.VerifiedAt.UTC(),
	}
}
