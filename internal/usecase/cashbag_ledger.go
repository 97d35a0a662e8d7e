package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"reconledger/internal/domain"
	"reconledger/internal/variance"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultBagIDAttempts = 8

type AssignBagInput struct {
	AssignmentDate   time.Time
	SourceSystem     string
	SourceIdentifier string
	ExpectedAmount   decimal.Decimal
	EmployeeID       string
	POSDeviceID      string
	ShiftID          string
}

type VerifyBagInput struct {
	BagID         string
	CountedAmount decimal.Decimal
	CountedBy     string
	Notes         string
}

type CashBagConfig struct {
	// Sources lists the accepted source systems; at least two.
	Sources    []string
	IDAttempts int
	NewID      func() (string, error)
	Policy     MaterialityPolicy
}

// CashBagLedger runs blind verification: the expected amount is fixed at
// assignment, the counter sees only the bag id, and variance is computed
// once the single count is recorded.
type CashBagLedger struct {
	store    CashBagStore
	sources  map[string]struct{}
	attempts int
	newID    func() (string, error)
	policy   MaterialityPolicy
	deps
}

func NewCashBagLedger(store CashBagStore, cfg CashBagConfig, opts ...Option) (*CashBagLedger, error) {
	if len(cfg.Sources) < 2 {
		return nil, fmt.Errorf("%w: at least two cash bag source systems are required", domain.ErrValidation)
	}
	sources := make(map[string]struct{}, len(cfg.Sources))
	for _, s := range cfg.Sources {
		sources[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	l := &CashBagLedger{
		store:    store,
		sources:  sources,
		attempts: cfg.IDAttempts,
		newID:    cfg.NewID,
		policy:   cfg.Policy,
		deps:     applyOptions(opts),
	}
	if l.attempts <= 0 {
		l.attempts = defaultBagIDAttempts
	}
	if l.newID == nil {
		l.newID = NewBagID
	}
	if l.policy == nil {
		l.policy = ThresholdPolicy{}
	}
	return l, nil
}

func (l *CashBagLedger) Assign(ctx context.Context, in AssignBagInput) (domain.BagAssignment, error) {
	out, err := l.AssignBatch(ctx, []AssignBagInput{in})
	if err != nil {
		return domain.BagAssignment{}, err
	}
	return out[0], nil
}

// AssignBatch assigns every bag or none. Identifier collisions are retried
// with fresh identifiers up to the configured number of attempts.
func (l *CashBagLedger) AssignBatch(ctx context.Context, ins []AssignBagInput) (assigned []domain.BagAssignment, err error) {
	defer l.observe(LedgerCashBags, "assign", time.Now(), &err)

	if len(ins) == 0 {
		return nil, fmt.Errorf("%w: no bags to assign", domain.ErrValidation)
	}
	now := l.now()
	pending := make([]domain.BagAssignment, 0, len(ins))
	for i, in := range ins {
		a, err := l.validateAssignment(in)
		if err != nil {
			if len(ins) > 1 {
				return nil, fmt.Errorf("bag %d: %w", i, err)
			}
			return nil, err
		}
		a.CreatedAt = now
		pending = append(pending, a)
	}

	for attempt := 1; attempt <= l.attempts; attempt++ {
		err = l.issueIDs(pending)
		if err == nil {
			assigned, err = l.store.Assign(ctx, pending)
		}
		if err == nil {
			for _, a := range assigned {
				l.publish(ctx, domain.LedgerEvent{
					Type: domain.EventCashBagAssigned,
					Key:  a.BagID,
					Data: domain.BlindBag{BagID: a.BagID, AssignmentDate: a.AssignmentDate},
				})
			}
			return assigned, nil
		}
		if !errors.Is(err, domain.ErrDuplicateIdentifier) {
			return nil, err
		}
		l.log.Warn("bag id collision, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}
	return nil, fmt.Errorf("could not issue a unique bag id after %d attempts", l.attempts)
}

func (l *CashBagLedger) issueIDs(pending []domain.BagAssignment) error {
	seen := make(map[string]struct{}, len(pending))
	for i := range pending {
		id, err := l.newID()
		if err != nil {
			return fmt.Errorf("generate bag id: %w", err)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s repeated within batch", domain.ErrDuplicateIdentifier, id)
		}
		seen[id] = struct{}{}
		pending[i].BagID = id
	}
	return nil
}

func (l *CashBagLedger) validateAssignment(in AssignBagInput) (domain.BagAssignment, error) {
	if in.AssignmentDate.IsZero() {
		return domain.BagAssignment{}, fmt.Errorf("%w: assignment_date is required", domain.ErrValidation)
	}
	source := strings.ToLower(strings.TrimSpace(in.SourceSystem))
	if _, ok := l.sources[source]; !ok {
		return domain.BagAssignment{}, fmt.Errorf("%w: unknown source_system %q", domain.ErrValidation, in.SourceSystem)
	}
	ident := strings.TrimSpace(in.SourceIdentifier)
	if ident == "" {
		return domain.BagAssignment{}, fmt.Errorf("%w: source_identifier is required", domain.ErrValidation)
	}
	expected, err := variance.NormalizeNonNegative("expected_amount", in.ExpectedAmount)
	if err != nil {
		return domain.BagAssignment{}, err
	}
	return domain.BagAssignment{
		AssignmentDate:   domain.Date(in.AssignmentDate),
		SourceSystem:     source,
		SourceIdentifier: ident,
		ExpectedAmount:   expected,
		EmployeeID:       strings.TrimSpace(in.EmployeeID),
		POSDeviceID:      strings.TrimSpace(in.POSDeviceID),
		ShiftID:          strings.TrimSpace(in.ShiftID),
	}, nil
}

// Verify records the one and only count of a bag.
func (l *CashBagLedger) Verify(ctx context.Context, in VerifyBagInput) (verification domain.BagVerification, err error) {
	defer l.observe(LedgerCashBags, "verify", time.Now(), &err)

	bagID := strings.TrimSpace(in.BagID)
	if bagID == "" {
		return domain.BagVerification{}, fmt.Errorf("%w: bag_id is required", domain.ErrValidation)
	}
	if !ValidBagID(bagID) {
		return domain.BagVerification{}, unknownBag(bagID)
	}
	countedBy := strings.TrimSpace(in.CountedBy)
	if countedBy == "" {
		return domain.BagVerification{}, fmt.Errorf("%w: counted_by is required", domain.ErrValidation)
	}
	counted, err := variance.NormalizeNonNegative("counted_amount", in.CountedAmount)
	if err != nil {
		return domain.BagVerification{}, err
	}

	var v variance.Variance
	verification, err = l.store.Verify(ctx, bagID, func(a domain.BagAssignment) (domain.BagVerification, error) {
		v = variance.Compute(a.ExpectedAmount, counted)
		if err := variance.CheckRange("variance", v.Amount); err != nil {
			return domain.BagVerification{}, err
		}
		return domain.BagVerification{
			CountedAmount: counted,
			CountedBy:     countedBy,
			Variance:      v.Amount,
			Notes:         strings.TrimSpace(in.Notes),
			VerifiedAt:    l.now(),
		}, nil
	})
	if err != nil {
		return domain.BagVerification{}, err
	}

	status, err := l.policy.Classify(ctx, LedgerCashBags, v)
	if err != nil {
		l.log.Warn("classify cash bag variance", zap.String("bag_id", bagID), zap.Error(err))
	}
	if status.Flagged() {
		l.metrics.ObserveFlagged(LedgerCashBags)
	}
	l.publish(ctx, domain.LedgerEvent{
		Type:    domain.EventCashBagVerified,
		Key:     verification.BagID,
		Flagged: status.Flagged(),
		Data:    verification,
	})
	return verification, nil
}

// GetDiscrepancies lists verified bags assigned in rng whose variance is
// material. A nil threshold defers to the ledger's MaterialityPolicy, the
// same rule Verify flags with; a non-nil one overrides it for this query.
func (l *CashBagLedger) GetDiscrepancies(ctx context.Context, rng domain.DateRange, threshold *variance.Threshold) (out []domain.Discrepancy, err error) {
	defer l.observe(LedgerCashBags, "discrepancies", time.Now(), &err)

	policy := l.policy
	if threshold != nil {
		policy = ThresholdPolicy{Threshold: *threshold}
	}
	verified, err := l.store.Verified(ctx, rng)
	if err != nil {
		return nil, err
	}
	out = make([]domain.Discrepancy, 0, len(verified))
	for _, d := range verified {
		status, err := policy.Classify(ctx, LedgerCashBags, variance.Compute(d.ExpectedAmount, d.CountedAmount))
		if err != nil {
			return nil, fmt.Errorf("classify bag %s: %w", d.BagID, err)
		}
		if status.Flagged() {
			out = append(out, d)
		}
	}
	return out, nil
}

func (l *CashBagLedger) Get(ctx context.Context, bagID string) (domain.CashBag, error) {
	bagID = strings.TrimSpace(bagID)
	if !ValidBagID(bagID) {
		return domain.CashBag{}, unknownBag(bagID)
	}
	return l.store.Get(ctx, bagID)
}

func (l *CashBagLedger) ListUnverified(ctx context.Context) ([]domain.BlindBag, error) {
	return l.store.ListUnverified(ctx)
}

// Delete removes an assignment that has not been counted yet. The
// identifier is not released.
func (l *CashBagLedger) Delete(ctx context.Context, bagID string) (err error) {
	defer l.observe(LedgerCashBags, "delete", time.Now(), &err)

	bagID = strings.TrimSpace(bagID)
	if !ValidBagID(bagID) {
		return unknownBag(bagID)
	}
	if err := l.store.Delete(ctx, bagID); err != nil {
		return err
	}
	l.publish(ctx, domain.LedgerEvent{Type: domain.EventCashBagDeleted, Key: bagID})
	return nil
}

// unknownBag is returned for identifiers NewBagID could never have issued.
func unknownBag(bagID string) error {
	return fmt.Errorf("%w: bag %q", domain.ErrNotFound, bagID)
}
