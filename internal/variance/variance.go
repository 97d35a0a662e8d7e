// Package variance holds the discrepancy arithmetic shared by the payment
// reconciler and the cash bag ledger. Variance is always actual minus
// expected: a short count or an under-reported POS total is negative.
package variance

import (
	"fmt"
	"strings"

	"reconledger/internal/domain"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits every amount carries.
const Scale = 2

type Status string

const (
	StatusOK      Status = "ok"
	StatusFlagged Status = "flagged"
)

var hundred = decimal.NewFromInt(100)

type Variance struct {
	Expected decimal.Decimal `json:"expected"`
	Actual   decimal.Decimal `json:"actual"`
	Amount   decimal.Decimal `json:"amount"`
}

// Threshold is a materiality bound. A variance is flagged when its magnitude
// exceeds Absolute and, if Percent is positive, also exceeds Percent percent
// of the expected amount.
type Threshold struct {
	Absolute decimal.Decimal `json:"absolute"`
	Percent  decimal.Decimal `json:"percent"`
}

func Compute(expected, actual decimal.Decimal) Variance {
	expected = expected.Round(Scale)
	actual = actual.Round(Scale)
	return Variance{
		Expected: expected,
		Actual:   actual,
		Amount:   actual.Sub(expected),
	}
}

func Classify(v Variance, t Threshold) Status {
	magnitude := v.Amount.Abs()
	if !magnitude.GreaterThan(t.Absolute) {
		return StatusOK
	}
	if t.Percent.IsPositive() {
		bound := v.Expected.Abs().Mul(t.Percent).Div(hundred)
		if !magnitude.GreaterThan(bound) {
			return StatusOK
		}
	}
	return StatusFlagged
}

func (s Status) Flagged() bool {
	return s == StatusFlagged
}

func NewThreshold(absolute, percent decimal.Decimal) (Threshold, error) {
	if absolute.IsNegative() {
		return Threshold{}, fmt.Errorf("%w: threshold must not be negative", domain.ErrValidation)
	}
	if percent.IsNegative() {
		return Threshold{}, fmt.Errorf("%w: threshold percent must not be negative", domain.ErrValidation)
	}
	return Threshold{Absolute: absolute, Percent: percent}, nil
}

func ParseThreshold(absolute, percent string) (Threshold, error) {
	abs := decimal.Zero
	pct := decimal.Zero
	var err error
	if strings.TrimSpace(absolute) != "" {
		if abs, err = decimal.NewFromString(strings.TrimSpace(absolute)); err != nil {
			return Threshold{}, fmt.Errorf("%w: invalid threshold %q", domain.ErrValidation, absolute)
		}
	}
	if strings.TrimSpace(percent) != "" {
		if pct, err = decimal.NewFromString(strings.TrimSpace(percent)); err != nil {
			return Threshold{}, fmt.Errorf("%w: invalid threshold percent %q", domain.ErrValidation, percent)
		}
	}
	return NewThreshold(abs, pct)
}
