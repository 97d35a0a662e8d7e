package variance

import (
	"fmt"
	"strings"

	"reconledger/internal/domain"

	"github.com/shopspring/decimal"
)

// Normalize rejects amounts that cannot be represented exactly at Scale or
// stored as int64 minor units.
func Normalize(field string, d decimal.Decimal) (decimal.Decimal, error) {
	rounded := d.Round(Scale)
	if !rounded.Equal(d) {
		return decimal.Decimal{}, fmt.Errorf("%w: %s has more than %d fractional digits", domain.ErrValidation, field, Scale)
	}
	if err := CheckRange(field, rounded); err != nil {
		return decimal.Decimal{}, err
	}
	return rounded, nil
}

// CheckRange fails with ErrValidation when d does not fit in int64 minor
// units. Derived totals are checked with it before they are stored.
func CheckRange(field string, d decimal.Decimal) error {
	if !d.Round(Scale).Shift(Scale).BigInt().IsInt64() {
		return fmt.Errorf("%w: %s is out of range", domain.ErrValidation, field)
	}
	return nil
}

// NormalizeNonNegative is Normalize plus a sign check; ledger inputs are
// never negative.
func NormalizeNonNegative(field string, d decimal.Decimal) (decimal.Decimal, error) {
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s must not be negative", domain.ErrValidation, field)
	}
	return Normalize(field, d)
}

func ParseAmount(field, value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: %s is required", domain.ErrValidation, field)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s is not a number", domain.ErrValidation, field)
	}
	return NormalizeNonNegative(field, d)
}

// MinorUnits converts a normalized amount to integer cents for storage. The
// amount must already have passed CheckRange.
func MinorUnits(d decimal.Decimal) int64 {
	return d.Round(Scale).Shift(Scale).IntPart()
}

func FromMinorUnits(units int64) decimal.Decimal {
	return decimal.New(units, -Scale)
}

func Format(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}
