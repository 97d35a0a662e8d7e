package variance

import (
	"testing"

	"reconledger/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestComputeSignConvention(t *testing.T) {
	v := Compute(dec(t, "250.00"), dec(t, "245.00"))
	assert.Equal(t, "-5.00", Format(v.Amount))

	v = Compute(dec(t, "100.00"), dec(t, "100.00"))
	assert.True(t, v.Amount.IsZero())

	v = Compute(dec(t, "10.10"), dec(t, "10.30"))
	assert.Equal(t, "0.20", Format(v.Amount))
}

func TestComputeAvoidsFloatError(t *testing.T) {
	v := Compute(dec(t, "0.30"), dec(t, "0.1").Add(dec(t, "0.2")))
	assert.True(t, v.Amount.IsZero(), "0.1 + 0.2 must equal 0.30 exactly, got %s", v.Amount)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		expected  string
		actual    string
		threshold Threshold
		want      Status
	}{
		{name: "zero variance", expected: "100.00", actual: "100.00", threshold: Threshold{Absolute: dec(t, "0.01")}, want: StatusOK},
		{name: "short five", expected: "100.00", actual: "95.00", threshold: Threshold{Absolute: dec(t, "0.01")}, want: StatusFlagged},
		{name: "at threshold", expected: "100.00", actual: "99.99", threshold: Threshold{Absolute: dec(t, "0.01")}, want: StatusOK},
		{name: "any cent with zero threshold", expected: "100.00", actual: "100.01", threshold: Threshold{}, want: StatusFlagged},
		{name: "within percent", expected: "1000.00", actual: "995.00", threshold: Threshold{Absolute: dec(t, "1.00"), Percent: dec(t, "1")}, want: StatusOK},
		{name: "beyond percent", expected: "1000.00", actual: "985.00", threshold: Threshold{Absolute: dec(t, "1.00"), Percent: dec(t, "1")}, want: StatusFlagged},
		{name: "percent against zero expected", expected: "0.00", actual: "2.00", threshold: Threshold{Percent: dec(t, "5")}, want: StatusFlagged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(Compute(dec(t, tt.expected), dec(t, tt.actual)), tt.threshold)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestThresholdValidation(t *testing.T) {
	_, err := NewThreshold(dec(t, "-1"), decimal.Zero)
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = ParseThreshold("abc", "")
	require.ErrorIs(t, err, domain.ErrValidation)

	th, err := ParseThreshold("0.01", "")
	require.NoError(t, err)
	assert.True(t, th.Absolute.Equal(dec(t, "0.01")))
	assert.True(t, th.Percent.IsZero())
}

func TestAmountNormalization(t *testing.T) {
	_, err := ParseAmount("expected_amount", "10.001")
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = ParseAmount("expected_amount", "-1.00")
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = ParseAmount("expected_amount", "")
	require.ErrorIs(t, err, domain.ErrValidation)

	d, err := ParseAmount("expected_amount", "245.5")
	require.NoError(t, err)
	assert.Equal(t, int64(24550), MinorUnits(d))
	assert.Equal(t, "245.50", Format(FromMinorUnits(MinorUnits(d))))
}

func TestAmountRangeIsBoundedByMinorUnits(t *testing.T) {
	d, err := ParseAmount("expected_amount", "92233720368547758.07")
	require.NoError(t, err)
	assert.Equal(t, int64(9223372036854775807), MinorUnits(d))

	_, err = ParseAmount("expected_amount", "92233720368547758.08")
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = Normalize("counted_amount", dec(t, "100000000000000000.00"))
	require.ErrorIs(t, err, domain.ErrValidation)

	require.NoError(t, CheckRange("variance", dec(t, "-92233720368547758.08")))
	require.ErrorIs(t, CheckRange("variance", dec(t, "-92233720368547758.09")), domain.ErrValidation)
}
