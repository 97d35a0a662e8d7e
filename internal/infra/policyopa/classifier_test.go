package policyopa

import (
	"context"
	"testing"

	"reconledger/internal/variance"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDefaultPolicyMatchesBuiltinClassifier(t *testing.T) {
	thresholds := []variance.Threshold{
		{},
		{Absolute: d("5")},
		{Absolute: d("1"), Percent: d("2.5")},
	}
	cases := [][2]string{
		{"100.00", "100.00"},
		{"100.00", "99.99"},
		{"100.00", "104.00"},
		{"100.00", "94.00"},
		{"1000.00", "1020.00"},
		{"1000.00", "1030.00"},
		{"0.00", "3.00"},
	}
	ctx := context.Background()
	for _, th := range thresholds {
		c, err := NewDefaultClassifier(ctx, th)
		require.NoError(t, err)
		for _, tc := range cases {
			v := variance.Compute(d(tc[0]), d(tc[1]))
			got, err := c.Classify(ctx, "payments", v)
			require.NoError(t, err)
			assert.Equal(t, variance.Classify(v, th), got, "threshold %+v expected %s actual %s", th, tc[0], tc[1])
		}
	}
}

func TestCustomPolicyPerLedger(t *testing.T) {
	src := []byte(`package reconledger.materiality

import future.keywords.if

default flagged := false

flagged if {
	input.ledger == "cash_bags"
	input.amount < 0
}

result := {"flagged": flagged}
`)
	c, err := NewClassifier(context.Background(), "short.rego", src, variance.Threshold{})
	require.NoError(t, err)
	assert.NotEmpty(t, c.PolicyHash())

	short := variance.Compute(d("100"), d("99.99"))
	over := variance.Compute(d("100"), d("150"))

	status, err := c.Classify(context.Background(), "cash_bags", short)
	require.NoError(t, err)
	assert.True(t, status.Flagged())

	status, err = c.Classify(context.Background(), "cash_bags", over)
	require.NoError(t, err)
	assert.False(t, status.Flagged())

	status, err = c.Classify(context.Background(), "payments", short)
	require.NoError(t, err)
	assert.False(t, status.Flagged())
}

func TestPolicyRejectsForbiddenBuiltins(t *testing.T) {
	src := []byte(`package reconledger.materiality

result := {"flagged": time.now_ns() > 0}
`)
	_, err := NewClassifier(context.Background(), "bad.rego", src, variance.Threshold{})
	require.Error(t, err)
}
