package fingerprint

import (
	"testing"

	"reconledger/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeOrdersKeysAndNumbers(t *testing.T) {
	out, err := Canonicalize([]byte(`{ "b": 1.50, "a": [true, null, "x\ny"], "c": 1e2 }`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":[true,null,"x\ny"],"b":1.5,"c":100}`, string(out))
}

func TestCanonicalizeRejectsTrailingData(t *testing.T) {
	_, err := Canonicalize([]byte(`{"a":1} {"b":2}`))
	require.Error(t, err)
}

func TestFormatNumber(t *testing.T) {
	cases := map[float64]string{
		0:         "0",
		-2.5:      "-2.5",
		1e21:      "1e21",
		0.0000001: "1e-7",
		123456789: "123456789",
		0.001:     "0.001",
	}
	for in, want := range cases {
		got, err := formatNumber(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, "format %v", in)
	}
}

func TestFingerprintStableAcrossLayout(t *testing.T) {
	f := New()
	a, err := f.Of([]byte(`{"receipt":"R-1","total":12.5,"lines":[{"sku":"A","qty":1}]}`))
	require.NoError(t, err)
	b, err := f.Of([]byte("{\n  \"lines\": [{\"qty\": 1, \"sku\": \"A\"}],\n  \"total\": 12.50,\n  \"receipt\": \"R-1\"\n}"))
	require.NoError(t, err)
	assert.Equal(t, a.Hash, b.Hash)
	assert.Equal(t, string(a.Canonical), string(b.Canonical))
	assert.Len(t, a.Hash, 64)
}

func TestFingerprintDiffersOnContent(t *testing.T) {
	f := New()
	a, err := f.Of([]byte(`{"receipt":"R-1","total":12.5}`))
	require.NoError(t, err)
	b, err := f.Of([]byte(`{"receipt":"R-1","total":12.6}`))
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash, b.Hash)
}

func TestFingerprintIgnoresVolatileKeys(t *testing.T) {
	f := New("fetched_at")
	a, err := f.Of([]byte(`{"receipt":"R-1","fetched_at":"2026-10-01T10:00:00Z"}`))
	require.NoError(t, err)
	b, err := f.Of([]byte(`{"receipt":"R-1","fetched_at":"2026-10-01T10:05:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, a.Hash, b.Hash)
	assert.Contains(t, string(b.Canonical), "10:05:00Z")
}

func TestFingerprintRejectsNonObjects(t *testing.T) {
	f := New()
	for _, payload := range []string{`[]`, `"x"`, `{}`, `{"a":`, ``} {
		_, err := f.Of([]byte(payload))
		require.ErrorIs(t, err, domain.ErrValidation, "payload %q", payload)
	}
}
