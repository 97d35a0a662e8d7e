package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, []string{"loyverse", "aronium"}, cfg.Ledger.CashBagSources)
	assert.Equal(t, 8, cfg.Ledger.CashBagIDAttempts)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow())

	th, err := cfg.Materiality()
	require.NoError(t, err)
	assert.True(t, th.Absolute.IsZero())
	assert.True(t, th.Percent.IsZero())
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.yaml")
	body := `
http:
  addr: ":9090"
ledger:
  materiality_absolute: "5.00"
  materiality_percent: "1.5"
  cash_bag_sources: [loyverse, aronium, square]
rate_limit:
  requests: 50
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("HTTP_ADDR", ":7070")
	t.Setenv("CASH_BAG_ID_ATTEMPTS", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, []string{"loyverse", "aronium", "square"}, cfg.Ledger.CashBagSources)
	assert.Equal(t, 3, cfg.Ledger.CashBagIDAttempts)
	assert.Equal(t, 50, cfg.RateLimit.Requests)

	th, err := cfg.Materiality()
	require.NoError(t, err)
	assert.True(t, th.Absolute.Equal(decimal.RequireFromString("5")))
	assert.True(t, th.Percent.Equal(decimal.RequireFromString("1.5")))
}

func TestLoadRejectsNegativeMateriality(t *testing.T) {
	t.Setenv("MATERIALITY_ABSOLUTE", "-1")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadRejectsSingleSource(t *testing.T) {
	t.Setenv("CASH_BAG_SOURCES", "loyverse")
	_, err := Load("")
	require.Error(t, err)
}

func TestFromEnvFallsBackOnInvalidValues(t *testing.T) {
	t.Setenv("MATERIALITY_PERCENT", "abc")
	cfg := FromEnv()
	assert.Equal(t, "0", cfg.Ledger.MaterialityPercent)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_INT", "nope")
	assert.Equal(t, 4, envIntDefault("X_INT", 4))
	t.Setenv("X_BOOL", "yes")
	assert.True(t, envBoolDefault("X_BOOL", false))
	t.Setenv("X_LIST", " a, ,b ")
	assert.Equal(t, []string{"a", "b"}, envList("X_LIST"))
}
