package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"reconledger/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	t *testing.T
}

// newCLI points every invocation at a fresh SQLite file.
func newCLI(t *testing.T) cli {
	t.Helper()
	t.Setenv("LEDGER_CONFIG", "")
	t.Setenv("NATS_URL", "")
	t.Setenv("VARIANCE_POLICY_PATH", "")
	t.Setenv("POSTGRES_DSN", "sqlite:file:"+filepath.Join(t.TempDir(), "ledger.db")+"?_pragma=foreign_keys(1)")
	return cli{t: t}
}

func (c cli) run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"ledgerctl"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (c cli) ok(out any, args ...string) {
	c.t.Helper()
	code, stdout, stderr := c.run(args...)
	require.Equal(c.t, 0, code, stderr)
	if out != nil {
		require.NoError(c.t, json.Unmarshal([]byte(stdout), out), stdout)
	}
}

func TestUsage(t *testing.T) {
	c := newCLI(t)
	code, _, stderr := c.run()
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "usage:")

	code, _, _ = c.run("ticket", "explode")
	assert.Equal(t, 1, code)
}

func TestMigrate(t *testing.T) {
	c := newCLI(t)
	var out map[string]string
	c.ok(&out, "migrate")
	assert.Equal(t, "migrated", out["status"])
}

func TestTicketCommands(t *testing.T) {
	c := newCLI(t)

	var ingested struct {
		Ticket domain.Ticket `json:"ticket"`
		IsNew  bool          `json:"is_new"`
	}
	c.ok(&ingested, "ticket", "ingest", "--id", "T-1", "--payload", `{"table":2,"items":["tea"]}`)
	assert.True(t, ingested.IsNew)

	c.ok(&ingested, "ticket", "ingest", "--id", "T-2", "--payload", `{"items":["tea"],"table":2}`)
	assert.False(t, ingested.IsNew)
	assert.Equal(t, "T-1", ingested.Ticket.TicketID)

	var closed domain.Ticket
	c.ok(&closed, "ticket", "close", "--id", "T-1")
	assert.Equal(t, domain.TicketClosed, closed.Status)

	code, _, stderr := c.run("ticket", "close", "--id", "T-1")
	assert.Equal(t, 1, code)
	assert.True(t, strings.HasPrefix(stderr, "INVALID_TRANSITION"))

	var history []domain.TicketEvent
	c.ok(&history, "ticket", "history", "--id", "T-1")
	assert.Len(t, history, 2)

	code, _, _ = c.run("ticket", "close")
	assert.Equal(t, 1, code)
}

func TestTicketHeartbeat(t *testing.T) {
	c := newCLI(t)
	c.ok(nil, "ticket", "ingest", "--id", "A", "--payload", `{"n":1}`)
	c.ok(nil, "ticket", "ingest", "--id", "B", "--payload", `{"n":2}`)

	var out struct {
		Closed []string `json:"closed"`
	}
	c.ok(&out, "ticket", "heartbeat", "--open", "A")
	assert.Equal(t, []string{"B"}, out.Closed)

	var open []domain.Ticket
	c.ok(&open, "ticket", "open")
	require.Len(t, open, 1)
	assert.Equal(t, "A", open[0].TicketID)
}

func TestAuditCommands(t *testing.T) {
	c := newCLI(t)

	var res struct {
		Audit   domain.DailyPaymentAudit `json:"audit"`
		Flagged bool                     `json:"flagged"`
	}
	c.ok(&res, "audit", "record", "--date", "2026-03-02", "--source-a", "500.00", "--source-b", "200.00", "--source-c", "290.00")
	assert.Equal(t, "-10", res.Audit.Variance.String())
	assert.True(t, res.Flagged)

	var report domain.PaymentAuditReport
	c.ok(&report, "audit", "report", "--from", "2026-03-01", "--to", "2026-03-31")
	assert.Equal(t, 1, report.TotalDays)
	assert.Equal(t, 1, report.DaysWithVariance)

	code, _, stderr := c.run("audit", "record", "--date", "2026-03-02", "--source-a", "-1", "--source-b", "0", "--source-c", "0")
	assert.Equal(t, 1, code)
	assert.True(t, strings.HasPrefix(stderr, "VALIDATION_ERROR"))
}

func TestBagCommands(t *testing.T) {
	c := newCLI(t)

	var assignment domain.BagAssignment
	c.ok(&assignment, "bag", "assign", "--date", "2026-03-02", "--source", "aronium", "--source-id", "Z-9", "--expected", "120.00")
	require.NotEmpty(t, assignment.BagID)

	var blind []domain.BlindBag
	c.ok(&blind, "bag", "unverified")
	require.Len(t, blind, 1)

	var verification domain.BagVerification
	c.ok(&verification, "bag", "verify", "--id", assignment.BagID, "--counted", "100.00", "--by", "kim")
	assert.Equal(t, "-20", verification.Variance.String())

	code, _, stderr := c.run("bag", "verify", "--id", assignment.BagID, "--counted", "100.00", "--by", "kim")
	assert.Equal(t, 1, code)
	assert.True(t, strings.HasPrefix(stderr, "ALREADY_VERIFIED"))

	var records []domain.Discrepancy
	c.ok(&records, "bag", "discrepancies", "--from", "2026-03-01", "--to", "2026-03-31", "--threshold", "50")
	assert.Empty(t, records)
	c.ok(&records, "bag", "discrepancies", "--from", "2026-03-01", "--to", "2026-03-31")
	assert.Len(t, records, 1)

	code, _, stderr = c.run("bag", "delete", "--id", assignment.BagID)
	assert.Equal(t, 1, code)
	assert.True(t, strings.HasPrefix(stderr, "INVALID_TRANSITION"))

	var uncounted domain.BagAssignment
	c.ok(&uncounted, "bag", "assign", "--date", "2026-03-03", "--source", "aronium", "--source-id", "Z-10", "--expected", "40.00")
	c.ok(nil, "bag", "delete", "--id", uncounted.BagID)
	code, _, _ = c.run("bag", "get", "--id", uncounted.BagID)
	assert.Equal(t, 1, code)
}
