package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := New()
	c.ObserveOperation("tickets", "close", "ok", 5*time.Millisecond)
	c.ObserveOperation("tickets", "close", "ok", 7*time.Millisecond)
	c.ObserveOperation("tickets", "close", "INVALID_TRANSITION", time.Millisecond)
	c.ObserveFlagged("cash_bags")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.operations.WithLabelValues("tickets", "close", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.operations.WithLabelValues("tickets", "close", "INVALID_TRANSITION")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.flagged.WithLabelValues("cash_bags")))
}

func TestHandlerServesRegistry(t *testing.T) {
	c := New()
	c.ObserveRequest("GET", "/healthz", "200")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `reconledger_http_requests_total{method="GET",route="/healthz",status="200"} 1`))
}
