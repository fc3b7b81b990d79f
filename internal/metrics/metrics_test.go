package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Observe("post_quest", "ok")
	m.Moved("credit", 100)
	m.Expired(2)
	m.Resolved("split")
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New()
	m.Observe("accept_quest", "ok")
	m.Observe("accept_quest", "ok")
	m.Observe("accept_quest", "conflict")
	m.Moved("debit", 250)
	m.Moved("debit", 0)
	m.Expired(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("accept_quest", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("accept_quest", "conflict")))
	assert.Equal(t, 250.0, testutil.ToFloat64(m.escrowCents.WithLabelValues("debit")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.expired))
}

func TestHandlerServesText(t *testing.T) {
	m := New()
	m.Resolved("pay_hero")
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `campusquest_dispute_resolutions_total{resolution="pay_hero"} 1`)
}
