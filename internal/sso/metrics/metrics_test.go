package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestAudit(t *testing.T) {
	m := New()

	m.Audit("sso.auth.local.login", false)
	m.Audit("sso.auth.local.login", true)
	m.Audit("sso.auth.local.login", true)

	require.Equal(t, 1.0, testutil.ToFloat64(m.AuditRecords.WithLabelValues("sso.auth.local.login", "ok")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.AuditRecords.WithLabelValues("sso.auth.local.login", "error")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.Audit("x", false)
		m.Request("GET", "/livez", "200")
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.Request("GET", "/livez", "200")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `sso_http_requests_total{code="200",method="GET",route="/livez"} 1`)
}
