package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"crm-service/internal/apperr"
	"crm-service/internal/tenantdb"
	"crm-service/internal/testutil"
	"crm-service/pkg/jwtutil"
	"crm-service/prometheus"
)

func TestRender(t *testing.T) {
	status, body := render(apperr.TenantNotFound("x"))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, ErrorResponse{Error: apperr.ETenantNotFound}, body)

	status, body = render(fmt.Errorf("wrapped: %w", apperr.Invalid("x", "invalid product", map[string]string{"sku": "required"})))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid product", body.Detail)
	assert.Equal(t, map[string]string{"sku": "required"}, body.Fields)

	status, body = render(errors.New("pq: secret details"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal server error", body.Detail)

	status, body = render(echo.NewHTTPError(http.StatusMethodNotAllowed))
	assert.Equal(t, http.StatusMethodNotAllowed, status)
	assert.Equal(t, "method_not_allowed", body.Error)

	status, body = render(echo.NewHTTPError(http.StatusUnsupportedMediaType, "unsupported media type"))
	assert.Equal(t, http.StatusUnsupportedMediaType, status)
	assert.Equal(t, apperr.EInvalid, body.Error)
}

func TestMetricsRoute(t *testing.T) {
	cfg := testConfig()
	reg := promclient.NewRegistry()
	require.NoError(t, prometheus.InitMetrics(cfg, reg))

	log := zaptest.NewLogger(t)
	e := New(Options{
		Config:  cfg,
		Store:   tenantdb.New(testutil.NewDB(t), log),
		Tokens:  jwtutil.NewJWTUtil(&cfg.JWT),
		Log:     log,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tenant-info/", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `crm_tenant_resolutions_total{result="miss"} 1`)
}
