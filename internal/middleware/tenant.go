package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"crm-service/internal/apperr"
	"crm-service/internal/model"
	"crm-service/internal/requestctx"
	"crm-service/pkg/logger"
	"crm-service/prometheus"
)

// TenantFinder looks tenants up by domain.
type TenantFinder interface {
	FindByDomain(ctx context.Context, domain string) (*model.Tenant, error)
}

// HostOf reduces a Host header to the bare, lowercased domain: the port is
// dropped and every trailing dot stripped.
func HostOf(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return strings.TrimRight(host, ".")
}

// TenantResolver binds the tenant serving the request Host to the
// RequestContext. Unknown hosts end the request with 403 tenant_not_found
// before anything else runs.
func TenantResolver(tenants TenantFinder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			const op = "middleware.TenantResolver"
			log := logger.FromEcho(c)

			host := HostOf(c.Request().Host)
			if host == "" {
				prometheus.RecordTenantResolution("invalid_host")
				log.Warn("Request without a usable Host header")
				return apperr.TenantNotFound(op)
			}

			tenant, err := tenants.FindByDomain(c.Request().Context(), host)
			switch {
			case apperr.Is(err, apperr.ETenantNotFound):
				prometheus.RecordTenantResolution("miss")
				log.Warn("No tenant for host", zap.String("host", host))
				return apperr.TenantNotFound(op)
			case err != nil:
				prometheus.RecordTenantResolution("error")
				return err
			}
			prometheus.RecordTenantResolution("hit")

			rc := requestctx.FromEcho(c)
			if rc == nil {
				return apperr.Internal(op, errMissingRequestContext)
			}
			rc.Tenant = tenant

			logger.Attach(c, zap.Uint("tenant_id", tenant.ID))

			return next(c)
		}
	}
}
