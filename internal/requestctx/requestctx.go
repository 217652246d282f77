// Package requestctx carries the per-request RequestContext through
// context.Context. It is built by the request-id middleware and filled in by
// the tenant resolver and authentication stages.
package requestctx

import (
	"context"

	"github.com/labstack/echo/v4"

	"crm-service/internal/model"
)

type contextKey struct{ name string }

var requestContextKey = contextKey{"request_context"}

// RequestContext is the per-request bundle of tenant, principal, client IP and
// request id. It is never shared across requests.
type RequestContext struct {
	RequestID string
	ClientIP  string
	Tenant    *model.Tenant
	Principal *model.Principal
}

// TenantID returns the id of the bound tenant and true, or 0, false.
func (rc *RequestContext) TenantID() (uint, bool) {
	if rc == nil || rc.Tenant == nil {
		return 0, false
	}
	return rc.Tenant.ID, true
}

// With returns a context carrying rc.
func With(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// From returns the RequestContext stored in ctx, or nil.
func From(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey).(*RequestContext)
	return rc
}

// FromEcho returns the RequestContext of the echo request, or nil.
func FromEcho(c echo.Context) *RequestContext {
	return From(c.Request().Context())
}

// Tenant returns the tenant bound to ctx, or nil.
func Tenant(ctx context.Context) *model.Tenant {
	if rc := From(ctx); rc != nil {
		return rc.Tenant
	}
	return nil
}

// Principal returns the authenticated principal bound to ctx, or nil.
func Principal(ctx context.Context) *model.Principal {
	if rc := From(ctx); rc != nil {
		return rc.Principal
	}
	return nil
}
