// Package handler holds the HTTP handlers of the API. Handlers read the
// tenant and principal from the RequestContext, call the domain services and
// publish one action_log event per authenticated action. Errors are returned
// as apperr values and rendered by the server's error handler.
package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"crm-service/internal/apperr"
	"crm-service/internal/audit"
	"crm-service/internal/catalog"
	"crm-service/internal/identity"
	"crm-service/internal/prediction"
	"crm-service/internal/registry"
	"crm-service/internal/requestctx"
	"crm-service/internal/tenantdb"
)

// Handler bundles the services the handlers depend on.
type Handler struct {
	Store     *tenantdb.Store
	Registry  *registry.Registry
	Identity  *identity.Service
	Tokens    identity.TokenService
	Audit     *audit.Bus
	Bitacora  *audit.Reader
	Catalog   *catalog.Service
	Predictor *prediction.Forwarder
}

// bind decodes the request body into v.
func bind(c echo.Context, op string, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return apperr.Invalid(op, "invalid request body", nil)
	}
	return nil
}

// paramID parses the :id path parameter. Malformed ids cannot name an
// existing entity and are reported as not found.
func paramID(c echo.Context, op string) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, apperr.NotFound(op, "not found")
	}
	return uint(id), nil
}

// queryUint parses an optional unsigned query parameter into fields on error.
func queryUint(c echo.Context, name string, fields map[string]string) *uint {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		fields[name] = "must be a positive integer"
		return nil
	}
	id := uint(v)
	return &id
}

// queryBool parses an optional boolean query parameter into fields on error.
func queryBool(c echo.Context, name string, fields map[string]string) *bool {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		fields[name] = "must be a boolean"
		return nil
	}
	return &v
}

// publish emits action for the authenticated principal of the request.
func (h *Handler) publish(c echo.Context, action string) {
	ctx := c.Request().Context()
	h.Audit.Publish(ctx, requestctx.Principal(ctx), action)
}
