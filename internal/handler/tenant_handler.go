package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"crm-service/internal/apperr"
	"crm-service/internal/model"
	"crm-service/internal/requestctx"
	"crm-service/pkg/logger"
)

// RegisterTenantRequest is the body of a tenant registration.
type RegisterTenantRequest struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// TenantInfo returns the tenant resolved for the request host.
func (h *Handler) TenantInfo(c echo.Context) error {
	tenant := requestctx.Tenant(c.Request().Context())
	if tenant == nil {
		return apperr.TenantNotFound("handler.TenantInfo")
	}
	return c.JSON(http.StatusOK, tenant)
}

// RegisterTenant creates a tenant. Superusers only.
func (h *Handler) RegisterTenant(c echo.Context) error {
	const op = "handler.RegisterTenant"
	var req RegisterTenantRequest
	if err := bind(c, op, &req); err != nil {
		return err
	}

	tenant, err := h.Registry.Register(c.Request().Context(), req.Name, req.Domain)
	if err != nil {
		return err
	}

	h.publish(c, model.ActionRegister)
	return c.JSON(http.StatusCreated, tenant)
}

// ListTenants lists every tenant. Superusers only.
func (h *Handler) ListTenants(c echo.Context) error {
	tenants, err := h.Registry.List(c.Request().Context())
	if err != nil {
		return err
	}
	if tenants == nil {
		tenants = []model.Tenant{}
	}
	return c.JSON(http.StatusOK, tenants)
}

// DeleteTenant removes a tenant and everything it owns. The tenant serving
// the request cannot delete itself.
func (h *Handler) DeleteTenant(c echo.Context) error {
	const op = "handler.DeleteTenant"
	id, err := paramID(c, op)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if current, ok := requestctx.From(ctx).TenantID(); ok && current == id {
		return apperr.Conflict(op, "cannot delete the tenant serving this request", nil)
	}

	if err := h.Registry.Delete(ctx, id); err != nil {
		return err
	}

	logger.FromEcho(c).Info("Tenant deleted through the API", zap.Uint("deleted_tenant_id", id))
	h.publish(c, model.ActionDelete)
	return c.NoContent(http.StatusNoContent)
}
