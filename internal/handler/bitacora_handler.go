package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"crm-service/internal/apperr"
	"crm-service/internal/audit"
)

// ListBitacora lists the audit records of the request tenant. Query
// parameters: action, user_id, limit, offset.
func (h *Handler) ListBitacora(c echo.Context) error {
	const op = "handler.ListBitacora"
	fields := map[string]string{}

	f := audit.Filter{
		Action: c.QueryParam("action"),
		UserID: queryUint(c, "user_id", fields),
	}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			fields["limit"] = "must be a positive integer"
		}
		f.Limit = n
	}
	if raw := c.QueryParam("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fields["offset"] = "must be a non-negative integer"
		}
		f.Offset = n
	}
	if len(fields) > 0 {
		return apperr.Invalid(op, "invalid query parameters", fields)
	}

	page, err := h.Bitacora.List(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// GetBitacora returns one audit record of the request tenant.
func (h *Handler) GetBitacora(c echo.Context) error {
	id, err := paramID(c, "handler.GetBitacora")
	if err != nil {
		return err
	}
	record, err := h.Bitacora.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, record)
}
