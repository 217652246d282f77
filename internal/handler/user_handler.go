package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"crm-service/internal/identity"
	"crm-service/internal/model"
)

// ListUsers lists the accounts of the request tenant.
func (h *Handler) ListUsers(c echo.Context) error {
	users, err := h.Identity.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, users)
}

// CreateUser creates an account in the request tenant.
func (h *Handler) CreateUser(c echo.Context) error {
	const op = "handler.CreateUser"
	var req identity.NewUser
	if err := bind(c, op, &req); err != nil {
		return err
	}

	user, err := h.Identity.CreateUser(c.Request().Context(), req)
	if err != nil {
		return err
	}

	h.publish(c, model.ActionCreate)
	return c.JSON(http.StatusCreated, user)
}

// DeleteUser removes an account of the request tenant.
func (h *Handler) DeleteUser(c echo.Context) error {
	const op = "handler.DeleteUser"
	id, err := paramID(c, op)
	if err != nil {
		return err
	}
	if err := h.Identity.DeleteUser(c.Request().Context(), id); err != nil {
		return err
	}

	h.publish(c, model.ActionDelete)
	return c.NoContent(http.StatusNoContent)
}
