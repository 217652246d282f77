package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"crm-service/internal/catalog"
	"crm-service/internal/model"
)

// ListCategories lists the categories of the request tenant.
func (h *Handler) ListCategories(c echo.Context) error {
	categories, err := h.Catalog.ListCategories(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, categories)
}

// GetCategory returns one category.
func (h *Handler) GetCategory(c echo.Context) error {
	id, err := paramID(c, "handler.GetCategory")
	if err != nil {
		return err
	}
	category, err := h.Catalog.GetCategory(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, category)
}

// CreateCategory creates a category.
func (h *Handler) CreateCategory(c echo.Context) error {
	const op = "handler.CreateCategory"
	var req catalog.CategoryInput
	if err := bind(c, op, &req); err != nil {
		return err
	}
	category, err := h.Catalog.CreateCategory(c.Request().Context(), req)
	if err != nil {
		return err
	}

	h.publish(c, model.ActionCreate)
	return c.JSON(http.StatusCreated, category)
}

// UpdateCategory renames a category.
func (h *Handler) UpdateCategory(c echo.Context) error {
	const op = "handler.UpdateCategory"
	id, err := paramID(c, op)
	if err != nil {
		return err
	}
	var req catalog.CategoryInput
	if err := bind(c, op, &req); err != nil {
		return err
	}
	category, err := h.Catalog.UpdateCategory(c.Request().Context(), id, req)
	if err != nil {
		return err
	}

	h.publish(c, model.ActionUpdate)
	return c.JSON(http.StatusOK, category)
}

// DeleteCategory removes a category.
func (h *Handler) DeleteCategory(c echo.Context) error {
	id, err := paramID(c, "handler.DeleteCategory")
	if err != nil {
		return err
	}
	if err := h.Catalog.DeleteCategory(c.Request().Context(), id); err != nil {
		return err
	}

	h.publish(c, model.ActionDelete)
	return c.NoContent(http.StatusNoContent)
}
