package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"crm-service/internal/apperr"
	"crm-service/internal/catalog"
	"crm-service/internal/model"
	"crm-service/pkg/logger"
)

// StockRequest adjusts a stock counter by Delta.
type StockRequest struct {
	Delta int `json:"delta"`
}

// ListProducts lists the products of the request tenant. Query parameters:
// is_active, category_id.
func (h *Handler) ListProducts(c echo.Context) error {
	fields := map[string]string{}
	f := catalog.ProductFilter{
		IsActive:   queryBool(c, "is_active", fields),
		CategoryID: queryUint(c, "category_id", fields),
	}
	if len(fields) > 0 {
		return apperr.Invalid("handler.ListProducts", "invalid query parameters", fields)
	}

	products, err := h.Catalog.ListProducts(c.Request().Context(), f)
	if err != nil {
		return err
	}
	logger.FromEcho(c).Debug("Products retrieved successfully", zap.Int("count", len(products)))
	return c.JSON(http.StatusOK, products)
}

// GetProduct returns one product.
func (h *Handler) GetProduct(c echo.Context) error {
	id, err := paramID(c, "handler.GetProduct")
	if err != nil {
		return err
	}
	product, err := h.Catalog.GetProduct(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, product)
}

// CreateProduct creates a product.
func (h *Handler) CreateProduct(c echo.Context) error {
	const op = "handler.CreateProduct"
	var req catalog.ProductInput
	if err := bind(c, op, &req); err != nil {
		return err
	}
	product, err := h.Catalog.CreateProduct(c.Request().Context(), req)
	if err != nil {
		return err
	}

	h.publish(c, model.ActionCreate)
	return c.JSON(http.StatusCreated, product)
}

// UpdateProduct replaces the writable fields of a product.
func (h *Handler) UpdateProduct(c echo.Context) error {
	const op = "handler.UpdateProduct"
	id, err := paramID(c, op)
	if err != nil {
		return err
	}
	var req catalog.ProductInput
	if err := bind(c, op, &req); err != nil {
		return err
	}
	product, err := h.Catalog.UpdateProduct(c.Request().Context(), id, req)
	if err != nil {
		return err
	}

	h.publish(c, model.ActionUpdate)
	return c.JSON(http.StatusOK, product)
}

// DeleteProduct removes a product.
func (h *Handler) DeleteProduct(c echo.Context) error {
	id, err := paramID(c, "handler.DeleteProduct")
	if err != nil {
		return err
	}
	if err := h.Catalog.DeleteProduct(c.Request().Context(), id); err != nil {
		return err
	}

	h.publish(c, model.ActionDelete)
	return c.NoContent(http.StatusNoContent)
}

// AdjustStock adds a signed delta to the stock counter of a product.
func (h *Handler) AdjustStock(c echo.Context) error {
	const op = "handler.AdjustStock"
	id, err := paramID(c, op)
	if err != nil {
		return err
	}
	var req StockRequest
	if err := bind(c, op, &req); err != nil {
		return err
	}
	if req.Delta == 0 {
		return apperr.Invalid(op, "invalid stock adjustment", map[string]string{"delta": "must not be zero"})
	}

	product, err := h.Catalog.AdjustStock(c.Request().Context(), id, req.Delta)
	if err != nil {
		return err
	}

	h.publish(c, model.ActionUpdate)
	return c.JSON(http.StatusOK, product)
}
