package handler

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"crm-service/internal/apperr"
	"crm-service/internal/model"
	"crm-service/internal/requestctx"
)

const maxPredictBody = 1 << 20

// Predict forwards the request body to the prediction service and relays its
// answer. Upstream failures surface as 503 and upstream 4xx answers are
// relayed as they are.
func (h *Handler) Predict(c echo.Context) error {
	const op = "handler.Predict"
	ctx := c.Request().Context()

	tenantID, ok := requestctx.From(ctx).TenantID()
	if !ok {
		return apperr.TenantNotFound(op)
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPredictBody))
	if err != nil {
		return apperr.Invalid(op, "invalid request body", nil)
	}

	resp, err := h.Predictor.Forward(ctx, tenantID, c.Request().Header.Get(echo.HeaderContentType), body)
	if err != nil {
		return err
	}

	// rejected inputs are relayed but not audited
	if resp.Status < http.StatusBadRequest {
		h.publish(c, model.ActionPredict)
	}
	contentType := resp.ContentType
	if contentType == "" {
		contentType = echo.MIMEApplicationJSON
	}
	return c.Blob(resp.Status, contentType, resp.Body)
}
