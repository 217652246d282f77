package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"crm-service/internal/apperr"
	"crm-service/pkg/logger"
)

// ErrorResponse is the error envelope of every failed request.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Detail string            `json:"detail,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// errorHandler renders err into the error envelope. It is the only place
// errors are translated to HTTP.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := render(err)
	log := logger.FromEcho(c)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", zap.String("code", body.Error), zap.Error(err))
	} else {
		log.Debug("Request rejected", zap.String("code", body.Error), zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		log.Error("Failed to write error response", zap.Error(err))
	}
}

func render(err error) (int, ErrorResponse) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return renderHTTPError(he)
	}

	code := apperr.ErrorCode(err)
	body := ErrorResponse{Error: code, Fields: apperr.ErrorFields(err)}
	// tenant misses carry no detail
	if code != apperr.ETenantNotFound {
		body.Detail = apperr.ErrorMessage(err)
	}
	return apperr.HTTPStatus(code), body
}

// renderHTTPError maps the errors echo raises itself (routing, binding).
func renderHTTPError(he *echo.HTTPError) (int, ErrorResponse) {
	detail := http.StatusText(he.Code)
	if msg, ok := he.Message.(string); ok && msg != "" {
		detail = msg
	}

	var code string
	switch {
	case he.Code == http.StatusNotFound:
		code = apperr.ENotFound
	case he.Code == http.StatusMethodNotAllowed:
		code = "method_not_allowed"
	case he.Code == http.StatusUnauthorized:
		code = apperr.EAuthFailed
	case he.Code == http.StatusForbidden:
		code = apperr.EForbidden
	case he.Code >= http.StatusInternalServerError:
		return http.StatusInternalServerError, ErrorResponse{Error: apperr.EInternal, Detail: "internal server error"}
	default:
		code = apperr.EInvalid
	}
	return he.Code, ErrorResponse{Error: code, Detail: detail}
}
