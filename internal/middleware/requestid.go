package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"crm-service/internal/clientip"
	"crm-service/internal/requestctx"
	"crm-service/pkg/logger"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = echo.HeaderXRequestID

const maxRequestIDLength = 128

// RequestID assigns the request id, derives the client IP and opens the
// RequestContext every later stage fills in. An incoming X-Request-ID is kept
// when it is short and made of [A-Za-z0-9._-] only.
func RequestID(trustProxy bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(HeaderRequestID)
			if !validRequestID(requestID) {
				requestID = uuid.New().String()
			}
			req.Header.Set(HeaderRequestID, requestID)
			c.Response().Header().Set(HeaderRequestID, requestID)
			c.Set("request_id", requestID)

			rc := &requestctx.RequestContext{
				RequestID: requestID,
				ClientIP:  clientip.FromRequest(req, trustProxy),
			}

			c.SetRequest(req.WithContext(requestctx.With(req.Context(), rc)))
			logger.Attach(c, zap.String("request_id", requestID))

			return next(c)
		}
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		switch b := id[i]; {
		case 'a' <= b && b <= 'z', 'A' <= b && b <= 'Z', '0' <= b && b <= '9':
		case b == '.', b == '_', b == '-':
		default:
			return false
		}
	}
	return true
}
