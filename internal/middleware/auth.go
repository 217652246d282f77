package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"crm-service/internal/apperr"
	"crm-service/internal/identity"
	"crm-service/internal/model"
	"crm-service/internal/requestctx"
	"crm-service/pkg/logger"
	"crm-service/prometheus"
)

var errMissingRequestContext = errors.New("request context not initialised")

// PrincipalLoader turns a verified user id into a principal admitted to the
// tenant of ctx.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, userID uint) (*model.Principal, error)
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// Auth authenticates the bearer token of the request and binds the principal
// to the RequestContext. It must run after TenantResolver.
func Auth(tokens identity.TokenService, principals PrincipalLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			const op = "middleware.Auth"
			log := logger.FromEcho(c)
			ctx := c.Request().Context()

			rc := requestctx.From(ctx)
			if rc == nil {
				return apperr.Internal(op, errMissingRequestContext)
			}

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				log.Warn("Missing Authorization header")
				prometheus.RecordAuthError("missing_token")
				return apperr.AuthFailed(op)
			}
			token, ok := BearerToken(header)
			if !ok {
				log.Warn("Invalid Authorization header format")
				prometheus.RecordAuthError("malformed_token")
				return apperr.AuthFailed(op)
			}

			userID, err := tokens.Verify(ctx, token)
			if err != nil {
				if apperr.Is(err, apperr.EAuthFailed) {
					log.Warn("Invalid bearer token", zap.Error(err))
					prometheus.RecordAuthError("invalid_token")
				}
				return err
			}

			principal, err := principals.LoadPrincipal(ctx, userID)
			if err != nil {
				return err
			}
			rc.Principal = principal

			logger.Attach(c, zap.Uint("user_id", principal.UserID))

			return next(c)
		}
	}
}

// RequireStaff admits staff members and superusers.
func RequireStaff(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p := requestctx.Principal(c.Request().Context())
		if p == nil || !(p.IsStaff || p.IsSuperuser) {
			return apperr.Forbidden("middleware.RequireStaff", "staff privileges required")
		}
		return next(c)
	}
}

// RequireSuperuser admits superusers only.
func RequireSuperuser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p := requestctx.Principal(c.Request().Context())
		if p == nil || !p.IsSuperuser {
			return apperr.Forbidden("middleware.RequireSuperuser", "superuser privileges required")
		}
		return next(c)
	}
}
