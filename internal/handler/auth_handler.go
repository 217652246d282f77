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

// CredentialsRequest carries a username or email address and a password.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest carries a refresh token.
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	User *model.Principal `json:"user"`
	*model.TokenPair
}

func (h *Handler) authenticate(c echo.Context, op string) (*model.Principal, *model.TokenPair, error) {
	var req CredentialsRequest
	if err := bind(c, op, &req); err != nil {
		return nil, nil, err
	}
	fields := map[string]string{}
	if req.Username == "" {
		fields["username"] = "required"
	}
	if req.Password == "" {
		fields["password"] = "required"
	}
	if len(fields) > 0 {
		return nil, nil, apperr.Invalid(op, "invalid credentials request", fields)
	}

	ctx := c.Request().Context()
	principal, err := h.Identity.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, nil, err
	}
	pair, err := h.Tokens.Issue(ctx, principal)
	if err != nil {
		return nil, nil, err
	}
	return principal, pair, nil
}

// ObtainToken exchanges credentials for an access/refresh token pair.
func (h *Handler) ObtainToken(c echo.Context) error {
	principal, pair, err := h.authenticate(c, "handler.ObtainToken")
	if err != nil {
		return err
	}

	h.Audit.Publish(c.Request().Context(), principal, model.ActionToken)
	return c.JSON(http.StatusOK, pair)
}

// RefreshToken exchanges a refresh token for a new pair.
func (h *Handler) RefreshToken(c echo.Context) error {
	const op = "handler.RefreshToken"
	var req RefreshRequest
	if err := bind(c, op, &req); err != nil {
		return err
	}
	if req.Refresh == "" {
		return apperr.Invalid(op, "invalid refresh request", map[string]string{"refresh": "required"})
	}

	pair, err := h.Tokens.Refresh(c.Request().Context(), req.Refresh)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pair)
}

// Login authenticates credentials, returns the principal with a token pair
// and records the login in the bitácora.
func (h *Handler) Login(c echo.Context) error {
	principal, pair, err := h.authenticate(c, "handler.Login")
	if err != nil {
		return err
	}

	logger.FromEcho(c).Info("User logged in", zap.Uint("user_id", principal.UserID))
	h.Audit.Publish(c.Request().Context(), principal, model.ActionLogin)
	return c.JSON(http.StatusOK, LoginResponse{User: principal, TokenPair: pair})
}

// CurrentUser returns the authenticated principal.
func (h *Handler) CurrentUser(c echo.Context) error {
	principal := requestctx.Principal(c.Request().Context())
	if principal == nil {
		return apperr.AuthFailed("handler.CurrentUser")
	}
	return c.JSON(http.StatusOK, principal)
}
