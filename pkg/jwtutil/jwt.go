package jwtutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"crm-service/internal/apperr"
	"crm-service/internal/model"
	"crm-service/pkg/config"
)

// Token types carried in the "typ" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// UserClaims represents the JWT claims for user authentication
type UserClaims struct {
	Email     string `json:"email"`
	UserID    uint   `json:"user_id"`
	TenantID  *uint  `json:"tenant_id,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// JWTUtil is the local token service: HS256 access/refresh pairs signed with
// a shared key.
type JWTUtil struct {
	config *config.JWTConfig
	now    func() time.Time
}

// NewJWTUtil creates a new JWT utility with the given configuration
func NewJWTUtil(config *config.JWTConfig) *JWTUtil {
	return &JWTUtil{config: config, now: time.Now}
}

// Issue mints an access/refresh pair for p.
func (j *JWTUtil) Issue(_ context.Context, p *model.Principal) (*model.TokenPair, error) {
	const op = "jwtutil.Issue"
	if j.config == nil || j.config.SigningKey == "" {
		return nil, apperr.Internal(op, errors.New("JWT configuration not provided"))
	}

	access, err := j.sign(p.UserID, p.Email, p.TenantID, TypeAccess, j.config.AccessTTL)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	refresh, err := j.sign(p.UserID, p.Email, p.TenantID, TypeRefresh, j.config.RefreshTTL)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}

	return &model.TokenPair{
		Access:    access,
		Refresh:   refresh,
		ExpiresIn: int(j.config.AccessTTL.Seconds()),
	}, nil
}

// Refresh exchanges a valid refresh token for a new pair.
func (j *JWTUtil) Refresh(ctx context.Context, refresh string) (*model.TokenPair, error) {
	claims, err := j.parse(refresh, TypeRefresh)
	if err != nil {
		return nil, apperr.AuthFailed("jwtutil.Refresh")
	}
	return j.Issue(ctx, &model.Principal{UserID: claims.UserID, Email: claims.Email, TenantID: claims.TenantID})
}

// Verify validates an access token and returns the user it was issued to.
func (j *JWTUtil) Verify(_ context.Context, access string) (uint, error) {
	claims, err := j.parse(access, TypeAccess)
	if err != nil {
		return 0, apperr.AuthFailed("jwtutil.Verify")
	}
	return claims.UserID, nil
}

func (j *JWTUtil) sign(userID uint, email string, tenantID *uint, typ string, ttl time.Duration) (string, error) {
	now := j.now()
	claims := UserClaims{
		Email:     email,
		UserID:    userID,
		TenantID:  tenantID,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   fmt.Sprint(userID),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.config.SigningKey))
}

// parse validates tokenString and checks that it is of the wanted type.
func (j *JWTUtil) parse(tokenString, wantType string) (*UserClaims, error) {
	if j.config == nil || j.config.SigningKey == "" {
		return nil, errors.New("JWT configuration not provided")
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&UserClaims{},
		func(token *jwt.Token) (interface{}, error) {
			// Validate the signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(j.config.SigningKey), nil
		},
		jwt.WithTimeFunc(j.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TokenType != wantType {
		return nil, fmt.Errorf("expected %s token, got %q", wantType, claims.TokenType)
	}
	return claims, nil
}
