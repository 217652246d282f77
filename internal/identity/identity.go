// Package identity authenticates credentials into a Principal and manages
// the user accounts of a tenant.
package identity

import (
	"context"
	"net/mail"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"crm-service/internal/apperr"
	"crm-service/internal/model"
	"crm-service/internal/requestctx"
	"crm-service/internal/tenantdb"
	"crm-service/pkg/logger"
	"crm-service/prometheus"
)

// Authentication failure reasons. They are logged and counted but never
// returned to the client.
const (
	ReasonUnknownAccount = "unknown_account"
	ReasonInactive       = "inactive"
	ReasonBadPassword    = "bad_password"
	ReasonTenantMismatch = "tenant_mismatch"
)

const (
	maxUsernameLength = 150
	minPasswordLength = 8
)

// Service authenticates users and manages accounts.
type Service struct {
	store  *tenantdb.Store
	hasher *PasswordHasher
}

// NewService returns a Service storing accounts through store.
func NewService(store *tenantdb.Store, hasher *PasswordHasher) *Service {
	return &Service{store: store, hasher: hasher}
}

// Authenticate checks login, a username or an email address, and password.
// Unknown accounts, inactive accounts, wrong passwords and accounts of
// another tenant all yield the same apperr.EAuthFailed error.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*model.Principal, error) {
	const op = "identity.Authenticate"
	prometheus.RecordAuthAttempt()

	login = strings.TrimSpace(login)
	var user model.User
	err := s.store.Do(ctx, op, func(db *gorm.DB) error {
		// usernames never contain '@', so the two lookups cannot collide
		if strings.Contains(login, "@") {
			return db.Where("email = ?", strings.ToLower(login)).First(&user).Error
		}
		return db.Where("username = ?", login).First(&user).Error
	})
	if apperr.Is(err, apperr.ENotFound) {
		s.hasher.Burn(password)
		return nil, s.reject(ctx, op, ReasonUnknownAccount, zap.String("login", login))
	}
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Verify(user.PasswordHash, password)
	if err != nil {
		logger.FromContext(ctx).Warn("Stored password hash cannot be verified",
			zap.Uint("user_id", user.ID), zap.Error(err))
	}
	if !ok {
		return nil, s.reject(ctx, op, ReasonBadPassword, zap.Uint("user_id", user.ID))
	}

	return s.admit(ctx, op, &user)
}

// LoadPrincipal returns the principal of an already verified bearer token,
// applying the same account checks as Authenticate.
func (s *Service) LoadPrincipal(ctx context.Context, userID uint) (*model.Principal, error) {
	const op = "identity.LoadPrincipal"

	var user model.User
	err := s.store.Do(ctx, op, func(db *gorm.DB) error {
		return db.First(&user, userID).Error
	})
	if apperr.Is(err, apperr.ENotFound) {
		return nil, s.reject(ctx, op, ReasonUnknownAccount, zap.Uint("user_id", userID))
	}
	if err != nil {
		return nil, err
	}
	return s.admit(ctx, op, &user)
}

func (s *Service) admit(ctx context.Context, op string, user *model.User) (*model.Principal, error) {
	if !user.IsActive {
		return nil, s.reject(ctx, op, ReasonInactive, zap.Uint("user_id", user.ID))
	}

	p := user.Principal()
	tenantID, bound := requestctx.From(ctx).TenantID()
	if bound && !p.CanAccessTenant(tenantID) || !bound && !p.IsPlatform() {
		return nil, s.reject(ctx, op, ReasonTenantMismatch,
			zap.Uint("user_id", user.ID), zap.Uint("request_tenant_id", tenantID))
	}
	return p, nil
}

func (s *Service) reject(ctx context.Context, op, reason string, fields ...zap.Field) error {
	prometheus.RecordAuthError(reason)
	logger.FromContext(ctx).Warn("Authentication failed", append(fields, zap.String("reason", reason))...)
	return apperr.AuthFailed(op)
}

// NewUser is the input of CreateUser.
type NewUser struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsStaff   bool   `json:"is_staff"`
}

func (in *NewUser) normalize() {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
}

func (in *NewUser) validate() map[string]string {
	fields := map[string]string{}
	switch {
	case in.Username == "":
		fields["username"] = "required"
	case utf8.RuneCountInString(in.Username) > maxUsernameLength:
		fields["username"] = "too long"
	case strings.ContainsAny(in.Username, " \t\r\n"):
		fields["username"] = "must not contain whitespace"
	case strings.Contains(in.Username, "@"):
		fields["username"] = "must not contain @"
	}
	if in.Email == "" {
		fields["email"] = "required"
	} else if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		fields["email"] = "invalid email address"
	}
	if utf8.RuneCountInString(in.Password) < minPasswordLength {
		fields["password"] = "must be at least 8 characters"
	}
	return fields
}

func (s *Service) newUser(op string, in NewUser) (*model.User, error) {
	in.normalize()
	if fields := in.validate(); len(fields) > 0 {
		return nil, apperr.Invalid(op, "invalid user", fields)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		IsActive:     true,
		IsStaff:      in.IsStaff,
	}, nil
}

// CreateUser creates an account in the tenant of ctx.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (*model.User, error) {
	const op = "identity.CreateUser"

	user, err := s.newUser(op, in)
	if err != nil {
		return nil, err
	}
	scope, err := s.store.Scope(ctx)
	if err != nil {
		return nil, err
	}
	if err := scope.Create(user); err != nil {
		if apperr.Is(err, apperr.EConflict) {
			return nil, apperr.Conflict(op, "username or email already in use", err)
		}
		return nil, err
	}

	logger.FromContext(ctx).Info("User created", zap.Uint("user_id", user.ID), zap.Uint("tenant_id", scope.TenantID()))
	return user, nil
}

// CreateSuperuser creates a platform account that belongs to no tenant.
func (s *Service) CreateSuperuser(ctx context.Context, in NewUser) (*model.User, error) {
	const op = "identity.CreateSuperuser"

	user, err := s.newUser(op, in)
	if err != nil {
		return nil, err
	}
	user.IsStaff = true
	user.IsSuperuser = true

	err = s.store.Do(ctx, op, func(db *gorm.DB) error {
		return db.Create(user).Error
	})
	if apperr.Is(err, apperr.EConflict) {
		return nil, apperr.Conflict(op, "username or email already in use", err)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ListUsers returns the accounts of the tenant of ctx.
func (s *Service) ListUsers(ctx context.Context) ([]model.User, error) {
	scope, err := s.store.Scope(ctx)
	if err != nil {
		return nil, err
	}
	users := []model.User{}
	if err := scope.Query(&model.User{}).Order("id asc").Find(&users); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser returns one account of the tenant of ctx.
func (s *Service) GetUser(ctx context.Context, id uint) (*model.User, error) {
	scope, err := s.store.Scope(ctx)
	if err != nil {
		return nil, err
	}
	var user model.User
	if err := scope.Get(&user, id); err != nil {
		if apperr.Is(err, apperr.ENotFound) {
			return nil, apperr.NotFound("identity.GetUser", "user not found")
		}
		return nil, err
	}
	return &user, nil
}

// DeleteUser removes an account of the tenant of ctx. Its bitácora records
// remain with the actor cleared.
func (s *Service) DeleteUser(ctx context.Context, id uint) error {
	const op = "identity.DeleteUser"

	if p := requestctx.Principal(ctx); p != nil && p.UserID == id {
		return apperr.Conflict(op, "cannot delete the current user", nil)
	}
	scope, err := s.store.Scope(ctx)
	if err != nil {
		return err
	}
	if err := scope.Delete(&model.User{}, id); err != nil {
		if apperr.Is(err, apperr.ENotFound) {
			return apperr.NotFound(op, "user not found")
		}
		return err
	}

	logger.FromContext(ctx).Info("User deleted", zap.Uint("user_id", id), zap.Uint("tenant_id", scope.TenantID()))
	return nil
}
