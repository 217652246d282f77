// Package tenantdb is the only path from request handling to tenant-owned
// rows. Every read and write issued through a Scope carries the tenant
// predicate of the request's resolved tenant; callers cannot widen it.
//
// Platform tables (tenants, credential lookup) are reached through Store.Do,
// which applies no predicate.
package tenantdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"crm-service/internal/apperr"
)

// Owned is implemented by models whose rows belong to one tenant.
type Owned interface {
	OwnerTenantID() *uint
	SetOwnerTenantID(id uint)
}

// AppendOnly is implemented by models that may only be inserted.
type AppendOnly interface {
	AppendOnly()
}

const tenantColumn = "tenant_id"

// Store wraps the shared connection pool.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// New returns a Store over db.
func New(db *gorm.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log}
}

// Do runs fn against the platform tables without any tenant predicate. Inside
// a unit of work fn sees the unit's transaction; outside one a transient
// connection failure is retried once.
func (s *Store) Do(ctx context.Context, op string, fn func(db *gorm.DB) error) error {
	return s.exec(ctx, op, fn)
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return apperr.Internal("tenantdb.Ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return apperr.Unavailable("tenantdb.Ping", "database unavailable", err)
	}
	return nil
}

// Expr builds a raw SQL expression usable as an update value, e.g.
// Expr("stock + ?", 3).
func Expr(sql string, args ...interface{}) interface{} {
	return gorm.Expr(sql, args...)
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	if u := activeUnit(ctx); u != nil {
		return u.tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

func (s *Store) exec(ctx context.Context, op string, fn func(db *gorm.DB) error) error {
	err := fn(s.conn(ctx))
	if err != nil && activeUnit(ctx) == nil && retryable(err) && ctx.Err() == nil {
		s.log.Warn("Retrying after transient database error", zap.String("op", op), zap.Error(err))
		err = fn(s.conn(ctx))
	}
	if err != nil {
		return translate(op, err)
	}
	return nil
}

// retryable reports connection-level failures and serialization conflicts,
// which are safe to retry before any side effect was committed.
func retryable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

const uniqueViolation = "23505"

// translate maps storage errors onto the API error kinds. Errors that already
// carry a kind pass through.
func translate(op string, err error) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound(op, "not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Conflict(op, "already exists", err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperr.Conflict(op, "already exists", err)
	}
	return apperr.Internal(op, err)
}
