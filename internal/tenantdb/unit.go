package tenantdb

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"crm-service/internal/apperr"
)

type unitKey struct{}

// Unit is a unit of work bound to one request. Hooks registered with OnCommit
// run inside the transaction right before COMMIT, so their writes commit or
// roll back together with the request's own writes.
type Unit struct {
	tx     *gorm.DB
	ctx    context.Context
	log    *zap.Logger
	hooks  []func(ctx context.Context) error
	closed bool
}

var errUnitClosed = errors.New("unit of work already finished")

func activeUnit(ctx context.Context) *Unit {
	u, _ := ctx.Value(unitKey{}).(*Unit)
	if u == nil || u.closed {
		return nil
	}
	return u
}

// Begin opens a unit of work and returns a context bound to it. Opening the
// transaction is retried once on a transient connection failure.
func (s *Store) Begin(ctx context.Context) (context.Context, *Unit, error) {
	const op = "tenantdb.Begin"
	if activeUnit(ctx) != nil {
		return ctx, nil, apperr.Internal(op, errors.New("unit of work already open"))
	}

	tx := s.db.WithContext(ctx).Begin()
	if err := tx.Error; err != nil && retryable(err) && ctx.Err() == nil {
		s.log.Warn("Retrying BEGIN after transient database error", zap.Error(err))
		tx = s.db.WithContext(ctx).Begin()
	}
	if err := tx.Error; err != nil {
		return ctx, nil, translate(op, err)
	}

	u := &Unit{tx: tx, log: s.log}
	u.ctx = context.WithValue(ctx, unitKey{}, u)
	return u.ctx, u, nil
}

// Commit runs the registered hooks and commits. A failing hook or a cancelled
// request context rolls everything back.
func (u *Unit) Commit() error {
	const op = "tenantdb.Commit"
	if u.closed {
		return apperr.Internal(op, errUnitClosed)
	}
	if err := u.ctx.Err(); err != nil {
		u.Rollback()
		return apperr.Internal(op, err)
	}

	// hooks may register further hooks
	for i := 0; i < len(u.hooks); i++ {
		if err := u.hooks[i](u.ctx); err != nil {
			u.Rollback()
			return translate(op, err)
		}
	}

	u.closed = true
	if err := u.tx.Commit().Error; err != nil {
		return apperr.Internal(op, err)
	}
	return nil
}

// Rollback discards the unit. It is a no-op once the unit is finished.
func (u *Unit) Rollback() {
	if u.closed {
		return
	}
	u.closed = true
	if err := u.tx.Rollback().Error; err != nil && !errors.Is(err, sql.ErrTxDone) {
		u.log.Debug("Rollback failed", zap.Error(err))
	}
}

// OnCommit registers fn to run inside the unit bound to ctx right before it
// commits. It reports false when ctx carries no open unit.
func OnCommit(ctx context.Context, fn func(ctx context.Context) error) bool {
	u := activeUnit(ctx)
	if u == nil {
		return false
	}
	u.hooks = append(u.hooks, fn)
	return true
}

// InUnit reports whether ctx is bound to an open unit of work.
func InUnit(ctx context.Context) bool {
	return activeUnit(ctx) != nil
}

// Transaction runs fn in a unit of work. When ctx already carries one fn joins
// it; otherwise a unit is opened, committed when fn succeeds and rolled back
// when it fails or panics.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if activeUnit(ctx) != nil {
		return fn(ctx)
	}

	ctx, u, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			u.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx); err != nil {
		u.Rollback()
		return err
	}
	return u.Commit()
}
