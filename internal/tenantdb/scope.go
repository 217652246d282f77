package tenantdb

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"crm-service/internal/apperr"
	"crm-service/internal/requestctx"
)

var errNoTenant = errors.New("no tenant bound to request")

// Scope is the tenant-filtered view of the data for one request.
type Scope struct {
	store    *Store
	ctx      context.Context
	tenantID uint
}

// Scope returns the view bound to the tenant of ctx. A request that reached
// data access without a resolved tenant is a programming error.
func (s *Store) Scope(ctx context.Context) (*Scope, error) {
	id, ok := requestctx.From(ctx).TenantID()
	if !ok {
		return nil, apperr.Internal("tenantdb.Scope", errNoTenant)
	}
	return &Scope{store: s, ctx: ctx, tenantID: id}, nil
}

// TenantID returns the tenant every statement of sc is restricted to.
func (sc *Scope) TenantID() uint {
	return sc.tenantID
}

func (sc *Scope) filter(db *gorm.DB) *gorm.DB {
	return db.Where(tenantColumn+" = ?", sc.tenantID)
}

// Create inserts v stamped with the scope's tenant. A record that already
// names another tenant is rejected.
func (sc *Scope) Create(v Owned) error {
	const op = "tenantdb.Create"
	if owner := v.OwnerTenantID(); owner != nil && *owner != sc.tenantID {
		return apperr.Invalid(op, "tenant cannot be assigned explicitly", map[string]string{
			tenantColumn: "set from the request host",
		})
	}
	v.SetOwnerTenantID(sc.tenantID)

	return sc.store.exec(sc.ctx, op, func(db *gorm.DB) error {
		return db.Omit(clause.Associations).Create(v).Error
	})
}

// CreateUnowned inserts a row of a tenant-owned table that belongs to no
// tenant, such as the bitácora record of a platform action.
func (s *Store) CreateUnowned(ctx context.Context, v Owned) error {
	const op = "tenantdb.CreateUnowned"
	if v.OwnerTenantID() != nil {
		return apperr.Invalid(op, "record already belongs to a tenant", nil)
	}
	return s.exec(ctx, op, func(db *gorm.DB) error {
		return db.Omit(clause.Associations).Create(v).Error
	})
}

// Get loads the row with the given id into dest. Rows of other tenants are
// reported as not found.
func (sc *Scope) Get(dest Owned, id uint) error {
	return sc.store.exec(sc.ctx, "tenantdb.Get", func(db *gorm.DB) error {
		return sc.filter(db).First(dest, id).Error
	})
}

// Update applies values to the row with the given id and reloads it into v.
func (sc *Scope) Update(v Owned, id uint, values map[string]interface{}) error {
	const op = "tenantdb.Update"
	if err := checkWritable(op, v, values); err != nil {
		return err
	}

	return sc.store.exec(sc.ctx, op, func(db *gorm.DB) error {
		res := sc.filter(db.Model(v)).Where("id = ?", id).Updates(values)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return sc.filter(db).First(v, id).Error
	})
}

// Delete removes the row with the given id.
func (sc *Scope) Delete(v Owned, id uint) error {
	const op = "tenantdb.Delete"
	if _, ok := v.(AppendOnly); ok {
		return apperr.Internal(op, errors.New("append-only records cannot be deleted"))
	}

	return sc.store.exec(sc.ctx, op, func(db *gorm.DB) error {
		res := sc.filter(db).Where("id = ?", id).Delete(v)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func checkWritable(op string, model interface{}, values map[string]interface{}) error {
	if _, ok := model.(AppendOnly); ok {
		return apperr.Internal(op, errors.New("append-only records cannot be updated"))
	}
	if _, ok := values[tenantColumn]; ok {
		return apperr.Invalid(op, "tenant cannot be reassigned", map[string]string{
			tenantColumn: "read-only",
		})
	}
	return nil
}

// Query starts a tenant-filtered query over the table of model.
func (sc *Scope) Query(model Owned) *Query {
	return &Query{sc: sc, model: model}
}

// Query accumulates conditions; the tenant predicate is added when the
// statement is built and cannot be removed.
type Query struct {
	sc     *Scope
	model  Owned
	conds  []func(db *gorm.DB) *gorm.DB
	limit  int
	offset int
}

// Where adds a condition, ANDed with the others.
func (q *Query) Where(query string, args ...interface{}) *Query {
	q.conds = append(q.conds, func(db *gorm.DB) *gorm.DB {
		return db.Where(query, args...)
	})
	return q
}

// Order adds an ORDER BY term such as "timestamp desc".
func (q *Query) Order(value string) *Query {
	q.conds = append(q.conds, func(db *gorm.DB) *gorm.DB {
		return db.Order(value)
	})
	return q
}

// Limit caps the rows returned by Find.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Offset skips rows in Find.
func (q *Query) Offset(n int) *Query {
	q.offset = n
	return q
}

func (q *Query) build(db *gorm.DB) *gorm.DB {
	db = db.Model(q.model)
	for _, cond := range q.conds {
		db = cond(db)
	}
	return q.sc.filter(db)
}

// Find loads the matching rows into dest, a pointer to a slice.
func (q *Query) Find(dest interface{}) error {
	return q.sc.store.exec(q.sc.ctx, "tenantdb.Find", func(db *gorm.DB) error {
		db = q.build(db)
		if q.limit > 0 {
			db = db.Limit(q.limit)
		}
		if q.offset > 0 {
			db = db.Offset(q.offset)
		}
		return db.Find(dest).Error
	})
}

// First loads the first matching row into dest.
func (q *Query) First(dest interface{}) error {
	return q.sc.store.exec(q.sc.ctx, "tenantdb.First", func(db *gorm.DB) error {
		return q.build(db).First(dest).Error
	})
}

// Count returns the number of matching rows, ignoring Limit and Offset.
func (q *Query) Count() (int64, error) {
	var n int64
	err := q.sc.store.exec(q.sc.ctx, "tenantdb.Count", func(db *gorm.DB) error {
		return q.build(db).Count(&n).Error
	})
	return n, err
}

// UpdateAll applies values to every matching row.
func (q *Query) UpdateAll(values map[string]interface{}) (int64, error) {
	const op = "tenantdb.UpdateAll"
	if err := checkWritable(op, q.model, values); err != nil {
		return 0, err
	}

	var n int64
	err := q.sc.store.exec(q.sc.ctx, op, func(db *gorm.DB) error {
		res := q.build(db).Updates(values)
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}

// DeleteAll removes every matching row.
func (q *Query) DeleteAll() (int64, error) {
	const op = "tenantdb.DeleteAll"
	if _, ok := q.model.(AppendOnly); ok {
		return 0, apperr.Internal(op, errors.New("append-only records cannot be deleted"))
	}

	var n int64
	err := q.sc.store.exec(q.sc.ctx, op, func(db *gorm.DB) error {
		res := q.build(db).Delete(q.model)
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}
