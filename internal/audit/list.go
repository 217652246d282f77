package audit

import (
	"context"

	"crm-service/internal/apperr"
	"crm-service/internal/model"
	"crm-service/internal/tenantdb"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Filter narrows a bitácora listing.
type Filter struct {
	Action string
	UserID *uint
	Limit  int
	Offset int
}

// Page is one page of a bitácora listing.
type Page struct {
	Count   int64               `json:"count"`
	Results []model.AuditRecord `json:"results"`
}

// Reader lists the bitácora of the request's tenant.
type Reader struct {
	store *tenantdb.Store
}

// NewReader returns a Reader over store.
func NewReader(store *tenantdb.Store) *Reader {
	return &Reader{store: store}
}

// List returns the records of the tenant of ctx matching f, oldest first;
// records sharing a timestamp keep insertion order.
func (r *Reader) List(ctx context.Context, f Filter) (*Page, error) {
	scope, err := r.store.Scope(ctx)
	if err != nil {
		return nil, err
	}

	q := scope.Query(&model.AuditRecord{})
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}

	count, err := q.Count()
	if err != nil {
		return nil, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	records := []model.AuditRecord{}
	if err := q.Order("timestamp asc").Order("id asc").Limit(limit).Offset(f.Offset).Find(&records); err != nil {
		return nil, err
	}
	return &Page{Count: count, Results: records}, nil
}

// Get returns one record of the tenant of ctx. Records of other tenants are
// not found.
func (r *Reader) Get(ctx context.Context, id uint) (*model.AuditRecord, error) {
	scope, err := r.store.Scope(ctx)
	if err != nil {
		return nil, err
	}
	var rec model.AuditRecord
	if err := scope.Get(&rec, id); err != nil {
		if apperr.Is(err, apperr.ENotFound) {
			return nil, apperr.NotFound("audit.Get", "audit record not found")
		}
		return nil, err
	}
	return &rec, nil
}
