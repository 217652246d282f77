// Package registry is the source of truth for tenant identity: the mapping
// from a normalized DNS name to a tenant.
package registry

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"crm-service/internal/apperr"
	"crm-service/internal/model"
	"crm-service/internal/tenantdb"
)

const (
	maxDomainLength = 253
	maxLabelLength  = 63
	maxNameLength   = 100
)

// Registry reads and writes the tenants table.
type Registry struct {
	store *tenantdb.Store
	log   *zap.Logger

	// coalesces concurrent lookups of the same domain
	lookups singleflight.Group
}

// New returns a Registry backed by store.
func New(store *tenantdb.Store, log *zap.Logger) *Registry {
	return &Registry{store: store, log: log}
}

// NormalizeDomain trims d, lowercases it and strips a single trailing dot.
func NormalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	return strings.TrimSuffix(d, ".")
}

// ValidateDomain checks that d, already normalized, is a bare host name: no
// scheme, port, path or whitespace, and DNS label syntax.
func ValidateDomain(d string) error {
	switch {
	case d == "":
		return errors.New("required")
	case len(d) > maxDomainLength:
		return errors.New("too long")
	case strings.Contains(d, "://"):
		return errors.New("must not include a scheme")
	case strings.ContainsAny(d, ":"):
		return errors.New("must not include a port")
	case strings.ContainsAny(d, "/?#"):
		return errors.New("must not include a path")
	}

	for _, label := range strings.Split(d, ".") {
		if label == "" || len(label) > maxLabelLength {
			return errors.New("invalid label length")
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return errors.New("labels must not start or end with a hyphen")
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-') {
				return errors.New("invalid character")
			}
		}
	}
	return nil
}

// FindByDomain returns the tenant whose domain equals the normalized d.
// Misses are reported as apperr.ETenantNotFound.
func (r *Registry) FindByDomain(ctx context.Context, d string) (*model.Tenant, error) {
	const op = "registry.FindByDomain"
	domain := NormalizeDomain(d)
	if domain == "" {
		return nil, apperr.TenantNotFound(op)
	}

	// A lookup inside a unit of work must see the unit's own writes.
	if tenantdb.InUnit(ctx) {
		return r.lookup(ctx, domain)
	}

	v, err, _ := r.lookups.Do(domain, func() (interface{}, error) {
		return r.lookup(context.WithoutCancel(ctx), domain)
	})
	if err != nil {
		return nil, err
	}
	tenant := *v.(*model.Tenant)
	return &tenant, nil
}

func (r *Registry) lookup(ctx context.Context, domain string) (*model.Tenant, error) {
	const op = "registry.FindByDomain"
	var tenant model.Tenant
	err := r.store.Do(ctx, op, func(db *gorm.DB) error {
		return db.Where("domain = ?", domain).First(&tenant).Error
	})
	if apperr.Is(err, apperr.ENotFound) {
		return nil, apperr.TenantNotFound(op)
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// Register creates a tenant. The domain is stored normalized; a domain that
// already exists in any letter case yields apperr.EConflict.
func (r *Registry) Register(ctx context.Context, name, domain string) (*model.Tenant, error) {
	const op = "registry.Register"

	name = strings.TrimSpace(name)
	domain = NormalizeDomain(domain)

	fields := map[string]string{}
	if name == "" {
		fields["name"] = "required"
	} else if utf8.RuneCountInString(name) > maxNameLength {
		fields["name"] = "too long"
	}
	if err := ValidateDomain(domain); err != nil {
		fields["domain"] = err.Error()
	}
	if len(fields) > 0 {
		return nil, apperr.Invalid(op, "invalid tenant", fields)
	}

	tenant := &model.Tenant{Name: name, Domain: domain}
	err := r.store.Do(ctx, op, func(db *gorm.DB) error {
		return db.Create(tenant).Error
	})
	if apperr.Is(err, apperr.EConflict) {
		return nil, apperr.Conflict(op, "domain already registered", err)
	}
	if err != nil {
		return nil, err
	}

	r.log.Info("Tenant registered", zap.Uint("tenant_id", tenant.ID), zap.String("domain", tenant.Domain))
	return tenant, nil
}

// Get returns the tenant with the given id.
func (r *Registry) Get(ctx context.Context, id uint) (*model.Tenant, error) {
	const op = "registry.Get"
	var tenant model.Tenant
	err := r.store.Do(ctx, op, func(db *gorm.DB) error {
		return db.First(&tenant, id).Error
	})
	if apperr.Is(err, apperr.ENotFound) {
		return nil, apperr.NotFound(op, "tenant not found")
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// List returns every tenant ordered by id.
func (r *Registry) List(ctx context.Context) ([]model.Tenant, error) {
	var tenants []model.Tenant
	err := r.store.Do(ctx, "registry.List", func(db *gorm.DB) error {
		return db.Order("id asc").Find(&tenants).Error
	})
	return tenants, err
}

// ownedTables lists the tenant-owned tables, children first.
var ownedTables = []interface{}{
	&model.AuditRecord{},
	&model.Product{},
	&model.Category{},
	&model.User{},
}

// Delete removes the tenant and every row it owns in one transaction. The
// foreign keys cascade as well; deleting explicitly keeps stores without
// enforced foreign keys consistent.
func (r *Registry) Delete(ctx context.Context, id uint) error {
	const op = "registry.Delete"
	err := r.store.Transaction(ctx, func(ctx context.Context) error {
		return r.store.Do(ctx, op, func(db *gorm.DB) error {
			for _, m := range ownedTables {
				if err := db.Where("tenant_id = ?", id).Delete(m).Error; err != nil {
					return err
				}
			}
			res := db.Delete(&model.Tenant{}, id)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return apperr.NotFound(op, "tenant not found")
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	r.log.Info("Tenant deleted", zap.Uint("tenant_id", id))
	return nil
}
