// Package catalog manages the products and categories of a tenant. Every
// statement goes through the tenant-scoped facade.
package catalog

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"crm-service/internal/apperr"
	"crm-service/internal/model"
	"crm-service/internal/tenantdb"
	"crm-service/pkg/logger"
	"crm-service/prometheus"
)

// Service implements the catalog operations.
type Service struct {
	store *tenantdb.Store
}

// NewService returns a catalog Service over store.
func NewService(store *tenantdb.Store) *Service {
	return &Service{store: store}
}

// CategoryInput is the writable part of a category.
type CategoryInput struct {
	Name string `json:"name"`
}

func (in *CategoryInput) validate(op string) error {
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.Name == "":
		return apperr.Invalid(op, "invalid category", map[string]string{"name": "required"})
	case utf8.RuneCountInString(in.Name) > 100:
		return apperr.Invalid(op, "invalid category", map[string]string{"name": "too long"})
	}
	return nil
}

// ListCategories returns the categories of the tenant of ctx.
func (s *Service) ListCategories(ctx context.Context) ([]model.Category, error) {
	defer prometheus.TrackDBOperation("category_list")(time.Now())

	scope, err := s.store.Scope(ctx)
	if err != nil {
		return nil, err
	}
	categories := []model.Category{}
	if err := scope.Query(&model.Category{}).Order("name asc").Find(&categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// GetCategory returns one category of the tenant of ctx.
func (s *Service) GetCategory(ctx context.Context, id uint) (*model.Category, error) {
	scope, err := s.store.Scope(ctx)
	if err != nil {
		return nil, err
	}
	var category model.Category
	if err := scope.Get(&category, id); err != nil {
		return nil, notFound(err, "catalog.GetCategory", "category not found")
	}
	return &category, nil
}

// CreateCategory creates a category. Names are unique per tenant.
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*model.Category, error) {
	const op = "catalog.CreateCategory"
	if err := in.validate(op); err != nil {
		return nil, err
	}

	scope, err := s.store.Scope(ctx)
	if err != nil {
		return nil, err
	}
	category := &model.Category{Name: in.Name}
	if err := scope.Create(category); err != nil {
		return nil, conflict(err, op, "category with this name already exists")
	}

	prometheus.RecordCategoryOperation("create")
	logger.FromContext(ctx).Info("Category created successfully",
		zap.Uint("category_id", category.ID), zap.String("name", category.Name))
	return category, nil
}

// UpdateCategory renames a category.
func (s *Service) UpdateCategory(ctx context.Context, id uint, in CategoryInput) (*model.Category, error) {
	const op = "catalog.UpdateCategory"
	if err := in.validate(op); err != nil {
		return nil, err
	}

	scope, err := s.store.Scope(ctx)
	if err != nil {
		return nil, err
	}
	var category model.Category
	if err := scope.Update(&category, id, map[string]interface{}{"name": in.Name}); err != nil {
		return nil, conflict(notFound(err, op, "category not found"), op, "category with this name already exists")
	}

	prometheus.RecordCategoryOperation("update")
	return &category, nil
}

// DeleteCategory removes a category; its products keep existing uncategorised.
func (s *Service) DeleteCategory(ctx context.Context, id uint) error {
	const op = "catalog.DeleteCategory"
	scope, err := s.store.Scope(ctx)
	if err != nil {
		return err
	}
	// explicit for stores without enforced foreign keys
	if _, err := scope.Query(&model.Product{}).Where("category_id = ?", id).
		UpdateAll(map[string]interface{}{"category_id": nil}); err != nil {
		return err
	}
	if err := scope.Delete(&model.Category{}, id); err != nil {
		return notFound(err, op, "category not found")
	}

	prometheus.RecordCategoryOperation("delete")
	return nil
}

// ProductInput is the writable part of a product. Nil pointers leave the
// stored value unchanged on update.
type ProductInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	SKU         string  `json:"sku"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	CategoryID  *uint   `json:"category_id"`
	IsActive    *bool   `json:"is_active"`
}

func (in *ProductInput) validate(op string) error {
	in.Name = strings.TrimSpace(in.Name)
	in.SKU = strings.TrimSpace(in.SKU)

	fields := map[string]string{}
	if in.Name == "" {
		fields["name"] = "required"
	} else if utf8.RuneCountInString(in.Name) > 255 {
		fields["name"] = "too long"
	}
	if in.SKU == "" {
		fields["sku"] = "required"
	} else if len(in.SKU) > 100 {
		fields["sku"] = "too long"
	}
	if in.Price < 0 {
		fields["price"] = "must not be negative"
	}
	if in.Stock < 0 {
		fields["stock"] = "must not be negative"
	}
	if len(fields) > 0 {
		return apperr.Invalid(op, "invalid product", fields)
	}
	return nil
}

// ProductFilter narrows ListProducts.
type ProductFilter struct {
	IsActive   *bool
	CategoryID *uint
}

// ListProducts returns the products of the tenant of ctx.
func (s *Service) ListProducts(ctx context.Context, f ProductFilter) ([]model.Product, error) {
	defer prometheus.TrackDBOperation("product_list")(time.Now())

	scope, err := s.store.Scope(ctx)
	if err != nil {
		return nil, err
	}
	q := scope.Query(&model.Product{})
	if f.IsActive != nil {
		q = q.Where("is_active = ?", *f.IsActive)
	}
	if f.CategoryID != nil {
		q = q.Where("category_id = ?", *f.CategoryID)
	}
	products := []model.Product{}
	if err := q.Order("id asc").Find(&products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct returns one product of the tenant of ctx.
func (s *Service) GetProduct(ctx context.Context, id uint) (*model.Product, error) {
	scope, err := s.store.Scope(ctx)
	if err != nil {
		return nil, err
	}
	var product model.Product
	if err := scope.Get(&product, id); err != nil {
		return nil, notFound(err, "catalog.GetProduct", "product not found")
	}
	return &product, nil
}

// CreateProduct creates a product. SKUs are unique per tenant.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*model.Product, error) {
	const op = "catalog.CreateProduct"
	if err := in.validate(op); err != nil {
		return nil, err
	}

	scope, err := s.store.Scope(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkCategory(scope, op, in.CategoryID); err != nil {
		return nil, err
	}

	product := &model.Product{
		Name:        in.Name,
		Description: in.Description,
		SKU:         in.SKU,
		Price:       in.Price,
		Stock:       in.Stock,
		CategoryID:  in.CategoryID,
		IsActive:    in.IsActive == nil || *in.IsActive,
	}
	if err := scope.Create(product); err != nil {
		return nil, conflict(err, op, "product with this SKU already exists")
	}

	prometheus.RecordProductOperation("create")
	logger.FromContext(ctx).Info("Product created successfully",
		zap.Uint("product_id", product.ID), zap.String("name", product.Name), zap.String("sku", product.SKU))
	return product, nil
}

// UpdateProduct replaces the writable fields of a product.
func (s *Service) UpdateProduct(ctx context.Context, id uint, in ProductInput) (*model.Product, error) {
	const op = "catalog.UpdateProduct"
	if err := in.validate(op); err != nil {
		return nil, err
	}

	scope, err := s.store.Scope(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkCategory(scope, op, in.CategoryID); err != nil {
		return nil, err
	}

	values := map[string]interface{}{
		"name":        in.Name,
		"description": in.Description,
		"sku":         in.SKU,
		"price":       in.Price,
		"stock":       in.Stock,
		"category_id": in.CategoryID,
	}
	if in.IsActive != nil {
		values["is_active"] = *in.IsActive
	}

	var product model.Product
	if err := scope.Update(&product, id, values); err != nil {
		return nil, conflict(notFound(err, op, "product not found"), op, "product with this SKU already exists")
	}

	prometheus.RecordProductOperation("update")
	return &product, nil
}

// DeleteProduct removes a product.
func (s *Service) DeleteProduct(ctx context.Context, id uint) error {
	scope, err := s.store.Scope(ctx)
	if err != nil {
		return err
	}
	if err := scope.Delete(&model.Product{}, id); err != nil {
		return notFound(err, "catalog.DeleteProduct", "product not found")
	}

	prometheus.RecordProductOperation("delete")
	return nil
}

// AdjustStock adds delta, which may be negative, to the stock counter. The
// counter never drops below zero.
func (s *Service) AdjustStock(ctx context.Context, id uint, delta int) (*model.Product, error) {
	const op = "catalog.AdjustStock"
	scope, err := s.store.Scope(ctx)
	if err != nil {
		return nil, err
	}

	n, err := scope.Query(&model.Product{}).
		Where("id = ?", id).
		Where("stock + ? >= 0", delta).
		UpdateAll(map[string]interface{}{"stock": tenantdb.Expr("stock + ?", delta)})
	if err != nil {
		return nil, err
	}

	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperr.Conflict(op, "insufficient stock", nil)
	}

	prometheus.RecordProductOperation("stock")
	return product, nil
}

func checkCategory(scope *tenantdb.Scope, op string, id *uint) error {
	if id == nil {
		return nil
	}
	if err := scope.Get(&model.Category{}, *id); err != nil {
		if apperr.Is(err, apperr.ENotFound) {
			return apperr.Invalid(op, "invalid product", map[string]string{"category_id": "unknown category"})
		}
		return err
	}
	return nil
}

func notFound(err error, op, msg string) error {
	if apperr.Is(err, apperr.ENotFound) {
		return apperr.NotFound(op, msg)
	}
	return err
}

func conflict(err error, op, msg string) error {
	if apperr.Is(err, apperr.EConflict) {
		return apperr.Conflict(op, msg, err)
	}
	return err
}
