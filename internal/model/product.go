package model

import (
	"time"
)

// Product represents the product master data of a tenant
type Product struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"type:varchar(255);not null"`
	Description string    `json:"description" gorm:"type:text"`
	SKU         string    `json:"sku" gorm:"type:varchar(100);not null;uniqueIndex:idx_product_tenant_sku,priority:2"`
	Price       float64   `json:"price" gorm:"not null"`
	Stock       int       `json:"stock" gorm:"not null;default:0"`
	CategoryID  *uint     `json:"category_id" gorm:"index"`
	TenantID    uint      `json:"tenant_id" gorm:"not null;uniqueIndex:idx_product_tenant_sku,priority:1"`
	IsActive    bool      `json:"is_active" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relations
	Tenant   *Tenant   `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Category *Category `json:"-" gorm:"constraint:OnDelete:SET NULL"`
}

func (p *Product) OwnerTenantID() *uint {
	if p.TenantID == 0 {
		return nil
	}
	return &p.TenantID
}

func (p *Product) SetOwnerTenantID(id uint) {
	p.TenantID = id
}

// Category represents product categories
type Category struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(100);not null;uniqueIndex:idx_category_tenant_name,priority:2"`
	TenantID  uint      `json:"tenant_id" gorm:"not null;uniqueIndex:idx_category_tenant_name,priority:1"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Tenant *Tenant `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

func (c *Category) OwnerTenantID() *uint {
	if c.TenantID == 0 {
		return nil
	}
	return &c.TenantID
}

func (c *Category) SetOwnerTenantID(id uint) {
	c.TenantID = id
}
