package model

import (
	"time"
)

// Tenant represents a logically isolated customer of the service.
// Every tenant is reached through its own DNS name; Domain is stored normalized.
type Tenant struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(100);not null"`
	Domain    string    `json:"domain" gorm:"type:varchar(253);uniqueIndex;not null"`
	CreatedAt time.Time `json:"created_at"`
}
