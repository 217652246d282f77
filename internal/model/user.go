package model

import (
	"time"
)

// User represents an account. A nil TenantID marks a platform-level superuser;
// every other user belongs to exactly one tenant.
type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"type:varchar(150);uniqueIndex;not null"`
	Email        string    `json:"email" gorm:"type:varchar(254);uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"type:varchar(255);not null"`
	FirstName    string    `json:"first_name" gorm:"type:varchar(150)"`
	LastName     string    `json:"last_name" gorm:"type:varchar(150)"`
	IsActive     bool      `json:"is_active" gorm:"not null"`
	IsStaff      bool      `json:"is_staff" gorm:"not null;default:false"`
	IsSuperuser  bool      `json:"is_superuser" gorm:"not null;default:false"`
	DateJoined   time.Time `json:"date_joined" gorm:"autoCreateTime"`
	TenantID     *uint     `json:"tenant_id" gorm:"index"`

	// Relations
	Tenant *Tenant `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

func (u *User) OwnerTenantID() *uint {
	return u.TenantID
}

func (u *User) SetOwnerTenantID(id uint) {
	u.TenantID = &id
}

// Principal builds the authenticated subject for u.
func (u *User) Principal() *Principal {
	return &Principal{
		UserID:      u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		TenantID:    u.TenantID,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
	}
}
