package model

import (
	"time"
)

// MaxActionLength bounds AuditRecord.Action in bytes.
const MaxActionLength = 128

// Common action labels. Producers may use other short domain verbs.
const (
	ActionLogin    = "login"
	ActionLogout   = "logout"
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionDelete   = "delete"
	ActionView     = "view"
	ActionToken    = "token_obtain"
	ActionRegister = "tenant_register"
	ActionPredict  = "predict"
)

// AuditRecord is one entry of the bitácora. Rows are append-only: the
// record survives the deletion of its actor (UserID becomes NULL).
type AuditRecord struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TenantID  *uint     `json:"tenant_id" gorm:"index:idx_audit_tenant_ts,priority:1"`
	UserID    *uint     `json:"user_id" gorm:"index"`
	Action    string    `json:"action" gorm:"type:varchar(128);not null"`
	IPAddress *string   `json:"ip_address" gorm:"type:varchar(45)"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;index:idx_audit_tenant_ts,priority:2"`

	// Relations
	Tenant *Tenant `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	User   *User   `json:"-" gorm:"constraint:OnDelete:SET NULL"`
}

func (a *AuditRecord) OwnerTenantID() *uint {
	return a.TenantID
}

func (a *AuditRecord) SetOwnerTenantID(id uint) {
	a.TenantID = &id
}

// AppendOnly marks the table as insert-only for the data access facade.
func (a *AuditRecord) AppendOnly() {}
