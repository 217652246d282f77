package model

// Principal is the authenticated subject of a request.
type Principal struct {
	UserID      uint   `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	TenantID    *uint  `json:"tenant_id"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

// IsPlatform reports whether p is a platform superuser not bound to any tenant.
func (p *Principal) IsPlatform() bool {
	return p != nil && p.TenantID == nil && p.IsSuperuser
}

// CanAccessTenant reports whether p may act through a request resolved to tenantID.
func (p *Principal) CanAccessTenant(tenantID uint) bool {
	if p == nil {
		return false
	}
	if p.IsPlatform() {
		return true
	}
	return p.TenantID != nil && *p.TenantID == tenantID
}

// TokenPair is the result of a token obtain or refresh exchange.
type TokenPair struct {
	Access    string `json:"access"`
	Refresh   string `json:"refresh"`
	ExpiresIn int    `json:"expires_in"`
}
