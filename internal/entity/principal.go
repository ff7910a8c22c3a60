package entity

// Role identifies what a principal is allowed to do inside its domain.
type Role string

const (
	RoleUser   Role = "USER"
	RoleTenant Role = "TENANT"
	RoleAdmin  Role = "ADMIN"
)

// Principal is the caller of an operation.
type Principal struct {
	Email  string `json:"email"`
	Domain string `json:"domain"`
	Role   Role   `json:"role"`
}

// IsTenant reports whether the principal operates the tenant.
func (p Principal) IsTenant() bool { return p.Role == RoleTenant }
