package models

// UserRole is the role a resident holds in the complex.
type UserRole string

const (
	RoleOwner      UserRole = "owner"
	RoleRenter     UserRole = "renter"
	RoleFamilyFull UserRole = "family_full"
	RoleGuest      UserRole = "guest"
)

// CanInvite reports whether the role may hand out family invites.
func (r UserRole) CanInvite() bool {
	return r == RoleOwner || r == RoleRenter
}

// UserProfile represents an authenticated resident.
type UserProfile struct {
	BaseModel
	FullName     string   `json:"full_name"`
	Phone        string   `gorm:"uniqueIndex" json:"phone"`
	Role         UserRole `gorm:"size:32" json:"role"`
	PasswordHash string   `json:"-"`
}
