package models

import "time"

type Role string

const (
	RoleRegistered Role = "registered"
	RoleOwnerAdmin Role = "owner_admin"
	RoleSuperAdmin Role = "super_admin"
)

// UserRole grants a user a role, optionally scoped to an owner
// (owner_admin is always owner-scoped, super_admin never is)
type UserRole struct {
	ID        int64     `json:"id" gorm:"primary_key;autoIncrement"`
	UserID    string    `json:"user_id" gorm:"type:varchar(255);not null;index"`
	OwnerSlug *string   `json:"owner_slug,omitempty" gorm:"type:varchar(255)"`
	Role      Role      `json:"role" gorm:"type:varchar(50);not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:now()"`
}

func (UserRole) TableName() string {
	return "user_roles"
}

// UserOwnerAccess grants a non-admin user membership in an owner's
// restricted audience
type UserOwnerAccess struct {
	ID        int64     `json:"id" gorm:"primary_key;autoIncrement"`
	UserID    string    `json:"user_id" gorm:"type:varchar(255);not null;index"`
	OwnerSlug string    `json:"owner_slug" gorm:"type:varchar(255);not null;index"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:now()"`
}

func (UserOwnerAccess) TableName() string {
	return "user_owner_access"
}

// User is the resolved identity attached to a request. A nil *User
// means anonymous.
type User struct {
	ID          string   `json:"id"`
	Email       string   `json:"email,omitempty"`
	SuperAdmin  bool     `json:"super_admin"`
	AdminOwners []string `json:"admin_owners,omitempty"`  // owner slugs this user administers
	MemberOwners []string `json:"member_owners,omitempty"` // owner slugs this user has restricted-access membership in
}

// IsOwnerAdmin reports whether the user administers the given owner.
func (u *User) IsOwnerAdmin(ownerSlug string) bool {
	if u == nil {
		return false
	}
	if u.SuperAdmin {
		return true
	}
	for _, slug := range u.AdminOwners {
		if slug == ownerSlug {
			return true
		}
	}
	return false
}

// IsOwnerMember reports whether the user belongs to the owner's
// restricted audience. Admins are implicitly members.
func (u *User) IsOwnerMember(ownerSlug string) bool {
	if u == nil {
		return false
	}
	if u.IsOwnerAdmin(ownerSlug) {
		return true
	}
	for _, slug := range u.MemberOwners {
		if slug == ownerSlug {
			return true
		}
	}
	return false
}
