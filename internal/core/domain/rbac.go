package domain

import "time"

// Role defines a named set of permissions.
type Role struct {
	ID          int64
	Name        string
	Description *string
	IsActive    bool
	CreatedAt   time.Time
}

// Permission defines a capability identified by its (resource, action) pair.
// The human-readable name is informational; uniqueness is on the pair.
type Permission struct {
	ID          int64
	Name        string
	Resource    string
	Action      string
	Description *string
	IsActive    bool
	CreatedAt   time.Time
}

// UserRole assigns a role to a user.
type UserRole struct {
	UserID     string
	RoleID     int64
	IsActive   bool
	AssignedAt time.Time
}

// RolePermission grants a permission to a role.
type RolePermission struct {
	RoleID       int64
	PermissionID int64
	IsActive     bool
	GrantedAt    time.Time
}

// AdminRoleName is the role granting the legacy admin escape hatch. Checks
// against it go through a dedicated, separately audited code path.
const AdminRoleName = "admin"
