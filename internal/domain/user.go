package domain

import "time"

// UserRole distinguishes end-users from support agents and operators.
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAgent UserRole = "agent"
	RoleAdmin UserRole = "admin"
)

// User is anyone who can authenticate against the service.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         UserRole
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsStaff reports whether the user may act on tickets they did not create.
func (u *User) IsStaff() bool {
	return u.Role == RoleAgent || u.Role == RoleAdmin
}
