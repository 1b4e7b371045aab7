package domain

import "time"

// Roles understood by the access gate.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is a registered account. PasswordHash never leaves the service layer.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         string
	Onboarded    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is what the access gate binds to a request after verifying a token.
type Identity struct {
	UserID   string
	Username string
	Role     string
}

// HasRole reports whether the identity carries one of roles.
func (i Identity) HasRole(roles ...string) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}
