package domain

// ============================================================
// Auth Request / Response types
// ============================================================

// RegisterRequest is the body for POST /api/auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserView is the public projection of a User.
type UserView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	User  UserView `json:"user"`
	Token string   `json:"token"`
}

// MeResponse is returned by GET /api/auth/me.
type MeResponse struct {
	User UserView `json:"user"`
}

// NewUserView projects u for API responses.
func NewUserView(u *User) UserView {
	return UserView{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}
