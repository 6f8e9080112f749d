package domain

import "time"

// User owns exactly one wallet. Deletion is soft: the flag excludes the user
// from active views without touching the wallet or its history.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	IsAdmin      bool      `json:"is_admin"`
	Deleted      bool      `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// ============================================================
// Auth request/response shapes
// ============================================================

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is returned by register and login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	UserID      string `json:"user_id"`
}
