package models

import "time"

// User represents a row in the PostgreSQL users table.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	Institution string    `json:"institution"`
	Password    string    `json:"-"` // never serialize
	CreatedAt   time.Time `json:"created_at"`
}

// Viewer returns the identity the catalog core sees for this user.
func (u User) Viewer(grants []string) Viewer {
	return Viewer{ID: u.ID, Institution: u.Institution, Grants: grants}
}

// RegisterRequest is the JSON body for POST /api/auth/register.
type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Institution string `json:"institution"`
}

// LoginRequest is the JSON body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
