package models

import "time"

// User represents a card owner. Credentials live with the identity service.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Roles.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)
