package entities

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	BusinessID   string    `json:"business_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the authenticated caller attached to every mutation.
type Identity struct {
	UserID     string
	BusinessID string
	Email      string
}
