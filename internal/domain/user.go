// Package domain contains core domain types for the Tabs Declutter backend.
package domain

import (
	"time"
)

// User represents an account that owns capture sessions and tab items.
// Credential issuance lives outside this service; the backend only resolves
// a presented credential to a user ID.
type User struct {
	UserID    string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	APIKey    string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
