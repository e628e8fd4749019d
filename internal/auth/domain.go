package auth

import "time"

// User represents an authenticated user account. Role and barangay are
// copied into the session at login and become the request principal.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Role         string
	BarangayID   *int64
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
