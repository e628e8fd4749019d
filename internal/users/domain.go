package users

import "time"

// Account is one portal login managed by an administrator. The password
// hash never leaves the repository layer in API responses.
type Account struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	BarangayID   *int64    `json:"barangay_id"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListFilters narrows account listings.
type ListFilters struct {
	Search     string
	Role       string
	BarangayID *int64
	Page       int
	PerPage    int
}
