package barangays

import "time"

// Barangay is one tenant of the portal.
type Barangay struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Code         string    `json:"code"`
	Municipality string    `json:"municipality"`
	Province     string    `json:"province"`
	ContactEmail string    `json:"contact_email"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListFilters narrows barangay listings.
type ListFilters struct {
	Search          string
	IncludeInactive bool
	Page            int
	PerPage         int
}
