package announcements

import "time"

// Priority orders announcements on the board.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ParsePriority maps a form value onto the closed set, defaulting to normal.
func ParsePriority(raw string) Priority {
	switch Priority(raw) {
	case PriorityLow, PriorityHigh:
		return Priority(raw)
	}
	return PriorityNormal
}

// Announcement represents a persisted announcement row. BarangayID nil means
// a portal-wide announcement readable by every barangay; only a super admin
// can author or edit those.
type Announcement struct {
	ID          int64
	BarangayID  *int64
	Title       string
	Body        string
	Priority    Priority
	IsPinned    bool
	PublishedAt time.Time
	ExpiresAt   *time.Time
	CreatedBy   string
	IsActive    bool
	IsArchived  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ListFilters narrows announcement listings.
type ListFilters struct {
	Search          string
	IncludeArchived bool
	Page            int
	PerPage         int
}
