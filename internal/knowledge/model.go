package knowledge

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind distinguishes the three knowledge collections. They share one schema
// and one set of handlers; only the labelling differs.
type Kind string

const (
	KindPolicy       Kind = "policy"
	KindBestPractice Kind = "best_practice"
	KindLesson       Kind = "lesson"
)

// ParseKind maps a URL segment onto the closed set.
func ParseKind(raw string) (Kind, bool) {
	switch Kind(raw) {
	case KindPolicy, KindBestPractice, KindLesson:
		return Kind(raw), true
	}
	return "", false
}

var titleCaser = cases.Title(language.English)

// Label returns the plural page heading for a kind.
func (k Kind) Label() string {
	switch k {
	case KindPolicy:
		return "Policies"
	case KindBestPractice:
		return "Best Practices"
	case KindLesson:
		return "Lessons Learned"
	}
	return titleCaser.String(strings.ReplaceAll(string(k), "_", " "))
}

// Status is the review state of an entry.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Entry represents one knowledge record.
type Entry struct {
	ID         int64
	Kind       Kind
	BarangayID *int64
	Title      string
	Summary    string
	Body       string
	Tags       []string
	Status     Status
	CreatedBy  string
	IsActive   bool
	IsArchived bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ListFilters narrows entry listings.
type ListFilters struct {
	Search          string
	Status          Status
	IncludeArchived bool
	Page            int
	PerPage         int
}
