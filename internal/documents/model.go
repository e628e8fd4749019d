package documents

import "time"

// Category buckets uploaded documents for browsing.
type Category string

const (
	CategoryOrdinance  Category = "ordinance"
	CategoryResolution Category = "resolution"
	CategoryMinutes    Category = "minutes"
	CategoryFormTmpl   Category = "form"
	CategoryOther      Category = "other"
)

// ParseCategory returns the category for raw, defaulting to other.
func ParseCategory(raw string) Category {
	switch Category(raw) {
	case CategoryOrdinance, CategoryResolution, CategoryMinutes, CategoryFormTmpl:
		return Category(raw)
	}
	return CategoryOther
}

// Document is the stored metadata of one uploaded file. The bytes live on
// disk under StoredName; OriginalName is only used for the download header.
type Document struct {
	ID           int64     `json:"id"`
	BarangayID   *int64    `json:"barangay_id"`
	Title        string    `json:"title"`
	Category     Category  `json:"category"`
	OriginalName string    `json:"original_name"`
	StoredName   string    `json:"-"`
	ContentType  string    `json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	UploadedBy   string    `json:"uploaded_by"`
	IsActive     bool      `json:"is_active"`
	IsArchived   bool      `json:"is_archived"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListFilters narrows document listings.
type ListFilters struct {
	Search          string
	Category        Category
	IncludeArchived bool
	Page            int
	PerPage         int
}
