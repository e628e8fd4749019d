package audit

import "time"

// TimelineFilters narrows the audit trail listing.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one audit trail entry as shown on the timeline page.
type TimelineRow struct {
	At         time.Time
	Actor      string
	Action     string
	Entity     string
	EntityID   string
	BarangayID *int64
	Meta       map[string]any
}

// PagingInfo holds simple prev/next pagination metadata. The timeline uses
// keyless paging because audit rows are append-only and trimmed from the
// back, so offset drift is not a concern.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result bundles timeline rows with their paging metadata.
type Result struct {
	Rows   []TimelineRow
	Paging PagingInfo
}
