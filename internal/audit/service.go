package audit

import (
	"context"

	"github.com/barangaykms/barangaykms/internal/tenancy"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	exportCap       = 5000
)

// Service drives the audit timeline. The trail records every write and every
// denied write, so access to it is tighter than to the content modules.
type Service struct {
	repo Repository
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CanView reports whether the principal may open the audit trail at all.
// Staff and council members never see it.
func CanView(p tenancy.Principal) bool {
	switch p.Role {
	case tenancy.RoleSuperAdmin, tenancy.RoleBarangayAdmin:
		return true
	default:
		return false
	}
}

// Timeline returns one page of the audit trail visible to the principal.
// Barangay admins only see their own barangay's rows plus shared ones.
func (s *Service) Timeline(ctx context.Context, p tenancy.Principal, filters TimelineFilters) (Result, error) {
	if !CanView(p) {
		return Result{}, &tenancy.PermissionError{Reason: tenancy.ReasonInsufficientRole}
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}

	// Fetch one extra row to learn whether a next page exists without a
	// second COUNT query.
	rows, err := s.repo.Timeline(ctx, tenancy.ScopeForRead(p), filters, pageSize+1, (page-1)*pageSize)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns the filtered trail without paging, capped so a runaway
// filter cannot pull the whole table into memory.
func (s *Service) Export(ctx context.Context, p tenancy.Principal, filters TimelineFilters) ([]TimelineRow, error) {
	if !CanView(p) {
		return nil, &tenancy.PermissionError{Reason: tenancy.ReasonInsufficientRole}
	}
	return s.repo.Timeline(ctx, tenancy.ScopeForRead(p), filters, exportCap, 0)
}
