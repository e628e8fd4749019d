package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/barangaykms/barangaykms/internal/tenancy"
)

type memoryRepo struct {
	rows      []TimelineRow
	lastScope tenancy.Scope
	lastLimit int
}

func (m *memoryRepo) Timeline(_ context.Context, scope tenancy.Scope, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	m.lastScope = scope
	m.lastLimit = limit
	rows := make([]TimelineRow, 0, len(m.rows))
	for _, row := range m.rows {
		if scope.Kind == tenancy.ScopeDeny {
			continue
		}
		if scope.Kind == tenancy.ScopeBarangay && row.BarangayID != nil && *row.BarangayID != scope.BarangayID {
			continue
		}
		if filters.Actor != "" && row.Actor != filters.Actor {
			continue
		}
		rows = append(rows, row)
	}
	if offset > len(rows) {
		offset = len(rows)
	}
	rows = rows[offset:]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func ptr(v int64) *int64 { return &v }

func superAdmin() tenancy.Principal {
	return tenancy.Principal{Role: tenancy.RoleSuperAdmin, Identity: "root@example.gov.ph"}
}

func barangayAdmin(id int64) tenancy.Principal {
	return tenancy.Principal{Role: tenancy.RoleBarangayAdmin, BarangayID: ptr(id), Identity: "admin@example.gov.ph"}
}

func seededRepo(n int, barangayID *int64) *memoryRepo {
	repo := &memoryRepo{}
	for i := 0; i < n; i++ {
		repo.rows = append(repo.rows, TimelineRow{
			At:         time.Date(2026, 5, 1, 12, 0, i, 0, time.UTC),
			Actor:      "clerk@example.gov.ph",
			Action:     "announcements.create",
			Entity:     "announcement",
			BarangayID: barangayID,
		})
	}
	return repo
}

func TestTimelineDeniedForStaff(t *testing.T) {
	svc := NewService(seededRepo(1, ptr(7)))
	staff := tenancy.Principal{Role: tenancy.RoleBarangayStaff, BarangayID: ptr(7), Identity: "staff@example.gov.ph"}

	_, err := svc.Timeline(context.Background(), staff, TimelineFilters{})
	require.ErrorIs(t, err, tenancy.ErrPermissionDenied)

	var perm *tenancy.PermissionError
	require.True(t, errors.As(err, &perm))
	require.Equal(t, tenancy.ReasonInsufficientRole, perm.Reason)
}

func TestTimelineScopedToAdminBarangay(t *testing.T) {
	repo := seededRepo(3, ptr(7))
	repo.rows = append(repo.rows, TimelineRow{Actor: "other@example.gov.ph", BarangayID: ptr(9)})
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), barangayAdmin(7), TimelineFilters{})
	require.NoError(t, err)
	require.Len(t, result.Rows, 3)
	require.Equal(t, tenancy.ScopeBarangay, repo.lastScope.Kind)
	require.Equal(t, int64(7), repo.lastScope.BarangayID)
}

func TestTimelinePaging(t *testing.T) {
	svc := NewService(seededRepo(25, nil))

	first, err := svc.Timeline(context.Background(), superAdmin(), TimelineFilters{Page: 1})
	require.NoError(t, err)
	require.Len(t, first.Rows, 20)
	require.True(t, first.Paging.HasNext)
	require.Equal(t, 2, first.Paging.NextPage)
	require.Zero(t, first.Paging.PrevPage)

	second, err := svc.Timeline(context.Background(), superAdmin(), TimelineFilters{Page: 2})
	require.NoError(t, err)
	require.Len(t, second.Rows, 5)
	require.False(t, second.Paging.HasNext)
	require.Equal(t, 1, second.Paging.PrevPage)
}

func TestTimelinePageSizeClamped(t *testing.T) {
	repo := seededRepo(1, nil)
	svc := NewService(repo)

	_, err := svc.Timeline(context.Background(), superAdmin(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, maxPageSize+1, repo.lastLimit)
}

func TestExportCappedAndUnpaged(t *testing.T) {
	repo := seededRepo(30, nil)
	svc := NewService(repo)

	rows, err := svc.Export(context.Background(), superAdmin(), TimelineFilters{})
	require.NoError(t, err)
	require.Len(t, rows, 30)
	require.Equal(t, exportCap, repo.lastLimit)
}

func TestExportDeniedForCouncil(t *testing.T) {
	svc := NewService(seededRepo(1, ptr(7)))
	council := tenancy.Principal{Role: tenancy.RoleCouncilMember, BarangayID: ptr(7), Identity: "council@example.gov.ph"}

	_, err := svc.Export(context.Background(), council, TimelineFilters{})
	require.ErrorIs(t, err, tenancy.ErrPermissionDenied)
}
