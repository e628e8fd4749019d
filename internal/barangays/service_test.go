package barangays

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/barangaykms/barangaykms/internal/shared"
	"github.com/barangaykms/barangaykms/internal/tenancy"
)

type memoryRepo struct {
	items  map[int64]Barangay
	codes  map[string]int64
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[int64]Barangay), codes: make(map[string]int64)}
}

func (m *memoryRepo) List(ctx context.Context, filters ListFilters) ([]Barangay, int, error) {
	var out []Barangay
	for _, b := range m.items {
		if !b.IsActive && !filters.IncludeInactive {
			continue
		}
		if filters.Search != "" && !strings.Contains(strings.ToLower(b.Name), strings.ToLower(filters.Search)) {
			continue
		}
		out = append(out, b)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (Barangay, error) {
	b, ok := m.items[id]
	if !ok {
		return Barangay{}, shared.ErrNotFound
	}
	return b, nil
}

func (m *memoryRepo) Create(ctx context.Context, b Barangay) (Barangay, error) {
	if _, dup := m.codes[b.Code]; dup {
		return Barangay{}, shared.ErrDuplicate
	}
	m.nextID++
	b.ID = m.nextID
	b.IsActive = true
	b.CreatedAt = time.Now()
	m.items[b.ID] = b
	m.codes[b.Code] = b.ID
	return b, nil
}

func (m *memoryRepo) Update(ctx context.Context, b Barangay) error {
	if _, ok := m.items[b.ID]; !ok {
		return shared.ErrNotFound
	}
	m.items[b.ID] = b
	return nil
}

func (m *memoryRepo) SetActive(ctx context.Context, id int64, active bool) error {
	b, ok := m.items[id]
	if !ok {
		return shared.ErrNotFound
	}
	b.IsActive = active
	m.items[id] = b
	return nil
}

var superAdmin = tenancy.Principal{Role: tenancy.RoleSuperAdmin, Identity: "1"}

func barangay(id int64) *int64 { return &id }

func TestOnlySuperAdminManagesBarangays(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)

	admin := tenancy.Principal{Role: tenancy.RoleBarangayAdmin, BarangayID: barangay(3), Identity: "2"}
	_, err := svc.Create(context.Background(), admin, Input{Name: "San Isidro", Code: "SI-01"})
	require.ErrorIs(t, err, tenancy.ErrPermissionDenied)

	created, err := svc.Create(context.Background(), superAdmin, Input{Name: "San Isidro", Code: "si-01"})
	require.NoError(t, err)
	require.Equal(t, "SI-01", created.Code, "codes are stored upper case")
}

func TestDuplicateCodeRejected(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)

	_, err := svc.Create(context.Background(), superAdmin, Input{Name: "A", Code: "X-1"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), superAdmin, Input{Name: "B", Code: "X-1"})
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestDirectoryReadableByAnyRole(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)

	created, err := svc.Create(context.Background(), superAdmin, Input{Name: "Poblacion", Code: "PB-01"})
	require.NoError(t, err)

	council := tenancy.Principal{Role: tenancy.RoleCouncilMember, BarangayID: barangay(9), Identity: "5"}
	items, total, err := svc.List(context.Background(), council, ListFilters{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, created.ID, items[0].ID)
}

func TestTenantlessAccountSeesNoDirectory(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)

	_, err := svc.Create(context.Background(), superAdmin, Input{Name: "Poblacion", Code: "PB-01"})
	require.NoError(t, err)

	orphan := tenancy.Principal{Role: tenancy.RoleBarangayStaff, Identity: "7"}
	items, total, err := svc.List(context.Background(), orphan, ListFilters{})
	require.NoError(t, err)
	require.Empty(t, items)
	require.Zero(t, total)
}

func TestDeactivateHidesFromDefaultListing(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	created, err := svc.Create(context.Background(), superAdmin, Input{Name: "Poblacion", Code: "PB-01"})
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(context.Background(), superAdmin, created.ID))

	items, _, err := svc.List(context.Background(), superAdmin, ListFilters{})
	require.NoError(t, err)
	require.Empty(t, items)

	items, _, err = svc.List(context.Background(), superAdmin, ListFilters{IncludeInactive: true})
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, svc.Activate(context.Background(), superAdmin, created.ID))
	require.True(t, repo.items[created.ID].IsActive)
}

func TestValidationRequiresNameAndCode(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)

	_, err := svc.Create(context.Background(), superAdmin, Input{Name: " ", Code: "X"})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Create(context.Background(), superAdmin, Input{Name: "X", Code: " "})
	require.ErrorIs(t, err, shared.ErrValidation)
}
