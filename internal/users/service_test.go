package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/barangaykms/barangaykms/internal/shared"
	"github.com/barangaykms/barangaykms/internal/tenancy"
)

type memoryRepo struct {
	items  map[int64]Account
	emails map[string]int64
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[int64]Account), emails: make(map[string]int64)}
}

func (m *memoryRepo) List(ctx context.Context, filters ListFilters) ([]Account, int, error) {
	var out []Account
	for _, a := range m.items {
		if filters.Role != "" && a.Role != filters.Role {
			continue
		}
		if filters.BarangayID != nil {
			if a.BarangayID == nil || *a.BarangayID != *filters.BarangayID {
				continue
			}
		}
		out = append(out, a)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (Account, error) {
	a, ok := m.items[id]
	if !ok {
		return Account{}, shared.ErrNotFound
	}
	return a, nil
}

func (m *memoryRepo) Create(ctx context.Context, a Account) (Account, error) {
	if _, dup := m.emails[a.Email]; dup {
		return Account{}, shared.ErrDuplicate
	}
	m.nextID++
	a.ID = m.nextID
	a.IsActive = true
	a.CreatedAt = time.Now()
	m.items[a.ID] = a
	m.emails[a.Email] = a.ID
	return a, nil
}

func (m *memoryRepo) Update(ctx context.Context, a Account) error {
	stored, ok := m.items[a.ID]
	if !ok {
		return shared.ErrNotFound
	}
	a.PasswordHash = stored.PasswordHash
	m.items[a.ID] = a
	return nil
}

func (m *memoryRepo) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	a, ok := m.items[id]
	if !ok {
		return shared.ErrNotFound
	}
	a.PasswordHash = hash
	m.items[id] = a
	return nil
}

func (m *memoryRepo) SetActive(ctx context.Context, id int64, active bool) error {
	a, ok := m.items[id]
	if !ok {
		return shared.ErrNotFound
	}
	a.IsActive = active
	m.items[id] = a
	return nil
}

var superAdmin = tenancy.Principal{Role: tenancy.RoleSuperAdmin, Identity: "1"}

func barangay(id int64) *int64 { return &id }

func staffInput(email string, barangayID *int64) Input {
	return Input{
		Email:      email,
		Name:       "Test Account",
		Password:   "longenoughpw",
		Role:       string(tenancy.RoleBarangayStaff),
		BarangayID: barangayID,
	}
}

func TestOnlySuperAdminCreatesAccounts(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)

	admin := tenancy.Principal{Role: tenancy.RoleBarangayAdmin, BarangayID: barangay(3), Identity: "2"}
	_, err := svc.Create(context.Background(), admin, staffInput("a@b.ph", barangay(3)))
	require.ErrorIs(t, err, tenancy.ErrPermissionDenied)

	created, err := svc.Create(context.Background(), superAdmin, staffInput("A@B.PH", barangay(3)))
	require.NoError(t, err)
	require.Equal(t, "a@b.ph", created.Email, "emails are stored lower case")
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("longenoughpw")))
}

func TestRoleBarangayPairingValidated(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)

	// A barangay role must carry an assignment.
	in := staffInput("a@b.ph", nil)
	_, err := svc.Create(context.Background(), superAdmin, in)
	require.ErrorIs(t, err, shared.ErrValidation)

	// A super admin account must not.
	in = staffInput("c@d.ph", barangay(3))
	in.Role = string(tenancy.RoleSuperAdmin)
	_, err = svc.Create(context.Background(), superAdmin, in)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUnknownRoleRejected(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)

	in := staffInput("a@b.ph", barangay(3))
	in.Role = "mayor"
	_, err := svc.Create(context.Background(), superAdmin, in)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestBarangayAdminSeesOwnRosterOnly(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)

	_, err := svc.Create(context.Background(), superAdmin, staffInput("a@b.ph", barangay(3)))
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), superAdmin, staffInput("c@d.ph", barangay(7)))
	require.NoError(t, err)

	admin := tenancy.Principal{Role: tenancy.RoleBarangayAdmin, BarangayID: barangay(3), Identity: "2"}
	items, total, err := svc.List(context.Background(), admin, ListFilters{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "a@b.ph", items[0].Email)

	// Asking for another barangay's roster is silently overridden.
	items, _, err = svc.List(context.Background(), admin, ListFilters{BarangayID: barangay(7)})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "a@b.ph", items[0].Email)
}

func TestStaffSeeNoAccounts(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)

	_, err := svc.Create(context.Background(), superAdmin, staffInput("a@b.ph", barangay(3)))
	require.NoError(t, err)

	staff := tenancy.Principal{Role: tenancy.RoleBarangayStaff, BarangayID: barangay(3), Identity: "9"}
	items, total, err := svc.List(context.Background(), staff, ListFilters{})
	require.NoError(t, err)
	require.Empty(t, items)
	require.Zero(t, total)

	_, err = svc.Get(context.Background(), staff, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateKeepsPasswordWhenBlank(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	created, err := svc.Create(context.Background(), superAdmin, staffInput("a@b.ph", barangay(3)))
	require.NoError(t, err)
	originalHash := repo.items[created.ID].PasswordHash

	in := staffInput("a@b.ph", barangay(3))
	in.Password = ""
	in.Name = "Renamed"
	_, err = svc.Update(context.Background(), superAdmin, created.ID, in)
	require.NoError(t, err)
	require.Equal(t, originalHash, repo.items[created.ID].PasswordHash)
	require.Equal(t, "Renamed", repo.items[created.ID].Name)
}

func TestShortPasswordRejected(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)

	in := staffInput("a@b.ph", barangay(3))
	in.Password = "short"
	_, err := svc.Create(context.Background(), superAdmin, in)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDeactivateLocksAccount(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	created, err := svc.Create(context.Background(), superAdmin, staffInput("a@b.ph", barangay(3)))
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(context.Background(), superAdmin, created.ID))
	require.False(t, repo.items[created.ID].IsActive)
	require.NoError(t, svc.Activate(context.Background(), superAdmin, created.ID))
	require.True(t, repo.items[created.ID].IsActive)
}
