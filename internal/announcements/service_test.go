package announcements

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/barangaykms/barangaykms/internal/notifications"
	"github.com/barangaykms/barangaykms/internal/shared"
	"github.com/barangaykms/barangaykms/internal/tenancy"
)

type memoryRepo struct {
	items  map[int64]Announcement
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[int64]Announcement)}
}

func (m *memoryRepo) List(ctx context.Context, scope tenancy.Scope, filters ListFilters) ([]Announcement, int, error) {
	var out []Announcement
	for _, a := range m.items {
		if !a.IsActive || a.IsArchived != filters.IncludeArchived {
			continue
		}
		if scope.Visible(a.BarangayID) {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func (m *memoryRepo) Get(ctx context.Context, scope tenancy.Scope, id int64) (Announcement, error) {
	a, ok := m.items[id]
	if !ok || !a.IsActive || !scope.Visible(a.BarangayID) {
		return Announcement{}, shared.ErrNotFound
	}
	return a, nil
}

func (m *memoryRepo) Create(ctx context.Context, a Announcement) (Announcement, error) {
	m.nextID++
	a.ID = m.nextID
	a.IsActive = true
	a.PublishedAt = time.Now()
	m.items[a.ID] = a
	return a, nil
}

func (m *memoryRepo) Update(ctx context.Context, a Announcement) error {
	stored, ok := m.items[a.ID]
	if !ok {
		return shared.ErrNotFound
	}
	// barangay_id is immutable after insert
	a.BarangayID = stored.BarangayID
	m.items[a.ID] = a
	return nil
}

func (m *memoryRepo) SetArchived(ctx context.Context, id int64, archived bool) error {
	a, ok := m.items[id]
	if !ok {
		return shared.ErrNotFound
	}
	a.IsArchived = archived
	m.items[id] = a
	return nil
}

func (m *memoryRepo) ArchiveExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for id, a := range m.items {
		if a.ExpiresAt != nil && a.ExpiresAt.Before(now) && !a.IsArchived {
			a.IsArchived = true
			m.items[id] = a
			n++
		}
	}
	return n, nil
}

type recordingNotifier struct {
	events []notifications.Event
}

func (r *recordingNotifier) Notify(ctx context.Context, ev notifications.Event) {
	r.events = append(r.events, ev)
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (r *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func barangay(id int64) *int64 { return &id }

func staff(barangayID *int64) tenancy.Principal {
	return tenancy.Principal{Role: tenancy.RoleBarangayStaff, BarangayID: barangayID, Identity: "17"}
}

func TestCreateUsesPrincipalBarangayNotPayload(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	// The secretary of barangay 3 creates an announcement; there is no way
	// to smuggle a different barangay through the input type at all.
	p := tenancy.Principal{Role: tenancy.RoleBarangaySecretary, BarangayID: barangay(3), Identity: "9"}
	created, err := svc.Create(context.Background(), p, Input{Title: "Garbage collection", Body: "Every Tuesday"})
	require.NoError(t, err)
	require.NotNil(t, created.BarangayID)
	require.Equal(t, int64(3), *created.BarangayID)
	require.Equal(t, "9", created.CreatedBy)
}

func TestCouncilMemberCannotMutate(t *testing.T) {
	repo := newMemoryRepo()
	audit := &recordingAudit{}
	svc := NewService(repo, audit, nil)

	seed, err := svc.Create(context.Background(), staff(barangay(3)), Input{Title: "T", Body: "B"})
	require.NoError(t, err)

	council := tenancy.Principal{Role: tenancy.RoleCouncilMember, BarangayID: barangay(3), Identity: "5"}
	err = svc.Archive(context.Background(), council, seed.ID)
	require.ErrorIs(t, err, tenancy.ErrPermissionDenied)

	// Record unchanged.
	require.False(t, repo.items[seed.ID].IsArchived)
	// Denial trail carries the reason.
	last := audit.logs[len(audit.logs)-1]
	require.Equal(t, "archive.denied", last.Action)
	require.Equal(t, string(tenancy.ReasonInsufficientRole), last.Meta["reason"])
}

func TestCrossTenantUpdateDenied(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	created, err := svc.Create(context.Background(), staff(barangay(5)), Input{Title: "T", Body: "B"})
	require.NoError(t, err)

	// Barangay 7 staff cannot even see the record, let alone update it.
	_, err = svc.Update(context.Background(), staff(barangay(7)), created.ID, Input{Title: "X", Body: "Y"})
	require.ErrorIs(t, err, shared.ErrNotFound)

	// Super admin can update anything.
	admin := tenancy.Principal{Role: tenancy.RoleSuperAdmin, Identity: "1"}
	updated, err := svc.Update(context.Background(), admin, created.ID, Input{Title: "X", Body: "Y"})
	require.NoError(t, err)
	require.Equal(t, "X", updated.Title)
	require.Equal(t, int64(5), *updated.BarangayID, "tenant must survive super admin edits")
}

func TestGlobalRecordNotEditableByBarangayAdmin(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	admin := tenancy.Principal{Role: tenancy.RoleSuperAdmin, Identity: "1"}
	global, err := svc.Create(context.Background(), admin, Input{Title: "Portal maintenance", Body: "Sunday"})
	require.NoError(t, err)
	require.Nil(t, global.BarangayID)

	// Readable by a barangay admin...
	got, err := svc.Get(context.Background(), staff(barangay(5)), global.ID)
	require.NoError(t, err)
	require.Equal(t, global.ID, got.ID)

	// ...but not editable.
	_, err = svc.Update(context.Background(), tenancy.Principal{Role: tenancy.RoleBarangayAdmin, BarangayID: barangay(5), Identity: "2"}, global.ID, Input{Title: "X", Body: "Y"})
	require.ErrorIs(t, err, tenancy.ErrPermissionDenied)
}

func TestTenantlessAdminListsNothing(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	_, err := svc.Create(context.Background(), staff(barangay(5)), Input{Title: "T", Body: "B"})
	require.NoError(t, err)

	items, total, err := svc.List(context.Background(), tenancy.Principal{Role: tenancy.RoleBarangayAdmin, Identity: "3"}, ListFilters{})
	require.NoError(t, err)
	require.Empty(t, items)
	require.Zero(t, total)
}

func TestTenantlessAdminCannotCreate(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)

	_, err := svc.Create(context.Background(), tenancy.Principal{Role: tenancy.RoleBarangayAdmin, Identity: "3"}, Input{Title: "T", Body: "B"})
	require.ErrorIs(t, err, tenancy.ErrPermissionDenied)
}

func TestSuccessfulWritesNotify(t *testing.T) {
	repo := newMemoryRepo()
	notifier := &recordingNotifier{}
	svc := NewService(repo, nil, notifier)

	created, err := svc.Create(context.Background(), staff(barangay(5)), Input{Title: "T", Body: "B"})
	require.NoError(t, err)
	require.NoError(t, svc.Archive(context.Background(), staff(barangay(5)), created.ID))

	require.Len(t, notifier.events, 2)
	require.Equal(t, "create", notifier.events[0].Action)
	require.Equal(t, "archive", notifier.events[1].Action)
	require.Equal(t, int64(5), *notifier.events[0].BarangayID)
}

func TestValidationRejectsEmptyTitle(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)

	_, err := svc.Create(context.Background(), staff(barangay(5)), Input{Title: " ", Body: "B"})
	require.ErrorIs(t, err, shared.ErrValidation)
}
