package knowledge

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
	items  map[int64]Entry
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[int64]Entry)}
}

func (m *memoryRepo) List(ctx context.Context, scope tenancy.Scope, kind Kind, filters ListFilters) ([]Entry, int, error) {
	var out []Entry
	for _, e := range m.items {
		if e.Kind != kind || e.IsArchived != filters.IncludeArchived {
			continue
		}
		if filters.Status != "" && e.Status != filters.Status {
			continue
		}
		if scope.Visible(e.BarangayID) {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

func (m *memoryRepo) Get(ctx context.Context, scope tenancy.Scope, kind Kind, id int64) (Entry, error) {
	e, ok := m.items[id]
	if !ok || e.Kind != kind || !scope.Visible(e.BarangayID) {
		return Entry{}, shared.ErrNotFound
	}
	return e, nil
}

func (m *memoryRepo) Create(ctx context.Context, e Entry) (Entry, error) {
	m.nextID++
	e.ID = m.nextID
	e.CreatedAt = time.Now()
	m.items[e.ID] = e
	return e, nil
}

func (m *memoryRepo) Update(ctx context.Context, e Entry) error {
	stored, ok := m.items[e.ID]
	if !ok {
		return shared.ErrNotFound
	}
	// barangay_id, kind and status never change through Update
	e.BarangayID = stored.BarangayID
	e.Kind = stored.Kind
	e.Status = stored.Status
	m.items[e.ID] = e
	return nil
}

func (m *memoryRepo) SetStatus(ctx context.Context, id int64, status Status) error {
	e, ok := m.items[id]
	if !ok {
		return shared.ErrNotFound
	}
	e.Status = status
	m.items[id] = e
	return nil
}

func (m *memoryRepo) SetArchived(ctx context.Context, id int64, archived bool) error {
	e, ok := m.items[id]
	if !ok {
		return shared.ErrNotFound
	}
	e.IsArchived = archived
	m.items[id] = e
	return nil
}

type memoryApprovals struct {
	logs []shared.ApprovalLog
}

func (m *memoryApprovals) Record(ctx context.Context, log shared.ApprovalLog) error {
	log.At = time.Now()
	m.logs = append(m.logs, log)
	return nil
}

func (m *memoryApprovals) List(ctx context.Context, module string, ref int64) ([]shared.ApprovalLog, error) {
	var out []shared.ApprovalLog
	for _, l := range m.logs {
		if l.Module == module && l.RefID == ref {
			out = append(out, l)
		}
	}
	return out, nil
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

func secretary(barangayID *int64) tenancy.Principal {
	return tenancy.Principal{Role: tenancy.RoleBarangaySecretary, BarangayID: barangayID, Identity: "9"}
}

func TestCreateStartsPendingWithSubmitTrail(t *testing.T) {
	repo := newMemoryRepo()
	approvals := &memoryApprovals{}
	svc := NewService(repo, nil, approvals, nil)

	created, err := svc.Create(context.Background(), staff(barangay(3)), KindPolicy, Input{Title: "Curfew ordinance", Body: "Text"})
	require.NoError(t, err)
	require.Equal(t, StatusPending, created.Status)
	require.Equal(t, int64(3), *created.BarangayID)

	history, err := svc.History(context.Background(), staff(barangay(3)), KindPolicy, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, shared.ApprovalSubmit, history[0].Action)
}

func TestStaffCannotReview(t *testing.T) {
	repo := newMemoryRepo()
	audit := &recordingAudit{}
	svc := NewService(repo, audit, &memoryApprovals{}, nil)

	created, err := svc.Create(context.Background(), staff(barangay(3)), KindLesson, Input{Title: "T", Body: "B"})
	require.NoError(t, err)

	err = svc.Approve(context.Background(), staff(barangay(3)), KindLesson, created.ID, "")
	require.ErrorIs(t, err, tenancy.ErrPermissionDenied)
	require.Equal(t, StatusPending, repo.items[created.ID].Status)

	last := audit.logs[len(audit.logs)-1]
	require.Equal(t, "approve.denied", last.Action)
	require.Equal(t, string(tenancy.ReasonInsufficientRole), last.Meta["reason"])
}

func TestSecretaryApprovesPendingEntry(t *testing.T) {
	repo := newMemoryRepo()
	approvals := &memoryApprovals{}
	svc := NewService(repo, nil, approvals, nil)

	created, err := svc.Create(context.Background(), staff(barangay(3)), KindBestPractice, Input{Title: "T", Body: "B"})
	require.NoError(t, err)

	require.NoError(t, svc.Approve(context.Background(), secretary(barangay(3)), KindBestPractice, created.ID, "looks good"))
	require.Equal(t, StatusApproved, repo.items[created.ID].Status)

	history, err := svc.History(context.Background(), secretary(barangay(3)), KindBestPractice, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, shared.ApprovalApprove, history[1].Action)
	require.Equal(t, "looks good", history[1].Note)
}

func TestApproveRequiresPendingStatus(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, &memoryApprovals{}, nil)

	created, err := svc.Create(context.Background(), staff(barangay(3)), KindPolicy, Input{Title: "T", Body: "B"})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(context.Background(), secretary(barangay(3)), KindPolicy, created.ID, ""))

	err = svc.Approve(context.Background(), secretary(barangay(3)), KindPolicy, created.ID, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRejectRecordsNote(t *testing.T) {
	repo := newMemoryRepo()
	approvals := &memoryApprovals{}
	svc := NewService(repo, nil, approvals, nil)

	created, err := svc.Create(context.Background(), staff(barangay(3)), KindPolicy, Input{Title: "T", Body: "B"})
	require.NoError(t, err)

	require.NoError(t, svc.Reject(context.Background(), secretary(barangay(3)), KindPolicy, created.ID, "needs a legal basis"))
	require.Equal(t, StatusRejected, repo.items[created.ID].Status)

	history, err := svc.History(context.Background(), secretary(barangay(3)), KindPolicy, created.ID)
	require.NoError(t, err)
	require.Equal(t, shared.ApprovalReject, history[1].Action)
	require.Equal(t, "needs a legal basis", history[1].Note)
}

func TestCrossTenantReviewDenied(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, &memoryApprovals{}, nil)

	created, err := svc.Create(context.Background(), staff(barangay(5)), KindLesson, Input{Title: "T", Body: "B"})
	require.NoError(t, err)

	// Barangay 7's secretary cannot see the entry at all.
	err = svc.Approve(context.Background(), secretary(barangay(7)), KindLesson, created.ID, "")
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Equal(t, StatusPending, repo.items[created.ID].Status)
}

func TestEditingApprovedEntryReopensReview(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, &memoryApprovals{}, nil)

	created, err := svc.Create(context.Background(), staff(barangay(3)), KindPolicy, Input{Title: "T", Body: "B"})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(context.Background(), secretary(barangay(3)), KindPolicy, created.ID, ""))

	updated, err := svc.Update(context.Background(), staff(barangay(3)), KindPolicy, created.ID, Input{Title: "T2", Body: "B2"})
	require.NoError(t, err)
	require.Equal(t, StatusPending, updated.Status)
	require.Equal(t, StatusPending, repo.items[created.ID].Status)
}

func TestKindMismatchIsNotFound(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, &memoryApprovals{}, nil)

	created, err := svc.Create(context.Background(), staff(barangay(3)), KindPolicy, Input{Title: "T", Body: "B"})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), staff(barangay(3)), KindLesson, created.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestTagsNormalized(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)

	created, err := svc.Create(context.Background(), staff(barangay(3)), KindBestPractice, Input{
		Title: "T", Body: "B",
		Tags: []string{" Waste ", "waste", "", "Health"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"waste", "health"}, created.Tags)
}

func TestSuccessfulReviewNotifies(t *testing.T) {
	repo := newMemoryRepo()
	notifier := &recordingNotifier{}
	svc := NewService(repo, nil, nil, notifier)

	created, err := svc.Create(context.Background(), staff(barangay(3)), KindPolicy, Input{Title: "T", Body: "B"})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(context.Background(), secretary(barangay(3)), KindPolicy, created.ID, ""))

	require.Len(t, notifier.events, 2)
	require.Equal(t, "knowledge.policy", notifier.events[0].Module)
	require.Equal(t, string(tenancy.ActionApprove), notifier.events[1].Action)
}

func TestValidationRejectsEmptyBody(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)

	_, err := svc.Create(context.Background(), staff(barangay(3)), KindPolicy, Input{Title: "T", Body: " "})
	require.ErrorIs(t, err, shared.ErrValidation)
}
