package documents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/barangaykms/barangaykms/internal/shared"
	"github.com/barangaykms/barangaykms/internal/tenancy"
)

type memoryRepo struct {
	items  map[int64]Document
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[int64]Document)}
}

func (m *memoryRepo) List(ctx context.Context, scope tenancy.Scope, filters ListFilters) ([]Document, int, error) {
	var out []Document
	for _, d := range m.items {
		if !d.IsActive || d.IsArchived != filters.IncludeArchived {
			continue
		}
		if scope.Visible(d.BarangayID) {
			out = append(out, d)
		}
	}
	return out, len(out), nil
}

func (m *memoryRepo) Get(ctx context.Context, scope tenancy.Scope, id int64) (Document, error) {
	d, ok := m.items[id]
	if !ok || !d.IsActive || !scope.Visible(d.BarangayID) {
		return Document{}, shared.ErrNotFound
	}
	return d, nil
}

func (m *memoryRepo) Create(ctx context.Context, d Document) (Document, error) {
	m.nextID++
	d.ID = m.nextID
	d.IsActive = true
	d.CreatedAt = time.Now()
	m.items[d.ID] = d
	return d, nil
}

func (m *memoryRepo) UpdateMeta(ctx context.Context, d Document) error {
	stored, ok := m.items[d.ID]
	if !ok {
		return shared.ErrNotFound
	}
	stored.Title = d.Title
	stored.Category = d.Category
	m.items[d.ID] = stored
	return nil
}

func (m *memoryRepo) SetArchived(ctx context.Context, id int64, archived bool) error {
	d, ok := m.items[id]
	if !ok {
		return shared.ErrNotFound
	}
	d.IsArchived = archived
	m.items[id] = d
	return nil
}

type memoryBlobs struct {
	files  map[string][]byte
	nextID int
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{files: make(map[string][]byte)}
}

func (m *memoryBlobs) Save(r io.Reader) (string, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	m.nextID++
	name := fmt.Sprintf("blob-%d", m.nextID)
	m.files[name] = data
	return name, int64(len(data)), nil
}

func (m *memoryBlobs) Open(name string) (io.ReadCloser, error) {
	data, ok := m.files[name]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryBlobs) Remove(name string) error {
	delete(m.files, name)
	return nil
}

func barangay(id int64) *int64 { return &id }

func staff(barangayID *int64) tenancy.Principal {
	return tenancy.Principal{Role: tenancy.RoleBarangayStaff, BarangayID: barangayID, Identity: "17"}
}

func upload(title, content string) UploadInput {
	return UploadInput{
		Title:        title,
		Category:     CategoryMinutes,
		OriginalName: "minutes.pdf",
		ContentType:  "application/pdf",
		Content:      strings.NewReader(content),
	}
}

func TestUploadAssignsPrincipalBarangay(t *testing.T) {
	repo := newMemoryRepo()
	blobs := newMemoryBlobs()
	svc := NewService(repo, blobs, nil, nil, 1024)

	d, err := svc.Upload(context.Background(), staff(barangay(4)), upload("Session minutes", "pdf bytes"))
	require.NoError(t, err)
	require.Equal(t, int64(4), *d.BarangayID)
	require.Equal(t, "17", d.UploadedBy)
	require.Equal(t, int64(len("pdf bytes")), d.SizeBytes)
	require.NotEmpty(t, d.StoredName)
}

func TestUploadEnforcesSizeLimit(t *testing.T) {
	repo := newMemoryRepo()
	blobs := newMemoryBlobs()
	svc := NewService(repo, blobs, nil, nil, 8)

	_, err := svc.Upload(context.Background(), staff(barangay(4)), upload("Too big", "0123456789"))
	require.ErrorIs(t, err, ErrFileTooLarge)
	require.ErrorIs(t, err, shared.ErrValidation)
	// The partial blob must not linger on disk.
	require.Empty(t, blobs.files)
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	svc := NewService(newMemoryRepo(), newMemoryBlobs(), nil, nil, 1024)

	_, err := svc.Upload(context.Background(), staff(barangay(4)), upload("Empty", ""))
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCouncilMemberCannotUpload(t *testing.T) {
	svc := NewService(newMemoryRepo(), newMemoryBlobs(), nil, nil, 1024)

	council := tenancy.Principal{Role: tenancy.RoleCouncilMember, BarangayID: barangay(4), Identity: "5"}
	_, err := svc.Upload(context.Background(), council, upload("T", "x"))
	require.ErrorIs(t, err, tenancy.ErrPermissionDenied)
}

func TestDownloadFollowsVisibility(t *testing.T) {
	repo := newMemoryRepo()
	blobs := newMemoryBlobs()
	svc := NewService(repo, blobs, nil, nil, 1024)

	d, err := svc.Upload(context.Background(), staff(barangay(4)), upload("Minutes", "pdf bytes"))
	require.NoError(t, err)

	// Same barangay reads the content back.
	got, rc, err := svc.Open(context.Background(), staff(barangay(4)), d.ID)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "pdf bytes", string(data))
	require.Equal(t, d.ID, got.ID)

	// A different barangay cannot even see the metadata.
	_, _, err = svc.Open(context.Background(), staff(barangay(9)), d.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCrossTenantMetaUpdateDenied(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, newMemoryBlobs(), nil, nil, 1024)

	d, err := svc.Upload(context.Background(), staff(barangay(4)), upload("T", "x"))
	require.NoError(t, err)

	_, err = svc.UpdateMeta(context.Background(), staff(barangay(9)), d.ID, MetaInput{Title: "Hijack", Category: CategoryOther})
	require.ErrorIs(t, err, shared.ErrNotFound)

	admin := tenancy.Principal{Role: tenancy.RoleSuperAdmin, Identity: "1"}
	updated, err := svc.UpdateMeta(context.Background(), admin, d.ID, MetaInput{Title: "Renamed", Category: CategoryOther})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Title)
	require.Equal(t, int64(4), *repo.items[d.ID].BarangayID)
}

func TestInactiveDocumentIsHidden(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, newMemoryBlobs(), nil, nil, 1024)

	kept, err := svc.Upload(context.Background(), staff(barangay(4)), upload("Kept", "x"))
	require.NoError(t, err)
	removed, err := svc.Upload(context.Background(), staff(barangay(4)), upload("Removed", "y"))
	require.NoError(t, err)

	d := repo.items[removed.ID]
	d.IsActive = false
	repo.items[removed.ID] = d

	items, total, err := svc.List(context.Background(), staff(barangay(4)), ListFilters{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, items, 1)
	require.Equal(t, kept.ID, items[0].ID)

	_, err = svc.Get(context.Background(), staff(barangay(4)), removed.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestArchiveKeepsFile(t *testing.T) {
	repo := newMemoryRepo()
	blobs := newMemoryBlobs()
	svc := NewService(repo, blobs, nil, nil, 1024)

	d, err := svc.Upload(context.Background(), staff(barangay(4)), upload("T", "x"))
	require.NoError(t, err)
	require.NoError(t, svc.Archive(context.Background(), staff(barangay(4)), d.ID))

	require.True(t, repo.items[d.ID].IsArchived)
	require.Len(t, blobs.files, 1, "archiving must not delete the stored file")

	require.NoError(t, svc.Restore(context.Background(), staff(barangay(4)), d.ID))
	require.False(t, repo.items[d.ID].IsArchived)
}
