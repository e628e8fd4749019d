package documents

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/barangaykms/barangaykms/internal/notifications"
	"github.com/barangaykms/barangaykms/internal/shared"
	"github.com/barangaykms/barangaykms/internal/tenancy"
)

// AuditRecorder is the slice of shared.AuditLogger the service needs.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Notifier publishes fire-and-forget events after successful writes.
type Notifier interface {
	Notify(ctx context.Context, ev notifications.Event)
}

// ErrFileTooLarge indicates the upload exceeded the configured limit.
var ErrFileTooLarge = fmt.Errorf("%w: file exceeds the upload size limit", shared.ErrValidation)

// Service applies the tenancy guard to the document library.
type Service struct {
	repo     Repository
	blobs    BlobStore
	audit    AuditRecorder
	notify   Notifier
	maxBytes int64
}

// NewService builds a Service instance.
func NewService(repo Repository, blobs BlobStore, audit AuditRecorder, notify Notifier, maxBytes int64) *Service {
	return &Service{repo: repo, blobs: blobs, audit: audit, notify: notify, maxBytes: maxBytes}
}

// UploadInput carries the metadata of a new upload; the tenant never comes
// from here.
type UploadInput struct {
	Title        string
	Category     Category
	OriginalName string
	ContentType  string
	Content      io.Reader
}

// MetaInput carries the editable metadata fields.
type MetaInput struct {
	Title    string
	Category Category
}

// List returns documents visible to the principal.
func (s *Service) List(ctx context.Context, p tenancy.Principal, filters ListFilters) ([]Document, int, error) {
	return s.repo.List(ctx, tenancy.ScopeForRead(p), filters)
}

// Get returns one document if visible.
func (s *Service) Get(ctx context.Context, p tenancy.Principal, id int64) (Document, error) {
	return s.repo.Get(ctx, tenancy.ScopeForRead(p), id)
}

// Open returns the content of a document the principal can see. Reading the
// bytes follows the same visibility rule as reading the metadata.
func (s *Service) Open(ctx context.Context, p tenancy.Principal, id int64) (Document, io.ReadCloser, error) {
	d, err := s.Get(ctx, p, id)
	if err != nil {
		return Document{}, nil, err
	}
	rc, err := s.blobs.Open(d.StoredName)
	if err != nil {
		return Document{}, nil, fmt.Errorf("open stored file: %w", err)
	}
	return d, rc, nil
}

// Upload stores the file and its metadata under the principal's barangay.
func (s *Service) Upload(ctx context.Context, p tenancy.Principal, in UploadInput) (Document, error) {
	decision := tenancy.AuthorizeWrite(p, tenancy.ActionCreate, nil)
	if err := decision.Err(); err != nil {
		s.auditDenied(ctx, p, "upload", 0, decision.Reason)
		return Document{}, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return Document{}, fmt.Errorf("%w: title is required", shared.ErrValidation)
	}
	if in.Content == nil {
		return Document{}, fmt.Errorf("%w: file is required", shared.ErrValidation)
	}

	// Copy one byte past the limit so an oversized stream is detected
	// without buffering the whole file.
	reader := in.Content
	if s.maxBytes > 0 {
		reader = io.LimitReader(in.Content, s.maxBytes+1)
	}
	storedName, size, err := s.blobs.Save(reader)
	if err != nil {
		return Document{}, fmt.Errorf("store upload: %w", err)
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		_ = s.blobs.Remove(storedName)
		return Document{}, ErrFileTooLarge
	}
	if size == 0 {
		_ = s.blobs.Remove(storedName)
		return Document{}, fmt.Errorf("%w: file is empty", shared.ErrValidation)
	}

	created, err := s.repo.Create(ctx, Document{
		BarangayID:   decision.BarangayID,
		Title:        strings.TrimSpace(in.Title),
		Category:     in.Category,
		OriginalName: in.OriginalName,
		StoredName:   storedName,
		ContentType:  in.ContentType,
		SizeBytes:    size,
		UploadedBy:   p.Identity,
	})
	if err != nil {
		_ = s.blobs.Remove(storedName)
		return Document{}, err
	}
	s.recordAndNotify(ctx, p, "upload", created)
	return created, nil
}

// UpdateMeta edits title and category after the ownership check.
func (s *Service) UpdateMeta(ctx context.Context, p tenancy.Principal, id int64, in MetaInput) (Document, error) {
	existing, err := s.repo.Get(ctx, tenancy.ScopeForRead(p), id)
	if err != nil {
		return Document{}, err
	}
	decision := tenancy.AuthorizeWrite(p, tenancy.ActionUpdate, existing.BarangayID)
	if err := decision.Err(); err != nil {
		s.auditDenied(ctx, p, "update", id, decision.Reason)
		return Document{}, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return Document{}, fmt.Errorf("%w: title is required", shared.ErrValidation)
	}
	existing.Title = strings.TrimSpace(in.Title)
	existing.Category = in.Category
	if err := s.repo.UpdateMeta(ctx, existing); err != nil {
		return Document{}, err
	}
	s.recordAndNotify(ctx, p, "update", existing)
	return existing, nil
}

// Archive retires a document; the file stays on disk for restore.
func (s *Service) Archive(ctx context.Context, p tenancy.Principal, id int64) error {
	return s.setArchived(ctx, p, id, true)
}

// Restore clears the archived flag.
func (s *Service) Restore(ctx context.Context, p tenancy.Principal, id int64) error {
	return s.setArchived(ctx, p, id, false)
}

func (s *Service) setArchived(ctx context.Context, p tenancy.Principal, id int64, archived bool) error {
	existing, err := s.repo.Get(ctx, tenancy.ScopeForRead(p), id)
	if err != nil {
		return err
	}
	decision := tenancy.AuthorizeWrite(p, tenancy.ActionArchive, existing.BarangayID)
	if err := decision.Err(); err != nil {
		s.auditDenied(ctx, p, "archive", id, decision.Reason)
		return err
	}
	if err := s.repo.SetArchived(ctx, id, archived); err != nil {
		return err
	}
	action := "archive"
	if !archived {
		action = "restore"
	}
	existing.IsArchived = archived
	s.recordAndNotify(ctx, p, action, existing)
	return nil
}

func (s *Service) recordAndNotify(ctx context.Context, p tenancy.Principal, action string, d Document) {
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:      p.Identity,
			BarangayID: d.BarangayID,
			Action:     action,
			Entity:     "documents",
			EntityID:   fmt.Sprintf("%d", d.ID),
		})
	}
	if s.notify != nil {
		s.notify.Notify(ctx, notifications.Event{
			Module:     "documents",
			Action:     action,
			EntityID:   d.ID,
			Title:      d.Title,
			BarangayID: d.BarangayID,
			Actor:      p.Identity,
		})
	}
}

func (s *Service) auditDenied(ctx context.Context, p tenancy.Principal, action string, id int64, reason tenancy.DenialReason) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:      p.Identity,
		BarangayID: p.BarangayID,
		Action:     action + ".denied",
		Entity:     "documents",
		EntityID:   fmt.Sprintf("%d", id),
		Meta:       map[string]any{"reason": string(reason)},
	})
}
