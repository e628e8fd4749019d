package announcements

import (
	"context"
	"fmt"
	"strings"
	"time"

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

// Service applies the tenancy guard to every announcement operation before
// touching the repository.
type Service struct {
	repo   Repository
	audit  AuditRecorder
	notify Notifier
}

// NewService builds a Service instance.
func NewService(repo Repository, audit AuditRecorder, notify Notifier) *Service {
	return &Service{repo: repo, audit: audit, notify: notify}
}

// Input carries the writable announcement fields. Note there is no barangay
// field: the stored tenant always comes from the guard decision.
type Input struct {
	Title     string
	Body      string
	Priority  Priority
	IsPinned  bool
	ExpiresAt *time.Time
}

func (in Input) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", shared.ErrValidation)
	}
	if strings.TrimSpace(in.Body) == "" {
		return fmt.Errorf("%w: body is required", shared.ErrValidation)
	}
	return nil
}

// List returns announcements visible to the principal.
func (s *Service) List(ctx context.Context, p tenancy.Principal, filters ListFilters) ([]Announcement, int, error) {
	return s.repo.List(ctx, tenancy.ScopeForRead(p), filters)
}

// Get returns one announcement if the principal's scope can see it.
func (s *Service) Get(ctx context.Context, p tenancy.Principal, id int64) (Announcement, error) {
	return s.repo.Get(ctx, tenancy.ScopeForRead(p), id)
}

// Create stores a new announcement under the principal's barangay.
func (s *Service) Create(ctx context.Context, p tenancy.Principal, in Input) (Announcement, error) {
	decision := tenancy.AuthorizeWrite(p, tenancy.ActionCreate, nil)
	if err := decision.Err(); err != nil {
		s.auditDenied(ctx, p, "create", 0, decision.Reason)
		return Announcement{}, err
	}
	if err := in.validate(); err != nil {
		return Announcement{}, err
	}
	created, err := s.repo.Create(ctx, Announcement{
		BarangayID: decision.BarangayID,
		Title:      strings.TrimSpace(in.Title),
		Body:       in.Body,
		Priority:   in.Priority,
		IsPinned:   in.IsPinned,
		ExpiresAt:  in.ExpiresAt,
		CreatedBy:  p.Identity,
	})
	if err != nil {
		return Announcement{}, err
	}
	s.recordAndNotify(ctx, p, "create", created)
	return created, nil
}

// Update edits an existing announcement after the ownership check.
func (s *Service) Update(ctx context.Context, p tenancy.Principal, id int64, in Input) (Announcement, error) {
	existing, err := s.repo.Get(ctx, tenancy.ScopeForRead(p), id)
	if err != nil {
		return Announcement{}, err
	}
	decision := tenancy.AuthorizeWrite(p, tenancy.ActionUpdate, existing.BarangayID)
	if err := decision.Err(); err != nil {
		s.auditDenied(ctx, p, "update", id, decision.Reason)
		return Announcement{}, err
	}
	if err := in.validate(); err != nil {
		return Announcement{}, err
	}
	existing.Title = strings.TrimSpace(in.Title)
	existing.Body = in.Body
	existing.Priority = in.Priority
	existing.IsPinned = in.IsPinned
	existing.ExpiresAt = in.ExpiresAt
	if err := s.repo.Update(ctx, existing); err != nil {
		return Announcement{}, err
	}
	s.recordAndNotify(ctx, p, "update", existing)
	return existing, nil
}

// Archive retires an announcement; Restore brings it back.
func (s *Service) Archive(ctx context.Context, p tenancy.Principal, id int64) error {
	return s.setArchived(ctx, p, id, true)
}

// Restore clears the archived flag.
func (s *Service) Restore(ctx context.Context, p tenancy.Principal, id int64) error {
	return s.setArchived(ctx, p, id, false)
}

func (s *Service) setArchived(ctx context.Context, p tenancy.Principal, id int64, archived bool) error {
	scope := tenancy.ScopeForRead(p)
	// The archived record itself must stay fetchable for the restore path.
	existing, err := s.repo.Get(ctx, scope, id)
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

func (s *Service) recordAndNotify(ctx context.Context, p tenancy.Principal, action string, a Announcement) {
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:      p.Identity,
			BarangayID: a.BarangayID,
			Action:     action,
			Entity:     "announcement",
			EntityID:   fmt.Sprintf("%d", a.ID),
		})
	}
	if s.notify != nil {
		s.notify.Notify(ctx, notifications.Event{
			Module:     "announcements",
			Action:     action,
			EntityID:   a.ID,
			Title:      a.Title,
			BarangayID: a.BarangayID,
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
		Entity:     "announcement",
		EntityID:   fmt.Sprintf("%d", id),
		Meta:       map[string]any{"reason": string(reason)},
	})
}
