package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/barangaykms/barangaykms/internal/notifications"
	"github.com/barangaykms/barangaykms/internal/shared"
	"github.com/barangaykms/barangaykms/internal/tenancy"
)

// AuditRecorder is the slice of shared.AuditLogger the service needs.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalRecorder keeps the review history of an entry.
type ApprovalRecorder interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref int64) ([]shared.ApprovalLog, error)
}

// Notifier publishes fire-and-forget events after successful writes.
type Notifier interface {
	Notify(ctx context.Context, ev notifications.Event)
}

// ErrInvalidTransition indicates a review action on an entry that is not in
// the required state.
var ErrInvalidTransition = fmt.Errorf("invalid status transition")

const approvalModule = "knowledge"

// Service applies the tenancy guard plus the review workflow to knowledge
// entries.
type Service struct {
	repo      Repository
	audit     AuditRecorder
	approvals ApprovalRecorder
	notify    Notifier
}

// NewService builds a Service instance.
func NewService(repo Repository, audit AuditRecorder, approvals ApprovalRecorder, notify Notifier) *Service {
	return &Service{repo: repo, audit: audit, approvals: approvals, notify: notify}
}

// Input carries the writable entry fields; the tenant never comes from here.
type Input struct {
	Title   string
	Summary string
	Body    string
	Tags    []string
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

// CanReview reports whether the principal's role may approve or reject.
// Staff can author entries but not review them.
func CanReview(p tenancy.Principal) bool {
	switch p.Role {
	case tenancy.RoleSuperAdmin, tenancy.RoleBarangayAdmin, tenancy.RoleBarangaySecretary:
		return true
	}
	return false
}

// List returns entries of one kind visible to the principal.
func (s *Service) List(ctx context.Context, p tenancy.Principal, kind Kind, filters ListFilters) ([]Entry, int, error) {
	return s.repo.List(ctx, tenancy.ScopeForRead(p), kind, filters)
}

// Get returns one entry if visible.
func (s *Service) Get(ctx context.Context, p tenancy.Principal, kind Kind, id int64) (Entry, error) {
	return s.repo.Get(ctx, tenancy.ScopeForRead(p), kind, id)
}

// History returns the review trail of an entry the principal can see.
func (s *Service) History(ctx context.Context, p tenancy.Principal, kind Kind, id int64) ([]shared.ApprovalLog, error) {
	if _, err := s.Get(ctx, p, kind, id); err != nil {
		return nil, err
	}
	if s.approvals == nil {
		return nil, nil
	}
	return s.approvals.List(ctx, approvalModule, id)
}

// Create stores a new pending entry under the principal's barangay.
func (s *Service) Create(ctx context.Context, p tenancy.Principal, kind Kind, in Input) (Entry, error) {
	decision := tenancy.AuthorizeWrite(p, tenancy.ActionCreate, nil)
	if err := decision.Err(); err != nil {
		s.auditDenied(ctx, p, "create", 0, decision.Reason)
		return Entry{}, err
	}
	if err := in.validate(); err != nil {
		return Entry{}, err
	}
	created, err := s.repo.Create(ctx, Entry{
		Kind:       kind,
		BarangayID: decision.BarangayID,
		Title:      strings.TrimSpace(in.Title),
		Summary:    strings.TrimSpace(in.Summary),
		Body:       in.Body,
		Tags:       normalizeTags(in.Tags),
		Status:     StatusPending,
		CreatedBy:  p.Identity,
	})
	if err != nil {
		return Entry{}, err
	}
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{Module: approvalModule, RefID: created.ID, Actor: p.Identity, Action: shared.ApprovalSubmit})
	}
	s.recordAndNotify(ctx, p, "create", created)
	return created, nil
}

// Update edits an existing entry after the ownership check. An approved
// entry drops back to pending so edits get re-reviewed.
func (s *Service) Update(ctx context.Context, p tenancy.Principal, kind Kind, id int64, in Input) (Entry, error) {
	existing, err := s.repo.Get(ctx, tenancy.ScopeForRead(p), kind, id)
	if err != nil {
		return Entry{}, err
	}
	decision := tenancy.AuthorizeWrite(p, tenancy.ActionUpdate, existing.BarangayID)
	if err := decision.Err(); err != nil {
		s.auditDenied(ctx, p, "update", id, decision.Reason)
		return Entry{}, err
	}
	if err := in.validate(); err != nil {
		return Entry{}, err
	}
	existing.Title = strings.TrimSpace(in.Title)
	existing.Summary = strings.TrimSpace(in.Summary)
	existing.Body = in.Body
	existing.Tags = normalizeTags(in.Tags)
	if err := s.repo.Update(ctx, existing); err != nil {
		return Entry{}, err
	}
	if existing.Status == StatusApproved {
		if err := s.repo.SetStatus(ctx, id, StatusPending); err != nil {
			return Entry{}, err
		}
		existing.Status = StatusPending
	}
	s.recordAndNotify(ctx, p, "update", existing)
	return existing, nil
}

// Approve moves a pending entry to approved.
func (s *Service) Approve(ctx context.Context, p tenancy.Principal, kind Kind, id int64, note string) error {
	return s.review(ctx, p, kind, id, tenancy.ActionApprove, StatusApproved, shared.ApprovalApprove, note)
}

// Reject moves a pending entry to rejected.
func (s *Service) Reject(ctx context.Context, p tenancy.Principal, kind Kind, id int64, note string) error {
	return s.review(ctx, p, kind, id, tenancy.ActionReject, StatusRejected, shared.ApprovalReject, note)
}

func (s *Service) review(ctx context.Context, p tenancy.Principal, kind Kind, id int64, action tenancy.Action, target Status, logAction shared.ApprovalAction, note string) error {
	existing, err := s.repo.Get(ctx, tenancy.ScopeForRead(p), kind, id)
	if err != nil {
		return err
	}
	decision := tenancy.AuthorizeWrite(p, action, existing.BarangayID)
	if err := decision.Err(); err != nil {
		s.auditDenied(ctx, p, string(action), id, decision.Reason)
		return err
	}
	if !CanReview(p) {
		s.auditDenied(ctx, p, string(action), id, tenancy.ReasonInsufficientRole)
		return &tenancy.PermissionError{Reason: tenancy.ReasonInsufficientRole}
	}
	if existing.Status != StatusPending {
		return fmt.Errorf("%w: %s entry cannot be %s", ErrInvalidTransition, existing.Status, target)
	}
	if err := s.repo.SetStatus(ctx, id, target); err != nil {
		return err
	}
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{Module: approvalModule, RefID: id, Actor: p.Identity, Action: logAction, Note: note})
	}
	existing.Status = target
	s.recordAndNotify(ctx, p, string(action), existing)
	return nil
}

// Archive retires an entry; Restore brings it back.
func (s *Service) Archive(ctx context.Context, p tenancy.Principal, kind Kind, id int64) error {
	return s.setArchived(ctx, p, kind, id, true)
}

// Restore clears the archived flag.
func (s *Service) Restore(ctx context.Context, p tenancy.Principal, kind Kind, id int64) error {
	return s.setArchived(ctx, p, kind, id, false)
}

func (s *Service) setArchived(ctx context.Context, p tenancy.Principal, kind Kind, id int64, archived bool) error {
	existing, err := s.repo.Get(ctx, tenancy.ScopeForRead(p), kind, id)
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

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func (s *Service) recordAndNotify(ctx context.Context, p tenancy.Principal, action string, e Entry) {
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:      p.Identity,
			BarangayID: e.BarangayID,
			Action:     action,
			Entity:     "knowledge." + string(e.Kind),
			EntityID:   fmt.Sprintf("%d", e.ID),
		})
	}
	if s.notify != nil {
		s.notify.Notify(ctx, notifications.Event{
			Module:     "knowledge." + string(e.Kind),
			Action:     action,
			EntityID:   e.ID,
			Title:      e.Title,
			BarangayID: e.BarangayID,
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
		Entity:     "knowledge",
		EntityID:   fmt.Sprintf("%d", id),
		Meta:       map[string]any{"reason": string(reason)},
	})
}
