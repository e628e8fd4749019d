package barangays

import (
	"context"
	"fmt"
	"strings"

	"github.com/barangaykms/barangaykms/internal/shared"
	"github.com/barangaykms/barangaykms/internal/tenancy"
)

// AuditRecorder is the slice of shared.AuditLogger the service needs.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages barangay master data. Any authenticated principal can
// read the list; only the super admin can change it.
type Service struct {
	repo  Repository
	audit AuditRecorder
}

// NewService builds a Service instance.
func NewService(repo Repository, audit AuditRecorder) *Service {
	return &Service{repo: repo, audit: audit}
}

// Input carries the writable barangay fields.
type Input struct {
	Name         string
	Code         string
	Municipality string
	Province     string
	ContactEmail string
}

func (in Input) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if strings.TrimSpace(in.Code) == "" {
		return fmt.Errorf("%w: code is required", shared.ErrValidation)
	}
	return nil
}

// List returns barangays matching the filters.
func (s *Service) List(ctx context.Context, p tenancy.Principal, filters ListFilters) ([]Barangay, int, error) {
	if tenancy.ScopeForRead(p).Kind == tenancy.ScopeDeny {
		return nil, 0, nil
	}
	// Master data is not tenant scoped; everyone sees the directory.
	return s.repo.List(ctx, filters)
}

// Get returns one barangay.
func (s *Service) Get(ctx context.Context, p tenancy.Principal, id int64) (Barangay, error) {
	if tenancy.ScopeForRead(p).Kind == tenancy.ScopeDeny {
		return Barangay{}, shared.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// Create registers a new barangay. Super admin only.
func (s *Service) Create(ctx context.Context, p tenancy.Principal, in Input) (Barangay, error) {
	if err := s.requireSuperAdmin(ctx, p, "create", 0); err != nil {
		return Barangay{}, err
	}
	if err := in.validate(); err != nil {
		return Barangay{}, err
	}
	created, err := s.repo.Create(ctx, Barangay{
		Name:         strings.TrimSpace(in.Name),
		Code:         strings.ToUpper(strings.TrimSpace(in.Code)),
		Municipality: strings.TrimSpace(in.Municipality),
		Province:     strings.TrimSpace(in.Province),
		ContactEmail: strings.TrimSpace(in.ContactEmail),
	})
	if err != nil {
		return Barangay{}, err
	}
	s.record(ctx, p, "create", created.ID)
	return created, nil
}

// Update edits a barangay. Super admin only.
func (s *Service) Update(ctx context.Context, p tenancy.Principal, id int64, in Input) (Barangay, error) {
	if err := s.requireSuperAdmin(ctx, p, "update", id); err != nil {
		return Barangay{}, err
	}
	if err := in.validate(); err != nil {
		return Barangay{}, err
	}
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return Barangay{}, err
	}
	existing.Name = strings.TrimSpace(in.Name)
	existing.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	existing.Municipality = strings.TrimSpace(in.Municipality)
	existing.Province = strings.TrimSpace(in.Province)
	existing.ContactEmail = strings.TrimSpace(in.ContactEmail)
	if err := s.repo.Update(ctx, existing); err != nil {
		return Barangay{}, err
	}
	s.record(ctx, p, "update", id)
	return existing, nil
}

// Deactivate hides a barangay from new activity without deleting its data.
func (s *Service) Deactivate(ctx context.Context, p tenancy.Principal, id int64) error {
	return s.setActive(ctx, p, id, false)
}

// Activate re-enables a barangay.
func (s *Service) Activate(ctx context.Context, p tenancy.Principal, id int64) error {
	return s.setActive(ctx, p, id, true)
}

func (s *Service) setActive(ctx context.Context, p tenancy.Principal, id int64, active bool) error {
	action := "deactivate"
	if active {
		action = "activate"
	}
	if err := s.requireSuperAdmin(ctx, p, action, id); err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	s.record(ctx, p, action, id)
	return nil
}

func (s *Service) requireSuperAdmin(ctx context.Context, p tenancy.Principal, action string, id int64) error {
	if tenancy.IsSuperAdmin(p) {
		return nil
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:      p.Identity,
			BarangayID: p.BarangayID,
			Action:     action + ".denied",
			Entity:     "barangays",
			EntityID:   fmt.Sprintf("%d", id),
			Meta:       map[string]any{"reason": string(tenancy.ReasonInsufficientRole)},
		})
	}
	return &tenancy.PermissionError{Reason: tenancy.ReasonInsufficientRole}
}

func (s *Service) record(ctx context.Context, p tenancy.Principal, action string, id int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    p.Identity,
		Action:   action,
		Entity:   "barangays",
		EntityID: fmt.Sprintf("%d", id),
	})
}
