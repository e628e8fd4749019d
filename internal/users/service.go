package users

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/barangaykms/barangaykms/internal/shared"
	"github.com/barangaykms/barangaykms/internal/tenancy"
)

// AuditRecorder is the slice of shared.AuditLogger the service needs.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages portal accounts. The super admin manages every account;
// a barangay admin can read the roster of their own barangay and nothing
// else. All other roles are locked out of this module entirely.
type Service struct {
	repo  Repository
	audit AuditRecorder
}

// NewService builds a Service instance.
func NewService(repo Repository, audit AuditRecorder) *Service {
	return &Service{repo: repo, audit: audit}
}

// Input carries the writable account fields.
type Input struct {
	Email      string
	Name       string
	Password   string
	Role       string
	BarangayID *int64
}

const minPasswordLength = 10

func (in Input) validate(forCreate bool) error {
	if strings.TrimSpace(in.Email) == "" {
		return fmt.Errorf("%w: email is required", shared.ErrValidation)
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	role, ok := tenancy.ParseRole(in.Role)
	if !ok {
		return fmt.Errorf("%w: unknown role %q", shared.ErrValidation, in.Role)
	}
	if role == tenancy.RoleSuperAdmin && in.BarangayID != nil {
		return fmt.Errorf("%w: a super admin account has no barangay", shared.ErrValidation)
	}
	if role != tenancy.RoleSuperAdmin && in.BarangayID == nil {
		return fmt.Errorf("%w: a barangay role needs a barangay assignment", shared.ErrValidation)
	}
	if forCreate && len(in.Password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", shared.ErrValidation, minPasswordLength)
	}
	return nil
}

// List returns the accounts the principal may see.
func (s *Service) List(ctx context.Context, p tenancy.Principal, filters ListFilters) ([]Account, int, error) {
	switch {
	case tenancy.IsSuperAdmin(p):
		return s.repo.List(ctx, filters)
	case p.Role == tenancy.RoleBarangayAdmin && p.BarangayID != nil:
		// A barangay admin only ever sees their own roster, whatever the
		// filter says.
		filters.BarangayID = p.BarangayID
		return s.repo.List(ctx, filters)
	}
	return nil, 0, nil
}

// Get returns one account if the principal may see it.
func (s *Service) Get(ctx context.Context, p tenancy.Principal, id int64) (Account, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if tenancy.IsSuperAdmin(p) {
		return a, nil
	}
	if p.Role == tenancy.RoleBarangayAdmin && p.BarangayID != nil && a.BarangayID != nil && *a.BarangayID == *p.BarangayID {
		return a, nil
	}
	return Account{}, shared.ErrNotFound
}

// Create registers a new account. Super admin only.
func (s *Service) Create(ctx context.Context, p tenancy.Principal, in Input) (Account, error) {
	if err := s.requireSuperAdmin(ctx, p, "create", 0); err != nil {
		return Account{}, err
	}
	if err := in.validate(true); err != nil {
		return Account{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, fmt.Errorf("hash password: %w", err)
	}
	created, err := s.repo.Create(ctx, Account{
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: string(hash),
		Role:         in.Role,
		BarangayID:   in.BarangayID,
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, p, "create", created.ID)
	return created, nil
}

// Update edits an account's profile, role and barangay assignment. Super
// admin only. An empty password leaves the current one in place.
func (s *Service) Update(ctx context.Context, p tenancy.Principal, id int64, in Input) (Account, error) {
	if err := s.requireSuperAdmin(ctx, p, "update", id); err != nil {
		return Account{}, err
	}
	if err := in.validate(false); err != nil {
		return Account{}, err
	}
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return Account{}, err
	}
	existing.Email = strings.ToLower(strings.TrimSpace(in.Email))
	existing.Name = strings.TrimSpace(in.Name)
	existing.Role = in.Role
	existing.BarangayID = in.BarangayID
	if err := s.repo.Update(ctx, existing); err != nil {
		return Account{}, err
	}
	if in.Password != "" {
		if len(in.Password) < minPasswordLength {
			return Account{}, fmt.Errorf("%w: password must be at least %d characters", shared.ErrValidation, minPasswordLength)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return Account{}, fmt.Errorf("hash password: %w", err)
		}
		if err := s.repo.SetPasswordHash(ctx, id, string(hash)); err != nil {
			return Account{}, err
		}
	}
	s.record(ctx, p, "update", id)
	return existing, nil
}

// Deactivate locks an account out without deleting it.
func (s *Service) Deactivate(ctx context.Context, p tenancy.Principal, id int64) error {
	return s.setActive(ctx, p, id, false)
}

// Activate re-enables an account.
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
			Entity:     "users",
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
		Entity:   "users",
		EntityID: fmt.Sprintf("%d", id),
	})
}
