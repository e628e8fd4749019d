package tenancy

import (
	"errors"
	"fmt"
)

// Action enumerates the write operations the guard arbitrates.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionArchive Action = "archive"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ScopeKind classifies the read restriction derived from a principal.
type ScopeKind int

const (
	// ScopeAll applies no tenant filter (super admin only).
	ScopeAll ScopeKind = iota
	// ScopeBarangay restricts reads to one barangay.
	ScopeBarangay
	// ScopeDeny yields an empty result set without touching storage. A
	// non super admin account with no barangay assignment must never fall
	// through to an unfiltered query.
	ScopeDeny
)

// Scope is the read-time restriction applied to listing queries.
type Scope struct {
	Kind       ScopeKind
	BarangayID int64
}

// AllScope returns the unrestricted scope.
func AllScope() Scope { return Scope{Kind: ScopeAll} }

// DenyScope returns the always-empty scope.
func DenyScope() Scope { return Scope{Kind: ScopeDeny} }

// BarangayScope restricts reads to the given barangay.
func BarangayScope(id int64) Scope { return Scope{Kind: ScopeBarangay, BarangayID: id} }

// DenialReason distinguishes why a write was refused, for flash messages and
// the audit trail. The HTTP status is uniform; the reason is not.
type DenialReason string

const (
	ReasonInsufficientRole DenialReason = "insufficient role"
	ReasonNoBarangay       DenialReason = "account not assigned to a barangay"
	ReasonCrossTenant      DenialReason = "cross-tenant access"
)

// ErrPermissionDenied is the sentinel all guard denials wrap.
var ErrPermissionDenied = errors.New("permission denied")

// PermissionError carries the denial reason behind ErrPermissionDenied.
type PermissionError struct {
	Reason DenialReason
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Reason)
}

func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }

// Decision is the outcome of one write authorization.
type Decision struct {
	Allowed bool
	Reason  DenialReason
	// BarangayID is the tenant the record must be stored under on create.
	// It always comes from the principal, never from client input. Nil
	// means a global record (super admin without an assignment).
	BarangayID *int64
}

// Err converts a denial into an error suitable for service returns.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &PermissionError{Reason: d.Reason}
}

func allowed(barangayID *int64) Decision {
	return Decision{Allowed: true, BarangayID: barangayID}
}

func denied(reason DenialReason) Decision {
	return Decision{Reason: reason}
}

// CanModify reports whether the role may mutate state at all. Council
// members are view-only; every mutating entry point checks this first and
// rejects rather than silently dropping the write.
func CanModify(p Principal) bool {
	p.mustBeResolved()
	switch p.Role {
	case RoleSuperAdmin, RoleBarangayAdmin, RoleBarangaySecretary, RoleBarangayStaff:
		return true
	case RoleCouncilMember:
		return false
	}
	return false
}

// IsSuperAdmin reports whether the principal bypasses tenant filtering and
// ownership checks.
func IsSuperAdmin(p Principal) bool {
	p.mustBeResolved()
	return p.Role == RoleSuperAdmin
}

// ScopeForRead derives the listing restriction for the principal.
func ScopeForRead(p Principal) Scope {
	p.mustBeResolved()
	if p.Role == RoleSuperAdmin {
		return AllScope()
	}
	if p.BarangayID != nil {
		return BarangayScope(*p.BarangayID)
	}
	return DenyScope()
}

// AuthorizeWrite decides one mutation. For create, targetBarangayID is
// ignored and the decision carries the tenant the record must be stored
// under. For the remaining actions targetBarangayID is the stored tenant of
// the existing record, read from storage after this gate, not a cached copy.
func AuthorizeWrite(p Principal, action Action, targetBarangayID *int64) Decision {
	p.mustBeResolved()
	if !CanModify(p) {
		return denied(ReasonInsufficientRole)
	}
	if action == ActionCreate {
		if p.Role != RoleSuperAdmin && p.BarangayID == nil {
			return denied(ReasonNoBarangay)
		}
		return allowed(p.BarangayID)
	}
	if p.Role == RoleSuperAdmin {
		return allowed(p.BarangayID)
	}
	// Strict equality: a global record (nil tenant) is readable by everyone
	// but writable only by a super admin.
	if targetBarangayID == nil || p.BarangayID == nil || *targetBarangayID != *p.BarangayID {
		return denied(ReasonCrossTenant)
	}
	return allowed(p.BarangayID)
}
