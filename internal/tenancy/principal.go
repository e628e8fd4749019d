// Package tenancy centralizes tenant isolation and role checks for the portal.
// Every handler resolves a Principal from the session and consults the guard
// before touching storage, so the barangay boundary is enforced in one place
// instead of being repeated across controllers.
package tenancy

import (
	"errors"
	"strconv"
	"strings"
)

// Session keys populated at login.
const (
	SessionKeyRole     = "role"
	SessionKeyBarangay = "barangay_id"
	SessionKeyIdentity = "user_identity"
)

// ErrUnauthenticated indicates the session carries no usable principal.
var ErrUnauthenticated = errors.New("tenancy: unauthenticated")

// Role is the closed set of portal roles.
type Role string

const (
	RoleSuperAdmin        Role = "super_admin"
	RoleBarangayAdmin     Role = "barangay_admin"
	RoleBarangaySecretary Role = "barangay_secretary"
	RoleBarangayStaff     Role = "barangay_staff"
	RoleCouncilMember     Role = "council_member"
)

// ParseRole maps a stored role string onto the closed set.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleSuperAdmin:
		return RoleSuperAdmin, true
	case RoleBarangayAdmin:
		return RoleBarangayAdmin, true
	case RoleBarangaySecretary:
		return RoleBarangaySecretary, true
	case RoleBarangayStaff:
		return RoleBarangayStaff, true
	case RoleCouncilMember:
		return RoleCouncilMember, true
	}
	return "", false
}

// Label returns the human-readable role name used in templates.
func (r Role) Label() string {
	switch r {
	case RoleSuperAdmin:
		return "Super Admin"
	case RoleBarangayAdmin:
		return "Barangay Admin"
	case RoleBarangaySecretary:
		return "Barangay Secretary"
	case RoleBarangayStaff:
		return "Barangay Staff"
	case RoleCouncilMember:
		return "Council Member"
	}
	return string(r)
}

// Principal is the authenticated actor for one request. It is resolved once
// per request and passed explicitly; it is never cached across requests.
type Principal struct {
	Role       Role
	BarangayID *int64
	Identity   string
}

// SessionReader is the narrow view of the session store the resolver needs.
type SessionReader interface {
	Get(key string) string
}

// Resolve derives the acting principal from session state. A missing role or
// identity fails closed with ErrUnauthenticated. A barangay id that does not
// parse as an integer degrades to "no barangay" rather than erroring; the
// guard then denies scoped access for non super admins.
func Resolve(sess SessionReader) (Principal, error) {
	if sess == nil {
		return Principal{}, ErrUnauthenticated
	}
	role, ok := ParseRole(sess.Get(SessionKeyRole))
	if !ok {
		return Principal{}, ErrUnauthenticated
	}
	identity := strings.TrimSpace(sess.Get(SessionKeyIdentity))
	if identity == "" {
		return Principal{}, ErrUnauthenticated
	}
	p := Principal{Role: role, Identity: identity}
	if raw := strings.TrimSpace(sess.Get(SessionKeyBarangay)); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			p.BarangayID = &id
		}
	}
	return p, nil
}

func (p Principal) mustBeResolved() {
	if p.Role == "" {
		panic("tenancy: unresolved principal passed to guard")
	}
}
