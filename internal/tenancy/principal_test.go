package tenancy_test

import (
	"errors"
	"testing"

	"github.com/barangaykms/barangaykms/internal/tenancy"
)

type fakeSession map[string]string

func (f fakeSession) Get(key string) string { return f[key] }

func TestResolveFailsClosedWithoutRole(t *testing.T) {
	_, err := tenancy.Resolve(fakeSession{
		tenancy.SessionKeyIdentity: "42",
	})
	if !errors.Is(err, tenancy.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestResolveFailsClosedWithoutIdentity(t *testing.T) {
	_, err := tenancy.Resolve(fakeSession{
		tenancy.SessionKeyRole: "barangay_admin",
	})
	if !errors.Is(err, tenancy.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestResolveUnknownRoleFailsClosed(t *testing.T) {
	_, err := tenancy.Resolve(fakeSession{
		tenancy.SessionKeyRole:     "mayor",
		tenancy.SessionKeyIdentity: "42",
	})
	if !errors.Is(err, tenancy.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for unknown role, got %v", err)
	}
}

func TestResolveNilSession(t *testing.T) {
	_, err := tenancy.Resolve(nil)
	if !errors.Is(err, tenancy.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestResolveParsesBarangayID(t *testing.T) {
	p, err := tenancy.Resolve(fakeSession{
		tenancy.SessionKeyRole:     "barangay_staff",
		tenancy.SessionKeyIdentity: "7",
		tenancy.SessionKeyBarangay: "12",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.BarangayID == nil || *p.BarangayID != 12 {
		t.Fatalf("expected barangay 12, got %v", p.BarangayID)
	}
	if p.Role != tenancy.RoleBarangayStaff {
		t.Fatalf("expected barangay_staff, got %s", p.Role)
	}
}

func TestResolveMalformedBarangayIDDegradesToAbsent(t *testing.T) {
	p, err := tenancy.Resolve(fakeSession{
		tenancy.SessionKeyRole:     "barangay_admin",
		tenancy.SessionKeyIdentity: "7",
		tenancy.SessionKeyBarangay: "not-a-number",
	})
	if err != nil {
		t.Fatalf("malformed barangay id must not error, got %v", err)
	}
	if p.BarangayID != nil {
		t.Fatalf("expected absent barangay id, got %d", *p.BarangayID)
	}
	// The degraded principal then reads nothing rather than everything.
	if scope := tenancy.ScopeForRead(p); scope.Kind != tenancy.ScopeDeny {
		t.Fatalf("expected deny scope for tenant-less admin, got %v", scope.Kind)
	}
}

func TestResolveRoleIsCaseInsensitive(t *testing.T) {
	p, err := tenancy.Resolve(fakeSession{
		tenancy.SessionKeyRole:     " Super_Admin ",
		tenancy.SessionKeyIdentity: "1",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.Role != tenancy.RoleSuperAdmin {
		t.Fatalf("expected super_admin, got %s", p.Role)
	}
}

func TestGuardPanicsOnUnresolvedPrincipal(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for zero principal")
		}
	}()
	tenancy.CanModify(tenancy.Principal{})
}
